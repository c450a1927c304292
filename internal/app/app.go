package app

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/alexbckr/sdk/internal/stepmodel"
)

// App encapsulates the application's dependencies, configuration, and
// lifecycle: a fixed catalog of steps (this system has no embedded
// configuration language to load them from), the resolved AppConfig, and an
// isolated logger.
type App struct {
	outW       io.Writer
	logger     *slog.Logger
	cfg        AppConfig
	steps      []*stepmodel.Step
	hook       stepmodel.BeforeAddEntityHook
	httpServer *http.Server
}

// NewApp is the constructor for the main application. steps is the
// collector's fixed step catalog — Go code, not a parsed manifest.
func NewApp(outW io.Writer, cfg AppConfig, steps []*stepmodel.Step) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.")

	return &App{
		outW:   outW,
		logger: logger,
		cfg:    cfg,
		steps:  steps,
		hook:   stepmodel.IdentityBeforeAddEntity,
	}
}

// WithBeforeAddEntityHook overrides the default identity hook, letting a
// collector customize or reject entities right before they are admitted to
// the graph object store.
func (a *App) WithBeforeAddEntityHook(hook stepmodel.BeforeAddEntityHook) *App {
	a.hook = hook
	return a
}

// Logger returns the application's configured logger. This is primarily for testing.
func (a *App) Logger() *slog.Logger {
	return a.logger
}
