package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alexbckr/sdk/internal/app"
	"github.com/alexbckr/sdk/internal/cli"
	"github.com/alexbckr/sdk/internal/stepmodel"
)

// main is the entrypoint for the collector binary.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling.
func run(outW io.Writer, args []string) (err error) {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("application startup panicked: %v", r)
		}
	}()

	collectorApp := app.NewApp(outW, *cfg, steps())
	_, runErr := collectorApp.Run(context.Background())
	return runErr
}

// steps is the collector's fixed step catalog. This binary ships a single
// placeholder step; a real collector built on this engine registers its own
// catalog here in its place.
func steps() []*stepmodel.Step {
	return []*stepmodel.Step{
		{
			ID:   "noop",
			Name: "noop",
			ExecutionHandler: func(ctx context.Context, state stepmodel.JobState) error {
				return nil
			},
		},
	}
}
