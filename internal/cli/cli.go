package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alexbckr/sdk/internal/app"
	"github.com/alexbckr/sdk/internal/config"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// envFieldSpecs declares every AppConfig field internal/config can resolve
// from the environment. Flags parsed afterward take precedence over these
// values when explicitly set.
func envFieldSpecs() []config.FieldSpec {
	return []config.FieldSpec{
		{Name: "IntegrationInstanceID", Type: config.FieldString},
		{Name: "APIBaseURL", Type: config.FieldString},
		{Name: "EventPublisherURL", Type: config.FieldString},
		{Name: "InsecureSkipVerify", Type: config.FieldBoolean},
		{Name: "CacheRootDir", Type: config.FieldString},
		{Name: "OutputRootDir", Type: config.FieldString},
		{Name: "DisabledSteps", Type: config.FieldString},
		{Name: "HealthcheckPort", Type: config.FieldString},
		{Name: "Concurrency", Type: config.FieldString},
		{Name: "LogFormat", Type: config.FieldString},
		{Name: "LogLevel", Type: config.FieldString},
	}
}

// Parse processes command-line arguments, using os.LookupEnv for any field
// not given explicitly on the command line. It returns a populated
// AppConfig, a boolean indicating if the program should exit cleanly, or an
// ExitError.
func Parse(args []string, output io.Writer) (*app.AppConfig, bool, error) {
	return ParseWithEnv(args, output, os.LookupEnv)
}

// ParseWithEnv is Parse with an injectable environment lookup, for testing.
func ParseWithEnv(args []string, output io.Writer, lookup func(string) (string, bool)) (*app.AppConfig, bool, error) {
	slog.Debug("CLI parser started.")

	envValues, err := config.Load(envFieldSpecs(), lookup)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	flagSet := flag.NewFlagSet("collector", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
Graph Collector - a dependency-graph-driven collection and synchronization engine.

Usage:
  collector [options]

Every option may also be set via its upper-snake-case environment variable
(e.g. -api-base-url or API_BASE_URL); explicit flags take precedence.

Options:
`)
		flagSet.PrintDefaults()
	}

	instanceIDFlag := flagSet.String("integration-instance-id", envString(envValues, "IntegrationInstanceID"), "Integration instance id to synchronize against.")
	apiBaseURLFlag := flagSet.String("api-base-url", envString(envValues, "APIBaseURL"), "Base URL of the persister API.")
	eventPublisherURLFlag := flagSet.String("event-publisher-url", envString(envValues, "EventPublisherURL"), "Socket.io URL to publish run events to. Empty disables event publishing.")
	insecureSkipVerifyFlag := flagSet.Bool("insecure-skip-verify", envBool(envValues, "InsecureSkipVerify"), "Skip TLS verification when connecting to the event publisher.")
	cacheRootDirFlag := flagSet.String("cache-root-dir", envString(envValues, "CacheRootDir"), "Directory of per-step cached graph objects. Empty disables cache loading.")
	outputRootDirFlag := flagSet.String("output-root-dir", envString(envValues, "OutputRootDir"), "Directory to persist flushed graph objects and the run summary.")
	disabledStepsFlag := flagSet.String("disabled-steps", envString(envValues, "DisabledSteps"), "Comma-separated step ids to disable.")
	healthcheckPortFlag := flagSet.String("healthcheck-port", envString(envValues, "HealthcheckPort"), "Port for the HTTP health check server. Empty disables it.")
	concurrencyFlag := flagSet.String("concurrency", envString(envValues, "Concurrency"), "Number of steps that may run concurrently.")
	logFormatFlag := flagSet.String("log-format", envStringOr(envValues, "LogFormat", "json"), "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", envStringOr(envValues, "LogLevel", "info"), "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	cfg, err := app.NewConfig(app.AppConfig{
		IntegrationInstanceID: *instanceIDFlag,
		APIBaseURL:            *apiBaseURLFlag,
		EventPublisherURL:     *eventPublisherURLFlag,
		InsecureSkipVerify:    *insecureSkipVerifyFlag,
		CacheRootDir:          *cacheRootDirFlag,
		OutputRootDir:         *outputRootDirFlag,
		DisabledSteps:         *disabledStepsFlag,
		HealthcheckPort:       *healthcheckPortFlag,
		Concurrency:           *concurrencyFlag,
		LogFormat:             logFormat,
		LogLevel:              logLevel,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.")
	return cfg, false, nil
}

func envString(values map[string]any, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}

func envStringOr(values map[string]any, key, fallback string) string {
	if v := envString(values, key); v != "" {
		return v
	}
	return fallback
}

func envBool(values map[string]any, key string) bool {
	if v, ok := values[key].(bool); ok {
		return v
	}
	return false
}
