package app

import (
	"errors"
	"strconv"
)

// AppConfig holds all the necessary configuration for an App instance to
// run. Fields map onto internal/config.FieldSpec values in
// cli.envFieldSpecs; int-valued fields are carried as strings because
// internal/config.Load only parses FieldString/FieldBoolean.
type AppConfig struct {
	IntegrationInstanceID string
	APIBaseURL            string
	EventPublisherURL     string
	InsecureSkipVerify    bool
	CacheRootDir          string
	OutputRootDir         string
	DisabledSteps         string
	HealthcheckPort       string
	Concurrency           string
	LogFormat             string
	LogLevel              string
}

// NewConfig validates cfg's required fields and string-encoded numeric
// fields, and fills in defaults for the rest.
func NewConfig(cfg AppConfig) (*AppConfig, error) {
	if cfg.IntegrationInstanceID == "" {
		return nil, errors.New("IntegrationInstanceID is a required configuration field and cannot be empty")
	}
	if cfg.APIBaseURL == "" {
		return nil, errors.New("APIBaseURL is a required configuration field and cannot be empty")
	}
	if cfg.HealthcheckPort != "" {
		if _, err := strconv.Atoi(cfg.HealthcheckPort); err != nil {
			return nil, errors.New("HealthcheckPort must be a valid integer")
		}
	}
	if cfg.Concurrency != "" {
		if n, err := strconv.Atoi(cfg.Concurrency); err != nil || n <= 0 {
			return nil, errors.New("Concurrency must be a positive integer")
		}
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "json"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	return &cfg, nil
}

// concurrency returns the resolved worker cap, defaulting to 1 (sequential).
func (c *AppConfig) concurrency() int {
	if c.Concurrency == "" {
		return 1
	}
	n, err := strconv.Atoi(c.Concurrency)
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

// healthcheckPort returns the resolved healthcheck port, or 0 (disabled) if unset.
func (c *AppConfig) healthcheckPort() int {
	if c.HealthcheckPort == "" {
		return 0
	}
	n, err := strconv.Atoi(c.HealthcheckPort)
	if err != nil {
		return 0
	}
	return n
}
