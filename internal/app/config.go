package app

import (
	"errors"
	"fmt"
)

// Commands understood by App.Run.
const (
	CommandRun       = "run"
	CommandProcess   = "process"
	CommandAggregate = "aggregate"
	CommandValidate  = "validate"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // hcl file
	Command      string

	LogFormat string
	LogLevel  string
	// LogFile receives a JSON copy of every log line. Empty disables it.
	LogFile string

	// Workers overrides pipeline.workers when positive.
	Workers         int
	HealthcheckPort int
	LedgerPath      string
	TraceFile       string
	Version         string
}

// NewConfig validates cfg and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}
	switch cfg.Command {
	case CommandRun, CommandProcess, CommandAggregate, CommandValidate:
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("healthcheck-port out of range: %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
