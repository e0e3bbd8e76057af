package orchestrator

import (
	"time"

	"github.com/fyrsmithlabs/proposald/internal/config"
)

// Config tunes the workflow engine.
type Config struct {
	MaxClarificationRounds int
	WorkerTimeout          time.Duration
	Retry                  RetryPolicy

	// Retention is how long a terminal session stays in memory after its
	// finalizers ran. Negative keeps terminal sessions until Close.
	Retention time.Duration
}

// DefaultConfig returns five clarification rounds, a two minute worker
// timeout, DefaultRetryPolicy and a fifteen minute retention.
func DefaultConfig() Config {
	return Config{
		MaxClarificationRounds: 5,
		WorkerTimeout:          2 * time.Minute,
		Retry:                  DefaultRetryPolicy(),
		Retention:              15 * time.Minute,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxClarificationRounds <= 0 {
		c.MaxClarificationRounds = def.MaxClarificationRounds
	}
	if c.WorkerTimeout <= 0 {
		c.WorkerTimeout = def.WorkerTimeout
	}
	if c.Retry == (RetryPolicy{}) {
		c.Retry = def.Retry
	}
	if c.Retention == 0 {
		c.Retention = def.Retention
	}
	return c
}

// ConfigFromSettings maps the orchestrator section of the daemon config.
func ConfigFromSettings(s config.OrchestratorConfig) Config {
	cfg := DefaultConfig()
	if s.MaxClarificationRounds > 0 {
		cfg.MaxClarificationRounds = s.MaxClarificationRounds
	}
	if s.WorkerTimeout.Duration() > 0 {
		cfg.WorkerTimeout = s.WorkerTimeout.Duration()
	}
	if s.MaxRetries >= 0 {
		cfg.Retry.MaxRetries = s.MaxRetries
	}
	if s.InitialBackoff.Duration() > 0 {
		cfg.Retry.InitialInterval = s.InitialBackoff.Duration()
	}
	if s.MaxBackoff.Duration() > 0 {
		cfg.Retry.MaxInterval = s.MaxBackoff.Duration()
	}
	if s.BackoffMultiplier >= 1 {
		cfg.Retry.Multiplier = s.BackoffMultiplier
	}
	switch r := s.SessionRetention; {
	case r == config.Forever:
		cfg.Retention = -1
	case r > 0:
		cfg.Retention = r.Duration()
	}
	return cfg
}
