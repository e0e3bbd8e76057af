package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete proposald configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Orchestrator OrchestratorConfig `koanf:"orchestrator"`
	Knowledge    KnowledgeConfig    `koanf:"knowledge"`
	NATS         NATSConfig         `koanf:"nats"`
	LLM          LLMConfig          `koanf:"llm"`
	Secrets      SecretsConfig      `koanf:"secrets"`
	Inbox        InboxConfig        `koanf:"inbox"`
	Export       ExportConfig       `koanf:"export"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// ServerConfig holds operator API settings.
type ServerConfig struct {
	Host            string   `koanf:"host"`
	Port            int      `koanf:"port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// OrchestratorConfig holds workflow tuning knobs.
//
// The retry fields are flat so that every setting can be overridden by a
// single PROPOSALD_ORCHESTRATOR_* environment variable.
type OrchestratorConfig struct {
	MaxClarificationRounds int      `koanf:"max_clarification_rounds"`
	WorkerTimeout          Duration `koanf:"worker_timeout"`
	MaxRetries             int      `koanf:"max_retries"`
	InitialBackoff         Duration `koanf:"initial_backoff"`
	MaxBackoff             Duration `koanf:"max_backoff"`
	BackoffMultiplier      float64  `koanf:"backoff_multiplier"`
	SessionRetention       Duration `koanf:"session_retention"`
}

// KnowledgeConfig selects the record repository and the global index location.
type KnowledgeConfig struct {
	// Driver is "memory" or "sqlite".
	Driver             string `koanf:"driver"`
	SQLitePath         string `koanf:"sqlite_path"`
	VectorPath         string `koanf:"vector_path"`
	VectorCompress     bool   `koanf:"vector_compress"`
	EmbeddingDimension int    `koanf:"embedding_dimension"`
}

// NATSConfig holds the progress/trace event bus connection.
type NATSConfig struct {
	Enabled       bool   `koanf:"enabled"`
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LLMConfig configures the model invocation layer.
type LLMConfig struct {
	// Provider is one of "heuristic", "anthropic", "openai", "langchain".
	Provider  string   `koanf:"provider"`
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	RateLimit float64  `koanf:"rate_limit"`
	Burst     int      `koanf:"burst"`
	Timeout   Duration `koanf:"timeout"`
}

// SecretsConfig controls redaction of submitted content.
type SecretsConfig struct {
	Enabled       bool   `koanf:"enabled"`
	AllowlistPath string `koanf:"allowlist_path"`
}

// InboxConfig controls the tender document watcher.
type InboxConfig struct {
	Enabled bool   `koanf:"enabled"`
	Dir     string `koanf:"dir"`
}

// ExportConfig controls git export of completed proposals.
type ExportConfig struct {
	Enabled     bool   `koanf:"enabled"`
	RepoPath    string `koanf:"repo_path"`
	AuthorName  string `koanf:"author_name"`
	AuthorEmail string `koanf:"author_email"`
}

// LoggingConfig is the subset of logging settings exposed through the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"`
	Insecure       bool    `koanf:"insecure"`
	ServiceName    string  `koanf:"service_name"`
	ServiceVersion string  `koanf:"service_version"`
	SampleRate     float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when no file or environment override is present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            9191,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Orchestrator: OrchestratorConfig{
			MaxClarificationRounds: 5,
			WorkerTimeout:          Duration(2 * time.Minute),
			MaxRetries:             2,
			InitialBackoff:         Duration(200 * time.Millisecond),
			MaxBackoff:             Duration(5 * time.Second),
			BackoffMultiplier:      2.0,
			SessionRetention:       Duration(15 * time.Minute),
		},
		Knowledge: KnowledgeConfig{
			Driver:             "memory",
			SQLitePath:         "proposald.db",
			VectorPath:         "",
			EmbeddingDimension: 256,
		},
		NATS: NATSConfig{
			Enabled:       false,
			URL:           "nats://localhost:4222",
			SubjectPrefix: "proposals",
		},
		LLM: LLMConfig{
			Provider:  "heuristic",
			RateLimit: 50.0 / 60.0,
			Burst:     5,
			Timeout:   Duration(60 * time.Second),
		},
		Secrets: SecretsConfig{
			Enabled: true,
		},
		Export: ExportConfig{
			AuthorName:  "proposald",
			AuthorEmail: "proposald@localhost",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "proposald",
			ServiceVersion: "0.1.0",
			SampleRate:     1.0,
		},
	}
}

// Validate returns the first invalid setting found.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Orchestrator.MaxClarificationRounds < 1 {
		return fmt.Errorf("orchestrator.max_clarification_rounds must be >= 1, got %d", c.Orchestrator.MaxClarificationRounds)
	}
	if c.Orchestrator.MaxRetries < 0 {
		return fmt.Errorf("orchestrator.max_retries must be >= 0, got %d", c.Orchestrator.MaxRetries)
	}
	if c.Orchestrator.WorkerTimeout.Duration() <= 0 {
		return errors.New("orchestrator.worker_timeout must be > 0")
	}
	if r := c.Orchestrator.SessionRetention; r < 0 && r != Forever {
		return errors.New("orchestrator.session_retention must be >= 0 or \"forever\"")
	}
	if c.Orchestrator.BackoffMultiplier < 1 {
		return fmt.Errorf("orchestrator.backoff_multiplier must be >= 1, got %v", c.Orchestrator.BackoffMultiplier)
	}
	switch c.Knowledge.Driver {
	case "memory":
	case "sqlite":
		if c.Knowledge.SQLitePath == "" {
			return errors.New("knowledge.sqlite_path required when driver is sqlite")
		}
	default:
		return fmt.Errorf("knowledge.driver must be 'memory' or 'sqlite', got %q", c.Knowledge.Driver)
	}
	if c.Knowledge.EmbeddingDimension <= 0 {
		return errors.New("knowledge.embedding_dimension must be > 0")
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return errors.New("nats.url required when nats is enabled")
	}
	switch c.LLM.Provider {
	case "heuristic", "langchain":
	case "anthropic", "openai":
		if !c.LLM.APIKey.IsSet() {
			return fmt.Errorf("llm.api_key required for provider %q", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm.provider %q", c.LLM.Provider)
	}
	if c.Inbox.Enabled && c.Inbox.Dir == "" {
		return errors.New("inbox.dir required when inbox is enabled")
	}
	if c.Export.Enabled && c.Export.RepoPath == "" {
		return errors.New("export.repo_path required when export is enabled")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}
	if c.Telemetry.Enabled && c.Telemetry.ServiceName == "" {
		return errors.New("telemetry.service_name required when telemetry is enabled")
	}
	return nil
}
