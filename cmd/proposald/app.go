package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/config"
	"github.com/fyrsmithlabs/proposald/internal/db"
	"github.com/fyrsmithlabs/proposald/internal/events"
	"github.com/fyrsmithlabs/proposald/internal/export"
	httpserver "github.com/fyrsmithlabs/proposald/internal/http"
	"github.com/fyrsmithlabs/proposald/internal/ingest"
	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/llm"
	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/secrets"
	"github.com/fyrsmithlabs/proposald/internal/store"
	"github.com/fyrsmithlabs/proposald/internal/telemetry"
	"github.com/fyrsmithlabs/proposald/internal/workers"
)

// app holds every long-lived component of the daemon.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  *prometheus.Registry

	conn      *sql.DB
	knowledge *knowledge.Store
	archive   *store.Archive
	publisher *events.Publisher
	orch      *orchestrator.Orchestrator
}

// newApp initializes dependencies in order. With stdio set, logs go to
// stderr so stdout stays free for the MCP protocol.
//
//  1. Telemetry and logger
//  2. SQLite connection (sqlite driver only)
//  3. Knowledge store with the global index
//  4. Model, redactor and event publisher
//  5. Orchestrator with the standard workers and finalizers
//
// On error every component created so far is closed.
func newApp(ctx context.Context, cfg *config.Config, stdio bool) (_ *app, err error) {
	a := &app{cfg: cfg, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			a.close(context.Background())
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	telCfg, err := telemetry.FromSettings(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	a.telemetry, err = telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	logCfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	logCfg.Output.Stderr = stdio
	a.logger, err = logging.NewLogger(logCfg, a.telemetry.LoggerProvider())
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if err := a.initKnowledge(ctx); err != nil {
		return nil, err
	}

	model, err := llm.New(llm.ConfigFromSettings(cfg.LLM))
	if err != nil {
		return nil, fmt.Errorf("init model: %w", err)
	}
	modelFields := []zap.Field{zap.String("provider", cfg.LLM.Provider)}
	if cfg.LLM.APIKey.IsSet() {
		modelFields = append(modelFields, logging.Secret("api_key", cfg.LLM.APIKey))
	}
	a.logger.Info(ctx, "model configured", modelFields...)

	opts := []orchestrator.Option{
		orchestrator.WithLogger(a.logger),
		orchestrator.WithTracer(a.telemetry.Tracer("orchestrator")),
		orchestrator.WithMetrics(orchestrator.NewMetrics(a.telemetry.Meter("orchestrator"), a.logger)),
		orchestrator.WithInputValidator(ingest.ValidateInput),
	}

	if cfg.Secrets.Enabled {
		allow, err := secrets.LoadAllowlist(cfg.Secrets.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("load secrets allowlist: %w", err)
		}
		redactor, err := secrets.NewRedactor(allow, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init redactor: %w", err)
		}
		opts = append(opts, orchestrator.WithScrubber(redactor))
	}

	if cfg.NATS.Enabled {
		a.publisher, err = events.Connect(cfg.NATS.URL, cfg.NATS.SubjectPrefix, a.logger)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		opts = append(opts,
			orchestrator.WithTraceEmitter(a.publisher),
			orchestrator.WithProgressSink(a.publisher),
			orchestrator.WithFinalizer(a.publisher),
		)
	}

	if a.archive != nil {
		opts = append(opts, orchestrator.WithFinalizer(a.archive))
	}

	if cfg.Export.Enabled {
		exporter, err := export.NewGitExporter(export.Config{
			RepoPath:    cfg.Export.RepoPath,
			AuthorName:  cfg.Export.AuthorName,
			AuthorEmail: cfg.Export.AuthorEmail,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init git export: %w", err)
		}
		opts = append(opts, orchestrator.WithFinalizer(exporter))
	}

	a.orch = orchestrator.New(a.knowledge, orchestrator.ConfigFromSettings(cfg.Orchestrator), opts...)
	if err := workers.Register(a.orch, workers.Options{Model: model, Logger: a.logger}); err != nil {
		return nil, fmt.Errorf("register workers: %w", err)
	}

	modelName := "heuristic"
	if model != nil {
		modelName = model.Name()
	}
	a.logger.Info(ctx, "proposald initialized",
		zap.String("knowledge_driver", cfg.Knowledge.Driver),
		zap.String("model", modelName),
		zap.Bool("nats", a.publisher != nil),
		zap.Bool("archive", a.archive != nil),
		zap.Bool("export", cfg.Export.Enabled),
		zap.Bool("telemetry", a.telemetry.IsEnabled()),
	)
	return a, nil
}

func (a *app) initKnowledge(ctx context.Context) error {
	kc := a.cfg.Knowledge

	var repo knowledge.Repository
	switch kc.Driver {
	case "sqlite":
		conn, err := db.Open(kc.SQLitePath)
		if err != nil {
			return err
		}
		a.conn = conn
		sqliteRepo, err := knowledge.NewSQLiteRepository(ctx, conn)
		if err != nil {
			return fmt.Errorf("init knowledge repository: %w", err)
		}
		repo = sqliteRepo
		a.archive, err = store.NewArchive(ctx, conn)
		if err != nil {
			return fmt.Errorf("init session archive: %w", err)
		}
	default:
		repo = knowledge.NewMemoryRepository()
	}

	var embedder knowledge.Embedder = knowledge.NewHashEmbedder(kc.EmbeddingDimension)
	if a.cfg.LLM.Provider == "langchain" {
		lc, err := llm.NewEmbedder(llm.ConfigFromSettings(a.cfg.LLM))
		if err != nil {
			return fmt.Errorf("init embedder: %w", err)
		}
		embedder = lc
	}
	index, err := knowledge.NewGlobalIndex(knowledge.IndexConfig{
		Path:     kc.VectorPath,
		Compress: kc.VectorCompress,
	}, embedder)
	if err != nil {
		return fmt.Errorf("init global index: %w", err)
	}

	a.knowledge = knowledge.NewStore(repo,
		knowledge.WithGlobalIndex(index),
		knowledge.WithLogger(a.logger),
	)
	if kc.Driver == "sqlite" {
		n, err := a.knowledge.Reindex(ctx)
		if err != nil {
			return fmt.Errorf("reindex global knowledge: %w", err)
		}
		a.logger.Info(ctx, "global knowledge indexed", zap.Int("records", n))
	}
	return nil
}

// httpServer builds the operator API around the orchestrator.
func (a *app) httpServer() (*httpserver.Server, error) {
	opts := []httpserver.Option{httpserver.WithTelemetryHealth(a.telemetry.Health)}
	if a.archive != nil {
		opts = append(opts, httpserver.WithArchive(a.archive))
	}
	return httpserver.NewServer(a.orch, a.logger, &httpserver.Config{
		Host:     a.cfg.Server.Host,
		Port:     a.cfg.Server.Port,
		Registry: a.registry,
	}, opts...)
}

// close releases components in reverse order of creation.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.orch != nil {
		if err := a.orch.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator close: %w", err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("nats close: %w", err))
		}
	}
	if a.knowledge != nil {
		if err := a.knowledge.Close(); err != nil {
			errs = append(errs, fmt.Errorf("knowledge close: %w", err))
		}
	}
	if a.conn != nil {
		if err := a.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("database close: %w", err))
		}
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
