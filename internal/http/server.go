// Package http provides the operator HTTP API of proposald.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/knowledge"
	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
	"github.com/fyrsmithlabs/proposald/internal/store"
	"github.com/fyrsmithlabs/proposald/internal/telemetry"
)

const defaultSearchLimit = 5

// Archive serves sessions that are no longer held by the orchestrator.
type Archive interface {
	Get(ctx context.Context, sessionID string) (orchestrator.Status, error)
	Artifact(ctx context.Context, sessionID, artifactID string) (orchestrator.Artifact, error)
	List(ctx context.Context, f store.Filter) ([]store.Summary, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int

	// Registry receives the request metrics and backs /metrics. Defaults
	// to the global Prometheus registry.
	Registry *prometheus.Registry
}

// Server exposes the orchestrator over HTTP.
type Server struct {
	echo      *echo.Echo
	orch      *orchestrator.Orchestrator
	archive   Archive
	telemetry func() telemetry.HealthStatus
	logger    *logging.Logger
	config    *Config

	baseCtx    context.Context
	baseCancel context.CancelFunc
	running    sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithArchive serves archived sessions when the orchestrator no longer
// knows them.
func WithArchive(a Archive) Option {
	return func(s *Server) { s.archive = a }
}

// WithTelemetryHealth reports the telemetry pipeline state on /health.
func WithTelemetryHealth(fn func() telemetry.HealthStatus) Option {
	return func(s *Server) { s.telemetry = fn }
}

// NewServer creates a new HTTP server.
func NewServer(orch *orchestrator.Orchestrator, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 8080}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler

	var (
		reg      prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if cfg.Registry != nil {
		reg, gatherer = cfg.Registry, cfg.Registry
	}
	metrics := NewHTTPMetrics(reg)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(metrics.MetricsMiddleware())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			reqID := c.Response().Header().Get(echo.HeaderXRequestID)
			ctx := logging.WithRequestID(c.Request().Context(), reqID)
			c.SetRequest(c.Request().WithContext(ctx))

			if err := next(c); err != nil {
				c.Error(err)
			}
			logger.Info(ctx, "http request",
				zap.String("method", c.Request().Method),
				zap.String("route", c.Path()),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	})

	s := &Server{
		echo:   e,
		orch:   orch,
		logger: logger,
		config: cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.registerRoutes()
	return s, nil
}

// Echo returns the underlying router.
func (s *Server) Echo() *echo.Echo { return s.echo }

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/sessions", s.handleStart)
	v1.GET("/sessions", s.handleList)
	v1.GET("/sessions/:id", s.handleStatus)
	v1.POST("/sessions/:id/advance", s.handleAdvance)
	v1.POST("/sessions/:id/cancel", s.handleCancel)
	v1.POST("/sessions/:id/clarifications", s.handleRequestClarification)
	v1.POST("/sessions/:id/gaps/:gap_id/answer", s.handleAnswer)
	v1.GET("/sessions/:id/proposal", s.handleProposal)
	v1.GET("/sessions/:id/progress", s.handleProgress)
	v1.GET("/sessions/:id/artifacts/:artifact_id", s.handleArtifact)
	v1.GET("/sessions/:id/records/:key/history", s.handleHistory)
	v1.GET("/archive", s.handleArchive)
	v1.GET("/knowledge/search", s.handleSearch)
	v1.POST("/knowledge", s.handleAddKnowledge)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Sessions: len(s.orch.Sessions())}
	if s.telemetry != nil {
		h := s.telemetry()
		resp.Telemetry = &h
		if h.Degraded {
			resp.Status = "degraded"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// handleStart creates a session and drives it until it blocks. With
// ?async=true the run continues in the background and 202 is returned.
func (s *Server) handleStart(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	sess, err := s.orch.Start(ctx, orchestrator.StartInput{OwnerID: req.OwnerID, Content: req.Content, Filename: req.Filename})
	if err != nil {
		return err
	}

	if async, _ := strconv.ParseBool(c.QueryParam("async")); async {
		s.runBackground(sess.ID)
		return c.JSON(http.StatusAccepted, SessionResponse{Session: sess})
	}
	sess, err = s.orch.RunUntilBlocked(ctx, sess.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, SessionResponse{Session: sess})
}

func (s *Server) runBackground(sessionID string) {
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		ctx := logging.WithSessionID(s.baseCtx, sessionID)
		if _, err := s.orch.RunUntilBlocked(ctx, sessionID); err != nil {
			s.logger.Warn(ctx, "background run stopped", zap.Error(err))
		}
	}()
}

func (s *Server) handleList(c echo.Context) error {
	owner := c.QueryParam("owner_id")
	out := []orchestrator.Session{}
	for _, sess := range s.orch.Sessions() {
		if owner == "" || sess.OwnerID == owner {
			out = append(out, sess)
		}
	}
	return c.JSON(http.StatusOK, SessionsResponse{Sessions: out})
}

func (s *Server) handleStatus(c echo.Context) error {
	st, err := s.status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, st)
}

// status reads live sessions first, then the archive.
func (s *Server) status(ctx context.Context, id string) (orchestrator.Status, error) {
	st, err := s.orch.Status(ctx, id)
	if errors.Is(err, orchestrator.ErrSessionNotFound) && s.archive != nil {
		if archived, aerr := s.archive.Get(ctx, id); aerr == nil {
			return archived, nil
		}
	}
	return st, err
}

func (s *Server) handleAdvance(c echo.Context) error {
	sess, err := s.orch.RunUntilBlocked(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: sess})
}

func (s *Server) handleCancel(c echo.Context) error {
	sess, err := s.orch.Cancel(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: sess})
}

func (s *Server) handleRequestClarification(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")
	req, err := s.orch.RequestClarification(ctx, id)
	if err != nil {
		return err
	}
	if len(req.Forced) > 0 {
		sess, err := s.orch.RunUntilBlocked(ctx, id)
		if err != nil {
			return err
		}
		req.State = sess.State
	}
	return c.JSON(http.StatusOK, req)
}

func (s *Server) handleAnswer(c echo.Context) error {
	var req AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	id := c.Param("id")
	sess, err := s.orch.SubmitClarification(ctx, id, c.Param("gap_id"), req.Answer)
	if err != nil {
		return err
	}
	if sess.State != orchestrator.StateAwaitingClarification {
		if sess, err = s.orch.RunUntilBlocked(ctx, id); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, SessionResponse{Session: sess})
}

// handleProposal answers 200 with the document once completed, 202 while
// the session is still in progress and 422 when it failed.
func (s *Server) handleProposal(c echo.Context) error {
	st, err := s.status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	resp := ProposalResponse{
		SessionID: st.Session.ID,
		State:     st.Session.State,
		NextStep:  st.NextStep,
		Result:    st.Session.Result,
	}
	switch st.Session.State {
	case orchestrator.StateCompleted:
		for i := range st.Artifacts {
			if st.Session.Result != nil && st.Artifacts[i].ID == st.Session.Result.ArtifactID {
				resp.Document = &st.Artifacts[i]
			}
		}
		return c.JSON(http.StatusOK, resp)
	case orchestrator.StateFailed:
		return c.JSON(http.StatusUnprocessableEntity, resp)
	default:
		return c.JSON(http.StatusAccepted, resp)
	}
}

func (s *Server) handleProgress(c echo.Context) error {
	var after uint64
	if v := c.QueryParam("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "after must be a sequence number")
		}
		after = n
	}
	events, err := s.orch.ProgressEvents(c.Param("id"), after)
	if err != nil {
		return err
	}
	if events == nil {
		events = []orchestrator.ProgressEvent{}
	}
	return c.JSON(http.StatusOK, ProgressResponse{Events: events})
}

func (s *Server) handleArtifact(c echo.Context) error {
	id, artifactID := c.Param("id"), c.Param("artifact_id")
	art, err := s.orch.Artifact(id, artifactID)
	if errors.Is(err, orchestrator.ErrSessionNotFound) && s.archive != nil {
		art, err = s.archive.Artifact(c.Request().Context(), id, artifactID)
	}
	if err != nil {
		return err
	}
	if c.QueryParam("raw") == "true" {
		return c.String(http.StatusOK, art.Content)
	}
	return c.JSON(http.StatusOK, art)
}

func (s *Server) handleHistory(c echo.Context) error {
	id := c.Param("id")
	if _, err := s.orch.Session(id); err != nil {
		return err
	}
	recs, err := s.orch.Knowledge().History(c.Request().Context(), id, c.Param("key"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RecordsResponse{Records: recs})
}

func (s *Server) handleArchive(c echo.Context) error {
	if s.archive == nil {
		return echo.NewHTTPError(http.StatusNotFound, "session archive is not enabled")
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	out, err := s.archive.List(c.Request().Context(), store.Filter{
		OwnerID: c.QueryParam("owner_id"),
		Outcome: orchestrator.Outcome(c.QueryParam("outcome")),
		Limit:   limit,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) handleSearch(c echo.Context) error {
	q := c.QueryParam("q")
	if q == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}
	limit := defaultSearchLimit
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	recs, err := s.orch.Knowledge().Search(c.Request().Context(), knowledge.GlobalNamespace, q, limit)
	if err != nil {
		return err
	}
	if recs == nil {
		recs = []knowledge.Record{}
	}
	return c.JSON(http.StatusOK, RecordsResponse{Records: recs})
}

func (s *Server) handleAddKnowledge(c echo.Context) error {
	var req KnowledgeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Key == "" || req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "key and content are required")
	}
	ctx := c.Request().Context()
	if _, err := s.orch.Knowledge().Save(ctx, knowledge.GlobalNamespace, req.Key, req.Content, orchestrator.OperatorIdentity); err != nil {
		return err
	}
	rec, err := s.orch.Knowledge().Get(ctx, knowledge.GlobalNamespace, req.Key)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rec)
}

// errorHandler maps domain errors onto status codes.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := statusFor(err)
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg = fmt.Sprint(he.Message)
	}
	_ = c.JSON(code, ErrorResponse{Error: msg})
}

func statusFor(err error) int {
	var (
		he      *echo.HTTPError
		invalid *orchestrator.InvalidInputError
	)
	switch {
	case errors.As(err, &he):
		return he.Code
	case errors.As(err, &invalid), errors.Is(err, orchestrator.ErrEmptyResolution):
		return http.StatusBadRequest
	case errors.Is(err, orchestrator.ErrSessionNotFound),
		errors.Is(err, orchestrator.ErrGapNotFound),
		errors.Is(err, orchestrator.ErrArtifactNotFound),
		errors.Is(err, knowledge.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, orchestrator.ErrNotAwaitingClarification),
		errors.Is(err, orchestrator.ErrGapNotOpen),
		errors.Is(err, orchestrator.ErrSessionTerminal):
		return http.StatusConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests and waits for background runs.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	err := s.echo.Shutdown(ctx)
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		err = errors.Join(err, fmt.Errorf("waiting for background runs: %w", ctx.Err()))
	}
	return err
}
