package workers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/extraction"
	"github.com/fyrsmithlabs/proposald/internal/llm"
	"github.com/fyrsmithlabs/proposald/internal/logging"
	"github.com/fyrsmithlabs/proposald/internal/orchestrator"
)

// Options configures the standard workers.
type Options struct {
	// Model enriches worker output with narrative text. Nil disables it.
	Model llm.Model

	// Analyzer extracts requirements. Nil uses extraction.DefaultConfig().
	Analyzer *extraction.Analyzer

	Logger *logging.Logger
}

// base carries what every worker shares.
type base struct {
	name   string
	model  llm.Model
	logger *logging.Logger
}

func newBase(name string, opts Options) base {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return base{name: name, model: opts.Model, logger: logger.ForWorker(name)}
}

// Name implements orchestrator.Worker.
func (b base) Name() string { return b.name }

// narrative asks the model for prose. It returns "" without a model.
func (b base) narrative(ctx context.Context, in orchestrator.WorkerInput, system, user string) (string, error) {
	if b.model == nil {
		return "", nil
	}
	in.Report("consulting "+b.model.Name(), 50)
	text, err := b.model.Invoke(ctx, llm.Prompt{System: system, User: user})
	if err != nil {
		b.logger.Warn(ctx, "model invocation failed",
			zap.String("model", b.model.Name()),
			zap.Bool("retryable", llm.IsTransient(err)),
			zap.Error(err),
		)
		return "", b.modelError(err)
	}
	return strings.TrimSpace(text), nil
}

// modelError maps model layer failures onto worker errors. Context errors
// pass through so the scheduler can tell attempt timeouts from cancellation.
func (b base) modelError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var transient *llm.TransientError
	if errors.As(err, &transient) {
		return &orchestrator.WorkerError{Worker: b.name, Retryable: true, Err: err}
	}
	return &orchestrator.WorkerError{Worker: b.name, Retryable: false, Err: err}
}

// fatal reports a malformed upstream input.
func (b base) fatal(format string, args ...any) error {
	return &orchestrator.WorkerError{Worker: b.name, Retryable: false, Err: fmt.Errorf(format, args...)}
}

// decode reads a required input record.
func (b base) decode(in orchestrator.WorkerInput, key string, v any) error {
	if err := in.Decode(key, v); err != nil {
		return b.fatal("decode %s: %w", key, err)
	}
	return nil
}

// clip shortens s to at most n runes, marking the cut with "...".
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func bullets(items []string) string {
	var sb strings.Builder
	for _, it := range items {
		sb.WriteString("- ")
		sb.WriteString(it)
		sb.WriteString("\n")
	}
	return sb.String()
}
