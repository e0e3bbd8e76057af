// internal/logging/context.go
package logging

import (
	"context"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 8)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	wf, _ := ctx.Value(workflowCtxKey{}).(workflowFields)
	if wf.sessionID != "" {
		fields = append(fields, zap.String("session.id", wf.sessionID))
	}
	if wf.phase != "" {
		fields = append(fields, zap.String("phase", wf.phase))
	}
	if wf.worker != "" {
		fields = append(fields, zap.String("worker", wf.worker))
	}
	if wf.invocationID != "" {
		fields = append(fields, zap.String("invocation.id", wf.invocationID))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type workflowCtxKey struct{}
type requestCtxKey struct{}

// workflowFields is stored by value so that child contexts never share mutations.
type workflowFields struct {
	sessionID    string
	phase        string
	worker       string
	invocationID string
}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

func validID(id string) bool {
	return id != "" && utf8.ValidString(id) && len(id) <= maxIDLen && idPattern.MatchString(id)
}

func withWorkflow(ctx context.Context, update func(*workflowFields)) context.Context {
	wf, _ := ctx.Value(workflowCtxKey{}).(workflowFields)
	update(&wf)
	return context.WithValue(ctx, workflowCtxKey{}, wf)
}

// WithSessionID adds the session id to context. Invalid ids are ignored.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if !validID(sessionID) {
		return ctx
	}
	return withWorkflow(ctx, func(wf *workflowFields) { wf.sessionID = sessionID })
}

// SessionIDFromContext extracts session ID from context.
func SessionIDFromContext(ctx context.Context) string {
	wf, _ := ctx.Value(workflowCtxKey{}).(workflowFields)
	return wf.sessionID
}

// WithPhase adds the current workflow phase to context.
func WithPhase(ctx context.Context, phase string) context.Context {
	if !validID(phase) {
		return ctx
	}
	return withWorkflow(ctx, func(wf *workflowFields) { wf.phase = phase })
}

// WithWorker adds the specialist worker name to context.
func WithWorker(ctx context.Context, worker string) context.Context {
	if !validID(worker) {
		return ctx
	}
	return withWorkflow(ctx, func(wf *workflowFields) { wf.worker = worker })
}

// WithInvocationID adds the worker invocation id to context.
func WithInvocationID(ctx context.Context, invocationID string) context.Context {
	if !validID(invocationID) {
		return ctx
	}
	return withWorkflow(ctx, func(wf *workflowFields) { wf.invocationID = invocationID })
}

// WithRequestID adds the operator request id to context. Invalid ids are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

type loggerCtxKey struct{}

// WithLogger stores logger in context.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext retrieves logger from context.
// Returns a nop logger if not found.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return NewNop()
}
