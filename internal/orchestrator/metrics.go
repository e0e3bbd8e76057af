package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/proposald/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/proposald/internal/orchestrator"

// Metrics holds the workflow instruments. A nil *Metrics records nothing.
type Metrics struct {
	transitions    metric.Int64Counter
	invocations    metric.Int64Counter
	retries        metric.Int64Counter
	duration       metric.Float64Histogram
	gaps           metric.Int64Counter
	activeSessions metric.Int64UpDownCounter
}

// NewMetrics creates the instruments on meter. A nil meter uses the global provider.
func NewMetrics(meter metric.Meter, logger *logging.Logger) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	ctx := context.Background()
	m := &Metrics{}

	var err error
	m.transitions, err = meter.Int64Counter(
		"proposald.orchestrator.transitions_total",
		metric.WithDescription("Total number of session state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create transitions counter", zap.Error(err))
	}

	m.invocations, err = meter.Int64Counter(
		"proposald.worker.invocations_total",
		metric.WithDescription("Total number of finished worker invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create invocations counter", zap.Error(err))
	}

	m.retries, err = meter.Int64Counter(
		"proposald.worker.retries_total",
		metric.WithDescription("Total number of worker retry attempts"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create retries counter", zap.Error(err))
	}

	m.duration, err = meter.Float64Histogram(
		"proposald.worker.invocation_duration_seconds",
		metric.WithDescription("Duration of worker invocations including retries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create duration histogram", zap.Error(err))
	}

	m.gaps, err = meter.Int64Counter(
		"proposald.gaps_total",
		metric.WithDescription("Gaps by resulting status"),
		metric.WithUnit("{gap}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create gaps counter", zap.Error(err))
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"proposald.sessions_active",
		metric.WithDescription("Sessions not yet in a terminal state"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		logger.Warn(ctx, "failed to create active sessions gauge", zap.Error(err))
	}

	return m
}

func (m *Metrics) recordTransition(ctx context.Context, from, to State) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *Metrics) recordInvocation(ctx context.Context, worker string, status InvocationStatus, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("worker", worker),
		attribute.String("status", string(status)),
	)
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, d.Seconds(), attrs)
	}
}

func (m *Metrics) recordRetry(ctx context.Context, worker string) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("worker", worker)))
}

func (m *Metrics) recordGap(ctx context.Context, status GapStatus) {
	if m == nil || m.gaps == nil {
		return
	}
	m.gaps.Add(ctx, 1, metric.WithAttributes(attribute.String("status", string(status))))
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

func (m *Metrics) sessionFinished(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}
