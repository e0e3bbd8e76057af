package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Signal states reported by Health.
const (
	SignalDisabled  = "disabled"
	SignalExporting = "exporting"
	SignalFailed    = "failed"
	SignalStopped   = "stopped"
)

// Telemetry holds the trace and metric pipelines proposald exports session
// and worker activity through. A pipeline that cannot be built is reported
// as failed in Health and its signal falls back to the global no-op
// provider; the daemon keeps running either way.
type Telemetry struct {
	cfg *Config

	traces  *trace.TracerProvider
	metrics *sdkmetric.MeterProvider

	mu      sync.Mutex
	signals map[string]string
	reasons []string
}

// New builds the pipelines described by cfg and installs them as the global
// providers. A disabled config builds nothing.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}

	t := &Telemetry{cfg: cfg, signals: map[string]string{
		"traces":  SignalDisabled,
		"metrics": SignalDisabled,
	}}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	if tp, err := newTracerProvider(ctx, cfg, res); err != nil {
		t.fail("traces", err)
	} else {
		t.traces = tp
		t.signals["traces"] = SignalExporting
		otel.SetTracerProvider(tp)
	}

	if mp, err := newMeterProvider(ctx, cfg, res); err != nil {
		t.fail("metrics", err)
	} else if mp != nil {
		t.metrics = mp
		t.signals["metrics"] = SignalExporting
		otel.SetMeterProvider(mp)
	}

	// Trace context travels with session events published to NATS.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return t, nil
}

// scope names the instrumentation scope of a proposald component, for
// example "proposald/orchestrator".
func (t *Telemetry) scope(component string) string {
	service := "proposald"
	if t != nil && t.cfg != nil && t.cfg.ServiceName != "" {
		service = t.cfg.ServiceName
	}
	return service + "/" + component
}

// Tracer returns the tracer for a component. Without a trace pipeline it
// comes from the global provider.
func (t *Telemetry) Tracer(component string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.traces == nil {
		return otel.GetTracerProvider().Tracer(t.scope(component), opts...)
	}
	return t.traces.Tracer(t.scope(component), opts...)
}

// Meter returns the meter for a component. Without a metric pipeline it
// comes from the global provider.
func (t *Telemetry) Meter(component string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.metrics == nil {
		return otel.GetMeterProvider().Meter(t.scope(component), opts...)
	}
	return t.metrics.Meter(t.scope(component), opts...)
}

// LoggerProvider is what the zap bridge writes log records to. It is nil
// unless telemetry is enabled, in which case the global provider is used.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if !t.IsEnabled() {
		return nil
	}
	return global.GetLoggerProvider()
}

// Shutdown flushes and stops both pipelines. Without a deadline on ctx the
// configured shutdown timeout applies.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok && t.cfg != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Shutdown.Timeout.Duration())
		defer cancel()
	}

	var errs []error
	if t.traces != nil {
		if err := t.traces.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
		t.setSignal("traces", SignalStopped)
	}
	if t.metrics != nil {
		if err := t.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
		t.setSignal("metrics", SignalStopped)
	}
	return errors.Join(errs...)
}

// HealthStatus is the telemetry section of the /health response.
type HealthStatus struct {
	Healthy  bool              `json:"healthy"`
	Degraded bool              `json:"degraded"`
	Signals  map[string]string `json:"signals,omitempty"`
	Reasons  []string          `json:"reasons,omitempty"`
}

// Health reports the state of each signal. Telemetry is degraded when a
// pipeline failed to build and unhealthy once it has been shut down.
func (t *Telemetry) Health() HealthStatus {
	if t == nil {
		return HealthStatus{Degraded: true}
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	h := HealthStatus{Healthy: true, Signals: make(map[string]string, len(t.signals))}
	for name, state := range t.signals {
		h.Signals[name] = state
		switch state {
		case SignalFailed:
			h.Degraded = true
		case SignalStopped:
			h.Healthy = false
		}
	}
	h.Reasons = append([]string(nil), t.reasons...)
	return h
}

// IsEnabled reports whether telemetry is configured on and at least one
// pipeline is still exporting.
func (t *Telemetry) IsEnabled() bool {
	if t == nil || t.cfg == nil || !t.cfg.Enabled {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, state := range t.signals {
		if state == SignalExporting {
			return true
		}
	}
	return false
}

func (t *Telemetry) fail(signal string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signals[signal] = SignalFailed
	t.reasons = append(t.reasons, fmt.Sprintf("%s pipeline failed: %v", signal, err))
}

func (t *Telemetry) setSignal(signal, state string) {
	t.mu.Lock()
	t.signals[signal] = state
	t.mu.Unlock()
}
