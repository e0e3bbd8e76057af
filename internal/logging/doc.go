// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - Custom Trace level (-2, below Debug)
//   - Dual output (stdout + OpenTelemetry log bridge)
//   - Automatic workflow field injection (trace_id, session, phase, worker, invocation)
//   - Redaction of sensitive keys such as clarification answers and API keys
//   - Optional sampling below Error
//
// # Usage
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, otelProvider)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithSessionID(ctx, session.ID)
//	ctx = logging.WithPhase(ctx, "analysis")
//	logger.Info(ctx, "phase started", zap.Int("workers", 1))
//
// Output includes the correlation fields:
//
//	{
//	  "ts": "2026-03-02T10:15:30Z",
//	  "level": "info",
//	  "msg": "phase started",
//	  "trace_id": "abc123",
//	  "session.id": "4b1c...",
//	  "phase": "analysis",
//	  "workers": 1
//	}
//
// # Testing
//
// NewTestLogger returns a Logger backed by zaptest/observer with assertion helpers.
package logging
