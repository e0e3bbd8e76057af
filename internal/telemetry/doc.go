// Package telemetry provides OpenTelemetry instrumentation for proposald.
//
// # Overview
//
// The orchestrator, the phase scheduler and the operator API record spans and
// metrics through the providers managed here. Data is exported over OTLP
// (gRPC or HTTP/protobuf) to a collector.
//
// # Usage
//
//	cfg, err := telemetry.FromSettings(appCfg.Telemetry)
//	if err != nil {
//	    return err
//	}
//	tel, err := telemetry.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
//	tracer := tel.Tracer("github.com/fyrsmithlabs/proposald/internal/orchestrator")
//	ctx, span := tracer.Start(ctx, "orchestrator.advance")
//	defer span.End()
//
// # Degradation
//
// Exporter setup failures never stop the daemon. The instance is marked
// degraded, Health reports the reason, and Tracer/Meter fall back to the
// global no-op providers.
//
// # Testing
//
// NewTestTelemetry wires an in-memory span recorder and a manual metric
// reader so tests can assert on emitted spans and counters.
package telemetry
