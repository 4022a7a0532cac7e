// Package telemetry provides OpenTelemetry instrumentation for medrag.
//
// Traces and metrics are exported over OTLP (gRPC or HTTP/protobuf) when
// enabled. Metrics can additionally be exposed for Prometheus scraping on the
// /metrics endpoint of `medrag serve`.
//
//	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Observability, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(ctx)
//
// Each pipeline stage opens a span under the "medrag.pipeline" tracer.
//
// Telemetry failures never fail a run. If a provider cannot be built the
// instance is marked degraded and the global no-op providers stay in place.
//
// Use TestTelemetry in tests:
//
//	tt := telemetry.NewTestTelemetry()
//	_, span := tt.Tracer("test").Start(ctx, "pipeline.retrieve")
//	span.End()
//	tt.AssertSpanExists(t, "pipeline.retrieve")
package telemetry
