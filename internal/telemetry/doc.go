// Package telemetry sets up OpenTelemetry tracing and metrics for ctxfuse.
//
// When enabled, New installs global tracer and meter providers backed by
// OTLP exporters (grpc or http/protobuf) so spans from the retrieval engine,
// the vector backends and the embedding clients are exported. When disabled
// the global no-op providers stay in place.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// TestTelemetry records spans and metrics in memory for tests.
package telemetry
