// Package logging provides structured logging over Zap with OpenTelemetry
// correlation.
//
// Logger methods take a context and add trace_id, span_id, requester.id
// and request.id when present:
//
//	ctx = logging.WithRequestID(ctx, uuid.NewString())
//	logger.Info(ctx, "context retrieved", zap.Int("chunks", n))
//
// Output goes to stderr by default because stdout carries query results
// and the MCP stdio transport. The otelzap bridge adds an OTEL log
// output when a LoggerProvider is supplied.
//
// Sampling is per level (Trace 1/s, Debug 10/s, Info and Warn thinned
// after 100). Error and above are never sampled.
//
// Redaction runs in the encoder: configured key names print as
// [REDACTED], values matching a configured pattern print as
// [REDACTED:pattern]. Use Secret and RedactedString for explicit fields.
//
// Tests use NewTestLogger and its Assert helpers.
package logging
