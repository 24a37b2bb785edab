// internal/logging/context.go
package logging

import (
	"context"
	"fmt"
	"regexp"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ContextFields extracts correlation data from context.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	// Trace correlation (from OpenTelemetry)
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
		if sc.IsSampled() {
			fields = append(fields, zap.Bool("trace_sampled", true))
		}
	}

	if requester := RequesterIDFromContext(ctx); requester != "" {
		fields = append(fields, zap.String("requester.id", requester))
	}

	if requestID := RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request.id", requestID))
	}

	return fields
}

type requesterCtxKey struct{}
type requestCtxKey struct{}

const maxIDLen = 128

var (
	// requesterPattern allows alphanumeric plus . _ @ : -
	requesterPattern = regexp.MustCompile(`^[a-zA-Z0-9_.@:-]+$`)
	// requestIDPattern allows alphanumeric, hyphen, underscore
	requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

func validateID(id, name string, pattern *regexp.Regexp) error {
	if id == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	if !utf8.ValidString(id) {
		return fmt.Errorf("%s contains invalid UTF-8", name)
	}
	if len(id) > maxIDLen {
		return fmt.Errorf("%s exceeds max length %d", name, maxIDLen)
	}
	if !pattern.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters", name)
	}
	return nil
}

// RequesterIDFromContext extracts the requester id from context.
func RequesterIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requesterCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequesterID adds the requester id to context.
// Invalid ids are not stored; the error is returned alongside the unchanged context.
func WithRequesterID(ctx context.Context, requesterID string) (context.Context, error) {
	if err := validateID(requesterID, "requesterID", requesterPattern); err != nil {
		return ctx, fmt.Errorf("logging: %w", err)
	}
	return context.WithValue(ctx, requesterCtxKey{}, requesterID), nil
}

// RequestIDFromContext extracts request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// WithRequestID adds request ID to context.
// Panics if requestID is empty or contains invalid characters.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if err := validateID(requestID, "requestID", requestIDPattern); err != nil {
		panic(fmt.Sprintf("logging: %v", err))
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// loggerCtxKey is the context key for Logger.
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

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), config: NewDefaultConfig()}
}
