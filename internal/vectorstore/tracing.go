package vectorstore

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/fyrsmithlabs/ctxfuse/internal/vectorstore")
