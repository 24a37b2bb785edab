// Package embeddings turns query text into dense vectors.
//
// Providers:
//   - tei: HTTP client for HuggingFace text-embeddings-inference (POST /embed).
//   - fastembed: local ONNX models via fastembed-go. Requires a cgo build
//     and an ONNX runtime library (ONNX_PATH or ~/.config/ctxfuse/lib).
//
// CachedEmbedder wraps any provider with a TTL cache keyed by model and
// text, so repeated queries skip the model call.
package embeddings
