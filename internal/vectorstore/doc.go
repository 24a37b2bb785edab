// Package vectorstore provides the vector and keyword backends consumed by
// the retrieval engine.
//
// Every backend implements retrieval.VectorQuerier; Qdrant, Postgres and
// the in-memory store also implement retrieval.KeywordSearcher.
//
// # Backends
//
//   - QdrantStore: one collection, partitions isolated by a "namespace"
//     payload condition that is always added to the filter. gRPC with
//     retry and a circuit breaker.
//   - ChromemStore: embedded chromem-go DB, one collection per namespace.
//   - PostgresStore: gorm + pgvector, cosine distance (<=>) ordering and
//     case-insensitive file name regex (~*) for keywords.
//   - MemoryStore: brute-force cosine over records held in memory.
//
// # Filters
//
// Filters are equality maps over a fixed set of payload keys (see
// AllowedFilterKeys). A filter without source_type is rejected so a
// caller bug can never widen a query to every partition.
//
// # Keyword patterns
//
// KeywordSearch receives a regex-escaped literal. Regex-capable backends
// use it as-is with case folding; substring backends recover the literal
// with UnescapePattern.
package vectorstore
