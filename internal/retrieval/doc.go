// Package retrieval assembles ranked context for a natural-language query
// from isolated knowledge partitions.
//
// A request flows through these stages:
//
//	query -> EnhanceQuery -> Embedder -> Resolver -> fan-out -> map/boost -> isolation -> fuse
//
// The Resolver maps an AccessMode to partitions. The shared partition is
// always queried first, and a private partition always carries the
// requester id in its backend filter. For every partition the engine
// runs a keyword prefilter over the escaped raw query, then issues all
// vector queries concurrently and joins them.
//
// Keyword failures only cost the boost. Vector failures fail the call
// under FailClosed and drop the partition under Degrade.
//
// Every chunk is checked against its partition before fusion, whatever
// the backend filter did. A mismatched chunk is dropped, logged with
// event=partition_contamination and counted in
// ctxfuse_retrieval_contamination_drops_total.
//
// The fused result is sorted by boosted score, descending and stable,
// and has at most one chunk per file name.
package retrieval
