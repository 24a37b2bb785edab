package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// FailurePolicy controls how vector query failures affect a retrieval call.
type FailurePolicy string

const (
	// FailClosed fails the whole call when any partition's vector query fails.
	FailClosed FailurePolicy = "fail_closed"
	// Degrade drops failed partitions and returns results from the rest.
	Degrade FailurePolicy = "degrade"
)

// Valid reports whether p is a known policy.
func (p FailurePolicy) Valid() bool {
	return p == FailClosed || p == Degrade
}

// partitionResult is the outcome of one partition's vector task.
type partitionResult struct {
	partition Partition
	matches   []RawMatch
	err       error
}

// fanOut runs the keyword prefilter for every partition in order, then
// launches one vector query per partition and joins them.
// The returned keyword set is the union across all partitions.
func (e *Engine) fanOut(ctx context.Context, qc QueryContext, vector []float32, partitions []Partition) (map[string]struct{}, []partitionResult) {
	pattern := SanitizePattern(qc.RawQuery)
	keywordIDs := make(map[string]struct{})
	results := make([]partitionResult, len(partitions))

	var wg sync.WaitGroup
	for i, p := range partitions {
		for _, id := range e.keywordPrefilter(ctx, pattern, p) {
			keywordIDs[id] = struct{}{}
		}

		results[i].partition = p
		wg.Add(1)
		go func(slot *partitionResult) {
			defer wg.Done()
			slot.matches, slot.err = e.vectorQuery(ctx, vector, slot.partition)
		}(&results[i])
	}
	wg.Wait()

	return keywordIDs, results
}

// keywordPrefilter never fails; errors and timeouts yield an empty set.
func (e *Engine) keywordPrefilter(ctx context.Context, pattern string, p Partition) []string {
	if e.keyword == nil || pattern == "" {
		return nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.keyword_prefilter")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition.kind", string(p.Kind)),
		attribute.String("partition.namespace", p.Namespace),
	)

	kctx, cancel := context.WithTimeout(ctx, e.cfg.KeywordTimeout)
	defer cancel()

	start := time.Now()
	ids, err := e.keyword.KeywordSearch(kctx, pattern, p.filterCopy(), e.cfg.KeywordLimit)
	backendDuration.WithLabelValues("keyword", string(p.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		keywordFailures.WithLabelValues(string(p.Kind), reason).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "keyword prefilter failed")
		e.logger.Warn(ctx, "keyword prefilter failed, continuing without boost",
			zap.String("partition", string(p.Kind)),
			zap.String("namespace", p.Namespace),
			zap.String("reason", reason),
			zap.Error(err))
		return nil
	}

	if len(ids) > e.cfg.KeywordLimit {
		ids = ids[:e.cfg.KeywordLimit]
	}
	span.SetAttributes(attribute.Int("keyword.matches", len(ids)))
	span.SetStatus(codes.Ok, "")
	return ids
}

func (e *Engine) vectorQuery(ctx context.Context, vector []float32, p Partition) ([]RawMatch, error) {
	ctx, span := tracer.Start(ctx, "retrieval.vector_query")
	defer span.End()
	span.SetAttributes(
		attribute.String("partition.kind", string(p.Kind)),
		attribute.String("partition.namespace", p.Namespace),
		attribute.Int("top_k", e.cfg.TopK),
	)

	vctx, cancel := context.WithTimeout(ctx, e.cfg.VectorTimeout)
	defer cancel()

	start := time.Now()
	matches, err := e.vectors.VectorQuery(vctx, vector, e.cfg.TopK, p.filterCopy(), p.Namespace)
	backendDuration.WithLabelValues("vector", string(p.Kind)).Observe(time.Since(start).Seconds())
	if err != nil {
		vectorFailures.WithLabelValues(string(p.Kind)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "vector query failed")
		return nil, fmt.Errorf("%w: partition %s: %w", ErrVectorQueryFailed, p.Kind, err)
	}

	span.SetAttributes(attribute.Int("vector.matches", len(matches)))
	span.SetStatus(codes.Ok, "")
	return matches, nil
}

// collect applies the failure policy to the joined vector results.
func (e *Engine) collect(ctx context.Context, results []partitionResult) ([]partitionResult, error) {
	ok := make([]partitionResult, 0, len(results))
	var errs []error
	for _, r := range results {
		if r.err == nil {
			ok = append(ok, r)
			continue
		}
		errs = append(errs, r.err)
		if e.cfg.FailurePolicy == Degrade {
			e.logger.Warn(ctx, "partition dropped after vector failure",
				zap.String("partition", string(r.partition.Kind)),
				zap.String("namespace", r.partition.Namespace),
				zap.Error(r.err))
		}
	}

	if len(errs) > 0 && e.cfg.FailurePolicy != Degrade {
		return nil, errors.Join(errs...)
	}
	return ok, nil
}
