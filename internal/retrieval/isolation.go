package retrieval

import (
	"context"

	"go.uber.org/zap"
)

// enforceIsolation removes chunks that do not belong to partition p.
// Drops are logged as contamination events and counted; they never fail the call.
func (e *Engine) enforceIsolation(ctx context.Context, p Partition, chunks []ContextChunk) []ContextChunk {
	kept := chunks[:0]
	for _, c := range chunks {
		if reason := contamination(p, c); reason != "" {
			contaminationDrops.WithLabelValues(string(p.Kind), reason).Inc()
			e.logger.Error(ctx, "dropped chunk from foreign partition",
				zap.String("event", "partition_contamination"),
				zap.String("reason", reason),
				zap.String("partition", string(p.Kind)),
				zap.String("namespace", p.Namespace),
				zap.String("chunk_source_type", string(c.SourceType)),
				zap.String("chunk_id", c.ID),
				zap.String("document_id", c.DocumentID))
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// contamination returns a non-empty reason when c must not be served from p.
func contamination(p Partition, c ContextChunk) string {
	if c.SourceType != p.Kind {
		return "source_type_mismatch"
	}
	if p.Kind == SourcePrivate && c.ownerID != "" && c.ownerID != p.RequesterID {
		return "owner_mismatch"
	}
	return ""
}
