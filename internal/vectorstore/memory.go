package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const backendMemory = "memory"

// MemoryStore keeps records in process memory and scores them by exact
// cosine similarity. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]Record
	dim        int
}

// NewMemoryStore creates an empty store. dim of 0 accepts any dimension
// but requires all records and queries to agree.
func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		namespaces: make(map[string]map[string]Record),
		dim:        dim,
	}
}

// Upsert adds or replaces records in a namespace.
func (s *MemoryStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if err := r.validate(s.dim); err != nil {
			return err
		}
		if s.dim == 0 {
			s.dim = len(r.Vector)
		}
	}
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		r.Vector = append([]float32(nil), r.Vector...)
		ns[r.ID] = r
	}
	return nil
}

// VectorQuery returns the topK records in namespace most similar to vector
// that satisfy filter.
func (s *MemoryStore) VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) (matches []retrieval.RawMatch, err error) {
	ctx, span := tracer.Start(ctx, "MemoryStore.VectorQuery")
	defer span.End()
	start := time.Now()
	defer func() {
		observe(backendMemory, "vector_query", start, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if err := ValidateNamespace(namespace); err != nil {
		return nil, err
	}
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dim > 0 && len(vector) != s.dim {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(vector), s.dim)
	}

	for _, r := range s.namespaces[namespace] {
		md := r.Metadata()
		if !matchesFilter(md, filter) {
			continue
		}
		matches = append(matches, matchFromStrings(r.ID, cosine(vector, r.Vector), md, r.Text))
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

// KeywordSearch returns distinct document ids whose file name matches the
// escaped pattern, case-insensitively, across all namespaces.
func (s *MemoryStore) KeywordSearch(ctx context.Context, pattern string, filter map[string]string, limit int) (ids []string, err error) {
	start := time.Now()
	defer func() { observe(backendMemory, "keyword_search", start, err) }()

	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	re, err := compileKeyword(pattern)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []Record
	for _, ns := range s.namespaces {
		for _, r := range ns {
			if r.DocumentID == "" || !matchesFilter(r.Metadata(), filter) {
				continue
			}
			if re.MatchString(r.FileName) {
				hits = append(hits, r)
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].ID < hits[j].ID })

	seen := make(map[string]struct{}, len(hits))
	for _, r := range hits {
		if _, dup := seen[r.DocumentID]; dup {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		ids = append(ids, r.DocumentID)
		if len(ids) == limit {
			break
		}
	}
	return ids, nil
}

// Count returns the number of records in a namespace.
func (s *MemoryStore) Count(namespace string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.namespaces[namespace])
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

// cosine returns the cosine similarity of a and b clamped to [0,1].
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	return math.Max(0, math.Min(1, sim))
}
