package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const backendChromem = "chromem"

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the persistence directory. Empty keeps everything in memory.
	Path string

	// Compress enables gzip compression of persisted collections.
	Compress bool

	// VectorSize is the expected embedding dimension. 0 disables the check.
	VectorSize int
}

// ChromemStore maps each namespace to its own chromem collection, so
// partitions never share an index.
type ChromemStore struct {
	db     *chromem.DB
	config ChromemConfig
	logger *zap.Logger

	// mu serializes collection creation.
	mu sync.Mutex
}

// NewChromemStore opens or creates the chromem database.
func NewChromemStore(config ChromemConfig, logger *zap.Logger) (*ChromemStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.VectorSize < 0 {
		return nil, fmt.Errorf("%w: negative vector size", ErrInvalidConfig)
	}

	var db *chromem.DB
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		var err error
		db, err = chromem.NewPersistentDB(config.Path, config.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem db at %s: %v", ErrConnectionFailed, config.Path, err)
		}
	}

	logger.Info("chromem store opened",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Int("collections", len(db.ListCollections())),
	)

	return &ChromemStore{db: db, config: config, logger: logger}, nil
}

// noEmbedding rejects documents that arrive without a precomputed vector.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: chromem documents must carry embeddings", ErrDimensionMismatch)
}

// Upsert writes records into the namespace collection.
func (s *ChromemStore) Upsert(ctx context.Context, namespace string, records []Record) (err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.Upsert")
	defer span.End()
	start := time.Now()
	defer func() { observe(backendChromem, "upsert", start, err) }()

	if err := ValidateNamespace(namespace); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	docs := make([]chromem.Document, len(records))
	for i, r := range records {
		if err := r.validate(s.config.VectorSize); err != nil {
			return err
		}
		docs[i] = chromem.Document{
			ID:        r.ID,
			Metadata:  r.Metadata(),
			Embedding: r.Vector,
			Content:   r.Text,
		}
	}

	s.mu.Lock()
	collection, err := s.db.GetOrCreateCollection(namespace, nil, noEmbedding)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("getting collection %s: %w", namespace, err)
	}

	if err := collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("adding documents to %s: %w", namespace, err)
	}
	span.SetAttributes(attribute.Int("records", len(records)))
	return nil
}

// VectorQuery searches the namespace collection. A missing collection
// yields no matches.
func (s *ChromemStore) VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) (matches []retrieval.RawMatch, err error) {
	ctx, span := tracer.Start(ctx, "ChromemStore.VectorQuery")
	defer span.End()
	span.SetAttributes(attribute.String("namespace", namespace), attribute.Int("top_k", topK))
	start := time.Now()
	defer func() {
		observe(backendChromem, "vector_query", start, err)
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
	if s.config.VectorSize > 0 && len(vector) != s.config.VectorSize {
		return nil, fmt.Errorf("%w: query has %d dimensions, want %d", ErrDimensionMismatch, len(vector), s.config.VectorSize)
	}

	collection := s.db.GetCollection(namespace, noEmbedding)
	if collection == nil || topK <= 0 {
		return nil, nil
	}

	// chromem requires nResults <= document count
	n := topK
	if count := collection.Count(); count == 0 {
		return nil, nil
	} else if n > count {
		n = count
	}

	results, err := collection.QueryEmbedding(ctx, vector, n, filter, nil)
	if err != nil {
		return nil, fmt.Errorf("querying collection %s: %w", namespace, err)
	}

	matches = make([]retrieval.RawMatch, 0, len(results))
	for _, r := range results {
		// where already filtered; re-check against the stored values.
		if !matchesFilter(r.Metadata, filter) {
			continue
		}
		score := float64(r.Similarity)
		if score < 0 {
			score = 0
		}
		matches = append(matches, matchFromStrings(r.ID, score, r.Metadata, r.Content))
	}

	s.logger.Debug("queried chromem collection",
		zap.String("namespace", namespace),
		zap.Int("k", n),
		zap.Int("results", len(matches)),
	)
	span.SetAttributes(attribute.Int("results_count", len(matches)))
	return matches, nil
}

// KeywordSearch is not supported: chromem only filters on exact metadata
// values and document content.
func (s *ChromemStore) KeywordSearch(context.Context, string, map[string]string, int) ([]string, error) {
	return nil, ErrKeywordUnsupported
}

// Count returns the number of documents in a namespace.
func (s *ChromemStore) Count(namespace string) int {
	c := s.db.GetCollection(namespace, noEmbedding)
	if c == nil {
		return 0
	}
	return c.Count()
}

// Close is a no-op; persistent chromem writes through on every add.
func (s *ChromemStore) Close() error { return nil }
