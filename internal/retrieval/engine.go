package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/fyrsmithlabs/ctxfuse/internal/retrieval")

// Embedder turns one string into one dense vector.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// KeywordSearcher returns document ids whose file names match pattern.
// pattern is always literal-escaped; implementations must not widen it
// beyond case-insensitive substring semantics.
type KeywordSearcher interface {
	KeywordSearch(ctx context.Context, pattern string, filter map[string]string, limit int) ([]string, error)
}

// VectorQuerier returns the topK nearest matches within a namespace and filter.
type VectorQuerier interface {
	VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) ([]RawMatch, error)
}

// Config holds engine tuning parameters.
type Config struct {
	MinConfidence  float64
	KeywordBoost   float64
	KeywordLimit   int
	TopK           int
	EmbedTimeout   time.Duration
	KeywordTimeout time.Duration
	VectorTimeout  time.Duration
	FailurePolicy  FailurePolicy

	SharedNamespace        string
	PrivateNamespacePrefix string
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		MinConfidence:          DefaultMinConfidence,
		KeywordBoost:           DefaultKeywordBoost,
		KeywordLimit:           5,
		TopK:                   8,
		EmbedTimeout:           10 * time.Second,
		KeywordTimeout:         3 * time.Second,
		VectorTimeout:          5 * time.Second,
		FailurePolicy:          FailClosed,
		SharedNamespace:        DefaultSharedNamespace,
		PrivateNamespacePrefix: DefaultPrivateNamespacePrefix,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min confidence must be in [0,1], got %v", ErrInvalidConfig, c.MinConfidence)
	}
	if c.KeywordBoost < 1 {
		return fmt.Errorf("%w: keyword boost must be >= 1, got %v", ErrInvalidConfig, c.KeywordBoost)
	}
	if c.KeywordLimit <= 0 {
		return fmt.Errorf("%w: keyword limit must be positive", ErrInvalidConfig)
	}
	if c.TopK <= 0 {
		return fmt.Errorf("%w: top k must be positive", ErrInvalidConfig)
	}
	if c.EmbedTimeout <= 0 || c.KeywordTimeout <= 0 || c.VectorTimeout <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if !c.FailurePolicy.Valid() {
		return fmt.Errorf("%w: unknown failure policy %q", ErrInvalidConfig, c.FailurePolicy)
	}
	return nil
}

// Engine assembles ranked context from isolated knowledge partitions.
// It holds no per-request state and is safe for concurrent use when its
// collaborators are.
type Engine struct {
	cfg      Config
	embedder Embedder
	keyword  KeywordSearcher
	vectors  VectorQuerier
	resolver *Resolver
	logger   *logging.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine. keyword may be nil, which disables boosting.
func NewEngine(cfg Config, embedder Embedder, keyword KeywordSearcher, vectors VectorQuerier, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if vectors == nil {
		return nil, fmt.Errorf("%w: vector querier is required", ErrInvalidConfig)
	}

	e := &Engine{
		cfg:      cfg,
		embedder: embedder,
		keyword:  keyword,
		vectors:  vectors,
		resolver: NewResolver(cfg.SharedNamespace, cfg.PrivateNamespacePrefix),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("retrieval")
	return e, nil
}

// GetContext returns the ranked, deduplicated, isolation-checked chunks for query.
//
// Errors are returned only for fatal conditions: an empty query, an unknown
// mode, a missing or invalid requester for a private-scoped mode, an
// embedding failure, or a vector failure under FailClosed.
func (e *Engine) GetContext(ctx context.Context, query, requesterID string, mode AccessMode) (chunks []ContextChunk, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "retrieval.get_context")
	defer span.End()
	span.SetAttributes(attribute.String("access_mode", mode.String()))

	defer func() {
		result := "success"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, "get context failed")
		} else {
			span.SetStatus(codes.Ok, "")
			chunksReturned.Observe(float64(len(chunks)))
		}
		requestsTotal.WithLabelValues(mode.String(), result).Inc()
		requestDuration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
	}()

	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAccessMode, mode)
	}

	partitions, err := e.resolver.Resolve(mode, requesterID)
	if err != nil {
		return nil, err
	}

	qc := QueryContext{
		RawQuery:      query,
		EnhancedQuery: EnhanceQuery(query),
		RequesterID:   strings.TrimSpace(requesterID),
		AccessMode:    mode,
	}
	e.logger.Debug(ctx, "retrieving context",
		zap.String("access_mode", mode.String()),
		zap.Int("partitions", len(partitions)),
		zap.Bool("enhanced", qc.EnhancedQuery != strings.ToLower(query)))

	vector, err := e.embed(ctx, qc.EnhancedQuery)
	if err != nil {
		return nil, err
	}

	keywordIDs, results := e.fanOut(ctx, qc, vector, partitions)
	results, err = e.collect(ctx, results)
	if err != nil {
		e.logger.Error(ctx, "vector query failed", zap.Error(err))
		return nil, err
	}

	byKind := make(map[SourceType][]ContextChunk, len(results))
	for _, r := range results {
		mapped := mapMatches(r.matches, keywordIDs, e.cfg.MinConfidence, e.cfg.KeywordBoost)
		byKind[r.partition.Kind] = append(byKind[r.partition.Kind], e.enforceIsolation(ctx, r.partition, mapped)...)
	}

	chunks, err = fuse(qc.AccessMode, byKind)
	if err != nil {
		return nil, err
	}

	e.logger.Info(ctx, "context retrieved",
		zap.String("access_mode", mode.String()),
		zap.Int("chunks", len(chunks)),
		zap.Int("keyword_matches", len(keywordIDs)),
		zap.Duration("duration", time.Since(start)))
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	return chunks, nil
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "retrieval.embed_query")
	defer span.End()

	ectx, cancel := context.WithTimeout(ctx, e.cfg.EmbedTimeout)
	defer cancel()

	vector, err := e.embedder.EmbedQuery(ectx, text)
	if err == nil && len(vector) == 0 {
		err = errors.New("empty vector")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		e.logger.Error(ctx, "query embedding failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	span.SetAttributes(attribute.Int("vector.dimensions", len(vector)))
	return vector, nil
}
