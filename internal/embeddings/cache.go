package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// QueryEmbedder is the single-query embedding contract.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// CachedEmbedder memoizes query embeddings for a TTL. Errors are not cached.
type CachedEmbedder struct {
	next    QueryEmbedder
	model   string
	cache   *cache.Cache
	metrics *Metrics
}

// NewCachedEmbedder wraps next. model namespaces cache keys so a model
// switch never serves stale vectors.
func NewCachedEmbedder(next QueryEmbedder, model string, ttl, cleanupInterval time.Duration, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		next:    next,
		model:   model,
		cache:   cache.New(ttl, cleanupInterval),
		metrics: NewMetrics(logger),
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// EmbedQuery returns a cached vector or calls the wrapped embedder.
// Returned slices are copies; callers may modify them.
func (c *CachedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	k := c.key(text)
	if v, ok := c.cache.Get(k); ok {
		c.metrics.RecordCacheLookup(ctx, c.model, true)
		return append([]float32(nil), v.([]float32)...), nil
	}
	c.metrics.RecordCacheLookup(ctx, c.model, false)

	vec, err := c.next.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) > 0 {
		c.cache.Set(k, append([]float32(nil), vec...), cache.DefaultExpiration)
	}
	return vec, nil
}

// Len returns the number of cached vectors, including expired ones not
// yet cleaned up.
func (c *CachedEmbedder) Len() int {
	return c.cache.ItemCount()
}

// Flush drops every cached vector.
func (c *CachedEmbedder) Flush() {
	c.cache.Flush()
}
