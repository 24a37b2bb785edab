package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

// Provider names accepted in configuration.
const (
	ProviderQdrant   = "qdrant"
	ProviderChromem  = "chromem"
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
	ProviderNone     = "none"
)

// Backends holds the opened vector and keyword backends.
// Keyword is nil when keyword boosting is disabled.
type Backends struct {
	Vectors retrieval.VectorQuerier
	Keyword retrieval.KeywordSearcher
	Writer  Writer

	closers []func() error
}

// Close closes every opened backend.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// opener constructs one provider.
type opener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error)

var openers = map[string]opener{
	ProviderQdrant: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
		return NewQdrantStore(ctx, QdrantConfig{
			Host:             cfg.Qdrant.Host,
			Port:             cfg.Qdrant.Port,
			CollectionName:   cfg.Qdrant.CollectionName,
			VectorSize:       cfg.Qdrant.VectorSize,
			UseTLS:           cfg.Qdrant.UseTLS,
			APIKey:           cfg.Qdrant.APIKey.Value(),
			MaxRetries:       cfg.Qdrant.MaxRetries,
			RetryBackoff:     cfg.Qdrant.RetryBackoff.Duration(),
			EnsureCollection: cfg.Qdrant.EnsureCollection,
		}, logger.Named("qdrant"))
	},
	ProviderChromem: func(_ context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
		path, err := config.ExpandHome(cfg.Chromem.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: chromem path: %v", ErrInvalidConfig, err)
		}
		return NewChromemStore(ChromemConfig{
			Path:       path,
			Compress:   cfg.Chromem.Compress,
			VectorSize: int(cfg.Qdrant.VectorSize),
		}, logger.Named("chromem"))
	},
	ProviderPostgres: func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
		return NewPostgresStore(ctx, PostgresConfig{
			DSN:          cfg.Postgres.DSN.Value(),
			Table:        cfg.Postgres.Table,
			MaxOpenConns: cfg.Postgres.MaxOpenConns,
			Migrate:      cfg.Postgres.Migrate,
		}, logger.Named("postgres"))
	},
	ProviderMemory: func(_ context.Context, _ *config.Config, _ *zap.Logger) (Store, error) {
		return NewMemoryStore(0), nil
	},
}

// Open builds the backends named by cfg.VectorStore. A provider used for
// both roles is opened once. An empty keyword provider reuses the vector
// provider when it supports keyword search and disables boosting otherwise.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Backends, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Backends{}
	opened := make(map[string]Store, 2)

	open := func(name string) (Store, error) {
		if s, ok := opened[name]; ok {
			return s, nil
		}
		fn, ok := openers[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, name)
		}
		s, err := fn(ctx, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		opened[name] = s
		b.closers = append(b.closers, s.Close)
		return s, nil
	}

	vectors, err := open(cfg.VectorStore.Provider)
	if err != nil {
		return nil, err
	}
	b.Vectors = vectors
	b.Writer = vectors

	switch kp := cfg.VectorStore.KeywordProvider; kp {
	case ProviderNone:
	case "":
		if cfg.VectorStore.Provider != ProviderChromem {
			b.Keyword = vectors
		} else {
			logger.Info("keyword boosting disabled; chromem has no keyword index")
		}
	case ProviderChromem:
		_ = b.Close()
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, ErrKeywordUnsupported)
	default:
		kw, err := open(kp)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Keyword = kw
	}

	logger.Info("vectorstore opened",
		zap.String("provider", cfg.VectorStore.Provider),
		zap.String("keyword_provider", cfg.VectorStore.KeywordProvider),
		zap.Bool("keyword_enabled", b.Keyword != nil),
	)
	return b, nil
}
