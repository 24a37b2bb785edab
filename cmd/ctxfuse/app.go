package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
	"github.com/fyrsmithlabs/ctxfuse/internal/embeddings"
	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
	"github.com/fyrsmithlabs/ctxfuse/internal/telemetry"
	"github.com/fyrsmithlabs/ctxfuse/internal/vectorstore"
)

// app holds everything a command needs to answer queries.
type app struct {
	cfg       *config.Config
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	embedder  embeddings.Provider
	backends  *vectorstore.Backends
	engine    *retrieval.Engine
}

// newApp loads configuration and wires the retrieval engine.
func newApp(ctx context.Context, path, levelOverride string) (*app, error) {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if levelOverride != "" {
		cfg.Logging.Level = levelOverride
	}

	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	logCfg, err := loggingConfig(cfg.Logging, cfg.Telemetry.Enabled)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, err
	}
	logger, err := logging.NewLogger(logCfg, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	if tel.Health().Degraded {
		logger.Warn(ctx, "telemetry running degraded, some exporters failed to start")
	}

	a := &app{cfg: cfg, logger: logger, telemetry: tel}
	if err := a.wire(ctx); err != nil {
		_ = a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	zl := a.logger.Underlying()

	provider, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider: a.cfg.Embeddings.Provider,
		Model:    a.cfg.Embeddings.Model,
		BaseURL:  a.cfg.Embeddings.BaseURL,
		CacheDir: a.cfg.Embeddings.CacheDir,
		Timeout:  a.cfg.Embeddings.Timeout.Duration(),
	}, zl.Named("embeddings"))
	if err != nil {
		return fmt.Errorf("creating embedding provider: %w", err)
	}
	a.embedder = provider

	var embedder retrieval.Embedder = provider
	if a.cfg.Cache.Enabled {
		embedder = embeddings.NewCachedEmbedder(provider, a.cfg.Embeddings.Model,
			a.cfg.Cache.TTL.Duration(), a.cfg.Cache.CleanupInterval.Duration(), zl.Named("embedding_cache"))
	}

	backends, err := vectorstore.Open(ctx, a.cfg, zl.Named("vectorstore"))
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}
	a.backends = backends

	engine, err := retrieval.NewEngine(retrievalConfig(a.cfg.Retrieval), embedder, backends.Keyword, backends.Vectors,
		retrieval.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("creating retrieval engine: %w", err)
	}
	a.engine = engine

	a.logger.Info(ctx, "ctxfuse ready",
		zap.String("version", version),
		zap.String("embeddings", a.cfg.Embeddings.Provider),
		zap.String("vectorstore", a.cfg.VectorStore.Provider),
		zap.Bool("keyword_boost", backends.Keyword != nil),
		zap.String("failure_policy", a.cfg.Retrieval.FailurePolicy))
	return nil
}

// close releases backends, the embedder and telemetry, in that order.
func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.backends != nil {
		if err := a.backends.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing vector store: %w", err))
		}
	}
	if a.embedder != nil {
		if err := a.embedder.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing embedder: %w", err))
		}
	}
	if a.telemetry != nil {
		if err := a.telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutting down telemetry: %w", err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}

// retrievalConfig maps the file/env retrieval section onto the engine config.
func retrievalConfig(rc config.RetrievalConfig) retrieval.Config {
	return retrieval.Config{
		MinConfidence:          rc.MinConfidence,
		KeywordBoost:           rc.KeywordBoost,
		KeywordLimit:           rc.KeywordLimit,
		TopK:                   rc.TopK,
		EmbedTimeout:           rc.EmbedTimeout.Duration(),
		KeywordTimeout:         rc.KeywordTimeout.Duration(),
		VectorTimeout:          rc.VectorTimeout.Duration(),
		FailurePolicy:          retrieval.FailurePolicy(rc.FailurePolicy),
		SharedNamespace:        rc.SharedNamespace,
		PrivateNamespacePrefix: rc.PrivateNamespacePrefix,
	}
}

// loggingConfig maps the file/env logging section onto the logger config.
func loggingConfig(lc config.LoggingConfig, otel bool) (*logging.Config, error) {
	cfg := logging.NewDefaultConfig()
	if lc.Level != "" {
		level, err := logging.LevelFromString(lc.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid logging.level %q: %w", lc.Level, err)
		}
		cfg.Level = level
	}
	if lc.Format != "" {
		cfg.Format = lc.Format
	}
	if lc.Stream != "" {
		cfg.Output.Stream = lc.Stream
	}
	cfg.Output.OTEL = otel
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	return cfg, nil
}
