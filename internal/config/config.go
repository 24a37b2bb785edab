// Package config loads ctxfuse configuration.
//
// Values come from defaults, then an optional YAML file, then CTXFUSE_*
// environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Config holds the complete ctxfuse configuration.
type Config struct {
	Retrieval   RetrievalConfig   `koanf:"retrieval"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Qdrant      QdrantConfig      `koanf:"qdrant"`
	Chromem     ChromemConfig     `koanf:"chromem"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	Cache       CacheConfig       `koanf:"cache"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   TelemetryConfig   `koanf:"telemetry"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	MinConfidence          float64  `koanf:"min_confidence"`
	KeywordBoost           float64  `koanf:"keyword_boost"`
	KeywordLimit           int      `koanf:"keyword_limit"`
	TopK                   int      `koanf:"top_k"`
	EmbedTimeout           Duration `koanf:"embed_timeout"`
	KeywordTimeout         Duration `koanf:"keyword_timeout"`
	VectorTimeout          Duration `koanf:"vector_timeout"`
	FailurePolicy          string   `koanf:"failure_policy"` // fail_closed or degrade
	SharedNamespace        string   `koanf:"shared_namespace"`
	PrivateNamespacePrefix string   `koanf:"private_namespace_prefix"`
}

// EmbeddingsConfig selects the query embedding provider.
type EmbeddingsConfig struct {
	Provider string   `koanf:"provider"` // tei or fastembed
	BaseURL  string   `koanf:"base_url"`
	Model    string   `koanf:"model"`
	CacheDir string   `koanf:"cache_dir"`
	Timeout  Duration `koanf:"timeout"`
}

// VectorStoreConfig selects the vector and keyword backends.
// An empty KeywordProvider reuses Provider; "none" disables keyword boosting.
type VectorStoreConfig struct {
	Provider        string `koanf:"provider"` // qdrant, chromem, postgres, memory
	KeywordProvider string `koanf:"keyword_provider"`
}

// QdrantConfig configures the Qdrant gRPC backend.
type QdrantConfig struct {
	Host           string   `koanf:"host"`
	Port           int      `koanf:"port"`
	CollectionName string   `koanf:"collection_name"`
	VectorSize     uint64   `koanf:"vector_size"`
	UseTLS         bool     `koanf:"use_tls"`
	APIKey         Secret   `koanf:"api_key"`
	MaxRetries     int      `koanf:"max_retries"`
	RetryBackoff   Duration `koanf:"retry_backoff"`

	// EnsureCollection creates the collection and payload indexes on startup.
	EnsureCollection bool `koanf:"ensure_collection"`
}

// ChromemConfig configures the embedded chromem-go backend.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// PostgresConfig configures the pgvector backend.
type PostgresConfig struct {
	DSN          Secret `koanf:"dsn"`
	Table        string `koanf:"table"`
	MaxOpenConns int    `koanf:"max_open_conns"`
	Migrate      bool   `koanf:"migrate"`
}

// CacheConfig configures the query embedding cache.
type CacheConfig struct {
	Enabled         bool     `koanf:"enabled"`
	TTL             Duration `koanf:"ttl"`
	CleanupInterval Duration `koanf:"cleanup_interval"`
}

// LoggingConfig is the file/env view of logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Stream string `koanf:"stream"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Enabled     bool    `koanf:"enabled"`
	Endpoint    string  `koanf:"endpoint"`
	Protocol    string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure    bool    `koanf:"insecure"`
	ServiceName string  `koanf:"service_name"`
	SampleRate  float64 `koanf:"sample_rate"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Retrieval: RetrievalConfig{
			MinConfidence:          0.3,
			KeywordBoost:           1.5,
			KeywordLimit:           5,
			TopK:                   8,
			EmbedTimeout:           Duration(10 * time.Second),
			KeywordTimeout:         Duration(3 * time.Second),
			VectorTimeout:          Duration(5 * time.Second),
			FailurePolicy:          "fail_closed",
			SharedNamespace:        "system-kb",
			PrivateNamespacePrefix: "user-",
		},
		Embeddings: EmbeddingsConfig{
			Provider: "tei",
			BaseURL:  "http://localhost:8080",
			Model:    "BAAI/bge-small-en-v1.5",
			Timeout:  Duration(30 * time.Second),
		},
		VectorStore: VectorStoreConfig{
			Provider: "chromem",
		},
		Qdrant: QdrantConfig{
			Host:           "localhost",
			Port:           6334,
			CollectionName: "ctxfuse_chunks",
			VectorSize:     384, // bge-small-en-v1.5
			MaxRetries:     3,
			RetryBackoff:   Duration(100 * time.Millisecond),

			EnsureCollection: true,
		},
		Chromem: ChromemConfig{
			Path:     "~/.config/ctxfuse/vectorstore",
			Compress: true,
		},
		Postgres: PostgresConfig{
			Table:        "chunks",
			MaxOpenConns: 10,
			Migrate:      true,
		},
		Cache: CacheConfig{
			Enabled:         true,
			TTL:             Duration(10 * time.Minute),
			CleanupInterval: Duration(20 * time.Minute),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Stream: "stderr",
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			Protocol:    "grpc",
			Insecure:    true,
			ServiceName: "ctxfuse",
			SampleRate:  1.0,
		},
	}
}

var (
	hostPattern       = regexp.MustCompile(`^[a-zA-Z0-9.-]+$`)
	identifierPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks the configuration.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("%w: retrieval.min_confidence must be in [0,1]", ErrInvalid)
	}
	if r.KeywordBoost < 1 {
		return fmt.Errorf("%w: retrieval.keyword_boost must be >= 1", ErrInvalid)
	}
	if r.KeywordLimit <= 0 || r.TopK <= 0 {
		return fmt.Errorf("%w: retrieval limits must be positive", ErrInvalid)
	}
	if r.EmbedTimeout <= 0 || r.KeywordTimeout <= 0 || r.VectorTimeout <= 0 {
		return fmt.Errorf("%w: retrieval timeouts must be positive", ErrInvalid)
	}
	if r.FailurePolicy != "fail_closed" && r.FailurePolicy != "degrade" {
		return fmt.Errorf("%w: retrieval.failure_policy must be fail_closed or degrade, got %q", ErrInvalid, r.FailurePolicy)
	}

	switch c.Embeddings.Provider {
	case "tei":
		u, err := url.Parse(c.Embeddings.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: embeddings.base_url must be an http(s) URL", ErrInvalid)
		}
	case "fastembed":
	default:
		return fmt.Errorf("%w: unknown embeddings.provider %q", ErrInvalid, c.Embeddings.Provider)
	}

	if err := validateProvider("vectorstore.provider", c.VectorStore.Provider, false); err != nil {
		return err
	}
	if err := validateProvider("vectorstore.keyword_provider", c.VectorStore.KeywordProvider, true); err != nil {
		return err
	}

	uses := func(p string) bool {
		return c.VectorStore.Provider == p || c.VectorStore.KeywordProvider == p
	}
	if uses("qdrant") {
		if !hostPattern.MatchString(c.Qdrant.Host) {
			return fmt.Errorf("%w: qdrant.host %q", ErrInvalid, c.Qdrant.Host)
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant.port %d (must be 1-65535)", ErrInvalid, c.Qdrant.Port)
		}
		if c.Qdrant.VectorSize == 0 {
			return fmt.Errorf("%w: qdrant.vector_size must be positive", ErrInvalid)
		}
	}
	if uses("postgres") {
		if !c.Postgres.DSN.IsSet() {
			return fmt.Errorf("%w: postgres.dsn is required", ErrInvalid)
		}
		if !identifierPattern.MatchString(c.Postgres.Table) {
			return fmt.Errorf("%w: postgres.table %q", ErrInvalid, c.Postgres.Table)
		}
	}

	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return fmt.Errorf("%w: cache.ttl must be positive when cache is enabled", ErrInvalid)
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("%w: telemetry.service_name required when telemetry is enabled", ErrInvalid)
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
			return fmt.Errorf("%w: telemetry.protocol must be grpc or http/protobuf", ErrInvalid)
		}
		if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
			return fmt.Errorf("%w: telemetry.sample_rate must be in [0,1]", ErrInvalid)
		}
	}
	return nil
}

func validateProvider(key, value string, keyword bool) error {
	switch value {
	case "qdrant", "chromem", "postgres", "memory":
		return nil
	case "", "none":
		if keyword {
			return nil
		}
	}
	return fmt.Errorf("%w: unknown %s %q", ErrInvalid, key, value)
}
