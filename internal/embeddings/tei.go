package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer(instrumentationName)

// maxResponseBytes caps TEI response bodies.
const maxResponseBytes = 32 << 20

// TEIConfig configures the TEI client.
type TEIConfig struct {
	// BaseURL is the TEI server, e.g. http://localhost:8080.
	BaseURL string

	// Model is used for metrics and cache keys; TEI serves one model.
	Model string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Timeout bounds each HTTP request. 0 means no client timeout.
	Timeout time.Duration

	// Dimension overrides model-name based dimension detection.
	Dimension int
}

// Validate validates the configuration.
func (c TEIConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: base URL must be http(s)://host, got %q", ErrInvalidConfig, c.BaseURL)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: negative timeout", ErrInvalidConfig)
	}
	return nil
}

// TEIClient calls a text-embeddings-inference server.
type TEIClient struct {
	config    TEIConfig
	endpoint  string
	client    *http.Client
	metrics   *Metrics
	dimension int
}

// NewTEIClient creates a TEI client.
func NewTEIClient(config TEIConfig, logger *zap.Logger) (*TEIClient, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dim := config.Dimension
	if dim == 0 {
		dim = detectDimensionFromModel(config.Model)
	}
	return &TEIClient{
		config:    config,
		endpoint:  strings.TrimRight(config.BaseURL, "/") + "/embed",
		client:    &http.Client{Timeout: config.Timeout},
		metrics:   NewMetrics(logger),
		dimension: dim,
	}, nil
}

// teiRequest is the request body for the TEI embed endpoint.
type teiRequest struct {
	Inputs   interface{} `json:"inputs"`
	Truncate bool        `json:"truncate"`
}

// EmbedQuery embeds one query string.
func (c *TEIClient) EmbedQuery(ctx context.Context, text string) (vec []float32, err error) {
	ctx, span := tracer.Start(ctx, "TEIClient.EmbedQuery", trace.WithAttributes(
		attribute.String("model", c.config.Model),
	))
	defer span.End()
	start := time.Now()
	defer func() {
		c.metrics.RecordGeneration(ctx, c.config.Model, "embed_query", time.Since(start), 1, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vectors, err := c.embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrEmbeddingFailed)
	}
	span.SetAttributes(attribute.Int("dimension", len(vectors[0])))
	return vectors[0], nil
}

// EmbedDocuments embeds a batch. Used for seeding; the retrieval path
// only embeds queries.
func (c *TEIClient) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordGeneration(ctx, c.config.Model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors, err = c.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	return vectors, nil
}

func (c *TEIClient) embed(ctx context.Context, inputs interface{}) ([][]float32, error) {
	body, err := json.Marshal(teiRequest{Inputs: inputs, Truncate: true})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var vectors [][]float32
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&vectors); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	return vectors, nil
}

// Dimension returns the embedding dimension for the configured model.
func (c *TEIClient) Dimension() int { return c.dimension }

// Close is a no-op for TEI since it uses HTTP.
func (c *TEIClient) Close() error { return nil }
