package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

// Retriever answers get_context calls. *retrieval.Engine implements it.
type Retriever interface {
	GetContext(ctx context.Context, query, requesterID string, mode retrieval.AccessMode) ([]retrieval.ContextChunk, error)
}

// Server is an MCP server backed by a Retriever.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	metrics   *Metrics
	logger    *zap.Logger

	defaultLimit int
	maxLimit     int
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "ctxfuse")
	Name string

	// Version is the server version (default: "dev")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// DefaultLimit caps results when the caller passes no limit. Zero means uncapped.
	DefaultLimit int

	// MaxLimit is the largest limit a caller may request.
	MaxLimit int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:         "ctxfuse",
		Version:      "dev",
		Logger:       zap.NewNop(),
		DefaultLimit: 0,
		MaxLimit:     50,
	}
}

// NewServer creates an MCP server and registers its tools.
func NewServer(cfg *Config, retriever Retriever) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if retriever == nil {
		return nil, errors.New("retriever is required")
	}
	if cfg.DefaultLimit < 0 || cfg.MaxLimit < 0 {
		return nil, fmt.Errorf("limits must not be negative")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		retriever:    retriever,
		metrics:      NewMetrics(logger),
		logger:       logger,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
	}
	s.registerTools()
	return s, nil
}

// Run serves on the stdio transport until ctx ends or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	return s.RunTransport(ctx, &mcp.StdioTransport{})
}

// RunTransport serves on the given transport.
func (s *Server) RunTransport(ctx context.Context, transport mcp.Transport) error {
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
