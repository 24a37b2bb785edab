package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

const toolGetContext = "get_context"

var errInvalidLimit = errors.New("invalid limit")

type getContextInput struct {
	Query       string `json:"query" jsonschema:"Natural-language question to retrieve context for"`
	RequesterID string `json:"requester_id,omitempty" jsonschema:"Requester identifier; required unless access_mode is system"`
	AccessMode  string `json:"access_mode,omitempty" jsonschema:"Partitions to search: unified (default), user, or system"`
	Limit       int    `json:"limit,omitempty" jsonschema:"Maximum chunks to return (default: all)"`
}

type getContextOutput struct {
	Chunks     []retrieval.ContextChunk `json:"chunks" jsonschema:"Ranked context chunks, highest boosted score first"`
	Count      int                      `json:"count" jsonschema:"Number of chunks returned"`
	AccessMode string                   `json:"access_mode" jsonschema:"Access mode used"`
	RequestID  string                   `json:"request_id" jsonschema:"Correlation id for this call"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        toolGetContext,
		Description: "Retrieve ranked context snippets from the shared knowledge base and the requester's private documents. Combines semantic similarity with file-name keyword boosting and never mixes one requester's documents into another's results.",
	}, s.getContext)
}

func (s *Server) getContext(ctx context.Context, _ *mcp.CallToolRequest, args getContextInput) (*mcp.CallToolResult, getContextOutput, error) {
	start := time.Now()
	s.metrics.IncrementActive(ctx, toolGetContext)
	var toolErr error
	defer func() {
		s.metrics.DecrementActive(ctx, toolGetContext)
		s.metrics.RecordInvocation(ctx, toolGetContext, time.Since(start), toolErr)
	}()

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)
	if args.RequesterID != "" {
		// invalid ids are rejected by the engine; only valid ones are logged
		ctx, _ = logging.WithRequesterID(ctx, args.RequesterID)
	}

	mode, err := retrieval.ParseAccessMode(args.AccessMode)
	if err != nil {
		toolErr = err
		return nil, getContextOutput{}, toolErr
	}
	limit, err := s.resolveLimit(args.Limit)
	if err != nil {
		toolErr = err
		return nil, getContextOutput{}, toolErr
	}

	chunks, err := s.retriever.GetContext(ctx, args.Query, args.RequesterID, mode)
	if err != nil {
		toolErr = fmt.Errorf("get context failed: %w", err)
		s.logger.Warn("get_context failed",
			zap.String("request.id", requestID),
			zap.String("access_mode", mode.String()),
			zap.Error(err))
		return nil, getContextOutput{}, toolErr
	}
	if limit > 0 && len(chunks) > limit {
		chunks = chunks[:limit]
	}
	if chunks == nil {
		chunks = []retrieval.ContextChunk{}
	}

	output := getContextOutput{
		Chunks:     chunks,
		Count:      len(chunks),
		AccessMode: mode.String(),
		RequestID:  requestID,
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: renderChunks(chunks)},
		},
	}, output, nil
}

// resolveLimit applies the server default and maximum to a requested limit.
func (s *Server) resolveLimit(requested int) (int, error) {
	switch {
	case requested < 0:
		return 0, fmt.Errorf("%w %d: must not be negative", errInvalidLimit, requested)
	case requested == 0:
		return s.defaultLimit, nil
	case s.maxLimit > 0 && requested > s.maxLimit:
		return s.maxLimit, nil
	default:
		return requested, nil
	}
}

// renderChunks formats chunks as numbered plain-text blocks.
func renderChunks(chunks []retrieval.ContextChunk) string {
	if len(chunks) == 0 {
		return "No relevant context found"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant context chunks\n", len(chunks))
	for i, c := range chunks {
		fmt.Fprintf(&b, "\n[%d] %s (%s, score %.2f", i+1, c.FileName, c.Origin, c.BoostedScore)
		if c.IsKeywordMatch {
			b.WriteString(", keyword match")
		}
		b.WriteString(")\n")
		b.WriteString(c.Text)
		b.WriteString("\n")
	}
	return b.String()
}
