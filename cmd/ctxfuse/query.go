package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

var queryOpts queryOptions

type queryOptions struct {
	requester string
	mode      string
	limit     int
	pretty    bool
}

// queryCmd runs one retrieval and prints the chunks as JSON.
var queryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Retrieve ranked context for a query",
	Long: `Retrieve ranked context chunks for a natural-language query and print them as JSON.

Access modes:
  unified  shared knowledge base and the requester's documents (default)
  user     only the requester's documents
  system   only the shared knowledge base

Examples:
  # Search everything alice may see
  ctxfuse query --requester alice "what is the vacation policy"

  # Shared knowledge base only, top 3
  ctxfuse query --mode system --limit 3 "onboarding checklist"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, configPath, logLevel)
		if err != nil {
			return err
		}
		defer func() { _ = a.close(context.WithoutCancel(ctx)) }()

		return runQuery(ctx, cmd.OutOrStdout(), a.engine, strings.Join(args, " "), queryOpts)
	},
}

func init() {
	queryCmd.Flags().StringVarP(&queryOpts.requester, "requester", "r", "", "requester id (required unless --mode system)")
	queryCmd.Flags().StringVarP(&queryOpts.mode, "mode", "m", "unified", "access mode: unified, user, system")
	queryCmd.Flags().IntVarP(&queryOpts.limit, "limit", "n", 0, "maximum chunks to print (0 prints all)")
	queryCmd.Flags().BoolVar(&queryOpts.pretty, "pretty", true, "indent JSON output")
}

// queryResult is the JSON document printed by the query command.
type queryResult struct {
	RequestID  string                   `json:"request_id"`
	Query      string                   `json:"query"`
	AccessMode string                   `json:"access_mode"`
	Count      int                      `json:"count"`
	Chunks     []retrieval.ContextChunk `json:"chunks"`
}

type contextRetriever interface {
	GetContext(ctx context.Context, query, requesterID string, mode retrieval.AccessMode) ([]retrieval.ContextChunk, error)
}

func runQuery(ctx context.Context, out io.Writer, r contextRetriever, query string, opts queryOptions) error {
	mode, err := retrieval.ParseAccessMode(opts.mode)
	if err != nil {
		return err
	}
	if opts.limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", opts.limit)
	}

	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)

	chunks, err := r.GetContext(ctx, query, opts.requester, mode)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	if opts.limit > 0 && len(chunks) > opts.limit {
		chunks = chunks[:opts.limit]
	}
	if chunks == nil {
		chunks = []retrieval.ContextChunk{}
	}

	enc := json.NewEncoder(out)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(queryResult{
		RequestID:  requestID,
		Query:      query,
		AccessMode: mode.String(),
		Count:      len(chunks),
		Chunks:     chunks,
	})
}
