package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/fyrsmithlabs/ctxfuse/internal/retrieval"
)

func TestRootCommands(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
		assert.NotEmpty(t, cmd.Short, "%s should have a Short description", cmd.Name())
	}
	for _, want := range []string{"query", "mcp", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestQueryFlags(t *testing.T) {
	for _, name := range []string{"requester", "mode", "limit", "pretty"} {
		assert.NotNil(t, queryCmd.Flags().Lookup(name), "missing --%s", name)
	}
	assert.Equal(t, "unified", queryCmd.Flags().Lookup("mode").DefValue)
	assert.NotNil(t, mcpCmd.Flags().Lookup("metrics-addr"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "ctxfuse "+version)
}

func TestRetrievalConfig_MatchesEngineDefaults(t *testing.T) {
	got := retrievalConfig(config.Default().Retrieval)
	require.NoError(t, got.Validate())
	assert.Equal(t, retrieval.DefaultConfig(), got)
}

func TestLoggingConfig(t *testing.T) {
	cfg, err := loggingConfig(config.LoggingConfig{Level: "debug", Format: "console", Stream: "stderr"}, true)
	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.Equal(t, "stderr", cfg.Output.Stream)
	assert.True(t, cfg.Output.OTEL)

	cfg, err = loggingConfig(config.LoggingConfig{Level: "trace"}, false)
	require.NoError(t, err)
	assert.Equal(t, logging.TraceLevel, cfg.Level)

	_, err = loggingConfig(config.LoggingConfig{Level: "loud"}, false)
	assert.Error(t, err)

	_, err = loggingConfig(config.LoggingConfig{Format: "xml"}, false)
	assert.Error(t, err)
}

type stubRetriever struct {
	chunks    []retrieval.ContextChunk
	err       error
	gotMode   retrieval.AccessMode
	gotReq    string
	requestID string
}

func (s *stubRetriever) GetContext(ctx context.Context, _ string, requesterID string, mode retrieval.AccessMode) ([]retrieval.ContextChunk, error) {
	s.gotMode = mode
	s.gotReq = requesterID
	s.requestID = logging.RequestIDFromContext(ctx)
	return s.chunks, s.err
}

func TestRunQuery(t *testing.T) {
	stub := &stubRetriever{chunks: []retrieval.ContextChunk{
		{ID: "a", FileName: "Handbook.pdf", Score: 0.9, BoostedScore: 1.35, IsKeywordMatch: true, SourceType: retrieval.SourceShared, Origin: retrieval.OriginShared},
		{ID: "b", FileName: "notes.docx", Score: 0.8, BoostedScore: 0.8, SourceType: retrieval.SourcePrivate, Origin: retrieval.OriginPrivate},
	}}

	var out bytes.Buffer
	err := runQuery(context.Background(), &out, stub, "handbook", queryOptions{requester: "alice", mode: "unified", limit: 1})
	require.NoError(t, err)

	var res queryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, "handbook", res.Query)
	assert.Equal(t, "unified", res.AccessMode)
	assert.Equal(t, 1, res.Count)
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Handbook.pdf", res.Chunks[0].FileName)
	assert.True(t, res.Chunks[0].IsKeywordMatch)
	assert.Equal(t, stub.requestID, res.RequestID)
	assert.Equal(t, "alice", stub.gotReq)
	assert.Equal(t, retrieval.AccessUnified, stub.gotMode)
}

func TestRunQuery_Errors(t *testing.T) {
	var out bytes.Buffer

	err := runQuery(context.Background(), &out, &stubRetriever{}, "q", queryOptions{mode: "everything"})
	assert.ErrorIs(t, err, retrieval.ErrInvalidAccessMode)

	err = runQuery(context.Background(), &out, &stubRetriever{}, "q", queryOptions{mode: "system", limit: -1})
	assert.Error(t, err)

	err = runQuery(context.Background(), &out, &stubRetriever{err: retrieval.ErrMissingRequester}, "q", queryOptions{mode: "user"})
	assert.True(t, errors.Is(err, retrieval.ErrMissingRequester))
	assert.Empty(t, out.String())
}

func TestRunQuery_EmptyResultPrintsEmptyList(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, &stubRetriever{}, "q", queryOptions{mode: "system", pretty: true}))
	assert.Contains(t, out.String(), `"chunks": []`)

	var res queryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 0, res.Count)
	assert.NotNil(t, res.Chunks)
}

func TestRunQuery_CompactOutput(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, runQuery(context.Background(), &out, &stubRetriever{}, "q", queryOptions{mode: "system"}))
	assert.Contains(t, out.String(), `"count":0,"chunks":[]`)
}

// TestNewApp_MemoryBackend wires the full stack against a fake TEI server
// and the in-memory vector store.
func TestNewApp_MemoryBackend(t *testing.T) {
	tei := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[[1.0, 0.0]]`))
	}))
	defer tei.Close()

	t.Setenv("HOME", t.TempDir())
	t.Setenv("CTXFUSE_EMBEDDINGS_BASE_URL", tei.URL)
	t.Setenv("CTXFUSE_VECTORSTORE_PROVIDER", "memory")
	t.Setenv("CTXFUSE_LOGGING_LEVEL", "error")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := newApp(ctx, "", "")
	require.NoError(t, err)
	defer func() { require.NoError(t, a.close(ctx)) }()

	assert.NotNil(t, a.backends.Keyword, "memory store serves keyword search")

	var out bytes.Buffer
	require.NoError(t, runQuery(ctx, &out, a.engine, "vacation policy", queryOptions{requester: "alice", mode: "unified"}))

	var res queryResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.Equal(t, 0, res.Count)
}
