package retrieval

import (
	"context"
	"fmt"
	"testing"

	"github.com/fyrsmithlabs/ctxfuse/internal/logging"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	mock.Mock
}

func (m *mockEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if v := args.Get(0); v != nil {
		return v.([]float32), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockKeyword struct {
	mock.Mock
}

func (m *mockKeyword) KeywordSearch(ctx context.Context, pattern string, filter map[string]string, limit int) ([]string, error) {
	args := m.Called(ctx, pattern, filter, limit)
	if v := args.Get(0); v != nil {
		return v.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockVectors struct {
	mock.Mock
}

func (m *mockVectors) VectorQuery(ctx context.Context, vector []float32, topK int, filter map[string]string, namespace string) ([]RawMatch, error) {
	args := m.Called(ctx, vector, topK, filter, namespace)
	if v := args.Get(0); v != nil {
		return v.([]RawMatch), args.Error(1)
	}
	return nil, args.Error(1)
}

var testVector = []float32{0.1, 0.2, 0.3}

const (
	testRequester = "alice"
	sharedNS      = DefaultSharedNamespace
	privateNS     = DefaultPrivateNamespacePrefix + testRequester
)

func sharedMatch(id string, score float64) RawMatch {
	return RawMatch{
		ID:         id,
		Score:      score,
		DocumentID: "doc-" + id,
		FileName:   id + ".pdf",
		SourceType: string(SourceShared),
		Text:       "shared text " + id,
	}
}

func privateMatch(id string, score float64) RawMatch {
	return RawMatch{
		ID:          id,
		Score:       score,
		DocumentID:  "doc-" + id,
		FileName:    id + ".docx",
		SourceType:  string(SourcePrivate),
		RequesterID: testRequester,
		Text:        "private text " + id,
	}
}

type engineFixture struct {
	engine   *Engine
	embedder *mockEmbedder
	keyword  *mockKeyword
	vectors  *mockVectors
	logs     *logging.TestLogger
}

func newFixture(t *testing.T, mutate ...func(*Config)) *engineFixture {
	t.Helper()
	cfg := DefaultConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	f := &engineFixture{
		embedder: &mockEmbedder{},
		keyword:  &mockKeyword{},
		vectors:  &mockVectors{},
		logs:     logging.NewTestLogger(),
	}
	engine, err := NewEngine(cfg, f.embedder, f.keyword, f.vectors, WithLogger(f.logs.Logger))
	require.NoError(t, err)
	f.engine = engine
	return f
}

// expectEmbed accepts any query text.
func (f *engineFixture) expectEmbed() {
	f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return(testVector, nil)
}

func (f *engineFixture) expectKeyword(kind SourceType, ids []string, err error) {
	f.keyword.On("KeywordSearch", mock.Anything, mock.Anything,
		mock.MatchedBy(func(filter map[string]string) bool {
			return filter[MetaSourceType] == string(kind)
		}), 5).Return(ids, err)
}

func (f *engineFixture) expectVectors(namespace string, matches []RawMatch, err error) {
	f.vectors.On("VectorQuery", mock.Anything, testVector, 8, mock.Anything, namespace).Return(matches, err)
}

func (f *engineFixture) assertMocks(t *testing.T) {
	t.Helper()
	f.embedder.AssertExpectations(t)
	f.keyword.AssertExpectations(t)
	f.vectors.AssertExpectations(t)
}

func scores(chunks []ContextChunk) []float64 {
	out := make([]float64, len(chunks))
	for i, c := range chunks {
		out[i] = c.BoostedScore
	}
	return out
}

func fileNames(chunks []ContextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.FileName
	}
	return out
}

var errBackend = fmt.Errorf("backend unavailable")
