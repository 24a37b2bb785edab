package retrieval

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestGetContext_UnifiedOrdering(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, nil)
	f.expectKeyword(SourcePrivate, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{
		sharedMatch("s1", 0.9),
		sharedMatch("s2", 0.5),
		sharedMatch("s3", 0.2),
	}, nil)
	f.expectVectors(privateNS, []RawMatch{
		privateMatch("p1", 0.8),
		privateMatch("p2", 0.35),
	}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "quarterly revenue", testRequester, AccessUnified)
	require.NoError(t, err)

	assert.Equal(t, []float64{0.9, 0.8, 0.5, 0.35}, scores(chunks))
	assert.Equal(t, OriginShared, chunks[0].Origin)
	assert.Equal(t, OriginPrivate, chunks[1].Origin)
	for _, c := range chunks {
		assert.False(t, c.IsKeywordMatch)
	}
	f.assertMocks(t)
}

func TestGetContext_PrivateOnlyNeverReturnsShared(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourcePrivate, nil, nil)
	// Simulates a broken backend filter returning mixed partitions.
	f.expectVectors(privateNS, []RawMatch{
		sharedMatch("leak1", 0.95),
		privateMatch("p1", 0.7),
		{ID: "leak2", Score: 0.9, FileName: "unknown.txt", SourceType: "bogus"},
	}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "notes", testRequester, AccessPrivateOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "p1", chunks[0].ID)
	for _, c := range chunks {
		assert.Equal(t, SourcePrivate, c.SourceType)
	}

	drops := f.logs.FilterMessage("dropped chunk from foreign partition").All()
	assert.Len(t, drops, 2)
	f.logs.AssertLogged(t, zapcore.ErrorLevel, "dropped chunk from foreign partition")
	f.logs.AssertField(t, "dropped chunk from foreign partition", "event", "partition_contamination")
	f.vectors.AssertNotCalled(t, "VectorQuery", mock.Anything, mock.Anything, mock.Anything, mock.Anything, sharedNS)
}

func TestGetContext_SharedPartitionRejectsPrivateChunks(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{
		privateMatch("p1", 0.99),
		sharedMatch("s1", 0.6),
	}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "policy", "", AccessSharedOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, SourceShared, chunks[0].SourceType)
	f.logs.AssertField(t, "dropped chunk from foreign partition", "reason", "source_type_mismatch")
}

func TestGetContext_DropsOtherRequestersChunks(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourcePrivate, nil, nil)
	other := privateMatch("bob1", 0.9)
	other.RequesterID = "bob"
	f.expectVectors(privateNS, []RawMatch{other, privateMatch("p1", 0.5)}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "notes", testRequester, AccessPrivateOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "p1", chunks[0].ID)
	f.logs.AssertField(t, "dropped chunk from foreign partition", "reason", "owner_mismatch")
}

func TestGetContext_ContactQueryBoost(t *testing.T) {
	f := newFixture(t)
	f.embedder.On("EmbedQuery", mock.Anything, mock.MatchedBy(func(text string) bool {
		return strings.Contains(text, "Jane Doe contact information")
	})).Return(testVector, nil)
	f.expectKeyword(SourceShared, []string{"doc-jane"}, nil)
	f.expectKeyword(SourcePrivate, nil, nil)
	match := sharedMatch("jane", 0.4)
	f.expectVectors(sharedNS, []RawMatch{match}, nil)
	f.expectVectors(privateNS, nil, nil)

	chunks, err := f.engine.GetContext(context.Background(), "contact info for Jane Doe", testRequester, AccessUnified)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsKeywordMatch)
	assert.InDelta(t, 0.6, chunks[0].BoostedScore, 1e-9)
	assert.InDelta(t, 0.4, chunks[0].Score, 1e-9)
	f.assertMocks(t)
}

func TestGetContext_BoostIffKeywordMatch(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	// Keyword hit found in the shared partition boosts a private chunk too.
	f.expectKeyword(SourceShared, []string{"doc-s1", "doc-p2"}, nil)
	f.expectKeyword(SourcePrivate, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{sharedMatch("s1", 0.4), sharedMatch("s2", 0.7)}, nil)
	f.expectVectors(privateNS, []RawMatch{privateMatch("p1", 0.45), privateMatch("p2", 0.5)}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "budget", testRequester, AccessUnified)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	keyword := map[string]bool{"doc-s1": true, "doc-p2": true}
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.BoostedScore, c.Score)
		if keyword[c.DocumentID] {
			assert.True(t, c.IsKeywordMatch, c.ID)
			assert.InDelta(t, c.Score*1.5, c.BoostedScore, 1e-9, c.ID)
		} else {
			assert.False(t, c.IsKeywordMatch, c.ID)
			assert.Equal(t, c.Score, c.BoostedScore, c.ID)
		}
	}
	assert.Equal(t, []string{"p2.docx", "s2.pdf", "s1.pdf", "p1.docx"}, fileNames(chunks))
}

func TestGetContext_KeywordFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, errBackend)
	f.expectVectors(sharedNS, []RawMatch{sharedMatch("s1", 0.8), sharedMatch("s2", 0.6)}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "handbook", "", AccessSharedOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.Equal(t, SourceShared, c.SourceType)
		assert.False(t, c.IsKeywordMatch)
	}
	f.logs.AssertLogged(t, zapcore.WarnLevel, "keyword prefilter failed")
}

func TestGetContext_KeywordPatternIsEscaped(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.keyword.On("KeywordSearch", mock.Anything, `report\(v2\)\.\*`, mock.Anything, 5).Return(nil, nil)
	f.expectVectors(sharedNS, nil, nil)

	_, err := f.engine.GetContext(context.Background(), "  report(v2).*  ", "", AccessSharedOnly)
	require.NoError(t, err)
	f.assertMocks(t)
}

func TestGetContext_ThresholdBoundary(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{sharedMatch("keep", 0.3), sharedMatch("drop", 0.29999)}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "threshold", "", AccessSharedOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "keep", chunks[0].ID)
}

func TestGetContext_DedupKeepsHighestBoostedScore(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, nil)
	f.expectKeyword(SourcePrivate, []string{"doc-p-dup"}, nil)

	s := sharedMatch("s-dup", 0.7)
	s.FileName = "plan.pdf"
	p := privateMatch("p-dup", 0.6)
	p.FileName = "plan.pdf"
	f.expectVectors(sharedNS, []RawMatch{s}, nil)
	f.expectVectors(privateNS, []RawMatch{p}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "plan", testRequester, AccessUnified)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, "p-dup", chunks[0].ID)
	assert.InDelta(t, 0.9, chunks[0].BoostedScore, 1e-9)
}

func TestGetContext_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, []string{"doc-s2"}, nil)
	f.expectKeyword(SourcePrivate, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{sharedMatch("s1", 0.5), sharedMatch("s2", 0.5), sharedMatch("s3", 0.5)}, nil)
	f.expectVectors(privateNS, []RawMatch{privateMatch("p1", 0.5), privateMatch("p2", 0.75)}, nil)

	first, err := f.engine.GetContext(context.Background(), "ties", testRequester, AccessUnified)
	require.NoError(t, err)
	second, err := f.engine.GetContext(context.Background(), "ties", testRequester, AccessUnified)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	// Ties keep shared-before-private, backend order within a partition.
	assert.Equal(t, []string{"s2", "p2", "s1", "s3", "p1"}, []string{first[0].ID, first[1].ID, first[2].ID, first[3].ID, first[4].ID})
}

func TestGetContext_MalformedMatchDefaults(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.expectKeyword(SourceShared, nil, nil)
	f.expectVectors(sharedNS, []RawMatch{{ID: "bare", Score: 0.5, SourceType: "system"}}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "anything", "", AccessSharedOnly)
	require.NoError(t, err)

	require.Len(t, chunks, 1)
	assert.Equal(t, DefaultFileName, chunks[0].FileName)
	assert.Equal(t, "", chunks[0].Text)
	assert.Equal(t, "bare", chunks[0].DocumentID)
}

func TestGetContext_VectorFailure(t *testing.T) {
	t.Run("fail closed", func(t *testing.T) {
		f := newFixture(t)
		f.expectEmbed()
		f.expectKeyword(SourceShared, nil, nil)
		f.expectKeyword(SourcePrivate, nil, nil)
		f.expectVectors(sharedNS, []RawMatch{sharedMatch("s1", 0.9)}, nil)
		f.expectVectors(privateNS, nil, errBackend)

		chunks, err := f.engine.GetContext(context.Background(), "q", testRequester, AccessUnified)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrVectorQueryFailed)
		assert.ErrorIs(t, err, errBackend)
		assert.Nil(t, chunks)
	})

	t.Run("degrade", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.FailurePolicy = Degrade })
		f.expectEmbed()
		f.expectKeyword(SourceShared, nil, nil)
		f.expectKeyword(SourcePrivate, nil, nil)
		f.expectVectors(sharedNS, []RawMatch{sharedMatch("s1", 0.9)}, nil)
		f.expectVectors(privateNS, nil, errBackend)

		chunks, err := f.engine.GetContext(context.Background(), "q", testRequester, AccessUnified)
		require.NoError(t, err)
		require.Len(t, chunks, 1)
		assert.Equal(t, SourceShared, chunks[0].SourceType)
		f.logs.AssertLogged(t, zapcore.WarnLevel, "partition dropped after vector failure")
	})

	t.Run("degrade with every partition failing", func(t *testing.T) {
		f := newFixture(t, func(c *Config) { c.FailurePolicy = Degrade })
		f.expectEmbed()
		f.expectKeyword(SourceShared, nil, nil)
		f.expectVectors(sharedNS, nil, errBackend)

		chunks, err := f.engine.GetContext(context.Background(), "q", "", AccessSharedOnly)
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestGetContext_FatalErrors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.GetContext(context.Background(), "   ", testRequester, AccessUnified)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		f.embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
	})

	t.Run("missing requester for private scope", func(t *testing.T) {
		for _, mode := range []AccessMode{AccessUnified, AccessPrivateOnly} {
			f := newFixture(t)
			_, err := f.engine.GetContext(context.Background(), "q", "  ", mode)
			assert.ErrorIs(t, err, ErrMissingRequester, mode.String())
			f.embedder.AssertNotCalled(t, "EmbedQuery", mock.Anything, mock.Anything)
			f.vectors.AssertNotCalled(t, "VectorQuery", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		}
	})

	t.Run("invalid requester", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.GetContext(context.Background(), "q", "alice/../bob", AccessPrivateOnly)
		assert.ErrorIs(t, err, ErrInvalidRequester)
	})

	t.Run("unknown mode", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.GetContext(context.Background(), "q", testRequester, AccessMode(42))
		assert.ErrorIs(t, err, ErrInvalidAccessMode)
	})

	t.Run("embedding failure", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return(nil, errBackend)
		_, err := f.engine.GetContext(context.Background(), "q", testRequester, AccessUnified)
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
		assert.ErrorIs(t, err, errBackend)
		f.keyword.AssertNotCalled(t, "KeywordSearch", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty vector", func(t *testing.T) {
		f := newFixture(t)
		f.embedder.On("EmbedQuery", mock.Anything, mock.Anything).Return([]float32{}, nil)
		_, err := f.engine.GetContext(context.Background(), "q", "", AccessSharedOnly)
		assert.ErrorIs(t, err, ErrEmbeddingFailed)
	})
}

func TestGetContext_BackendReceivesFilterCopy(t *testing.T) {
	f := newFixture(t)
	f.expectEmbed()
	f.keyword.On("KeywordSearch", mock.Anything, mock.Anything, mock.Anything, 5).
		Run(func(args mock.Arguments) {
			args.Get(2).(map[string]string)[MetaSourceType] = string(SourcePrivate)
		}).Return(nil, nil)
	f.vectors.On("VectorQuery", mock.Anything, testVector, 8,
		map[string]string{MetaSourceType: string(SourceShared)}, sharedNS).
		Return([]RawMatch{sharedMatch("s1", 0.9)}, nil)

	chunks, err := f.engine.GetContext(context.Background(), "q", "", AccessSharedOnly)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
	f.assertMocks(t)
}

func TestNewEngine_Validation(t *testing.T) {
	emb := &mockEmbedder{}
	vec := &mockVectors{}

	_, err := NewEngine(DefaultConfig(), nil, nil, vec)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewEngine(DefaultConfig(), emb, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"confidence above one", func(c *Config) { c.MinConfidence = 1.5 }},
		{"boost below one", func(c *Config) { c.KeywordBoost = 0.5 }},
		{"zero keyword limit", func(c *Config) { c.KeywordLimit = 0 }},
		{"zero top k", func(c *Config) { c.TopK = 0 }},
		{"zero timeout", func(c *Config) { c.VectorTimeout = 0 }},
		{"unknown policy", func(c *Config) { c.FailurePolicy = "retry" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			_, err := NewEngine(cfg, emb, nil, vec)
			assert.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
		})
	}
}

func TestGetContext_NilKeywordSearcher(t *testing.T) {
	emb := &mockEmbedder{}
	emb.On("EmbedQuery", mock.Anything, mock.Anything).Return(testVector, nil)
	vec := &mockVectors{}
	vec.On("VectorQuery", mock.Anything, testVector, 8, mock.Anything, sharedNS).
		Return([]RawMatch{sharedMatch("s1", 0.5)}, nil)

	engine, err := NewEngine(DefaultConfig(), emb, nil, vec)
	require.NoError(t, err)

	chunks, err := engine.GetContext(context.Background(), "q", "", AccessSharedOnly)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.False(t, chunks[0].IsKeywordMatch)
}
