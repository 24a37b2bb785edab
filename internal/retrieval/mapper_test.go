package retrieval

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapMatches_DropsNonNumericScores(t *testing.T) {
	matches := []RawMatch{
		{ID: "nan", DocumentID: "d-nan", FileName: "nan.pdf", SourceType: "system", Score: math.NaN()},
		{ID: "high", DocumentID: "d-high", FileName: "high.pdf", SourceType: "system", Score: 0.9},
		{ID: "mid", DocumentID: "d-mid", FileName: "mid.pdf", SourceType: "system", Score: 0.5},
	}

	chunks := mapMatches(matches, map[string]struct{}{"d-nan": {}}, DefaultMinConfidence, DefaultKeywordBoost)

	require.Len(t, chunks, 2)
	for _, c := range chunks {
		assert.False(t, math.IsNaN(c.Score))
		assert.False(t, math.IsNaN(c.BoostedScore))
	}

	fused, err := fuse(AccessSharedOnly, map[SourceType][]ContextChunk{SourceShared: chunks})
	require.NoError(t, err)
	require.Len(t, fused, 2)
	assert.Equal(t, "high", fused[0].ID)
	assert.Equal(t, "mid", fused[1].ID)
}

func TestMapMatches_Threshold(t *testing.T) {
	matches := []RawMatch{
		{ID: "below", Score: 0.2999},
		{ID: "at", Score: 0.3},
		{ID: "inf", Score: math.Inf(-1)},
	}
	chunks := mapMatches(matches, nil, DefaultMinConfidence, DefaultKeywordBoost)
	require.Len(t, chunks, 1)
	assert.Equal(t, "at", chunks[0].ID)
}
