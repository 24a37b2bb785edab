package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAccessMode(t *testing.T) {
	tests := map[string]AccessMode{
		"":        AccessUnified,
		"unified": AccessUnified,
		"ALL":     AccessUnified,
		"user":    AccessPrivateOnly,
		"private": AccessPrivateOnly,
		"system":  AccessSharedOnly,
		" kb ":    AccessSharedOnly,
		"shared":  AccessSharedOnly,
	}
	for in, want := range tests {
		got, err := ParseAccessMode(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseAccessMode("everything")
	assert.ErrorIs(t, err, ErrInvalidAccessMode)
}

func TestAccessMode_String(t *testing.T) {
	assert.Equal(t, "unified", AccessUnified.String())
	assert.Equal(t, "user", AccessPrivateOnly.String())
	assert.Equal(t, "system", AccessSharedOnly.String())
	assert.Equal(t, "AccessMode(7)", AccessMode(7).String())
	assert.False(t, AccessMode(7).Valid())
}

func TestParseSourceType(t *testing.T) {
	assert.Equal(t, SourceShared, ParseSourceType("system"))
	assert.Equal(t, SourceShared, ParseSourceType("Shared"))
	assert.Equal(t, SourcePrivate, ParseSourceType("user"))
	assert.Equal(t, SourceUnknown, ParseSourceType(""))
	assert.Equal(t, SourceUnknown, ParseSourceType("admin"))
	assert.Equal(t, OriginUnknown, SourceUnknown.Origin())
}

func TestMatchFromMetadata(t *testing.T) {
	m := MatchFromMetadata("id-1", 0.7, map[string]interface{}{
		MetaDocumentID:  "doc-1",
		MetaFileName:    "a.pdf",
		MetaSourceType:  "user",
		MetaRequesterID: "alice",
		"content":       "hello",
		"page":          3,
		"ignored":       nil,
	})

	assert.Equal(t, "id-1", m.ID)
	assert.Equal(t, 0.7, m.Score)
	assert.Equal(t, "doc-1", m.DocumentID)
	assert.Equal(t, "a.pdf", m.FileName)
	assert.Equal(t, "user", m.SourceType)
	assert.Equal(t, "alice", m.RequesterID)
	assert.Equal(t, "hello", m.Text)
	assert.Equal(t, map[string]string{"page": "3"}, m.Extra)
}
