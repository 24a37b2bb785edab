package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver("", "")

	t.Run("unified returns shared then private", func(t *testing.T) {
		parts, err := r.Resolve(AccessUnified, "alice")
		require.NoError(t, err)
		require.Len(t, parts, 2)

		assert.Equal(t, SourceShared, parts[0].Kind)
		assert.Equal(t, "system-kb", parts[0].Namespace)
		assert.Equal(t, map[string]string{MetaSourceType: "system"}, parts[0].Filter)

		assert.Equal(t, SourcePrivate, parts[1].Kind)
		assert.Equal(t, "user-alice", parts[1].Namespace)
		assert.Equal(t, map[string]string{MetaSourceType: "user", MetaRequesterID: "alice"}, parts[1].Filter)
	})

	t.Run("shared only ignores requester", func(t *testing.T) {
		parts, err := r.Resolve(AccessSharedOnly, "")
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, SourceShared, parts[0].Kind)
	})

	t.Run("private only", func(t *testing.T) {
		parts, err := r.Resolve(AccessPrivateOnly, " alice ")
		require.NoError(t, err)
		require.Len(t, parts, 1)
		assert.Equal(t, "alice", parts[0].RequesterID)
		assert.Equal(t, "alice", parts[0].Filter[MetaRequesterID])
	})

	t.Run("private scope requires requester", func(t *testing.T) {
		for _, mode := range []AccessMode{AccessUnified, AccessPrivateOnly} {
			_, err := r.Resolve(mode, "")
			assert.ErrorIs(t, err, ErrMissingRequester)
		}
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := r.Resolve(AccessMode(9), "alice")
		assert.ErrorIs(t, err, ErrInvalidAccessMode)
	})

	t.Run("custom namespaces", func(t *testing.T) {
		parts, err := NewResolver("kb", "private_").Resolve(AccessUnified, "bob")
		require.NoError(t, err)
		assert.Equal(t, "kb", parts[0].Namespace)
		assert.Equal(t, "private_bob", parts[1].Namespace)
	})
}

func TestValidateRequesterID(t *testing.T) {
	valid := []string{"alice", "user_42", "a.b@example.com", "tenant:alice", "A-1"}
	for _, id := range valid {
		assert.NoError(t, ValidateRequesterID(id), id)
	}

	assert.ErrorIs(t, ValidateRequesterID(""), ErrMissingRequester)

	invalid := []string{"alice bob", "../etc", "a/b", "naïve", "a*", strings.Repeat("x", 129)}
	for _, id := range invalid {
		assert.ErrorIs(t, ValidateRequesterID(id), ErrInvalidRequester, id)
	}
}
