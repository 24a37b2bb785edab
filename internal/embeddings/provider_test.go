package embeddings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectDimensionFromModel(t *testing.T) {
	tests := map[string]int{
		"BAAI/bge-small-en-v1.5":                 384,
		"BAAI/bge-base-en-v1.5":                  768,
		"BAAI/bge-small-zh-v1.5":                 512,
		"sentence-transformers/all-MiniLM-L6-v2": 384,
		"intfloat/e5-large-v2":                   1024,
		"nomic-ai/nomic-embed-text-Base":         768,
		"unknown-model":                          384,
	}
	for model, want := range tests {
		assert.Equal(t, want, detectDimensionFromModel(model), model)
	}
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(ProviderConfig{Provider: "tei", BaseURL: "http://localhost:8080", Model: "BAAI/bge-base-en-v1.5"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 768, p.Dimension())
	assert.NoError(t, p.Close())

	_, err = NewProvider(ProviderConfig{Provider: "tei"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(ProviderConfig{Provider: "openai"}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
