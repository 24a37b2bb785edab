package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/ctxfuse/internal/config"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		keyword     string
		wantKeyword bool
		wantErr     error
	}{
		{name: "memory serves both roles", provider: ProviderMemory, wantKeyword: true},
		{name: "keyword disabled", provider: ProviderMemory, keyword: ProviderNone},
		{name: "chromem disables keyword by default", provider: ProviderChromem},
		{name: "chromem with memory keyword", provider: ProviderChromem, keyword: ProviderMemory, wantKeyword: true},
		{name: "chromem keyword rejected", provider: ProviderMemory, keyword: ProviderChromem, wantErr: ErrKeywordUnsupported},
		{name: "unknown provider", provider: "pinecone", wantErr: ErrInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Chromem.Path = ""
			cfg.VectorStore.Provider = tt.provider
			cfg.VectorStore.KeywordProvider = tt.keyword

			b, err := Open(context.Background(), cfg, zaptest.NewLogger(t))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			t.Cleanup(func() { assert.NoError(t, b.Close()) })

			assert.NotNil(t, b.Vectors)
			assert.NotNil(t, b.Writer)
			assert.Equal(t, tt.wantKeyword, b.Keyword != nil)
		})
	}
}

func TestOpen_SharedInstance(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Provider = ProviderMemory
	cfg.VectorStore.KeywordProvider = ProviderMemory

	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	assert.Same(t, b.Vectors.(*MemoryStore), b.Keyword.(*MemoryStore))
	assert.Len(t, b.closers, 1)
}
