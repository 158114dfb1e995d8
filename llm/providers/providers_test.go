package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
)

func TestRegistryDispatch(t *testing.T) {
	registry := NewRegistry()

	tests := []struct {
		model    string
		provider string
	}{
		{"claude-sonnet-4-20250514", "anthropic"},
		{"gpt-4o-mini", "openai"},
		{"o1-mini", "openai"},
		{"o3", "openai"},
		{"o4-mini", "openai"},
		{"chatgpt-4o-latest", "openai"},
		{"text-embedding-3-small", "openai"},
	}
	for _, tt := range tests {
		client, err := registry.ClientForModel(tt.model)
		require.NoError(t, err, tt.model)
		assert.Equal(t, tt.provider, client.Name(), tt.model)
	}
}

func TestRegistryUnknownModel(t *testing.T) {
	_, err := NewRegistry().ClientForModel("mystery-model")
	require.Error(t, err)
	assert.Equal(t, mnemo.KindInvalidInput, mnemo.ErrorKind(err))
}

func TestRegistryEmbeddingClient(t *testing.T) {
	registry := NewRegistry()

	client, err := registry.EmbeddingClientForModel("text-embedding-3-small")
	require.NoError(t, err)
	assert.True(t, client.SupportsEmbedding())

	// Anthropic has no embeddings endpoint.
	_, err = registry.EmbeddingClientForModel("claude-sonnet-4-20250514")
	require.Error(t, err)
	assert.Equal(t, mnemo.KindInvalidInput, mnemo.ErrorKind(err))
}
