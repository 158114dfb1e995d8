// Package providers wires the known model providers into an llm.Registry.
package providers

import (
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/llm/providers/anthropic"
	"github.com/mnemo-ai/mnemo/llm/providers/openai"
)

// NewRegistry returns a registry that dispatches model names to the OpenAI
// and Anthropic providers by prefix.
func NewRegistry() *llm.Registry {
	registry := llm.NewRegistry()
	registry.Register(llm.RegistryEntry{
		Name:  "anthropic",
		Match: llm.PrefixMatcher("claude-"),
		Factory: func(model string) llm.Client {
			return anthropic.New(anthropic.WithModel(model))
		},
	})
	registry.Register(llm.RegistryEntry{
		Name:  "openai",
		Match: llm.PrefixMatcher("gpt-", "o1", "o3", "o4", "chatgpt-", "text-embedding-"),
		Factory: func(model string) llm.Client {
			return openai.New(openai.WithModel(model), openai.WithEmbeddingModel(model))
		},
	})
	return registry
}
