// Package llm defines the provider-agnostic model client used for chat
// completion and text embedding, plus a registry that dispatches model
// names to providers.
package llm

import (
	"context"
)

// Role indicates the role of a message in a conversation.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	System    Role = "system"
)

func (r Role) String() string {
	return string(r)
}

// Message is one turn passed to or returned from a model.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// NewUserMessage returns a user message with the given text.
func NewUserMessage(text string) *Message {
	return &Message{Role: User, Content: text}
}

// NewAssistantMessage returns an assistant message with the given text.
func NewAssistantMessage(text string) *Message {
	return &Message{Role: Assistant, Content: text}
}

// NewSystemMessage returns a system message with the given text.
func NewSystemMessage(text string) *Message {
	return &Message{Role: System, Content: text}
}

// Request describes a chat completion call.
type Request struct {
	// Model overrides the provider's default model when non-empty.
	Model string

	Messages []*Message

	// SystemPrompt is sent through the provider's native system channel.
	SystemPrompt string

	// MaxTokens caps the response length. Zero uses the provider default.
	MaxTokens int

	// Temperature overrides the provider default when non-nil.
	Temperature *float64

	// JSONMode asks the provider for a JSON object response, for prompts
	// that parse the output.
	JSONMode bool
}

// Usage reports token consumption for a completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the result of a chat completion call.
type Response struct {
	Model      string `json:"model"`
	Content    string `json:"content"`
	StopReason string `json:"stop_reason,omitempty"`
	Usage      Usage  `json:"usage"`
}

// Client is the capability the memory service needs from a model provider:
// chat completion, and optionally embedding. Providers that cannot embed
// report it via SupportsEmbedding; the engine refuses to configure them as
// the embedding model.
type Client interface {
	// Name identifies the provider, e.g. "openai".
	Name() string

	// Generate runs a chat completion.
	Generate(ctx context.Context, req *Request) (*Response, error)

	// Embed returns one embedding vector per input text, in input order.
	// Providers without embedding support return an error.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// SupportsEmbedding reports whether Embed is implemented.
	SupportsEmbedding() bool
}
