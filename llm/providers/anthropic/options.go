package anthropic

import (
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
)

// Option configures the Anthropic provider.
type Option func(*Provider)

// WithModel sets the default chat model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithMaxTokens sets the default completion token cap.
func WithMaxTokens(maxTokens int) Option {
	return func(p *Provider) {
		p.maxTokens = maxTokens
	}
}

// WithAPIKey sets the API key explicitly.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		p.requestOptions = append(p.requestOptions, option.WithAPIKey(apiKey))
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.requestOptions = append(p.requestOptions, option.WithBaseURL(baseURL))
	}
}

// WithGenerateTimeout sets the chat completion timeout.
func WithGenerateTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.generateTimeout = d
	}
}
