// Package anthropic implements the llm.Client interface with the Anthropic
// Messages API. Anthropic has no embeddings endpoint, so this provider
// reports SupportsEmbedding false and cannot serve as the embedding model.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/retry"
)

var (
	DefaultModel           = "claude-3-5-haiku-latest"
	DefaultMaxTokens       = 4096
	DefaultGenerateTimeout = 30 * time.Second
)

var _ llm.Client = &Provider{}

// Provider is an Anthropic-backed llm.Client.
type Provider struct {
	client          anthropic.Client
	model           string
	maxTokens       int
	generateTimeout time.Duration
	requestOptions  []option.RequestOption
}

// New creates an Anthropic provider. The API key comes from
// ANTHROPIC_API_KEY unless WithAPIKey is given.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:           DefaultModel,
		maxTokens:       DefaultMaxTokens,
		generateTimeout: DefaultGenerateTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(p.requestOptions...)
	return p
}

func (p *Provider) Name() string {
	return "anthropic"
}

func (p *Provider) SupportsEmbedding() bool {
	return false
}

// Generate runs a chat completion via the Messages API. JSON mode is
// emulated with an instruction since the API has no response_format knob.
func (p *Provider) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	if len(req.Messages) == 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "no messages provided")
	}

	model := req.Model
	if model == "" {
		model = p.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = p.maxTokens
	}

	systemPrompt := req.SystemPrompt
	if req.JSONMode {
		systemPrompt = strings.TrimSpace(systemPrompt +
			"\nRespond with a single valid JSON object and nothing else.")
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case llm.Assistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		case llm.System:
			// The Messages API takes system text out of band.
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}
	if len(messages) == 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "no user or assistant messages provided")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	ctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}

	var text strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &llm.Response{
		Model:      string(message.Model),
		Content:    text.String(),
		StopReason: string(message.StopReason),
		Usage: llm.Usage{
			InputTokens:  int(message.Usage.InputTokens),
			OutputTokens: int(message.Usage.OutputTokens),
		},
	}, nil
}

// Embed always fails: Anthropic does not offer an embeddings API.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, mnemo.Errorf(mnemo.KindInvalidInput, "anthropic provider does not support embeddings")
}

func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if retry.RetryableStatus(apiErr.StatusCode) {
			return mnemo.WrapError(mnemo.KindTransient, err)
		}
		return mnemo.WrapError(mnemo.KindFatal, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("anthropic request timed out: %w", err))
	}
	return err
}
