// Package openai implements the llm.Client interface with the OpenAI API:
// chat completions for generation and the embeddings endpoint for vectors.
package openai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/retry"
)

var (
	DefaultModel            = "gpt-4o-mini"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultMaxTokens        = 4096
	DefaultGenerateTimeout  = 30 * time.Second
	DefaultEmbeddingTimeout = 10 * time.Second
)

var _ llm.Client = &Provider{}

// Provider is an OpenAI-backed llm.Client.
type Provider struct {
	client           openai.Client
	model            string
	embeddingModel   string
	maxTokens        int
	generateTimeout  time.Duration
	embeddingTimeout time.Duration
	requestOptions   []option.RequestOption
}

// New creates an OpenAI provider. The API key comes from OPENAI_API_KEY
// unless WithAPIKey is given.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:            DefaultModel,
		embeddingModel:   DefaultEmbeddingModel,
		maxTokens:        DefaultMaxTokens,
		generateTimeout:  DefaultGenerateTimeout,
		embeddingTimeout: DefaultEmbeddingTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.requestOptions...)
	return p
}

func (p *Provider) Name() string {
	return "openai"
}

func (p *Provider) SupportsEmbedding() bool {
	return true
}

// Generate runs a chat completion.
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

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		case llm.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.generateTimeout)
	defer cancel()

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classifyError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, mnemo.Errorf(mnemo.KindFatal, "empty response from openai api")
	}

	choice := completion.Choices[0]
	return &llm.Response{
		Model:      completion.Model,
		Content:    choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: llm.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

// Embed returns one embedding per input text.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "no texts provided")
	}

	ctx, cancel := context.WithTimeout(ctx, p.embeddingTimeout)
	defer cancel()

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: p.embeddingModel,
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	})
	if err != nil {
		return nil, classifyError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, mnemo.Errorf(mnemo.KindFatal,
			"embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[item.Index] = vec
	}
	return vectors, nil
}

// classifyError maps SDK errors onto the service error kinds so the retry
// policy can distinguish transient failures.
func classifyError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if retry.RetryableStatus(apiErr.StatusCode) {
			return mnemo.WrapError(mnemo.KindTransient, err)
		}
		return mnemo.WrapError(mnemo.KindFatal, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return mnemo.WrapError(mnemo.KindTransient, fmt.Errorf("openai request timed out: %w", err))
	}
	return err
}
