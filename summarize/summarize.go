// Package summarize folds conversation history into a rolling summary when a
// session's messages outgrow its context budget. Summarization is best-effort:
// on persistent LLM failure the working memory is left untouched.
package summarize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/retry"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/tokens"
)

// Budget defaults, expressed as fractions of the model context window.
const (
	DefaultThresholdRatio  = 0.7
	DefaultTailBudgetRatio = 0.3
	DefaultSummaryBudget   = 512
)

// Summarizer produces rolling summaries using an LLM.
type Summarizer struct {
	client  llm.Client
	counter *tokens.Counter
	policy  retry.Policy

	thresholdRatio  float64
	tailBudgetRatio float64
	summaryBudget   int
}

// Option configures a Summarizer.
type Option func(*Summarizer)

// WithRetryPolicy overrides the retry policy for LLM calls.
func WithRetryPolicy(p retry.Policy) Option {
	return func(s *Summarizer) { s.policy = p }
}

// WithThresholdRatio overrides the summarization-trigger fraction of the
// context window.
func WithThresholdRatio(r float64) Option {
	return func(s *Summarizer) { s.thresholdRatio = r }
}

// WithTailBudgetRatio overrides the fraction of the window retained as the
// message tail.
func WithTailBudgetRatio(r float64) Option {
	return func(s *Summarizer) { s.tailBudgetRatio = r }
}

// WithSummaryBudget caps the summary length in tokens.
func WithSummaryBudget(budget int) Option {
	return func(s *Summarizer) { s.summaryBudget = budget }
}

// New creates a Summarizer on the given client.
func New(client llm.Client, counter *tokens.Counter, opts ...Option) *Summarizer {
	s := &Summarizer{
		client:          client,
		counter:         counter,
		policy:          retry.DefaultPolicy(),
		thresholdRatio:  DefaultThresholdRatio,
		tailBudgetRatio: DefaultTailBudgetRatio,
		summaryBudget:   DefaultSummaryBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params describes one summarization pass over a session's messages.
type Params struct {
	Messages []mnemo.MemoryMessage

	// Context is the existing rolling summary, empty before the first pass.
	Context string

	// ModelName selects the tokenizer, context window, and summarizing model.
	ModelName string

	// ContextWindowMax overrides the model's context window when positive.
	ContextWindowMax int

	// WindowSize, when positive, forces summarization whenever the message
	// count exceeds it, regardless of token totals.
	WindowSize int
}

// Result is the outcome of a summarization pass.
type Result struct {
	// Messages is the retained tail, unchanged if nothing was summarized.
	Messages []mnemo.MemoryMessage

	// Context is the rolling summary, unchanged if nothing was summarized.
	Context string

	// Tokens is the token count of the retained messages plus context.
	Tokens int

	// Summarized reports whether a new summary was produced.
	Summarized bool
}

const summaryPrompt = `You are summarizing a conversation to preserve its key information in limited space.

Previous summary (may be empty):
%s

Messages to fold into the summary:
%s

Write a single concise third-person summary that merges the previous summary with the new messages. Keep names, decisions, preferences, and open questions. Do not include commentary about the summarization itself.`

// Summarize applies the token-aware partition and asks the LLM for a new
// rolling summary. Returns the input unchanged (with Summarized false) when
// under budget or when the LLM keeps failing.
func (s *Summarizer) Summarize(ctx context.Context, params Params) (*Result, error) {
	logger := slogger.Ctx(ctx)

	window := params.ContextWindowMax
	if window <= 0 {
		window = tokens.ContextWindow(params.ModelName)
	}
	threshold := int(float64(window) * s.thresholdRatio)
	tailBudget := int(float64(window) * s.tailBudgetRatio)

	total := s.countAll(params.ModelName, params.Messages, params.Context)
	unchanged := &Result{
		Messages: params.Messages,
		Context:  params.Context,
		Tokens:   total,
	}

	countOverflow := params.WindowSize > 0 && len(params.Messages) > params.WindowSize
	if total <= threshold && !countOverflow {
		return unchanged, nil
	}

	prefix, tail := s.partition(params, tailBudget)
	if len(prefix) == 0 {
		return unchanged, nil
	}

	newContext, err := s.generateSummary(ctx, params.ModelName, params.Context, prefix)
	if err != nil {
		logger.Warn("summarization failed, leaving session unchanged", "error", err)
		return unchanged, nil
	}

	return &Result{
		Messages:   tail,
		Context:    newContext,
		Tokens:     s.countAll(params.ModelName, tail, newContext),
		Summarized: true,
	}, nil
}

// partition splits messages into a prefix to summarize and a tail to keep.
// The tail is the longest run of most recent messages fitting the token
// budget, further capped by WindowSize when set.
func (s *Summarizer) partition(params Params, tailBudget int) (prefix, tail []mnemo.MemoryMessage) {
	messages := params.Messages
	cut := len(messages)
	used := 0
	for cut > 0 {
		cost := s.counter.Count(params.ModelName, messages[cut-1].Content)
		if used+cost > tailBudget {
			break
		}
		used += cost
		cut--
	}
	// The newest message always stays visible.
	if cut == len(messages) {
		cut--
	}
	if params.WindowSize > 0 && len(messages)-cut > params.WindowSize {
		cut = len(messages) - params.WindowSize
	}
	// Always summarize at least one message once triggered.
	if cut == 0 && len(messages) > 1 {
		cut = 1
	}
	return messages[:cut], messages[cut:]
}

func (s *Summarizer) generateSummary(ctx context.Context, model, prior string, prefix []mnemo.MemoryMessage) (string, error) {
	var transcript strings.Builder
	for _, m := range prefix {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}
	if prior == "" {
		prior = "(none)"
	}
	prompt := fmt.Sprintf(summaryPrompt, prior, transcript.String())

	var content string
	err := s.policy.Do(ctx, func() error {
		callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		resp, err := s.client.Generate(callCtx, &llm.Request{
			Model:     model,
			Messages:  []*llm.Message{llm.NewUserMessage(prompt)},
			MaxTokens: s.summaryBudget,
		})
		if err != nil {
			return err
		}
		content = strings.TrimSpace(resp.Content)
		if content == "" {
			return mnemo.Errorf(mnemo.KindTransient, "empty summary response")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}

func (s *Summarizer) countAll(model string, messages []mnemo.MemoryMessage, context string) int {
	total := s.counter.Count(model, context)
	for _, m := range messages {
		total += s.counter.Count(model, m.Content)
	}
	return total
}
