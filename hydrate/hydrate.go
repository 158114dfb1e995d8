// Package hydrate assembles LLM-ready prompts from working memory and
// long-term search: rolling summary first, then the session window, then
// relevant long-term memories, then the user's query.
package hydrate

import (
	"context"
	"strings"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

// Searcher is the long-term search capability, implemented by the longterm
// engine.
type Searcher interface {
	Search(ctx context.Context, req *mnemo.SearchRequest) (*mnemo.MemoryRecordResults, error)
}

// SessionGetter fetches working memory, implemented by the workingmemory
// service.
type SessionGetter interface {
	Get(ctx context.Context, namespace, sessionID string, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error)
}

// Hydrator builds prompt message lists.
type Hydrator struct {
	sessions SessionGetter
	searcher Searcher
}

// New creates a Hydrator. Either collaborator may be nil, disabling that
// source.
func New(sessions SessionGetter, searcher Searcher) *Hydrator {
	return &Hydrator{sessions: sessions, searcher: searcher}
}

// SessionParams identifies the session to hydrate from.
type SessionParams struct {
	SessionID        string `json:"session_id"`
	Namespace        string `json:"namespace,omitempty"`
	UserID           string `json:"user_id,omitempty"`
	ModelName        string `json:"model_name,omitempty"`
	ContextWindowMax int    `json:"context_window_max,omitempty"`
}

// Request is the memory-prompt payload.
type Request struct {
	Query string `json:"query"`

	// Session, when set, contributes the rolling summary and recent
	// messages.
	Session *SessionParams `json:"session,omitempty"`

	// LongTermSearch, when set, contributes relevant long-term memories.
	// An empty Text defaults to the query.
	LongTermSearch *mnemo.SearchRequest `json:"long_term_search,omitempty"`
}

// Response is the ordered message list ready to send to a model.
type Response struct {
	Messages []*llm.Message `json:"messages"`
}

const (
	summaryPrefix      = "Summary of prior conversation: "
	longTermMemoryHead = "Long term memories related to the user's query:\n"
)

// Hydrate builds the prompt. A missing session is skipped, not an error;
// long-term search failures degrade to a prompt without memories.
func (h *Hydrator) Hydrate(ctx context.Context, req *Request) (*Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "memory prompt requires a query")
	}
	logger := slogger.Ctx(ctx)
	var messages []*llm.Message

	if req.Session != nil && h.sessions != nil {
		wm, err := h.sessions.Get(ctx, req.Session.Namespace, req.Session.SessionID, workingmemory.Params{
			ModelName:        req.Session.ModelName,
			ContextWindowMax: req.Session.ContextWindowMax,
		})
		switch {
		case mnemo.ErrorKind(err) == mnemo.KindNotFound:
		case err != nil:
			return nil, err
		default:
			if wm.Context != "" {
				messages = append(messages, llm.NewSystemMessage(summaryPrefix+wm.Context))
			}
			for _, m := range wm.Messages {
				messages = append(messages, &llm.Message{Role: llm.Role(m.Role), Content: m.Content})
			}
		}
	}

	if req.LongTermSearch != nil && h.searcher != nil {
		search := *req.LongTermSearch
		if search.Text == "" {
			search.Text = req.Query
		}
		results, err := h.searcher.Search(ctx, &search)
		if err != nil {
			logger.Warn("long-term search failed during hydration", "error", err)
		} else if len(results.Memories) > 0 {
			var b strings.Builder
			b.WriteString(longTermMemoryHead)
			for _, m := range results.Memories {
				b.WriteString("- ")
				b.WriteString(m.Text)
				b.WriteString("\n")
			}
			messages = append(messages, llm.NewSystemMessage(strings.TrimSuffix(b.String(), "\n")))
		}
	}

	messages = append(messages, llm.NewUserMessage(req.Query))
	return &Response{Messages: messages}, nil
}
