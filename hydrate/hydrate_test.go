package hydrate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

type fakeSessions struct {
	wm  *mnemo.WorkingMemoryResponse
	err error
}

func (f *fakeSessions) Get(ctx context.Context, namespace, sessionID string, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.wm, nil
}

type fakeSearcher struct {
	results *mnemo.MemoryRecordResults
	err     error
	lastReq *mnemo.SearchRequest
}

func (f *fakeSearcher) Search(ctx context.Context, req *mnemo.SearchRequest) (*mnemo.MemoryRecordResults, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func TestHydrateFullPrompt(t *testing.T) {
	sessions := &fakeSessions{wm: &mnemo.WorkingMemoryResponse{
		WorkingMemory: mnemo.WorkingMemory{
			Context: "User is planning a trip to Portugal.",
			Messages: []mnemo.MemoryMessage{
				{Role: "user", Content: "any tips for Lisbon?"},
				{Role: "assistant", Content: "Try the trams."},
			},
		},
	}}
	searcher := &fakeSearcher{results: &mnemo.MemoryRecordResults{
		Memories: []mnemo.MemoryRecordResult{
			{MemoryRecord: mnemo.MemoryRecord{Text: "User prefers window seats"}},
			{MemoryRecord: mnemo.MemoryRecord{Text: "User visited Paris in 2024"}},
		},
		Total: 2,
	}}
	h := New(sessions, searcher)

	resp, err := h.Hydrate(context.Background(), &Request{
		Query:          "book me a flight",
		Session:        &SessionParams{SessionID: "s1"},
		LongTermSearch: &mnemo.SearchRequest{},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 5)

	assert.Equal(t, llm.System, resp.Messages[0].Role)
	assert.Equal(t, "Summary of prior conversation: User is planning a trip to Portugal.", resp.Messages[0].Content)

	assert.Equal(t, llm.User, resp.Messages[1].Role)
	assert.Equal(t, "any tips for Lisbon?", resp.Messages[1].Content)
	assert.Equal(t, llm.Assistant, resp.Messages[2].Role)

	assert.Equal(t, llm.System, resp.Messages[3].Role)
	assert.Equal(t,
		"Long term memories related to the user's query:\n- User prefers window seats\n- User visited Paris in 2024",
		resp.Messages[3].Content)

	assert.Equal(t, llm.User, resp.Messages[4].Role)
	assert.Equal(t, "book me a flight", resp.Messages[4].Content)

	// Empty search text defaults to the query.
	assert.Equal(t, "book me a flight", searcher.lastReq.Text)
}

func TestHydrateQueryOnly(t *testing.T) {
	h := New(nil, nil)
	resp, err := h.Hydrate(context.Background(), &Request{Query: "hello"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, llm.User, resp.Messages[0].Role)
	assert.Equal(t, "hello", resp.Messages[0].Content)
}

func TestHydrateEmptyQueryRejected(t *testing.T) {
	h := New(nil, nil)
	_, err := h.Hydrate(context.Background(), &Request{Query: "  "})
	require.Error(t, err)
	assert.Equal(t, mnemo.KindInvalidInput, mnemo.ErrorKind(err))
}

func TestHydrateMissingSessionSkipped(t *testing.T) {
	sessions := &fakeSessions{err: mnemo.WrapError(mnemo.KindNotFound, mnemo.ErrNotFound)}
	h := New(sessions, nil)

	resp, err := h.Hydrate(context.Background(), &Request{
		Query:   "hello",
		Session: &SessionParams{SessionID: "missing"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
}

func TestHydrateSearchFailureDegrades(t *testing.T) {
	searcher := &fakeSearcher{err: errors.New("vector store down")}
	h := New(nil, searcher)

	resp, err := h.Hydrate(context.Background(), &Request{
		Query:          "hello",
		LongTermSearch: &mnemo.SearchRequest{Text: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
}

func TestHydrateEmptySearchResultsOmitBlock(t *testing.T) {
	searcher := &fakeSearcher{results: &mnemo.MemoryRecordResults{}}
	h := New(nil, searcher)

	resp, err := h.Hydrate(context.Background(), &Request{
		Query:          "hello",
		LongTermSearch: &mnemo.SearchRequest{Text: "hello"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
}

func TestHydrateStorageErrorSurfaces(t *testing.T) {
	sessions := &fakeSessions{err: mnemo.Errorf(mnemo.KindTransient, "redis down")}
	h := New(sessions, nil)

	_, err := h.Hydrate(context.Background(), &Request{
		Query:   "hello",
		Session: &SessionParams{SessionID: "s1"},
	})
	require.Error(t, err)
}
