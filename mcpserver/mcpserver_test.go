package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/hydrate"
	"github.com/mnemo-ai/mnemo/llm/llmtest"
	"github.com/mnemo-ai/mnemo/longterm"
	"github.com/mnemo-ai/mnemo/summarize"
	"github.com/mnemo-ai/mnemo/tokens"
	"github.com/mnemo-ai/mnemo/vectorstore/localvec"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	client := &llmtest.Client{}
	counter := tokens.NewCounter()
	sessions := workingmemory.NewService(
		workingmemory.NewMemoryStore(), summarize.New(client, counter), counter, nil, nil)
	engine, err := longterm.New(localvec.New(), client)
	require.NoError(t, err)
	return New("mnemo-test", "0.0.1", sessions, engine, hydrate.New(sessions, engine))
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text
}

func TestSetAndGetWorkingMemory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSetWorkingMemory(ctx, callRequest(map[string]any{
		"session_id": "s1",
		"namespace":  "ns",
		"memory": map[string]any{
			"messages": []map[string]any{{"role": "user", "content": "hello"}},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var put mnemo.WorkingMemoryResponse
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &put))
	assert.Equal(t, "s1", put.SessionID)
	assert.Equal(t, int64(1), put.Version)

	result, err = s.handleGetWorkingMemory(ctx, callRequest(map[string]any{
		"session_id": "s1",
		"namespace":  "ns",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var got mnemo.WorkingMemoryResponse
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &got))
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "hello", got.Messages[0].Content)
}

func TestGetWorkingMemoryMissingSession(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetWorkingMemory(context.Background(), callRequest(map[string]any{
		"session_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestGetWorkingMemoryRequiresSessionID(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleGetWorkingMemory(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestCreateAndSearchLongTerm(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleCreateLongTerm(ctx, callRequest(map[string]any{
		"memories": []map[string]any{
			{"text": "User prefers dark roast coffee", "memory_type": "semantic", "user_id": "u1"},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var created struct {
		Status   string               `json:"status"`
		Memories []mnemo.MemoryRecord `json:"memories"`
	}
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &created))
	assert.Equal(t, "ok", created.Status)
	require.Len(t, created.Memories, 1)
	assert.NotEmpty(t, created.Memories[0].ID)
	assert.NotEmpty(t, created.Memories[0].MemoryHash)

	result, err = s.handleSearchLongTerm(ctx, callRequest(map[string]any{
		"text": "User prefers dark roast coffee",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var results mnemo.MemoryRecordResults
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &results))
	require.Len(t, results.Memories, 1)
	assert.Equal(t, "User prefers dark roast coffee", results.Memories[0].Text)
}

func TestCreateLongTermRejectsEmpty(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleCreateLongTerm(context.Background(), callRequest(map[string]any{
		"memories": []map[string]any{},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSearchLongTermRejectsEmptyQuery(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleSearchLongTerm(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestMemoryPromptTool(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleSetWorkingMemory(ctx, callRequest(map[string]any{
		"session_id": "s1",
		"memory": map[string]any{
			"context":  "User is learning Go.",
			"messages": []map[string]any{{"role": "user", "content": "what are goroutines?"}},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleMemoryPrompt(ctx, callRequest(map[string]any{
		"query":   "explain channels",
		"session": map[string]any{"session_id": "s1"},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp hydrate.Response
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &resp))
	require.NotEmpty(t, resp.Messages)
	assert.Equal(t, "Summary of prior conversation: User is learning Go.", resp.Messages[0].Content)
	assert.Equal(t, "explain channels", resp.Messages[len(resp.Messages)-1].Content)
}

func TestMemoryPromptRequiresQuery(t *testing.T) {
	s := newTestServer(t)

	result, err := s.handleMemoryPrompt(context.Background(), callRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestToolsRegistered(t *testing.T) {
	s := newTestServer(t)
	require.NotNil(t, s.MCPServer())
}
