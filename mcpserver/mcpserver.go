// Package mcpserver exposes the memory service as MCP tools over stdio, so
// agent frameworks can read and write memory without the HTTP surface.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/hydrate"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

// Sessions is the working-memory surface the tools need.
type Sessions interface {
	Get(ctx context.Context, namespace, sessionID string, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error)
	Put(ctx context.Context, wm *mnemo.WorkingMemory, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error)
}

// LongTerm is the long-term memory surface the tools need.
type LongTerm interface {
	Index(ctx context.Context, records []*mnemo.MemoryRecord, deduplicate bool) ([]*mnemo.MemoryRecord, error)
	Search(ctx context.Context, req *mnemo.SearchRequest) (*mnemo.MemoryRecordResults, error)
}

// Hydrator builds memory prompts.
type Hydrator interface {
	Hydrate(ctx context.Context, req *hydrate.Request) (*hydrate.Response, error)
}

// Server wraps an MCP server with the memory tools registered.
type Server struct {
	mcp      *server.MCPServer
	sessions Sessions
	longterm LongTerm
	hydrator Hydrator
	logger   slogger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the tool logger. Logs must never reach stdout, which is the
// MCP transport; callers should hand in a stderr or file logger.
func WithLogger(logger slogger.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// New creates the MCP server and registers the memory tools.
func New(name, version string, sessions Sessions, lt LongTerm, hydrator Hydrator, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		longterm: lt,
		hydrator: hydrator,
		logger:   slogger.DefaultLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.mcp = server.NewMCPServer(name, version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server for alternate transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("get_working_memory",
		mcp.WithDescription("Get a session's working memory: recent messages, rolling summary, and pending memories."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to read")),
		mcp.WithString("namespace", mcp.Description("Namespace the session lives in")),
		mcp.WithString("model_name", mcp.Description("Model whose context window sizes token percentages")),
		mcp.WithNumber("context_window_max", mcp.Description("Explicit context window size in tokens")),
	), s.handleGetWorkingMemory)

	s.mcp.AddTool(mcp.NewTool("set_working_memory",
		mcp.WithDescription("Replace a session's working memory. May trigger summarization and long-term promotion."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session to write")),
		mcp.WithString("namespace", mcp.Description("Namespace the session lives in")),
		mcp.WithObject("memory", mcp.Required(), mcp.Description("Working memory payload: messages, context, memories, version")),
		mcp.WithString("model_name", mcp.Description("Model whose context window drives summarization")),
		mcp.WithNumber("context_window_max", mcp.Description("Explicit context window size in tokens")),
		mcp.WithNumber("window_size", mcp.Description("Message window size before summarization")),
	), s.handleSetWorkingMemory)

	s.mcp.AddTool(mcp.NewTool("search_long_term_memory",
		mcp.WithDescription("Semantic search over long-term memories with optional filters and recency re-ranking."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Query text")),
		mcp.WithObject("filters", mcp.Description("Filters on session_id, user_id, namespace, memory_type, topics, entities, and time ranges")),
		mcp.WithNumber("limit", mcp.Description("Max results, up to 100")),
		mcp.WithNumber("offset", mcp.Description("Pagination offset")),
		mcp.WithNumber("distance_threshold", mcp.Description("Max vector distance for range search")),
		mcp.WithObject("recency", mcp.Description("Recency re-ranking weights and half-lives")),
	), s.handleSearchLongTerm)

	s.mcp.AddTool(mcp.NewTool("create_long_term_memories",
		mcp.WithDescription("Index memories into long-term storage with deduplication."),
		mcp.WithArray("memories", mcp.Required(), mcp.Description("Memory records; each requires text, optionally memory_type, topics, entities, and scope IDs")),
	), s.handleCreateLongTerm)

	s.mcp.AddTool(mcp.NewTool("memory_prompt",
		mcp.WithDescription("Build an LLM-ready message list from session context and relevant long-term memories."),
		mcp.WithString("query", mcp.Required(), mcp.Description("The user's query")),
		mcp.WithObject("session", mcp.Description("Session to hydrate from: session_id, namespace, model_name")),
		mcp.WithObject("long_term_search", mcp.Description("Long-term search request; text defaults to the query")),
	), s.handleMemoryPrompt)
}

func (s *Server) handleGetWorkingMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.sessions.Get(ctx, req.GetString("namespace", ""), sessionID, workingmemory.Params{
		ModelName:        req.GetString("model_name", ""),
		ContextWindowMax: req.GetInt("context_window_max", 0),
	})
	if err != nil {
		return s.toolError(ctx, "get_working_memory", err), nil
	}
	return jsonResult(resp)
}

type setWorkingMemoryArgs struct {
	SessionID        string              `json:"session_id"`
	Namespace        string              `json:"namespace"`
	Memory           mnemo.WorkingMemory `json:"memory"`
	ModelName        string              `json:"model_name"`
	ContextWindowMax int                 `json:"context_window_max"`
	WindowSize       int                 `json:"window_size"`
}

func (s *Server) handleSetWorkingMemory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setWorkingMemoryArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.SessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	wm := args.Memory
	wm.SessionID = args.SessionID
	if args.Namespace != "" {
		wm.Namespace = args.Namespace
	}
	resp, err := s.sessions.Put(ctx, &wm, workingmemory.Params{
		ModelName:        args.ModelName,
		ContextWindowMax: args.ContextWindowMax,
		WindowSize:       args.WindowSize,
	})
	if err != nil {
		return s.toolError(ctx, "set_working_memory", err), nil
	}
	return jsonResult(resp)
}

type searchArgs struct {
	mnemo.SearchRequest
	Recency *mnemo.RecencyOptions `json:"recency"`
}

func (s *Server) handleSearchLongTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args searchArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	search := args.SearchRequest
	if args.Recency != nil {
		search.RecencyOptions = *args.Recency
	}
	results, err := s.longterm.Search(ctx, &search)
	if err != nil {
		return s.toolError(ctx, "search_long_term_memory", err), nil
	}
	return jsonResult(results)
}

type createMemoriesArgs struct {
	Memories []*mnemo.MemoryRecord `json:"memories"`
}

func (s *Server) handleCreateLongTerm(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args createMemoriesArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(args.Memories) == 0 {
		return mcp.NewToolResultError("memories must not be empty"), nil
	}
	persisted, err := s.longterm.Index(ctx, args.Memories, true)
	if err != nil {
		return s.toolError(ctx, "create_long_term_memories", err), nil
	}
	return jsonResult(map[string]any{"status": "ok", "memories": persisted})
}

func (s *Server) handleMemoryPrompt(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args hydrate.Request
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	resp, err := s.hydrator.Hydrate(ctx, &args)
	if err != nil {
		return s.toolError(ctx, "memory_prompt", err), nil
	}
	return jsonResult(resp)
}

// toolError maps service errors to MCP tool errors. Unexpected kinds are
// logged; input and lookup failures are just reported to the caller.
func (s *Server) toolError(ctx context.Context, tool string, err error) *mcp.CallToolResult {
	switch mnemo.ErrorKind(err) {
	case mnemo.KindNotFound, mnemo.KindInvalidInput, mnemo.KindConflict:
	default:
		s.logger.Error("tool call failed", "tool", tool, "error", err)
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
