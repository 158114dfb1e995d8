// Package server exposes the memory service over HTTP. Handlers translate
// JSON payloads to service calls and error kinds to status codes; background
// work is enqueued, never awaited.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/hydrate"
	"github.com/mnemo-ai/mnemo/retry"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/tasks"
	"github.com/mnemo-ai/mnemo/workingmemory"
)

// Sessions is the working-memory surface the server needs.
type Sessions interface {
	Get(ctx context.Context, namespace, sessionID string, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error)
	Put(ctx context.Context, wm *mnemo.WorkingMemory, p workingmemory.Params) (*mnemo.WorkingMemoryResponse, error)
	Delete(ctx context.Context, namespace, sessionID string) error
	List(ctx context.Context, namespace string, limit, offset int) (*mnemo.SessionListResponse, error)
}

// LongTerm is the long-term memory surface the server needs.
type LongTerm interface {
	Index(ctx context.Context, records []*mnemo.MemoryRecord, deduplicate bool) ([]*mnemo.MemoryRecord, error)
	Search(ctx context.Context, req *mnemo.SearchRequest) (*mnemo.MemoryRecordResults, error)
	Delete(ctx context.Context, ids []string) (int, error)
	Edit(ctx context.Context, id string, patch *mnemo.MemoryRecord) (*mnemo.MemoryRecord, error)
}

// Hydrator builds memory prompts.
type Hydrator interface {
	Hydrate(ctx context.Context, req *hydrate.Request) (*hydrate.Response, error)
}

// Server holds the HTTP handlers.
type Server struct {
	sessions Sessions
	longterm LongTerm
	hydrator Hydrator
	runner   *tasks.Runner
	logger   slogger.Logger
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithRunner enables asynchronous indexing for long-term memory creation.
func WithRunner(r *tasks.Runner) Option {
	return func(s *Server) { s.runner = r }
}

// WithLogger sets the request logger.
func WithLogger(logger slogger.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New creates a Server.
func New(sessions Sessions, lt LongTerm, hydrator Hydrator, opts ...Option) *Server {
	s := &Server{
		sessions: sessions,
		longterm: lt,
		hydrator: hydrator,
		logger:   slogger.DefaultLogger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /sessions/", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}/memory", s.handleGetWorkingMemory)
	mux.HandleFunc("PUT /sessions/{id}/memory", s.handlePutWorkingMemory)
	mux.HandleFunc("DELETE /sessions/{id}/memory", s.handleDeleteWorkingMemory)
	mux.HandleFunc("POST /long-term-memory", s.handleCreateLongTerm)
	mux.HandleFunc("DELETE /long-term-memory", s.handleDeleteLongTerm)
	mux.HandleFunc("PATCH /long-term-memory/{id}", s.handleEditLongTerm)
	mux.HandleFunc("POST /long-term-memory/search", s.handleSearchLongTerm)
	mux.HandleFunc("POST /memory/search", s.handleUnionSearch)
	mux.HandleFunc("POST /memory-prompt", s.handleMemoryPrompt)
	return s.withLogging(mux)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogger.WithLogger(r.Context(), s.logger)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("request handled",
			"method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mnemo.HealthCheckResponse{Now: s.now().UnixMilli()})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(q.Get("limit"), mnemo.DefaultSearchLimit)
	offset := queryInt(q.Get("offset"), 0)
	namespace := q.Get("namespace")

	if userID := q.Get("user_id"); userID != "" {
		resp, err := s.listSessionsForUser(r, namespace, userID, limit, offset)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp, err := s.sessions.List(r.Context(), namespace, limit, offset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listSessionsForUser filters sessions by owner. The session index is keyed
// by namespace only, so the owner check reads each candidate session and
// pages the filtered set locally.
func (s *Server) listSessionsForUser(r *http.Request, namespace, userID string, limit, offset int) (*mnemo.SessionListResponse, error) {
	if offset < 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "offset must be non-negative, got %d", offset)
	}
	matched := []string{}
	for pageOffset := 0; ; pageOffset += mnemo.MaxSearchLimit {
		listed, err := s.sessions.List(r.Context(), namespace, mnemo.MaxSearchLimit, pageOffset)
		if err != nil {
			return nil, err
		}
		for _, id := range listed.Sessions {
			wm, err := s.sessions.Get(r.Context(), namespace, id, workingmemory.Params{})
			if err != nil {
				continue
			}
			if wm.UserID == userID {
				matched = append(matched, id)
			}
		}
		if len(listed.Sessions) < mnemo.MaxSearchLimit || pageOffset+mnemo.MaxSearchLimit >= listed.Total {
			break
		}
	}
	total := len(matched)
	if offset >= len(matched) {
		matched = []string{}
	} else {
		matched = matched[offset:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return &mnemo.SessionListResponse{Sessions: matched, Total: total}, nil
}

func sessionParams(r *http.Request) workingmemory.Params {
	q := r.URL.Query()
	return workingmemory.Params{
		ModelName:        q.Get("model_name"),
		ContextWindowMax: queryInt(q.Get("context_window_max"), 0),
		WindowSize:       queryInt(q.Get("window_size"), 0),
	}
}

func (s *Server) handleGetWorkingMemory(w http.ResponseWriter, r *http.Request) {
	resp, err := s.sessions.Get(r.Context(), r.URL.Query().Get("namespace"), r.PathValue("id"), sessionParams(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutWorkingMemory(w http.ResponseWriter, r *http.Request) {
	var wm mnemo.WorkingMemory
	if err := readJSON(r, &wm); err != nil {
		s.writeError(w, r, err)
		return
	}
	wm.SessionID = r.PathValue("id")
	if ns := r.URL.Query().Get("namespace"); ns != "" {
		wm.Namespace = ns
	}
	resp, err := s.sessions.Put(r.Context(), &wm, sessionParams(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteWorkingMemory(w http.ResponseWriter, r *http.Request) {
	err := s.sessions.Delete(r.Context(), r.URL.Query().Get("namespace"), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mnemo.AckResponse{Status: "ok"})
}

type createLongTermRequest struct {
	Memories []*mnemo.MemoryRecord `json:"memories"`
}

func (s *Server) handleCreateLongTerm(w http.ResponseWriter, r *http.Request) {
	var req createLongTermRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Memories) == 0 {
		s.writeError(w, r, mnemo.Errorf(mnemo.KindInvalidInput, "memories must not be empty"))
		return
	}
	for _, m := range req.Memories {
		if m.Text == "" {
			s.writeError(w, r, mnemo.Errorf(mnemo.KindInvalidInput, "memory record requires text"))
			return
		}
	}

	if s.runner != nil {
		records := req.Memories
		s.runner.Enqueue(&tasks.Task{
			Name: "index",
			Run: func(ctx context.Context) error {
				_, err := s.longterm.Index(ctx, records, true)
				return err
			},
		})
	} else if _, err := s.longterm.Index(r.Context(), req.Memories, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mnemo.AckResponse{Status: "ok"})
}

type deleteLongTermRequest struct {
	IDs []string `json:"ids"`
}

type deleteLongTermResponse struct {
	Status  string `json:"status"`
	Deleted int    `json:"deleted"`
}

func (s *Server) handleDeleteLongTerm(w http.ResponseWriter, r *http.Request) {
	var req deleteLongTermRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.IDs) == 0 {
		s.writeError(w, r, mnemo.Errorf(mnemo.KindInvalidInput, "ids must not be empty"))
		return
	}
	deleted, err := s.longterm.Delete(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteLongTermResponse{Status: "ok", Deleted: deleted})
}

func (s *Server) handleEditLongTerm(w http.ResponseWriter, r *http.Request) {
	var patch mnemo.MemoryRecord
	if err := readJSON(r, &patch); err != nil {
		s.writeError(w, r, err)
		return
	}
	updated, err := s.longterm.Edit(r.Context(), r.PathValue("id"), &patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleSearchLongTerm(w http.ResponseWriter, r *http.Request) {
	var req mnemo.SearchRequest
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.longterm.Search(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleMemoryPrompt(w http.ResponseWriter, r *http.Request) {
	var req hydrate.Request
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.hydrator.Hydrate(r.Context(), &req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HTTPStatus maps an error kind to a response status.
func HTTPStatus(err error) int {
	switch mnemo.ErrorKind(err) {
	case mnemo.KindNotFound:
		return http.StatusNotFound
	case mnemo.KindInvalidInput:
		return http.StatusBadRequest
	case mnemo.KindConflict:
		return http.StatusConflict
	case mnemo.KindTransient:
		var apiErr retry.APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode() == http.StatusTooManyRequests {
			return http.StatusTooManyRequests
		}
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Kind:  mnemo.ErrorKind(err).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return mnemo.WrapError(mnemo.KindInvalidInput, fmt.Errorf("decoding request body: %w", err))
	}
	return nil
}

func queryInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fallback
	}
	return n
}
