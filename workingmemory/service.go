package workingmemory

import (
	"context"
	"fmt"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/summarize"
	"github.com/mnemo-ai/mnemo/tasks"
	"github.com/mnemo-ai/mnemo/tokens"
)

// DefaultWindowSize bounds the message window before summarization kicks in.
const DefaultWindowSize = 20

// Indexer promotes records into long-term memory. Implemented by the
// longterm engine.
type Indexer interface {
	Index(ctx context.Context, records []*mnemo.MemoryRecord, deduplicate bool) ([]*mnemo.MemoryRecord, error)
}

// Service wraps a Store with the write-path triggers: pending-memory dedupe,
// overflow summarization, and promotion of unpersisted items to long-term
// memory.
type Service struct {
	store      Store
	summarizer *summarize.Summarizer
	counter    *tokens.Counter
	runner     *tasks.Runner
	indexer    Indexer
	windowSize int
	now        func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithWindowSize overrides the default message window.
func WithWindowSize(w int) ServiceOption {
	return func(s *Service) { s.windowSize = w }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService wires the store to its collaborators. runner and indexer may be
// nil, which disables background scheduling (useful in tests exercising only
// storage semantics).
func NewService(store Store, summarizer *summarize.Summarizer, counter *tokens.Counter, runner *tasks.Runner, indexer Indexer, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		summarizer: summarizer,
		counter:    counter,
		runner:     runner,
		indexer:    indexer,
		windowSize: DefaultWindowSize,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params carries the per-request model settings used for token accounting.
type Params struct {
	ModelName        string
	ContextWindowMax int

	// WindowSize overrides the service default when positive.
	WindowSize int
}

func (s *Service) window(p Params) int {
	if p.WindowSize > 0 {
		return p.WindowSize
	}
	return s.windowSize
}

// Get fetches a session's working memory.
func (s *Service) Get(ctx context.Context, namespace, sessionID string, p Params) (*mnemo.WorkingMemoryResponse, error) {
	wm, err := s.store.Get(ctx, namespace, sessionID)
	if err != nil {
		return nil, err
	}
	return s.respond(wm, p), nil
}

// Put writes a session's working memory, applying the write-path triggers in
// order: dedupe pending memories by id (last wins), summarize on window
// overflow, then schedule promotion of unpersisted items and stamp them so
// repeated writes do not double-schedule. Items are stamped only when the
// promotion task was actually accepted; a dropped enqueue leaves them
// unpersisted so the next write re-schedules them. Storage errors are
// returned; scheduling failures are logged only.
func (s *Service) Put(ctx context.Context, wm *mnemo.WorkingMemory, p Params) (*mnemo.WorkingMemoryResponse, error) {
	logger := slogger.Ctx(ctx)
	now := s.now().UTC()
	wm = wm.Copy()

	if wm.CreatedAt.IsZero() {
		wm.CreatedAt = now
	}
	wm.UpdatedAt = now
	wm.LastAccessed = now
	for i := range wm.Messages {
		if wm.Messages[i].ID == "" {
			wm.Messages[i].ID = mnemo.NewID()
		}
	}

	wm.Memories = dedupePending(wm.Memories)

	window := s.window(p)
	if s.summarizer != nil && len(wm.Messages) > window {
		result, err := s.summarizer.Summarize(ctx, summarize.Params{
			Messages:         wm.Messages,
			Context:          wm.Context,
			ModelName:        p.ModelName,
			ContextWindowMax: p.ContextWindowMax,
			WindowSize:       window,
		})
		if err != nil {
			logger.Warn("inline summarization failed", "session_id", wm.SessionID, "error", err)
		} else if result.Summarized {
			wm.Messages = result.Messages
			wm.Context = result.Context
		}
		s.scheduleSummarize(wm.Namespace, wm.SessionID, p)
	}

	promo := s.collectPromotable(wm, now)
	if len(promo.records) > 0 {
		if s.scheduleIndex(wm.SessionID, promo.records) {
			promo.stamp(wm, now)
		} else {
			logger.Warn("promotion not scheduled, items stay unpersisted",
				"session_id", wm.SessionID, "records", len(promo.records))
		}
	}

	wm.Tokens = s.countTokens(p.ModelName, wm)

	stored, err := s.store.Put(ctx, wm)
	if err != nil {
		return nil, err
	}
	return s.respond(stored, p), nil
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, namespace, sessionID string) error {
	return s.store.Delete(ctx, namespace, sessionID)
}

// List pages session IDs in a namespace.
func (s *Service) List(ctx context.Context, namespace string, limit, offset int) (*mnemo.SessionListResponse, error) {
	if limit <= 0 {
		limit = mnemo.DefaultSearchLimit
	}
	if offset < 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "offset must be non-negative, got %d", offset)
	}
	ids, total, err := s.store.List(ctx, namespace, limit, offset)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return &mnemo.SessionListResponse{Sessions: ids, Total: total}, nil
}

// promotion holds the long-term records built from unpersisted items plus
// the item positions to stamp once the index task has been accepted.
type promotion struct {
	records     []*mnemo.MemoryRecord
	memoryIdxs  []int
	messageIdxs []int
}

// stamp marks the promoted items persisted. Called only after scheduling
// succeeded so a dropped task never loses records.
func (p promotion) stamp(wm *mnemo.WorkingMemory, now time.Time) {
	for _, i := range p.memoryIdxs {
		t := now
		wm.Memories[i].PersistedAt = &t
	}
	for _, i := range p.messageIdxs {
		t := now
		wm.Messages[i].PersistedAt = &t
	}
}

// collectPromotable gathers unpersisted pending memories and messages as
// long-term records. It assigns missing record IDs but leaves persisted_at
// alone; the caller stamps after scheduling.
func (s *Service) collectPromotable(wm *mnemo.WorkingMemory, now time.Time) promotion {
	var promo promotion
	if s.runner == nil || s.indexer == nil {
		return promo
	}

	for i := range wm.Memories {
		if wm.Memories[i].PersistedAt != nil {
			continue
		}
		record := wm.Memories[i].Copy()
		if record.ID == "" {
			record.ID = mnemo.NewID()
			wm.Memories[i].ID = record.ID
		}
		if record.SessionID == "" {
			record.SessionID = wm.SessionID
		}
		if record.UserID == "" {
			record.UserID = wm.UserID
		}
		if record.Namespace == "" {
			record.Namespace = wm.Namespace
		}
		if record.CreatedAt.IsZero() {
			record.CreatedAt = now
		}
		record.UpdatedAt = now
		if record.LastAccessed.IsZero() {
			record.LastAccessed = now
		}
		promo.records = append(promo.records, record)
		promo.memoryIdxs = append(promo.memoryIdxs, i)
	}

	for i := range wm.Messages {
		if wm.Messages[i].PersistedAt != nil {
			continue
		}
		msg := wm.Messages[i]
		dme := msg.DiscreteMemoryExtracted
		if dme == "" {
			dme = mnemo.TriFalse
		}
		promo.records = append(promo.records, &mnemo.MemoryRecord{
			ID:                      msg.ID,
			Text:                    msg.Content,
			MemoryType:              mnemo.MemoryTypeMessage,
			SessionID:               wm.SessionID,
			UserID:                  wm.UserID,
			Namespace:               wm.Namespace,
			CreatedAt:               now,
			UpdatedAt:               now,
			LastAccessed:            now,
			DiscreteMemoryExtracted: dme,
		})
		promo.messageIdxs = append(promo.messageIdxs, i)
	}
	return promo
}

func (s *Service) scheduleSummarize(namespace, sessionID string, p Params) {
	if s.runner == nil {
		return
	}
	s.runner.Enqueue(&tasks.Task{
		Name: "summarize",
		Key:  "summarize/" + namespace + "\x00" + sessionID,
		Run: func(ctx context.Context) error {
			return s.resummarize(ctx, namespace, sessionID, p)
		},
	})
}

// resummarize re-reads the stored session and applies the token-threshold
// summarization pass. Safe to re-run; a no-op when under budget.
func (s *Service) resummarize(ctx context.Context, namespace, sessionID string, p Params) error {
	wm, err := s.store.Get(ctx, namespace, sessionID)
	if err != nil {
		if mnemo.ErrorKind(err) == mnemo.KindNotFound {
			return nil
		}
		return err
	}
	result, err := s.summarizer.Summarize(ctx, summarize.Params{
		Messages:         wm.Messages,
		Context:          wm.Context,
		ModelName:        p.ModelName,
		ContextWindowMax: p.ContextWindowMax,
		WindowSize:       s.window(p),
	})
	if err != nil || !result.Summarized {
		return err
	}
	wm.Messages = result.Messages
	wm.Context = result.Context
	wm.Tokens = result.Tokens
	_, err = s.store.Put(ctx, wm)
	if mnemo.ErrorKind(err) == mnemo.KindConflict {
		// A client wrote meanwhile; the next put re-triggers.
		return nil
	}
	return err
}

func (s *Service) scheduleIndex(sessionID string, records []*mnemo.MemoryRecord) bool {
	return s.runner.Enqueue(&tasks.Task{
		Name: "promote",
		Run: func(ctx context.Context) error {
			_, err := s.indexer.Index(ctx, records, true)
			if err != nil {
				return fmt.Errorf("promoting %d records from session %s: %w", len(records), sessionID, err)
			}
			return nil
		},
	})
}

// dedupePending collapses pending memories sharing an id, last wins.
// Records without an id are kept as-is.
func dedupePending(memories []mnemo.MemoryRecord) []mnemo.MemoryRecord {
	if len(memories) < 2 {
		return memories
	}
	last := make(map[string]int, len(memories))
	for i := range memories {
		if memories[i].ID != "" {
			last[memories[i].ID] = i
		}
	}
	out := memories[:0]
	for i := range memories {
		if memories[i].ID != "" && last[memories[i].ID] != i {
			continue
		}
		out = append(out, memories[i])
	}
	return out
}

func (s *Service) countTokens(model string, wm *mnemo.WorkingMemory) int {
	if s.counter == nil {
		return wm.Tokens
	}
	total := s.counter.Count(model, wm.Context)
	for _, m := range wm.Messages {
		total += s.counter.Count(model, m.Content)
	}
	return total
}

func (s *Service) respond(wm *mnemo.WorkingMemory, p Params) *mnemo.WorkingMemoryResponse {
	resp := &mnemo.WorkingMemoryResponse{WorkingMemory: *wm}
	window := p.ContextWindowMax
	if window <= 0 {
		window = tokens.ContextWindow(p.ModelName)
	}
	if window > 0 {
		resp.ContextPercentageTotalUsed = 100 * float64(wm.Tokens) / float64(window)
		threshold := float64(window) * summarize.DefaultThresholdRatio
		ratio := float64(wm.Tokens) / threshold
		if ratio > 1 {
			ratio = 1
		}
		resp.ContextPercentageUntilSummarization = 100 * ratio
	}
	return resp
}
