// Package longterm is the long-term memory engine. It orchestrates the
// vector store, the deduplicator, the extractor, and the re-ranker: records
// flow through hashing, exact and semantic dedup, and tagging before they are
// indexed; searches flow through embedding, filtered KNN, and recency
// re-ranking.
package longterm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/dedup"
	"github.com/mnemo-ai/mnemo/extract"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/rerank"
	"github.com/mnemo-ai/mnemo/slogger"
	"github.com/mnemo-ai/mnemo/tasks"
	"github.com/mnemo-ai/mnemo/vectorstore"
)

const (
	// DefaultSemanticDupThreshold is the max vector distance at which two
	// records are considered near-duplicate candidates.
	DefaultSemanticDupThreshold = 0.12

	// DefaultRecencyOverfetch is how many extra candidates are fetched
	// before re-ranking.
	DefaultRecencyOverfetch = 20

	// touchInterval rate-limits access bumps per record.
	touchInterval = time.Minute

	// backlogPageSize is how many unextracted messages one sweep pass
	// processes.
	backlogPageSize = 25
)

// Engine implements indexing, search, edit, and delete over an adapter.
type Engine struct {
	adapter   vectorstore.Adapter
	embedder  llm.Client
	judge     *dedup.SemanticJudge
	extractor *extract.Extractor
	runner    *tasks.Runner

	dupThreshold float64
	overfetch    int
	now          func() time.Time

	lastTouch sync.Map // record id -> time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSemanticJudge enables LLM-confirmed semantic dedup.
func WithSemanticJudge(j *dedup.SemanticJudge) Option {
	return func(e *Engine) { e.judge = j }
}

// WithExtractor enables tagging and discrete extraction.
func WithExtractor(x *extract.Extractor) Option {
	return func(e *Engine) { e.extractor = x }
}

// WithRunner enables background extraction and access touches.
func WithRunner(r *tasks.Runner) Option {
	return func(e *Engine) { e.runner = r }
}

// WithSemanticDupThreshold overrides the near-duplicate distance bound.
func WithSemanticDupThreshold(d float64) Option {
	return func(e *Engine) { e.dupThreshold = d }
}

// WithRecencyOverfetch overrides the re-rank candidate surplus.
func WithRecencyOverfetch(n int) Option {
	return func(e *Engine) { e.overfetch = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine. The embedder must support embedding.
func New(adapter vectorstore.Adapter, embedder llm.Client, opts ...Option) (*Engine, error) {
	if !embedder.SupportsEmbedding() {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput,
			"provider %q does not support embedding", embedder.Name())
	}
	e := &Engine{
		adapter:      adapter,
		embedder:     embedder,
		dupThreshold: DefaultSemanticDupThreshold,
		overfetch:    DefaultRecencyOverfetch,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Index runs each record through the index pipeline: id and hash assignment,
// exact and semantic dedup, tagging, adapter indexing, and extraction
// scheduling for message records. Returns the records as persisted, with
// merge survivors replacing their duplicate inputs.
func (e *Engine) Index(ctx context.Context, records []*mnemo.MemoryRecord, deduplicate bool) ([]*mnemo.MemoryRecord, error) {
	persisted := make([]*mnemo.MemoryRecord, 0, len(records))
	for _, record := range records {
		out, err := e.indexOne(ctx, record, deduplicate)
		if err != nil {
			return persisted, err
		}
		persisted = append(persisted, out)
	}
	return persisted, nil
}

func (e *Engine) indexOne(ctx context.Context, record *mnemo.MemoryRecord, deduplicate bool) (*mnemo.MemoryRecord, error) {
	logger := slogger.Ctx(ctx)
	now := e.now().UTC()

	record = record.Copy()
	if record.Text == "" {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "memory record requires text")
	}
	if record.ID == "" {
		record.ID = mnemo.NewID()
	}
	if record.MemoryType == "" {
		record.MemoryType = mnemo.MemoryTypeMessage
	}
	if !record.MemoryType.Valid() {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "unknown memory type %q", record.MemoryType)
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.UpdatedAt.IsZero() || record.UpdatedAt.Before(record.CreatedAt) {
		record.UpdatedAt = now
	}
	if record.LastAccessed.IsZero() {
		record.LastAccessed = record.CreatedAt
	}
	if record.AccessCount == 0 {
		record.AccessCount = 1
	}
	record.MemoryHash = dedup.HashRecord(record)

	if deduplicate {
		if survivor, merged, err := e.mergeExact(ctx, record); err != nil {
			return nil, err
		} else if merged {
			return survivor, nil
		}
	}

	vector, err := e.embed(ctx, record.Text)
	if err != nil {
		return nil, err
	}

	if deduplicate && e.judge != nil {
		if survivor, merged := e.mergeSemantic(ctx, record, vector); merged {
			return survivor, nil
		}
	}

	if e.extractor != nil && len(record.Topics) == 0 && len(record.Entities) == 0 {
		topics, entities, err := e.extractor.HandleExtraction(ctx, record.Text)
		if err != nil {
			logger.Warn("tagging failed", "record_id", record.ID, "error", err)
		} else {
			record.Topics = topics
			record.Entities = entities
		}
	}

	stored, err := e.adapter.Index(ctx, []vectorstore.Doc{{Record: record, Vector: vector}})
	if err != nil {
		return nil, err
	}
	record = stored[0]

	if record.MemoryType == mnemo.MemoryTypeMessage && record.DiscreteMemoryExtracted != mnemo.TriTrue {
		e.scheduleExtraction(record.ID)
	}
	return record, nil
}

// mergeExact folds the record into an existing one sharing its hash.
func (e *Engine) mergeExact(ctx context.Context, record *mnemo.MemoryRecord) (*mnemo.MemoryRecord, bool, error) {
	results, err := e.adapter.Search(ctx, &vectorstore.Query{
		Filters: mnemo.Filters{MemoryHash: &mnemo.StringFilter{Eq: record.MemoryHash}},
		Limit:   1,
	})
	if err != nil {
		return nil, false, err
	}
	if len(results.Memories) == 0 {
		return nil, false, nil
	}
	existing := &results.Memories[0].MemoryRecord
	merged := dedup.MergeExact(existing, record)
	if err := e.adapter.Update(ctx, []vectorstore.Doc{{Record: merged}}); err != nil {
		return nil, false, err
	}
	return merged, true, nil
}

// mergeSemantic looks for a near-duplicate in the record's scope and asks
// the judge. Judge failures fall back to independent indexing.
func (e *Engine) mergeSemantic(ctx context.Context, record *mnemo.MemoryRecord, vector []float32) (*mnemo.MemoryRecord, bool) {
	logger := slogger.Ctx(ctx)

	threshold := e.dupThreshold
	filters := mnemo.Filters{}
	if record.Namespace != "" {
		filters.Namespace = &mnemo.StringFilter{Eq: record.Namespace}
	}
	if record.UserID != "" {
		filters.UserID = &mnemo.StringFilter{Eq: record.UserID}
	}
	results, err := e.adapter.Search(ctx, &vectorstore.Query{
		Vector:            vector,
		Filters:           filters,
		DistanceThreshold: &threshold,
		Limit:             1,
	})
	if err != nil || len(results.Memories) == 0 {
		if err != nil {
			logger.Warn("semantic dedup search failed", "error", err)
		}
		return nil, false
	}
	existing := &results.Memories[0].MemoryRecord

	judgment, err := e.judge.Judge(ctx, existing, record)
	if err != nil {
		logger.Warn("duplicate judgment failed, indexing independently", "error", err)
		return nil, false
	}
	if !judgment.Duplicate {
		return nil, false
	}

	merged := dedup.MergeSemantic(existing, record, judgment.MergedText, e.now().UTC())
	mergedVector, err := e.embed(ctx, merged.Text)
	if err != nil {
		logger.Warn("embedding merged text failed, indexing independently", "error", err)
		return nil, false
	}
	if _, err := e.adapter.Delete(ctx, []string{existing.ID}); err != nil {
		logger.Warn("deleting merge loser failed", "record_id", existing.ID, "error", err)
	}
	stored, err := e.adapter.Index(ctx, []vectorstore.Doc{{Record: merged, Vector: mergedVector}})
	if err != nil {
		logger.Error("indexing merged record failed", "error", err)
		return nil, false
	}
	return stored[0], true
}

// Search embeds the query text, fetches candidates with filters, applies
// recency re-ranking unless disabled, and schedules best-effort access
// touches on the returned records.
func (e *Engine) Search(ctx context.Context, req *mnemo.SearchRequest) (*mnemo.MemoryRecordResults, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var vector []float32
	if req.Text != "" {
		v, err := e.embed(ctx, req.Text)
		if err != nil {
			return nil, err
		}
		vector = v
	}

	boost := req.Boost == nil || *req.Boost
	query := &vectorstore.Query{
		Vector:            vector,
		Filters:           req.Filters,
		DistanceThreshold: req.DistanceThreshold,
		Limit:             req.Limit,
		Offset:            req.Offset,
	}
	if boost && vector != nil {
		// Re-ranking reorders across page boundaries, so fetch the whole
		// prefix and page locally.
		query.Limit = req.Offset + req.Limit + e.overfetch
		query.Offset = 0
	}

	results, err := e.adapter.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	if boost && vector != nil {
		rerank.Rerank(results.Memories, e.now().UTC(), rerank.FromQuery(&req.RecencyOptions))
		results.Memories = page(results.Memories, req.Offset, req.Limit)
		results.NextOffset = nil
		if req.Offset+len(results.Memories) < results.Total {
			n := req.Offset + len(results.Memories)
			results.NextOffset = &n
		}
	}

	e.scheduleTouch(results.Memories)
	return results, nil
}

// Delete removes records by id.
func (e *Engine) Delete(ctx context.Context, ids []string) (int, error) {
	return e.adapter.Delete(ctx, ids)
}

// Get fetches records by id.
func (e *Engine) Get(ctx context.Context, ids []string) ([]*mnemo.MemoryRecord, error) {
	return e.adapter.GetByID(ctx, ids)
}

// Count returns how many records match the filters.
func (e *Engine) Count(ctx context.Context, filters *mnemo.Filters) (int, error) {
	return e.adapter.Count(ctx, filters)
}

// Edit applies a partial update to a record. A text change recomputes the
// hash and embedding.
func (e *Engine) Edit(ctx context.Context, id string, patch *mnemo.MemoryRecord) (*mnemo.MemoryRecord, error) {
	existing, err := e.adapter.GetByID(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(existing) == 0 {
		return nil, mnemo.Errorf(mnemo.KindNotFound, "memory %s: %w", id, mnemo.ErrNotFound)
	}

	updated := existing[0].Copy()
	patch = patch.Copy()
	patch.ID = ""
	vectorstore.ApplyUpdate(updated, patch)
	updated.UpdatedAt = e.now().UTC()

	var vector []float32
	if updated.Text != existing[0].Text {
		updated.MemoryHash = dedup.HashRecord(updated)
		vector, err = e.embed(ctx, updated.Text)
		if err != nil {
			return nil, err
		}
	}
	patchDoc := updated.Copy()
	patchDoc.ID = id
	if err := e.adapter.Update(ctx, []vectorstore.Doc{{Record: patchDoc, Vector: vector}}); err != nil {
		return nil, err
	}
	return updated, nil
}

// ExtractBacklog sweeps message records that discrete extraction has not
// processed yet, a page at a time, and extracts them. Stops when the backlog
// is drained or the context is cancelled.
func (e *Engine) ExtractBacklog(ctx context.Context) error {
	if e.extractor == nil {
		return nil
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		results, err := e.adapter.Search(ctx, &vectorstore.Query{
			Filters: mnemo.Filters{
				MemoryType:              &mnemo.MemoryTypeFilter{Eq: mnemo.MemoryTypeMessage},
				DiscreteMemoryExtracted: &mnemo.TriStateFilter{Eq: mnemo.TriFalse},
			},
			Limit: backlogPageSize,
		})
		if err != nil {
			return err
		}
		if len(results.Memories) == 0 {
			return nil
		}
		for i := range results.Memories {
			if err := e.extractRecord(ctx, &results.Memories[i].MemoryRecord); err != nil {
				return err
			}
		}
	}
}

// extractRecord runs discrete extraction for one message record, indexes the
// derived memories, and marks the source extracted.
func (e *Engine) extractRecord(ctx context.Context, source *mnemo.MemoryRecord) error {
	derived, err := e.extractor.ExtractDiscrete(ctx, source)
	if err != nil {
		return err
	}
	if _, err := e.Index(ctx, derived, true); err != nil {
		return err
	}
	return e.adapter.Update(ctx, []vectorstore.Doc{{Record: &mnemo.MemoryRecord{
		ID:                      source.ID,
		UpdatedAt:               e.now().UTC(),
		DiscreteMemoryExtracted: mnemo.TriTrue,
	}}})
}

func (e *Engine) scheduleExtraction(recordID string) {
	if e.runner == nil || e.extractor == nil {
		return
	}
	e.runner.Enqueue(&tasks.Task{
		Name: "extract",
		Key:  "extract/" + recordID,
		Run: func(ctx context.Context) error {
			records, err := e.adapter.GetByID(ctx, []string{recordID})
			if err != nil {
				return err
			}
			if len(records) == 0 || records[0].DiscreteMemoryExtracted == mnemo.TriTrue {
				return nil
			}
			return e.extractRecord(ctx, records[0])
		},
	})
}

// scheduleTouch bumps last_accessed and access_count on returned records,
// best-effort and rate-limited to once per minute per record.
func (e *Engine) scheduleTouch(results []mnemo.MemoryRecordResult) {
	if e.runner == nil {
		return
	}
	now := e.now()
	var ids []string
	for i := range results {
		id := results[i].ID
		if last, ok := e.lastTouch.Load(id); ok && now.Sub(last.(time.Time)) < touchInterval {
			continue
		}
		e.lastTouch.Store(id, now)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return
	}
	e.runner.Enqueue(&tasks.Task{
		Name: "touch",
		Run: func(ctx context.Context) error {
			records, err := e.adapter.GetByID(ctx, ids)
			if err != nil {
				return err
			}
			docs := make([]vectorstore.Doc, 0, len(records))
			touchedAt := e.now().UTC()
			for _, r := range records {
				docs = append(docs, vectorstore.Doc{Record: &mnemo.MemoryRecord{
					ID:           r.ID,
					LastAccessed: touchedAt,
					AccessCount:  r.AccessCount + 1,
				}})
			}
			return e.adapter.Update(ctx, docs)
		},
	})
}

func (e *Engine) embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vectors) == 0 {
		return nil, mnemo.Errorf(mnemo.KindFatal, "embedder returned no vectors")
	}
	return vectors[0], nil
}

func page(results []mnemo.MemoryRecordResult, offset, limit int) []mnemo.MemoryRecordResult {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	return results
}
