// Package localvec is an in-process vector store using cosine distance.
// It backs development, tests, and single-instance deployments; production
// setups point the engine at redisvec instead.
package localvec

import (
	"context"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/vectorstore"
)

type entry struct {
	record *mnemo.MemoryRecord
	vector []float64
}

// Store is an in-memory vectorstore.Adapter.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

var _ vectorstore.Adapter = &Store{}

// New returns an empty store.
func New() *Store {
	return &Store{entries: make(map[string]*entry)}
}

func (s *Store) Index(ctx context.Context, docs []vectorstore.Doc) ([]*mnemo.MemoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	persisted := make([]*mnemo.MemoryRecord, 0, len(docs))
	for _, doc := range docs {
		record := doc.Record.Copy()
		if record.PersistedAt == nil || now.After(*record.PersistedAt) {
			t := now
			record.PersistedAt = &t
		}
		s.entries[record.ID] = &entry{
			record: record,
			vector: toFloat64(doc.Vector),
		}
		persisted = append(persisted, record.Copy())
	}
	return persisted, nil
}

func (s *Store) Update(ctx context.Context, docs []vectorstore.Doc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, doc := range docs {
		existing, ok := s.entries[doc.Record.ID]
		if !ok {
			continue
		}
		vectorstore.ApplyUpdate(existing.record, doc.Record)
		if doc.Vector != nil {
			existing.vector = toFloat64(doc.Vector)
		}
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			count++
		}
	}
	return count, nil
}

func (s *Store) GetByID(ctx context.Context, ids []string) ([]*mnemo.MemoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]*mnemo.MemoryRecord, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			records = append(records, e.record.Copy())
		}
	}
	return records, nil
}

func (s *Store) Count(ctx context.Context, filters *mnemo.Filters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, e := range s.entries {
		if filters.Match(e.record) {
			count++
		}
	}
	return count, nil
}

func (s *Store) Search(ctx context.Context, query *vectorstore.Query) (*mnemo.MemoryRecordResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var hits []mnemo.MemoryRecordResult
	for _, e := range s.entries {
		if !query.Filters.Match(e.record) {
			continue
		}
		dist := 0.0
		if query.Vector != nil && e.vector != nil {
			dist = cosineDistance(toFloat64(query.Vector), e.vector)
		}
		if query.DistanceThreshold != nil && dist > *query.DistanceThreshold {
			continue
		}
		hits = append(hits, mnemo.MemoryRecordResult{
			MemoryRecord: *e.record.Copy(),
			Dist:         dist,
		})
	}

	// Ascending by distance, stable by ID on ties.
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Dist != hits[j].Dist {
			return hits[i].Dist < hits[j].Dist
		}
		return hits[i].ID < hits[j].ID
	})

	total := len(hits)
	if query.Offset > 0 {
		if query.Offset < len(hits) {
			hits = hits[query.Offset:]
		} else {
			hits = nil
		}
	}
	limit := query.Limit
	if limit <= 0 {
		limit = mnemo.DefaultSearchLimit
	}
	var nextOffset *int
	if limit < len(hits) {
		hits = hits[:limit]
		n := query.Offset + limit
		nextOffset = &n
	}

	return &mnemo.MemoryRecordResults{
		Memories:   hits,
		Total:      total,
		NextOffset: nextOffset,
	}, nil
}

// cosineDistance is 1 - cosine similarity, in [0, 2].
func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	dot := floats.Dot(a, b)
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 2
	}
	return 1 - dot/(na*nb)
}

func toFloat64(v []float32) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
