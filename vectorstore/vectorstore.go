// Package vectorstore defines the storage capability behind long-term
// memory: vector indexing plus filtered search. Any backend implementing
// Adapter is acceptable; localvec provides an in-process implementation and
// redisvec a RediSearch-backed one.
package vectorstore

import (
	"context"

	"github.com/mnemo-ai/mnemo"
)

// Doc pairs a memory record with its embedding vector. A nil vector on
// update leaves the stored vector untouched.
type Doc struct {
	Record *mnemo.MemoryRecord
	Vector []float32
}

// Query describes a search against the store. A nil Vector performs a pure
// filter scan ordered by record ID.
type Query struct {
	Vector []float32

	Filters mnemo.Filters

	// DistanceThreshold drops candidates farther than this, when set.
	DistanceThreshold *float64

	Limit  int
	Offset int
}

// Adapter is the single mutator of long-term memory state.
//
// Search results are ordered ascending by distance, stable by record ID on
// ties, with dist in [0, 2] (cosine distance; smaller is closer).
type Adapter interface {
	// Index stores docs and stamps PersistedAt on each record.
	// Idempotent by record ID: re-indexing an ID overwrites it.
	Index(ctx context.Context, docs []Doc) ([]*mnemo.MemoryRecord, error)

	// Update applies partial updates by record ID. Zero-valued fields on
	// the incoming record are left alone; a non-nil vector replaces the
	// stored embedding.
	Update(ctx context.Context, docs []Doc) error

	// Delete removes records by ID, returning how many existed.
	Delete(ctx context.Context, ids []string) (int, error)

	// Search returns a page of matches.
	Search(ctx context.Context, query *Query) (*mnemo.MemoryRecordResults, error)

	// GetByID fetches records by ID. Missing IDs are skipped.
	GetByID(ctx context.Context, ids []string) ([]*mnemo.MemoryRecord, error)

	// Count returns the number of records matching the filters.
	Count(ctx context.Context, filters *mnemo.Filters) (int, error)
}

// ApplyUpdate merges the non-zero fields of patch into dst, following the
// partial-update contract shared by adapters.
func ApplyUpdate(dst, patch *mnemo.MemoryRecord) {
	if patch.Text != "" {
		dst.Text = patch.Text
	}
	if patch.MemoryType != "" {
		dst.MemoryType = patch.MemoryType
	}
	if patch.Topics != nil {
		dst.Topics = append([]string(nil), patch.Topics...)
	}
	if patch.Entities != nil {
		dst.Entities = append([]string(nil), patch.Entities...)
	}
	if patch.SessionID != "" {
		dst.SessionID = patch.SessionID
	}
	if patch.UserID != "" {
		dst.UserID = patch.UserID
	}
	if patch.Namespace != "" {
		dst.Namespace = patch.Namespace
	}
	if !patch.CreatedAt.IsZero() {
		dst.CreatedAt = patch.CreatedAt
	}
	if !patch.UpdatedAt.IsZero() {
		dst.UpdatedAt = patch.UpdatedAt
	}
	if !patch.LastAccessed.IsZero() {
		dst.LastAccessed = patch.LastAccessed
	}
	if patch.EventDate != nil {
		d := *patch.EventDate
		dst.EventDate = &d
	}
	if patch.Pinned {
		dst.Pinned = true
	}
	if patch.AccessCount != 0 {
		dst.AccessCount = patch.AccessCount
	}
	if patch.MemoryHash != "" {
		dst.MemoryHash = patch.MemoryHash
	}
	if patch.ExtractedFrom != nil {
		dst.ExtractedFrom = append([]string(nil), patch.ExtractedFrom...)
	}
	if patch.DiscreteMemoryExtracted != "" {
		dst.DiscreteMemoryExtracted = patch.DiscreteMemoryExtracted
	}
	if patch.PersistedAt != nil {
		// PersistedAt is monotonic once set.
		if dst.PersistedAt == nil || patch.PersistedAt.After(*dst.PersistedAt) {
			p := *patch.PersistedAt
			dst.PersistedAt = &p
		}
	}
}
