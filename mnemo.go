package mnemo

import (
	"time"
)

// MemoryType classifies a long-term memory record.
type MemoryType string

const (
	// MemoryTypeMessage is a verbatim conversation message promoted from
	// working memory. Message records are inputs to discrete extraction.
	MemoryTypeMessage MemoryType = "message"

	// MemoryTypeEpisodic is a personal experience tied to a user or agent,
	// e.g. "User had a bad experience in Paris in summer 2024".
	MemoryTypeEpisodic MemoryType = "episodic"

	// MemoryTypeSemantic is a preference or general fact, e.g.
	// "User prefers window seats".
	MemoryTypeSemantic MemoryType = "semantic"
)

// Valid reports whether t is one of the known memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryTypeMessage, MemoryTypeEpisodic, MemoryTypeSemantic:
		return true
	}
	return false
}

// TriState is a two-valued flag serialized as "t" or "f". The string form
// matches what the vector store indexes as a tag field.
type TriState string

const (
	TriTrue  TriState = "t"
	TriFalse TriState = "f"
)

// MemoryMessage is one turn in a conversation held in working memory.
type MemoryMessage struct {
	// ID uniquely identifies the message. Generated if absent.
	ID string `json:"id"`

	// Role is a free-form role string, typically "user", "assistant",
	// or "system".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`

	// PersistedAt is set by the server when the message reaches long-term
	// storage. A nil value means the message has not been promoted yet.
	PersistedAt *time.Time `json:"persisted_at,omitempty"`

	// DiscreteMemoryExtracted records whether discrete memory extraction
	// has processed this message.
	DiscreteMemoryExtracted TriState `json:"discrete_memory_extracted,omitempty"`
}

// MemoryRecord is a unit of long-term memory: a discrete fact, or a
// conversation message awaiting extraction.
type MemoryRecord struct {
	// ID is a stable identifier used for deduplication and overwrites.
	// Client-assigned IDs are honored; otherwise the server assigns a
	// lexicographically sortable one (see NewID).
	ID string `json:"id"`

	// Text is the memory content with contextual references grounded.
	Text string `json:"text"`

	// MemoryType classifies the record. Defaults to message.
	MemoryType MemoryType `json:"memory_type,omitempty"`

	// Topics and Entities are tag strings attached by extraction or the client.
	Topics   []string `json:"topics,omitempty"`
	Entities []string `json:"entities,omitempty"`

	// Scoping fields. Empty values mean unscoped.
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	Namespace string `json:"namespace,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastAccessed time.Time `json:"last_accessed"`

	// EventDate is the semantic date of the described event, primarily
	// for episodic memories.
	EventDate *time.Time `json:"event_date,omitempty"`

	// Pinned records are never auto-deleted.
	Pinned bool `json:"pinned,omitempty"`

	// AccessCount tracks reads, best-effort and rate-limited.
	AccessCount int `json:"access_count,omitempty"`

	// MemoryHash is the deterministic duplicate-detection fingerprint.
	// Computed during indexing; see the dedup package.
	MemoryHash string `json:"memory_hash,omitempty"`

	// ExtractedFrom lists the source message IDs this record was
	// extracted from.
	ExtractedFrom []string `json:"extracted_from,omitempty"`

	// DiscreteMemoryExtracted records whether discrete extraction has run
	// for this record. Only meaningful for message-type records.
	DiscreteMemoryExtracted TriState `json:"discrete_memory_extracted,omitempty"`

	// PersistedAt is set by the vector store when the record is durably
	// indexed. Monotonic once set.
	PersistedAt *time.Time `json:"persisted_at,omitempty"`
}

// Copy returns a deep copy of the record.
func (r *MemoryRecord) Copy() *MemoryRecord {
	cp := *r
	cp.Topics = append([]string(nil), r.Topics...)
	cp.Entities = append([]string(nil), r.Entities...)
	cp.ExtractedFrom = append([]string(nil), r.ExtractedFrom...)
	if r.EventDate != nil {
		d := *r.EventDate
		cp.EventDate = &d
	}
	if r.PersistedAt != nil {
		p := *r.PersistedAt
		cp.PersistedAt = &p
	}
	return &cp
}

// WorkingMemory is the per-session ephemeral state: recent messages, pending
// structured memories awaiting promotion, arbitrary client data, and the
// rolling summary of truncated history.
type WorkingMemory struct {
	SessionID string `json:"session_id"`
	Namespace string `json:"namespace,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// Messages is the bounded conversation window, oldest first.
	Messages []MemoryMessage `json:"messages"`

	// Memories are structured records pending promotion to long-term
	// storage. Records with a nil PersistedAt have not been scheduled.
	Memories []MemoryRecord `json:"memories,omitempty"`

	// Data is opaque client-defined state. The server stores it verbatim.
	Data map[string]any `json:"data,omitempty"`

	// Context is the rolling summary of messages summarized away from the
	// window. Empty until the first summarization.
	Context string `json:"context,omitempty"`

	// Tokens is the token count computed on the last write.
	Tokens int `json:"tokens,omitempty"`

	// TTLSeconds, when positive, expires the session after inactivity.
	TTLSeconds int `json:"ttl_seconds,omitempty"`

	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	LastAccessed time.Time `json:"last_accessed"`

	// Version is the optimistic-concurrency token. Writers echo back the
	// version they read; the store rejects the write with a conflict if
	// the stored version has moved. Zero skips the check.
	Version int64 `json:"version,omitempty"`
}

// Copy returns a deep copy of the working memory.
func (w *WorkingMemory) Copy() *WorkingMemory {
	cp := *w
	cp.Messages = append([]MemoryMessage(nil), w.Messages...)
	if w.Memories != nil {
		cp.Memories = make([]MemoryRecord, len(w.Memories))
		for i := range w.Memories {
			cp.Memories[i] = *w.Memories[i].Copy()
		}
	}
	if w.Data != nil {
		cp.Data = make(map[string]any, len(w.Data))
		for k, v := range w.Data {
			cp.Data[k] = v
		}
	}
	return &cp
}

// WorkingMemoryResponse is a WorkingMemory plus derived context-usage fields.
type WorkingMemoryResponse struct {
	WorkingMemory

	// ContextPercentageTotalUsed is the share of the model's context
	// window currently used, 0-100.
	ContextPercentageTotalUsed float64 `json:"context_percentage_total_used,omitempty"`

	// ContextPercentageUntilSummarization grows toward 100 as the session
	// approaches the auto-summarization threshold.
	ContextPercentageUntilSummarization float64 `json:"context_percentage_until_summarization,omitempty"`
}

// SessionListResponse is returned by the session listing endpoint.
type SessionListResponse struct {
	Sessions []string `json:"sessions"`
	Total    int      `json:"total"`
}

// AckResponse is a generic acknowledgement.
type AckResponse struct {
	Status string `json:"status"`
}

// HealthCheckResponse reports liveness with the server clock in epoch
// milliseconds.
type HealthCheckResponse struct {
	Now int64 `json:"now"`
}
