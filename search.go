package mnemo

// Default pagination bounds for search requests.
const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// RecencyOptions tunes recency-aware re-ranking on a per-query basis.
// Nil fields fall back to server defaults (see the rerank package).
type RecencyOptions struct {
	// Boost enables re-ranking. Defaults to enabled when nil.
	Boost *bool `json:"recency_boost,omitempty"`

	SemanticWeight  *float64 `json:"recency_semantic_weight,omitempty"`
	RecencyWeight   *float64 `json:"recency_recency_weight,omitempty"`
	FreshnessWeight *float64 `json:"recency_freshness_weight,omitempty"`
	NoveltyWeight   *float64 `json:"recency_novelty_weight,omitempty"`

	// Half-lives in days for the freshness and novelty decay curves.
	HalfLifeLastAccessDays *float64 `json:"recency_half_life_last_access_days,omitempty"`
	HalfLifeCreatedDays    *float64 `json:"recency_half_life_created_days,omitempty"`

	// ServerSide asks the vector store to re-rank, when supported.
	ServerSide bool `json:"server_side_recency,omitempty"`
}

// SearchRequest is the payload for long-term memory search.
type SearchRequest struct {
	// Text is the semantic search query. Empty text with no filters is
	// rejected; empty text with filters performs a pure filter scan.
	Text string `json:"text,omitempty"`

	Filters

	// DistanceThreshold drops candidates whose vector distance exceeds it.
	DistanceThreshold *float64 `json:"distance_threshold,omitempty"`

	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`

	RecencyOptions
}

// Validate normalizes pagination and checks filters. A request with neither
// text nor filters is invalid.
func (r *SearchRequest) Validate() error {
	if r.Limit == 0 {
		r.Limit = DefaultSearchLimit
	}
	if r.Limit < 1 || r.Limit > MaxSearchLimit {
		return Errorf(KindInvalidInput, "limit must be between 1 and %d, got %d", MaxSearchLimit, r.Limit)
	}
	if r.Offset < 0 {
		return Errorf(KindInvalidInput, "offset must be non-negative, got %d", r.Offset)
	}
	if err := r.Filters.Validate(); err != nil {
		return err
	}
	if r.Text == "" && !r.hasFilters() {
		return Errorf(KindInvalidInput, "search requires query text or at least one filter")
	}
	return nil
}

func (r *SearchRequest) hasFilters() bool {
	return !r.SessionID.IsZero() || !r.Namespace.IsZero() || !r.UserID.IsZero() ||
		!r.Topics.IsZero() || !r.Entities.IsZero() || !r.MemoryType.IsZero() ||
		!r.CreatedAt.IsZero() || !r.LastAccessed.IsZero() || !r.EventDate.IsZero() ||
		!r.DiscreteMemoryExtracted.IsZero() || !r.MemoryHash.IsZero()
}

// MemoryRecordResult is a search hit: the record plus its vector distance.
// Dist is in [0, 2]; smaller is closer. Score carries the fused ranking
// score when recency re-ranking ran.
type MemoryRecordResult struct {
	MemoryRecord

	Dist float64 `json:"dist"`

	// Score is the final fused ranking score in [0, 1.1] (pinned records
	// receive a bonus). Zero when re-ranking is disabled.
	Score float64 `json:"score,omitempty"`

	// Origin tags which store produced the hit in union searches:
	// "working" or "long-term". Empty for pure long-term searches.
	Origin string `json:"origin,omitempty"`
}

// MemoryRecordResults is a page of search hits.
type MemoryRecordResults struct {
	Memories []MemoryRecordResult `json:"memories"`
	Total    int                  `json:"total"`

	// NextOffset is set when more results are available.
	NextOffset *int `json:"next_offset,omitempty"`
}
