// Package rerank reorders search candidates by fusing semantic similarity
// with time-decay signals, so fresh and novel memories outrank stale ones of
// similar relevance.
package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/mnemo-ai/mnemo"
)

// Default half-lives and weights.
const (
	DefaultAccessHalfLifeDays = 7.0
	DefaultCreateHalfLifeDays = 30.0
	DefaultSemanticWeight     = 0.7
	DefaultRecencyWeight      = 0.3
	DefaultFreshnessWeight    = 0.6
	DefaultNoveltyWeight      = 0.4

	// PinnedBonus is added to the final score of pinned records.
	PinnedBonus = 0.1
)

// Options carries the fusion weights. The zero value means "use defaults";
// FromQuery builds Options from per-query overrides.
type Options struct {
	SemanticWeight     float64
	RecencyWeight      float64
	FreshnessWeight    float64
	NoveltyWeight      float64
	AccessHalfLifeDays float64
	CreateHalfLifeDays float64
}

// DefaultOptions returns the default weights.
func DefaultOptions() Options {
	return Options{
		SemanticWeight:     DefaultSemanticWeight,
		RecencyWeight:      DefaultRecencyWeight,
		FreshnessWeight:    DefaultFreshnessWeight,
		NoveltyWeight:      DefaultNoveltyWeight,
		AccessHalfLifeDays: DefaultAccessHalfLifeDays,
		CreateHalfLifeDays: DefaultCreateHalfLifeDays,
	}
}

// FromQuery applies any per-query overrides on top of the defaults.
func FromQuery(r *mnemo.RecencyOptions) Options {
	opts := DefaultOptions()
	if r == nil {
		return opts
	}
	if r.SemanticWeight != nil {
		opts.SemanticWeight = *r.SemanticWeight
	}
	if r.RecencyWeight != nil {
		opts.RecencyWeight = *r.RecencyWeight
	}
	if r.FreshnessWeight != nil {
		opts.FreshnessWeight = *r.FreshnessWeight
	}
	if r.NoveltyWeight != nil {
		opts.NoveltyWeight = *r.NoveltyWeight
	}
	if r.HalfLifeLastAccessDays != nil {
		opts.AccessHalfLifeDays = *r.HalfLifeLastAccessDays
	}
	if r.HalfLifeCreatedDays != nil {
		opts.CreateHalfLifeDays = *r.HalfLifeCreatedDays
	}
	return opts
}

// Score computes the fused score for one candidate at the given time.
func Score(result *mnemo.MemoryRecordResult, now time.Time, opts Options) float64 {
	semantic := 1 - result.Dist/2
	freshness := decay(ageDays(now, result.LastAccessed), opts.AccessHalfLifeDays)
	novelty := decay(ageDays(now, result.CreatedAt), opts.CreateHalfLifeDays)

	recency := 0.0
	if wsum := opts.FreshnessWeight + opts.NoveltyWeight; wsum > 0 {
		recency = (opts.FreshnessWeight*freshness + opts.NoveltyWeight*novelty) / wsum
	}
	final := opts.SemanticWeight*semantic + opts.RecencyWeight*recency
	if result.Pinned {
		final += PinnedBonus
	}
	return final
}

// Rerank scores every candidate and sorts descending by final score, stable
// by original position. Scores are written back onto the results.
func Rerank(results []mnemo.MemoryRecordResult, now time.Time, opts Options) {
	for i := range results {
		results[i].Score = Score(&results[i], now, opts)
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// decay is exponential half-life decay: 1 at age 0, 0.5 at one half-life.
func decay(ageDays, halfLifeDays float64) float64 {
	if halfLifeDays <= 0 {
		return 0
	}
	return math.Exp(-math.Ln2 * ageDays / halfLifeDays)
}

func ageDays(now time.Time, t time.Time) float64 {
	if t.IsZero() || t.After(now) {
		return 0
	}
	return now.Sub(t).Hours() / 24
}
