// Package dedup reduces duplicate and near-duplicate long-term memories to a
// single merged record. Exact duplicates are detected by a deterministic hash
// over the text and scoping fields; near-duplicates found by vector distance
// are confirmed by an LLM judge.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
)

// Hash fingerprints a memory for exact duplicate detection. It is a pure
// function of the normalized text and scope: two records with equal hashes
// are duplicates by definition.
func Hash(text, userID, sessionID, namespace string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized + "\x00" + userID + "\x00" + sessionID + "\x00" + namespace))
	return hex.EncodeToString(sum[:])
}

// HashRecord computes the hash from a record's own fields.
func HashRecord(r *mnemo.MemoryRecord) string {
	return Hash(r.Text, r.UserID, r.SessionID, r.Namespace)
}

// MergeExact folds incoming into existing after a hash match. The survivor
// keeps the existing ID and text, the older created_at, the newer updated_at,
// the newest last_accessed, unioned tags and sources, summed access counts,
// and stays pinned if either side was.
func MergeExact(existing, incoming *mnemo.MemoryRecord) *mnemo.MemoryRecord {
	merged := existing.Copy()
	if incoming.CreatedAt.Before(merged.CreatedAt) {
		merged.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt.After(merged.UpdatedAt) {
		merged.UpdatedAt = incoming.UpdatedAt
	}
	if incoming.LastAccessed.After(merged.LastAccessed) {
		merged.LastAccessed = incoming.LastAccessed
	}
	merged.Topics = unionStrings(existing.Topics, incoming.Topics)
	merged.Entities = unionStrings(existing.Entities, incoming.Entities)
	merged.ExtractedFrom = unionStrings(existing.ExtractedFrom, incoming.ExtractedFrom)
	merged.AccessCount = existing.AccessCount + incoming.AccessCount
	merged.Pinned = existing.Pinned || incoming.Pinned
	return merged
}

// MergeSemantic builds the replacement record for two near-duplicates the
// judge confirmed, using the judge's merged text. The replacement gets a
// fresh ID and hash; both originals are expected to be deleted by the caller.
func MergeSemantic(existing, incoming *mnemo.MemoryRecord, mergedText string, now time.Time) *mnemo.MemoryRecord {
	merged := MergeExact(existing, incoming)
	merged.ID = mnemo.NewID()
	merged.Text = mergedText
	merged.UpdatedAt = now
	merged.MemoryHash = HashRecord(merged)
	merged.PersistedAt = nil
	return merged
}

// Judgment is the LLM's verdict on a candidate pair.
type Judgment struct {
	Duplicate  bool   `json:"duplicate"`
	MergedText string `json:"merged_text,omitempty"`
}

// SemanticJudge asks an LLM whether two memory texts state the same fact.
type SemanticJudge struct {
	client llm.Client
	model  string
}

// NewSemanticJudge returns a judge using the given client and model.
func NewSemanticJudge(client llm.Client, model string) *SemanticJudge {
	return &SemanticJudge{client: client, model: model}
}

const judgePrompt = `You compare two memory records about the same user and decide whether they state the same fact.

Memory A:
text: %s
topics: %s
entities: %s

Memory B:
text: %s
topics: %s
entities: %s

Respond with a JSON object:
{"duplicate": true, "merged_text": "<single text preserving all information from both>"}
or
{"duplicate": false}

Only mark duplicate when the two texts describe the same fact or preference. Do not merge distinct facts.`

// Judge returns whether the two records are duplicates and, if so, the
// merged text. Errors are returned to the caller, which falls back to
// indexing without a merge.
func (j *SemanticJudge) Judge(ctx context.Context, a, b *mnemo.MemoryRecord) (*Judgment, error) {
	prompt := fmt.Sprintf(judgePrompt,
		a.Text, strings.Join(a.Topics, ", "), strings.Join(a.Entities, ", "),
		b.Text, strings.Join(b.Topics, ", "), strings.Join(b.Entities, ", "))

	resp, err := j.client.Generate(ctx, &llm.Request{
		Model:    j.model,
		Messages: []*llm.Message{llm.NewUserMessage(prompt)},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("judging duplicate: %w", err)
	}

	var judgment Judgment
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &judgment); err != nil {
		return nil, mnemo.WrapError(mnemo.KindInvalidInput,
			fmt.Errorf("parsing duplicate judgment: %w", err))
	}
	if judgment.Duplicate && strings.TrimSpace(judgment.MergedText) == "" {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "duplicate judgment missing merged_text")
	}
	return &judgment, nil
}

// cleanJSON strips markdown code fences some models wrap JSON in.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func unionStrings(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, v := range a {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
