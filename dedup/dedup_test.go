package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm/llmtest"
)

func TestHashDeterministic(t *testing.T) {
	a := Hash("User likes tea", "u1", "s1", "ns")
	b := Hash("User likes tea", "u1", "s1", "ns")
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestHashNormalizesText(t *testing.T) {
	require.Equal(t,
		Hash("  User Likes Tea ", "u1", "", ""),
		Hash("user likes tea", "u1", "", ""))
}

func TestHashScopeSensitive(t *testing.T) {
	base := Hash("User likes tea", "u1", "s1", "ns")
	require.NotEqual(t, base, Hash("User likes tea", "u2", "s1", "ns"))
	require.NotEqual(t, base, Hash("User likes tea", "u1", "s2", "ns"))
	require.NotEqual(t, base, Hash("User likes tea", "u1", "s1", "other"))
	require.NotEqual(t, base, Hash("User likes coffee", "u1", "s1", "ns"))
}

func TestHashEmptyScopeDiffersFromSeparatorCollision(t *testing.T) {
	// The NUL separator keeps field boundaries unambiguous.
	require.NotEqual(t, Hash("a", "bc", "", ""), Hash("ab", "c", "", ""))
}

func TestMergeExact(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(24 * time.Hour)
	t2 := t0.Add(48 * time.Hour)

	existing := &mnemo.MemoryRecord{
		ID:            "old",
		Text:          "User likes tea",
		Topics:        []string{"drinks"},
		ExtractedFrom: []string{"m1"},
		CreatedAt:     t1,
		UpdatedAt:     t1,
		LastAccessed:  t2,
		AccessCount:   3,
	}
	incoming := &mnemo.MemoryRecord{
		ID:            "new",
		Text:          "user likes tea",
		Topics:        []string{"drinks", "preferences"},
		Entities:      []string{"tea"},
		ExtractedFrom: []string{"m2"},
		CreatedAt:     t0,
		UpdatedAt:     t2,
		LastAccessed:  t1,
		AccessCount:   1,
		Pinned:        true,
	}

	merged := MergeExact(existing, incoming)
	require.Equal(t, "old", merged.ID)
	require.Equal(t, t0, merged.CreatedAt)
	require.Equal(t, t2, merged.UpdatedAt)
	require.Equal(t, t2, merged.LastAccessed)
	require.Equal(t, []string{"drinks", "preferences"}, merged.Topics)
	require.Equal(t, []string{"tea"}, merged.Entities)
	require.Equal(t, []string{"m1", "m2"}, merged.ExtractedFrom)
	require.Equal(t, 4, merged.AccessCount)
	require.True(t, merged.Pinned)
}

func TestMergeSemantic(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := t0.Add(time.Hour)

	existing := &mnemo.MemoryRecord{
		ID: "a", Text: "User prefers dark mode", UserID: "u1",
		CreatedAt: t0, UpdatedAt: t0, LastAccessed: t0,
		ExtractedFrom: []string{"m1"},
	}
	incoming := &mnemo.MemoryRecord{
		ID: "b", Text: "The user likes dark mode", UserID: "u1",
		CreatedAt: t0.Add(time.Minute), UpdatedAt: t0.Add(time.Minute),
		LastAccessed:  t0.Add(time.Minute),
		ExtractedFrom: []string{"m2"},
	}

	merged := MergeSemantic(existing, incoming, "User prefers dark mode", now)
	require.NotEqual(t, "a", merged.ID)
	require.NotEqual(t, "b", merged.ID)
	require.Equal(t, "User prefers dark mode", merged.Text)
	require.Equal(t, t0, merged.CreatedAt)
	require.Equal(t, now, merged.UpdatedAt)
	require.Equal(t, []string{"m1", "m2"}, merged.ExtractedFrom)
	require.Equal(t, HashRecord(merged), merged.MemoryHash)
	require.Nil(t, merged.PersistedAt)
}

func TestJudgeDuplicate(t *testing.T) {
	client := &llmtest.Client{
		Responses: []string{`{"duplicate": true, "merged_text": "User prefers dark mode"}`},
	}
	judge := NewSemanticJudge(client, "gpt-4o-mini")

	j, err := judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "User prefers dark mode"},
		&mnemo.MemoryRecord{Text: "The user likes dark mode"})
	require.NoError(t, err)
	require.True(t, j.Duplicate)
	require.Equal(t, "User prefers dark mode", j.MergedText)
	require.Len(t, client.Requests, 1)
	require.True(t, client.Requests[0].JSONMode)
}

func TestJudgeNotDuplicate(t *testing.T) {
	client := &llmtest.Client{Responses: []string{`{"duplicate": false}`}}
	judge := NewSemanticJudge(client, "gpt-4o-mini")

	j, err := judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "User likes tea"},
		&mnemo.MemoryRecord{Text: "User lives in Lisbon"})
	require.NoError(t, err)
	require.False(t, j.Duplicate)
}

func TestJudgeFencedResponse(t *testing.T) {
	client := &llmtest.Client{
		Responses: []string{"```json\n{\"duplicate\": false}\n```"},
	}
	judge := NewSemanticJudge(client, "gpt-4o-mini")

	j, err := judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "a"}, &mnemo.MemoryRecord{Text: "b"})
	require.NoError(t, err)
	require.False(t, j.Duplicate)
}

func TestJudgeErrors(t *testing.T) {
	client := &llmtest.Client{Err: errors.New("provider down")}
	judge := NewSemanticJudge(client, "gpt-4o-mini")
	_, err := judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "a"}, &mnemo.MemoryRecord{Text: "b"})
	require.Error(t, err)

	client = &llmtest.Client{Responses: []string{"not json"}}
	judge = NewSemanticJudge(client, "gpt-4o-mini")
	_, err = judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "a"}, &mnemo.MemoryRecord{Text: "b"})
	require.Error(t, err)
	require.Equal(t, mnemo.KindInvalidInput, mnemo.ErrorKind(err))

	client = &llmtest.Client{Responses: []string{`{"duplicate": true}`}}
	judge = NewSemanticJudge(client, "gpt-4o-mini")
	_, err = judge.Judge(context.Background(),
		&mnemo.MemoryRecord{Text: "a"}, &mnemo.MemoryRecord{Text: "b"})
	require.Error(t, err)
}
