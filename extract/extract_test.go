package extract

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm/llmtest"
)

func TestMergeEntityTokens(t *testing.T) {
	merged := MergeEntityTokens([]string{"Par", "##is", "France"})
	require.Equal(t, []string{"Paris", "France"}, merged)

	merged = MergeEntityTokens([]string{"New", "##ton", "##ian", "physics"})
	require.Equal(t, []string{"Newtonian", "physics"}, merged)

	// Leading continuation with nothing to attach to is kept bare.
	merged = MergeEntityTokens([]string{"##is", "Paris"})
	require.Equal(t, []string{"is", "Paris"}, merged)

	require.Nil(t, MergeEntityTokens(nil))
}

func TestMergeEntityTokensDeduplicates(t *testing.T) {
	merged := MergeEntityTokens([]string{"Paris", "Paris", "Lisbon"})
	require.Equal(t, []string{"Paris", "Lisbon"}, merged)
}

func TestHandleExtraction(t *testing.T) {
	client := &llmtest.Client{Responses: []string{
		`{"topics": ["travel", "food", "travel"]}`,
		`{"entities": ["Paris"]}`,
	}}
	e := New(client, "gpt-4o-mini")

	topics, entities, err := e.HandleExtraction(context.Background(), "I ate well in Paris")
	require.NoError(t, err)
	assert.Equal(t, []string{"travel", "food"}, topics)
	assert.Equal(t, []string{"Paris"}, entities)
}

func TestHandleExtractionTopKLimit(t *testing.T) {
	client := &llmtest.Client{Responses: []string{
		`{"topics": ["a", "b", "c", "d"]}`,
		`{"entities": []}`,
	}}
	e := New(client, "gpt-4o-mini", WithTopKTopics(2))

	topics, _, err := e.HandleExtraction(context.Background(), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, topics)
}

func TestHandleExtractionDegradesPerBackend(t *testing.T) {
	e := New(&llmtest.Client{}, "gpt-4o-mini",
		WithTopicExtractor(failingTopics{}),
		WithEntityRecognizer(staticEntities{entities: []string{"Paris"}}))

	topics, entities, err := e.HandleExtraction(context.Background(), "text")
	require.NoError(t, err)
	assert.Empty(t, topics)
	assert.Equal(t, []string{"Paris"}, entities)
}

func TestExtractDiscreteGrounding(t *testing.T) {
	client := &llmtest.Client{Responses: []string{
		`{"memories": [
			{"type": "episodic", "text": "User went to Paris in summer 2024", "topics": ["travel"], "entities": ["Paris"]},
			{"type": "semantic", "text": "User loves Paris", "topics": ["travel"], "entities": ["Paris"]}
		]}`,
	}}
	now := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	e := New(client, "gpt-4o-mini", WithClock(func() time.Time { return now }))

	source := &mnemo.MemoryRecord{
		ID:         "m1",
		Text:       "I love Paris, I went there last summer",
		MemoryType: mnemo.MemoryTypeMessage,
		SessionID:  "s1",
		UserID:     "u1",
		Namespace:  "ns",
	}
	records, err := e.ExtractDiscrete(context.Background(), source)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// No unresolved pronouns survive grounding.
	pronouns := regexp.MustCompile(`(?i)\b(he|she|they|him|her|them|his|hers|theirs)\b`)
	for _, r := range records {
		assert.NotRegexp(t, pronouns, r.Text)
		assert.Contains(t, r.Text, "User")
		assert.Equal(t, "u1", r.UserID)
		assert.Equal(t, "s1", r.SessionID)
		assert.Equal(t, "ns", r.Namespace)
		assert.Equal(t, []string{"m1"}, r.ExtractedFrom)
		assert.Equal(t, mnemo.TriTrue, r.DiscreteMemoryExtracted)
		assert.NotEmpty(t, r.ID)
	}
	assert.Equal(t, mnemo.MemoryTypeEpisodic, records[0].MemoryType)
	assert.Equal(t, mnemo.MemoryTypeSemantic, records[1].MemoryType)

	// Prompt carries the current datetime for temporal grounding.
	require.Len(t, client.Requests, 1)
	assert.Contains(t, client.Requests[0].Messages[0].Content, "2025-03-15")
	assert.Contains(t, client.Requests[0].Messages[0].Content, source.Text)
}

func TestExtractDiscreteRetriesParseThenGivesUp(t *testing.T) {
	client := &llmtest.Client{Responses: []string{"garbage", "still garbage", "nope"}}
	e := New(client, "gpt-4o-mini")

	records, err := e.ExtractDiscrete(context.Background(), &mnemo.MemoryRecord{ID: "m1", Text: "hi"})
	require.NoError(t, err)
	assert.Nil(t, records)
	assert.Len(t, client.Requests, 3)
}

func TestExtractDiscreteParseRecoversMidway(t *testing.T) {
	client := &llmtest.Client{Responses: []string{
		"garbage",
		`{"memories": [{"type": "semantic", "text": "User likes tea"}]}`,
	}}
	e := New(client, "gpt-4o-mini")

	records, err := e.ExtractDiscrete(context.Background(), &mnemo.MemoryRecord{ID: "m1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "User likes tea", records[0].Text)
}

func TestExtractDiscreteTransportError(t *testing.T) {
	client := &llmtest.Client{Err: errors.New("provider down")}
	e := New(client, "gpt-4o-mini")

	_, err := e.ExtractDiscrete(context.Background(), &mnemo.MemoryRecord{ID: "m1", Text: "hi"})
	require.Error(t, err)
}

func TestExtractDiscreteSkipsEmptyAndInvalidTypes(t *testing.T) {
	client := &llmtest.Client{Responses: []string{
		`{"memories": [
			{"type": "episodic", "text": "  "},
			{"type": "message", "text": "User likes tea"},
			{"type": "unknown", "text": "User likes coffee"}
		]}`,
	}}
	e := New(client, "gpt-4o-mini")

	records, err := e.ExtractDiscrete(context.Background(), &mnemo.MemoryRecord{ID: "m1", Text: "hi"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Unknown and message types normalize to semantic.
	assert.Equal(t, mnemo.MemoryTypeSemantic, records[0].MemoryType)
	assert.Equal(t, mnemo.MemoryTypeSemantic, records[1].MemoryType)
}

type failingTopics struct{}

func (failingTopics) ExtractTopics(ctx context.Context, text string) ([]string, error) {
	return nil, errors.New("topic backend down")
}

type staticEntities struct{ entities []string }

func (s staticEntities) RecognizeEntities(ctx context.Context, text string) ([]string, error) {
	return s.entities, nil
}
