// Package extract derives structured knowledge from conversation text:
// topic and entity tags for indexed records, and discrete episodic/semantic
// facts extracted from message records with contextual references grounded.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
	"github.com/mnemo-ai/mnemo/slogger"
)

// DefaultTopKTopics bounds how many topics tagging returns per text.
const DefaultTopKTopics = 3

// parseAttempts is how many times a malformed LLM response is retried
// before giving up.
const parseAttempts = 3

// TopicExtractor labels a text with its main topics.
type TopicExtractor interface {
	ExtractTopics(ctx context.Context, text string) ([]string, error)
}

// EntityRecognizer returns named-entity tokens for a text. Token-level
// models emit subword continuations prefixed with "##"; callers merge those
// into the preceding entity.
type EntityRecognizer interface {
	RecognizeEntities(ctx context.Context, text string) ([]string, error)
}

// Extractor bundles the tagging backends and the LLM used for discrete
// memory extraction.
type Extractor struct {
	client   llm.Client
	model    string
	topics   TopicExtractor
	entities EntityRecognizer
	topK     int
	now      func() time.Time
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithTopicExtractor overrides the topic backend.
func WithTopicExtractor(t TopicExtractor) Option {
	return func(e *Extractor) { e.topics = t }
}

// WithEntityRecognizer overrides the entity backend.
func WithEntityRecognizer(r EntityRecognizer) Option {
	return func(e *Extractor) { e.entities = r }
}

// WithTopKTopics bounds topics per text.
func WithTopKTopics(k int) Option {
	return func(e *Extractor) { e.topK = k }
}

// WithClock overrides the time source used for grounding.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

// New creates an extractor. Tagging backends default to LLM-backed
// implementations on the same client and model.
func New(client llm.Client, model string, opts ...Option) *Extractor {
	e := &Extractor{
		client: client,
		model:  model,
		topK:   DefaultTopKTopics,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.topics == nil {
		e.topics = &LLMTopicExtractor{Client: client, Model: model, TopK: e.topK}
	}
	if e.entities == nil {
		e.entities = &LLMEntityRecognizer{Client: client, Model: model}
	}
	return e
}

// HandleExtraction tags a text with topics and entities. Both lists come
// back deduplicated; entity subword continuations are merged. Backend
// failures degrade to empty lists for that backend.
func (e *Extractor) HandleExtraction(ctx context.Context, text string) (topics, entities []string, err error) {
	logger := slogger.Ctx(ctx)

	topics, terr := e.topics.ExtractTopics(ctx, text)
	if terr != nil {
		logger.Warn("topic extraction failed", "error", terr)
		topics = nil
	}
	if len(topics) > e.topK {
		topics = topics[:e.topK]
	}

	raw, eerr := e.entities.RecognizeEntities(ctx, text)
	if eerr != nil {
		logger.Warn("entity recognition failed", "error", eerr)
	}
	entities = MergeEntityTokens(raw)

	if terr != nil && eerr != nil {
		return nil, nil, fmt.Errorf("tagging failed: %w", terr)
	}
	return dedupeStrings(topics), entities, nil
}

// MergeEntityTokens folds "##"-prefixed subword continuations into the
// preceding entity and deduplicates the result.
func MergeEntityTokens(tokens []string) []string {
	var merged []string
	for _, tok := range tokens {
		if rest, ok := strings.CutPrefix(tok, "##"); ok && len(merged) > 0 {
			merged[len(merged)-1] += rest
			continue
		}
		if tok = strings.TrimPrefix(tok, "##"); tok != "" {
			merged = append(merged, tok)
		}
	}
	return dedupeStrings(merged)
}

// extractedMemory is one fact in the extraction response.
type extractedMemory struct {
	Type     string   `json:"type"`
	Text     string   `json:"text"`
	Topics   []string `json:"topics"`
	Entities []string `json:"entities"`
}

type extractionResponse struct {
	Memories []extractedMemory `json:"memories"`
}

const discreteExtractionPrompt = `You are a long-memory manager. Your job is to extract long-term memories from conversation text.

Extract two kinds of memories:
1. EPISODIC: personal experiences specific to the user or agent.
   Example: "User had a bad experience when visiting Paris"
2. SEMANTIC: user preferences and general knowledge outside of your training data.
   Example: "User prefers window seats" or "trey is a software engineer"

CONTEXTUAL GROUNDING - resolve all references against the context given below:
- Pronouns: replace "he", "she", "they", "it" with the named referent. Refer to the application user as "User", never by pronoun and never as "I".
- Temporal: convert relative time ("last summer", "yesterday") to absolute terms using the current datetime.
- Spatial: replace "here", "there" with the actual place when known.

Current datetime: %s

Extract ONLY facts worth remembering long term. Do not extract conversational filler.

Return a JSON object:
{"memories": [{"type": "episodic", "text": "...", "topics": ["..."], "entities": ["..."]}]}

Return {"memories": []} if there is nothing worth extracting.

Message:
%s`

// ExtractDiscrete derives episodic and semantic memory records from a
// message-type record. Output records inherit the source's scope and
// reference it via extracted_from. Malformed LLM output is retried up to
// three times; persistent parse failure returns no records and no error so
// the source can still be marked extracted. Transport errors are returned.
func (e *Extractor) ExtractDiscrete(ctx context.Context, source *mnemo.MemoryRecord) ([]*mnemo.MemoryRecord, error) {
	logger := slogger.Ctx(ctx)
	now := e.now().UTC()
	prompt := fmt.Sprintf(discreteExtractionPrompt, now.Format(time.RFC3339), source.Text)

	var parsed extractionResponse
	var parseErr error
	for attempt := 0; attempt < parseAttempts; attempt++ {
		resp, err := e.client.Generate(ctx, &llm.Request{
			Model:    e.model,
			Messages: []*llm.Message{llm.NewUserMessage(prompt)},
			JSONMode: true,
		})
		if err != nil {
			return nil, fmt.Errorf("extracting memories: %w", err)
		}
		parseErr = json.Unmarshal([]byte(cleanJSON(resp.Content)), &parsed)
		if parseErr == nil {
			break
		}
	}
	if parseErr != nil {
		logger.Warn("discrete extraction output unparseable, marking source extracted",
			"record_id", source.ID, "error", parseErr)
		return nil, nil
	}

	records := make([]*mnemo.MemoryRecord, 0, len(parsed.Memories))
	for _, m := range parsed.Memories {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		memoryType := mnemo.MemoryType(m.Type)
		if !memoryType.Valid() || memoryType == mnemo.MemoryTypeMessage {
			memoryType = mnemo.MemoryTypeSemantic
		}
		records = append(records, &mnemo.MemoryRecord{
			ID:                      mnemo.NewID(),
			Text:                    text,
			MemoryType:              memoryType,
			Topics:                  dedupeStrings(m.Topics),
			Entities:                dedupeStrings(m.Entities),
			SessionID:               source.SessionID,
			UserID:                  source.UserID,
			Namespace:               source.Namespace,
			CreatedAt:               now,
			UpdatedAt:               now,
			LastAccessed:            now,
			ExtractedFrom:           []string{source.ID},
			DiscreteMemoryExtracted: mnemo.TriTrue,
		})
	}
	return records, nil
}

func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
