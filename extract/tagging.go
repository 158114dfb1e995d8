package extract

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mnemo-ai/mnemo/llm"
)

// LLMTopicExtractor prompts a model for the main topics of a text.
type LLMTopicExtractor struct {
	Client llm.Client
	Model  string
	TopK   int
}

var _ TopicExtractor = &LLMTopicExtractor{}

const topicPrompt = `Extract at most %d short topic labels from the text below. Topics are one or two lowercase words naming what the text is about.

Return a JSON object: {"topics": ["topic1", "topic2"]}

Text:
%s`

func (t *LLMTopicExtractor) ExtractTopics(ctx context.Context, text string) ([]string, error) {
	topK := t.TopK
	if topK <= 0 {
		topK = DefaultTopKTopics
	}
	resp, err := t.Client.Generate(ctx, &llm.Request{
		Model:    t.Model,
		Messages: []*llm.Message{llm.NewUserMessage(fmt.Sprintf(topicPrompt, topK, text))},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("extracting topics: %w", err)
	}
	var parsed struct {
		Topics []string `json:"topics"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parsing topics: %w", err)
	}
	return parsed.Topics, nil
}

// LLMEntityRecognizer prompts a model for the named entities in a text.
// It stands in for a token-level NER model; outputs never carry subword
// continuation markers.
type LLMEntityRecognizer struct {
	Client llm.Client
	Model  string
}

var _ EntityRecognizer = &LLMEntityRecognizer{}

const entityPrompt = `List the named entities (people, places, organizations, products) mentioned in the text below.

Return a JSON object: {"entities": ["entity1", "entity2"]}

Text:
%s`

func (r *LLMEntityRecognizer) RecognizeEntities(ctx context.Context, text string) ([]string, error) {
	resp, err := r.Client.Generate(ctx, &llm.Request{
		Model:    r.Model,
		Messages: []*llm.Message{llm.NewUserMessage(fmt.Sprintf(entityPrompt, text))},
		JSONMode: true,
	})
	if err != nil {
		return nil, fmt.Errorf("recognizing entities: %w", err)
	}
	var parsed struct {
		Entities []string `json:"entities"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("parsing entities: %w", err)
	}
	return parsed.Entities, nil
}
