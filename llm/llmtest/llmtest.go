// Package llmtest provides a scriptable fake llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/mnemo-ai/mnemo"
	"github.com/mnemo-ai/mnemo/llm"
)

// Client is a fake llm.Client. Responses are consumed in order; when the
// queue is empty, GenerateFunc (if set) is consulted, otherwise a fixed
// fallback is returned. Embeddings are deterministic hashes of the input
// text so equal texts map to equal vectors.
type Client struct {
	mu sync.Mutex

	// Responses are returned in order by Generate.
	Responses []string

	// GenerateFunc, when set, handles calls after Responses is drained.
	GenerateFunc func(ctx context.Context, req *llm.Request) (*llm.Response, error)

	// EmbedFunc, when set, overrides the default deterministic embedding.
	EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// Err, when set, is returned by every Generate call.
	Err error

	// Requests records every Generate request received.
	Requests []*llm.Request

	// Dimensions is the embedding width. Defaults to 8.
	Dimensions int
}

var _ llm.Client = &Client{}

func (c *Client) Name() string { return "fake" }

func (c *Client) SupportsEmbedding() bool { return true }

func (c *Client) Generate(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Requests = append(c.Requests, req)
	if c.Err != nil {
		return nil, c.Err
	}
	if len(c.Responses) > 0 {
		content := c.Responses[0]
		c.Responses = c.Responses[1:]
		return &llm.Response{Model: "fake", Content: content}, nil
	}
	if c.GenerateFunc != nil {
		return c.GenerateFunc(ctx, req)
	}
	return &llm.Response{Model: "fake", Content: "ok"}, nil
}

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if c.EmbedFunc != nil {
		return c.EmbedFunc(ctx, texts)
	}
	if len(texts) == 0 {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput, "no texts provided")
	}
	dims := c.Dimensions
	if dims == 0 {
		dims = 8
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = Vector(text, dims)
	}
	return vectors, nil
}

// Vector derives a deterministic unit-ish vector from text. Texts sharing
// a long prefix produce nearby vectors, which is close enough to semantic
// similarity for tests.
func Vector(text string, dims int) []float32 {
	vec := make([]float32, dims)
	for i, r := range text {
		vec[i%dims] += float32(r%13) / 13
	}
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	inv := 1 / sqrt32(norm)
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

func sqrt32(x float32) float32 {
	// Newton iterations are plenty for test vectors.
	guess := x / 2
	if guess == 0 {
		return 0
	}
	for i := 0; i < 8; i++ {
		guess = (guess + x/guess) / 2
	}
	return guess
}
