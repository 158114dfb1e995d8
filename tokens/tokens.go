// Package tokens provides token counting for summarization thresholds.
// Counts use tiktoken when an encoding is available for the model and fall
// back to a chars/4 estimate otherwise.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultContextWindow is assumed for models missing from the table.
const DefaultContextWindow = 128000

// contextWindows maps model-name prefixes to context window sizes.
// Longest prefix wins.
var contextWindows = []struct {
	prefix string
	window int
}{
	{"gpt-3.5-turbo-16k", 16384},
	{"gpt-3.5-turbo", 16385},
	{"gpt-4o", 128000},
	{"gpt-4-32k", 32768},
	{"gpt-4", 8192},
	{"o1", 200000},
	{"o3", 200000},
	{"claude-", 200000},
}

// ContextWindow returns the context window size for a model name.
func ContextWindow(model string) int {
	m := strings.ToLower(model)
	best := 0
	window := DefaultContextWindow
	for _, entry := range contextWindows {
		if strings.HasPrefix(m, entry.prefix) && len(entry.prefix) > best {
			best = len(entry.prefix)
			window = entry.window
		}
	}
	return window
}

// Counter counts tokens using a model-specific encoding. The zero value is
// not usable; use NewCounter.
type Counter struct {
	mu       sync.Mutex
	encoders map[string]*tiktoken.Tiktoken
}

// NewCounter returns a Counter with an empty encoder cache.
func NewCounter() *Counter {
	return &Counter{encoders: make(map[string]*tiktoken.Tiktoken)}
}

// Count returns the token count of text for the given model. Unknown
// models fall back to cl100k_base, then to ceil(chars/4).
func (c *Counter) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if enc := c.encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return estimate(text)
}

// CountAll sums token counts over multiple texts.
func (c *Counter) CountAll(model string, texts ...string) int {
	total := 0
	for _, text := range texts {
		total += c.Count(model, text)
	}
	return total
}

func (c *Counter) encoderFor(model string) *tiktoken.Tiktoken {
	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[model]; ok {
		return enc
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			enc = nil
		}
	}
	c.encoders[model] = enc
	return enc
}

// estimate approximates tokens as ceil(chars/4).
func estimate(text string) int {
	return (len(text) + 3) / 4
}
