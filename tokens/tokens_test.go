package tokens

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestContextWindow(t *testing.T) {
	require.Equal(t, 128000, ContextWindow("gpt-4o"))
	require.Equal(t, 128000, ContextWindow("gpt-4o-mini"))
	require.Equal(t, 8192, ContextWindow("gpt-4"))
	require.Equal(t, 32768, ContextWindow("gpt-4-32k"))
	require.Equal(t, 200000, ContextWindow("claude-3-5-haiku-latest"))
	require.Equal(t, 200000, ContextWindow("o1-mini"))
	require.Equal(t, DefaultContextWindow, ContextWindow("mystery-model"))
}

func TestCountEmpty(t *testing.T) {
	c := NewCounter()
	require.Equal(t, 0, c.Count("gpt-4o", ""))
}

func TestCountNonEmpty(t *testing.T) {
	c := NewCounter()
	n := c.Count("gpt-4o", "The quick brown fox jumps over the lazy dog.")
	require.Greater(t, n, 0)
	// Repeat counts are stable.
	require.Equal(t, n, c.Count("gpt-4o", "The quick brown fox jumps over the lazy dog."))
}

func TestCountAll(t *testing.T) {
	c := NewCounter()
	a := c.Count("gpt-4o", "hello")
	b := c.Count("gpt-4o", "world")
	require.Equal(t, a+b, c.CountAll("gpt-4o", "hello", "world"))
}

func TestEstimateFallback(t *testing.T) {
	require.Equal(t, 1, estimate("abc"))
	require.Equal(t, 1, estimate("abcd"))
	require.Equal(t, 2, estimate("abcde"))
}
