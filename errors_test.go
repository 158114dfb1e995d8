package mnemo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKind(t *testing.T) {
	assert.Equal(t, KindNotFound, ErrorKind(Errorf(KindNotFound, "gone")))
	assert.Equal(t, KindInvalidInput, ErrorKind(Errorf(KindInvalidInput, "bad")))
	assert.Equal(t, KindFatal, ErrorKind(errors.New("untagged")))

	// Sentinels classify even without a tag.
	assert.Equal(t, KindNotFound, ErrorKind(fmt.Errorf("session: %w", ErrNotFound)))
	assert.Equal(t, KindConflict, ErrorKind(fmt.Errorf("put: %w", ErrConflict)))
}

func TestWrapErrorNil(t *testing.T) {
	assert.Nil(t, WrapError(KindTransient, nil))
}

func TestWrapPreservesChain(t *testing.T) {
	base := errors.New("io failure")
	wrapped := WrapError(KindTransient, fmt.Errorf("storing: %w", base))
	assert.True(t, errors.Is(wrapped, base))
	assert.Equal(t, KindTransient, ErrorKind(wrapped))
	assert.Equal(t, "storing: io failure", wrapped.Error())
}

func TestKindSurvivesOuterWrapping(t *testing.T) {
	inner := Errorf(KindConflict, "stale version")
	outer := fmt.Errorf("put session: %w", inner)
	assert.Equal(t, KindConflict, ErrorKind(outer))
}

func TestKindOf(t *testing.T) {
	_, tagged := KindOf(errors.New("plain"))
	assert.False(t, tagged)

	kind, tagged := KindOf(fmt.Errorf("outer: %w", Errorf(KindTransient, "retry me")))
	require.True(t, tagged)
	assert.Equal(t, KindTransient, kind)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(Errorf(KindTransient, "rate limited")))
	assert.False(t, IsTransient(Errorf(KindInvalidInput, "bad")))
	assert.False(t, IsTransient(nil))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "invalid_input", KindInvalidInput.String())
	assert.Equal(t, "conflict", KindConflict.String())
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "fatal", KindFatal.String())
}
