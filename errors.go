package mnemo

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a session or memory record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned on an optimistic-write version mismatch. The
// caller should re-read and retry.
var ErrConflict = errors.New("version conflict")

// Kind classifies an error for retry decisions and HTTP status mapping.
type Kind int

const (
	// KindFatal covers adapter hard failures and corrupt state.
	KindFatal Kind = iota

	// KindNotFound covers missing sessions or records.
	KindNotFound

	// KindInvalidInput covers schema violations and unknown model names.
	KindInvalidInput

	// KindConflict covers optimistic-write version mismatches.
	KindConflict

	// KindTransient covers provider timeouts, 5xx responses, and rate
	// limits. Transient errors are retryable in background tasks.
	KindTransient
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "fatal"
	}
}

// kindError tags a wrapped error with a Kind.
type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }
func (e *kindError) Unwrap() error { return e.err }

// WrapError tags err with the given kind. Returns nil if err is nil.
func WrapError(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// Errorf formats a new error tagged with the given kind.
func Errorf(kind Kind, format string, args ...any) error {
	return &kindError{kind: kind, err: fmt.Errorf(format, args...)}
}

// ErrorKind reports the classification of err. Untagged errors are fatal
// unless they match a sentinel.
func ErrorKind(err error) Kind {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	if errors.Is(err, ErrConflict) {
		return KindConflict
	}
	return KindFatal
}

// KindOf returns the tagged kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	var ke *kindError
	if errors.As(err, &ke) {
		return ke.kind, true
	}
	return KindFatal, false
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return err != nil && ErrorKind(err) == KindTransient
}
