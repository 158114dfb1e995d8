package mnemo

import (
	"github.com/google/uuid"
)

// NewID returns a new unique identifier for messages and memory records.
// IDs are UUIDv7, so they sort lexicographically by creation time, which
// keeps vector-store pagination stable across inserts.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails if the random source does; fall back to v4
		// rather than propagate an error through every call site.
		return uuid.NewString()
	}
	return id.String()
}
