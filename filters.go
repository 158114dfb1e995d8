package mnemo

import (
	"time"
)

// Filter types model the structured predicates accepted by long-term memory
// search. Each filter targets one field with a closed set of operators and
// serializes as a nested object, e.g. {"session_id": {"eq": "abc"}} or
// {"topics": {"any_of": ["travel", "food"]}}. All supplied filters are ANDed.

// StringFilter constrains a scalar string field.
type StringFilter struct {
	Eq     string   `json:"eq,omitempty"`
	Ne     string   `json:"ne,omitempty"`
	AnyOf  []string `json:"any_of,omitempty"`
	NoneOf []string `json:"none_of,omitempty"`
}

// IsZero reports whether no operator is set.
func (f *StringFilter) IsZero() bool {
	return f == nil || (f.Eq == "" && f.Ne == "" && len(f.AnyOf) == 0 && len(f.NoneOf) == 0)
}

// Match evaluates the filter against a field value.
func (f *StringFilter) Match(value string) bool {
	if f.IsZero() {
		return true
	}
	if f.Eq != "" && value != f.Eq {
		return false
	}
	if f.Ne != "" && value == f.Ne {
		return false
	}
	if len(f.AnyOf) > 0 && !containsString(f.AnyOf, value) {
		return false
	}
	if len(f.NoneOf) > 0 && containsString(f.NoneOf, value) {
		return false
	}
	return true
}

// TagFilter constrains a list-of-tags field by set membership.
type TagFilter struct {
	AnyOf  []string `json:"any_of,omitempty"`
	NoneOf []string `json:"none_of,omitempty"`
}

// IsZero reports whether no operator is set.
func (f *TagFilter) IsZero() bool {
	return f == nil || (len(f.AnyOf) == 0 && len(f.NoneOf) == 0)
}

// Match evaluates the filter against the field's tag set.
func (f *TagFilter) Match(tags []string) bool {
	if f.IsZero() {
		return true
	}
	if len(f.AnyOf) > 0 {
		found := false
		for _, want := range f.AnyOf {
			if containsString(tags, want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, bad := range f.NoneOf {
		if containsString(tags, bad) {
			return false
		}
	}
	return true
}

// TimeFilter constrains a timestamp field. Between is inclusive on both ends.
type TimeFilter struct {
	Eq      *time.Time   `json:"eq,omitempty"`
	Gt      *time.Time   `json:"gt,omitempty"`
	Gte     *time.Time   `json:"gte,omitempty"`
	Lt      *time.Time   `json:"lt,omitempty"`
	Lte     *time.Time   `json:"lte,omitempty"`
	Between []*time.Time `json:"between,omitempty"`
}

// IsZero reports whether no operator is set.
func (f *TimeFilter) IsZero() bool {
	return f == nil || (f.Eq == nil && f.Gt == nil && f.Gte == nil &&
		f.Lt == nil && f.Lte == nil && len(f.Between) == 0)
}

// Validate checks operator well-formedness.
func (f *TimeFilter) Validate() error {
	if f == nil {
		return nil
	}
	if len(f.Between) != 0 && len(f.Between) != 2 {
		return Errorf(KindInvalidInput, "between filter requires exactly two timestamps, got %d", len(f.Between))
	}
	return nil
}

// Match evaluates the filter against a timestamp. A nil value only matches
// an empty filter.
func (f *TimeFilter) Match(value *time.Time) bool {
	if f.IsZero() {
		return true
	}
	if value == nil {
		return false
	}
	t := *value
	if f.Eq != nil && !t.Equal(*f.Eq) {
		return false
	}
	if f.Gt != nil && !t.After(*f.Gt) {
		return false
	}
	if f.Gte != nil && t.Before(*f.Gte) {
		return false
	}
	if f.Lt != nil && !t.Before(*f.Lt) {
		return false
	}
	if f.Lte != nil && t.After(*f.Lte) {
		return false
	}
	if len(f.Between) == 2 {
		if t.Before(*f.Between[0]) || t.After(*f.Between[1]) {
			return false
		}
	}
	return true
}

// MemoryTypeFilter constrains the memory_type field.
type MemoryTypeFilter struct {
	Eq    MemoryType   `json:"eq,omitempty"`
	AnyOf []MemoryType `json:"any_of,omitempty"`
}

// IsZero reports whether no operator is set.
func (f *MemoryTypeFilter) IsZero() bool {
	return f == nil || (f.Eq == "" && len(f.AnyOf) == 0)
}

// Validate checks that all named memory types are known.
func (f *MemoryTypeFilter) Validate() error {
	if f == nil {
		return nil
	}
	if f.Eq != "" && !f.Eq.Valid() {
		return Errorf(KindInvalidInput, "unknown memory type %q", f.Eq)
	}
	for _, t := range f.AnyOf {
		if !t.Valid() {
			return Errorf(KindInvalidInput, "unknown memory type %q", t)
		}
	}
	return nil
}

// Match evaluates the filter against a memory type.
func (f *MemoryTypeFilter) Match(t MemoryType) bool {
	if f.IsZero() {
		return true
	}
	if f.Eq != "" && t != f.Eq {
		return false
	}
	if len(f.AnyOf) > 0 {
		for _, want := range f.AnyOf {
			if t == want {
				return true
			}
		}
		return false
	}
	return true
}

// TriStateFilter constrains a "t"/"f" flag field.
type TriStateFilter struct {
	Eq TriState `json:"eq,omitempty"`
}

// IsZero reports whether no operator is set.
func (f *TriStateFilter) IsZero() bool {
	return f == nil || f.Eq == ""
}

// Validate checks the flag value.
func (f *TriStateFilter) Validate() error {
	if f == nil || f.Eq == "" {
		return nil
	}
	if f.Eq != TriTrue && f.Eq != TriFalse {
		return Errorf(KindInvalidInput, `discrete_memory_extracted filter must be "t" or "f", got %q`, f.Eq)
	}
	return nil
}

// Match evaluates the filter against a flag value. An unset record value is
// treated as "f".
func (f *TriStateFilter) Match(v TriState) bool {
	if f.IsZero() {
		return true
	}
	if v == "" {
		v = TriFalse
	}
	return v == f.Eq
}

// Filters aggregates all supported search predicates. Nil members are
// ignored; set members are ANDed.
type Filters struct {
	SessionID               *StringFilter     `json:"session_id,omitempty"`
	Namespace               *StringFilter     `json:"namespace,omitempty"`
	UserID                  *StringFilter     `json:"user_id,omitempty"`
	Topics                  *TagFilter        `json:"topics,omitempty"`
	Entities                *TagFilter        `json:"entities,omitempty"`
	MemoryType              *MemoryTypeFilter `json:"memory_type,omitempty"`
	CreatedAt               *TimeFilter       `json:"created_at,omitempty"`
	LastAccessed            *TimeFilter       `json:"last_accessed,omitempty"`
	EventDate               *TimeFilter       `json:"event_date,omitempty"`
	DiscreteMemoryExtracted *TriStateFilter   `json:"discrete_memory_extracted,omitempty"`

	// MemoryHash supports exact-duplicate lookups during indexing. Not part
	// of the client-facing filter surface, but accepted if supplied.
	MemoryHash *StringFilter `json:"memory_hash,omitempty"`
}

// Validate checks every supplied filter.
func (f *Filters) Validate() error {
	if f == nil {
		return nil
	}
	if err := f.MemoryType.Validate(); err != nil {
		return err
	}
	if err := f.DiscreteMemoryExtracted.Validate(); err != nil {
		return err
	}
	for _, tf := range []*TimeFilter{f.CreatedAt, f.LastAccessed, f.EventDate} {
		if err := tf.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Match evaluates all filters against a record.
func (f *Filters) Match(r *MemoryRecord) bool {
	if f == nil {
		return true
	}
	if !f.SessionID.Match(r.SessionID) ||
		!f.Namespace.Match(r.Namespace) ||
		!f.UserID.Match(r.UserID) {
		return false
	}
	if !f.Topics.Match(r.Topics) || !f.Entities.Match(r.Entities) {
		return false
	}
	mt := r.MemoryType
	if mt == "" {
		mt = MemoryTypeMessage
	}
	if !f.MemoryType.Match(mt) {
		return false
	}
	created := r.CreatedAt
	accessed := r.LastAccessed
	if !f.CreatedAt.Match(&created) || !f.LastAccessed.Match(&accessed) {
		return false
	}
	if !f.EventDate.Match(r.EventDate) {
		return false
	}
	if !f.MemoryHash.Match(r.MemoryHash) {
		return false
	}
	return f.DiscreteMemoryExtracted.Match(r.DiscreteMemoryExtracted)
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
