package mnemo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringFilterMatch(t *testing.T) {
	var nilFilter *StringFilter
	assert.True(t, nilFilter.Match("anything"))

	assert.True(t, (&StringFilter{Eq: "a"}).Match("a"))
	assert.False(t, (&StringFilter{Eq: "a"}).Match("b"))
	assert.False(t, (&StringFilter{Ne: "a"}).Match("a"))
	assert.True(t, (&StringFilter{AnyOf: []string{"a", "b"}}).Match("b"))
	assert.False(t, (&StringFilter{AnyOf: []string{"a", "b"}}).Match("c"))
	assert.False(t, (&StringFilter{NoneOf: []string{"a"}}).Match("a"))
}

func TestTagFilterMatch(t *testing.T) {
	tags := []string{"travel", "food"}
	assert.True(t, (&TagFilter{AnyOf: []string{"food"}}).Match(tags))
	assert.False(t, (&TagFilter{AnyOf: []string{"music"}}).Match(tags))
	assert.False(t, (&TagFilter{NoneOf: []string{"travel"}}).Match(tags))
	assert.True(t, (&TagFilter{AnyOf: []string{"food"}, NoneOf: []string{"music"}}).Match(tags))
}

func TestTimeFilterMatch(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	before := base.Add(-time.Hour)
	after := base.Add(time.Hour)

	assert.True(t, (&TimeFilter{Gt: &before}).Match(&base))
	assert.False(t, (&TimeFilter{Gt: &base}).Match(&base))
	assert.True(t, (&TimeFilter{Gte: &base}).Match(&base))
	assert.True(t, (&TimeFilter{Lte: &base}).Match(&base))
	assert.False(t, (&TimeFilter{Lt: &base}).Match(&base))
	assert.True(t, (&TimeFilter{Between: []*time.Time{&before, &after}}).Match(&base))
	// Between is inclusive on both ends.
	assert.True(t, (&TimeFilter{Between: []*time.Time{&base, &after}}).Match(&base))
	assert.False(t, (&TimeFilter{Eq: &after}).Match(&base))

	// A set filter never matches a missing value.
	assert.False(t, (&TimeFilter{Gt: &before}).Match(nil))
	var empty *TimeFilter
	assert.True(t, empty.Match(nil))
}

func TestTimeFilterValidate(t *testing.T) {
	now := time.Now()
	require.Error(t, (&TimeFilter{Between: []*time.Time{&now}}).Validate())
	require.NoError(t, (&TimeFilter{Between: []*time.Time{&now, &now}}).Validate())
}

func TestMemoryTypeFilterValidate(t *testing.T) {
	require.NoError(t, (&MemoryTypeFilter{Eq: MemoryTypeSemantic}).Validate())
	err := (&MemoryTypeFilter{Eq: "procedural"}).Validate()
	require.Error(t, err)
	assert.Equal(t, KindInvalidInput, ErrorKind(err))
}

func TestTriStateFilterMatch(t *testing.T) {
	// An unset record flag counts as "f".
	assert.True(t, (&TriStateFilter{Eq: TriFalse}).Match(""))
	assert.False(t, (&TriStateFilter{Eq: TriTrue}).Match(""))
	assert.True(t, (&TriStateFilter{Eq: TriTrue}).Match(TriTrue))

	err := (&TriStateFilter{Eq: "maybe"}).Validate()
	require.Error(t, err)
}

func TestFiltersMatchRecord(t *testing.T) {
	created := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	record := &MemoryRecord{
		SessionID:  "s1",
		UserID:     "u1",
		Namespace:  "ns",
		MemoryType: MemoryTypeSemantic,
		Topics:     []string{"travel"},
		CreatedAt:  created,
	}

	assert.True(t, (&Filters{
		SessionID:  &StringFilter{Eq: "s1"},
		UserID:     &StringFilter{AnyOf: []string{"u1", "u2"}},
		Topics:     &TagFilter{AnyOf: []string{"travel"}},
		MemoryType: &MemoryTypeFilter{Eq: MemoryTypeSemantic},
	}).Match(record))

	assert.False(t, (&Filters{Namespace: &StringFilter{Ne: "ns"}}).Match(record))
	assert.False(t, (&Filters{MemoryType: &MemoryTypeFilter{Eq: MemoryTypeEpisodic}}).Match(record))

	// Typeless records count as messages.
	assert.True(t, (&Filters{MemoryType: &MemoryTypeFilter{Eq: MemoryTypeMessage}}).Match(&MemoryRecord{}))

	var none *Filters
	assert.True(t, none.Match(record))
}

func TestSearchRequestValidate(t *testing.T) {
	req := &SearchRequest{Text: "hello"}
	require.NoError(t, req.Validate())
	assert.Equal(t, DefaultSearchLimit, req.Limit)

	require.Error(t, (&SearchRequest{Text: "x", Limit: MaxSearchLimit + 1}).Validate())
	require.Error(t, (&SearchRequest{Text: "x", Offset: -1}).Validate())

	// No text and no filters is rejected; filters alone are fine.
	require.Error(t, (&SearchRequest{}).Validate())
	require.NoError(t, (&SearchRequest{
		Filters: Filters{UserID: &StringFilter{Eq: "u1"}},
	}).Validate())

	require.Error(t, (&SearchRequest{
		Filters: Filters{MemoryType: &MemoryTypeFilter{Eq: "bogus"}},
	}).Validate())
}
