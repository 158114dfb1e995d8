package redisvec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mnemo-ai/mnemo"
)

func TestFilterExpressionEmpty(t *testing.T) {
	require.Equal(t, "*", filterExpression(nil))
	require.Equal(t, "*", filterExpression(&mnemo.Filters{}))
}

func TestFilterExpressionStrings(t *testing.T) {
	expr := filterExpression(&mnemo.Filters{
		SessionID: &mnemo.StringFilter{Eq: "s1"},
		UserID:    &mnemo.StringFilter{AnyOf: []string{"u1", "u2"}},
		Namespace: &mnemo.StringFilter{Ne: "ns"},
	})
	require.Equal(t, "@session_id:{s1} -@namespace:{ns} @user_id:{u1|u2}", expr)
}

func TestFilterExpressionTags(t *testing.T) {
	expr := filterExpression(&mnemo.Filters{
		Topics:   &mnemo.TagFilter{AnyOf: []string{"travel"}, NoneOf: []string{"work"}},
		Entities: &mnemo.TagFilter{AnyOf: []string{"Paris"}},
	})
	require.Equal(t, "@topics:{travel} -@topics:{work} @entities:{Paris}", expr)
}

func TestFilterExpressionMemoryTypeAndFlag(t *testing.T) {
	expr := filterExpression(&mnemo.Filters{
		MemoryType:              &mnemo.MemoryTypeFilter{AnyOf: []mnemo.MemoryType{mnemo.MemoryTypeSemantic, mnemo.MemoryTypeEpisodic}},
		DiscreteMemoryExtracted: &mnemo.TriStateFilter{Eq: mnemo.TriFalse},
	})
	require.Equal(t, "@memory_type:{semantic|episodic} @discrete_memory_extracted:{f}", expr)
}

func TestFilterExpressionTimeRanges(t *testing.T) {
	t0 := time.Unix(1000, 0).UTC()
	t1 := time.Unix(2000, 0).UTC()

	expr := filterExpression(&mnemo.Filters{CreatedAt: &mnemo.TimeFilter{Gt: &t0}})
	require.Equal(t, "@created_at:[(1000 +inf]", expr)

	expr = filterExpression(&mnemo.Filters{CreatedAt: &mnemo.TimeFilter{Gte: &t0, Lt: &t1}})
	require.Equal(t, "@created_at:[1000 (2000]", expr)

	expr = filterExpression(&mnemo.Filters{EventDate: &mnemo.TimeFilter{Between: []*time.Time{&t0, &t1}}})
	require.Equal(t, "@event_date:[1000 2000]", expr)

	expr = filterExpression(&mnemo.Filters{LastAccessed: &mnemo.TimeFilter{Eq: &t0}})
	require.Equal(t, "@last_accessed:[1000 1000]", expr)
}

func TestEscapeTag(t *testing.T) {
	require.Equal(t, `session\-1`, escapeTag("session-1"))
	require.Equal(t, `a\.b\@c`, escapeTag("a.b@c"))
	require.Equal(t, "plain", escapeTag("plain"))
}
