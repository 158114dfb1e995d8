package redisvec

import (
	"fmt"
	"strings"
	"time"

	"github.com/mnemo-ai/mnemo"
)

// filterExpression renders the structured filters as a RediSearch query
// string. All clauses are ANDed; an empty filter set yields the match-all
// query "*".
func filterExpression(filters *mnemo.Filters) string {
	if filters == nil {
		return "*"
	}
	var parts []string

	appendString := func(field string, f *mnemo.StringFilter) {
		if f.IsZero() {
			return
		}
		if f.Eq != "" {
			parts = append(parts, tagClause(field, []string{f.Eq}, false))
		}
		if f.Ne != "" {
			parts = append(parts, tagClause(field, []string{f.Ne}, true))
		}
		if len(f.AnyOf) > 0 {
			parts = append(parts, tagClause(field, f.AnyOf, false))
		}
		if len(f.NoneOf) > 0 {
			parts = append(parts, tagClause(field, f.NoneOf, true))
		}
	}
	appendString("session_id", filters.SessionID)
	appendString("namespace", filters.Namespace)
	appendString("user_id", filters.UserID)
	appendString("memory_hash", filters.MemoryHash)

	appendTags := func(field string, f *mnemo.TagFilter) {
		if f.IsZero() {
			return
		}
		if len(f.AnyOf) > 0 {
			parts = append(parts, tagClause(field, f.AnyOf, false))
		}
		if len(f.NoneOf) > 0 {
			parts = append(parts, tagClause(field, f.NoneOf, true))
		}
	}
	appendTags("topics", filters.Topics)
	appendTags("entities", filters.Entities)

	if !filters.MemoryType.IsZero() {
		values := make([]string, 0, len(filters.MemoryType.AnyOf)+1)
		if filters.MemoryType.Eq != "" {
			values = append(values, string(filters.MemoryType.Eq))
		}
		for _, t := range filters.MemoryType.AnyOf {
			values = append(values, string(t))
		}
		parts = append(parts, tagClause("memory_type", values, false))
	}

	if !filters.DiscreteMemoryExtracted.IsZero() {
		parts = append(parts, tagClause("discrete_memory_extracted",
			[]string{string(filters.DiscreteMemoryExtracted.Eq)}, false))
	}

	appendTime := func(field string, f *mnemo.TimeFilter) {
		if clause := timeClause(field, f); clause != "" {
			parts = append(parts, clause)
		}
	}
	appendTime("created_at", filters.CreatedAt)
	appendTime("last_accessed", filters.LastAccessed)
	appendTime("event_date", filters.EventDate)

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

// tagClause renders @field:{a|b}, negated with a leading minus.
func tagClause(field string, values []string, negate bool) string {
	escaped := make([]string, len(values))
	for i, v := range values {
		escaped[i] = escapeTag(v)
	}
	clause := fmt.Sprintf("@%s:{%s}", field, strings.Join(escaped, "|"))
	if negate {
		return "-" + clause
	}
	return clause
}

// timeClause renders numeric range syntax over unix seconds. Exclusive
// bounds use the RediSearch paren prefix.
func timeClause(field string, f *mnemo.TimeFilter) string {
	if f.IsZero() {
		return ""
	}
	min, max := "-inf", "+inf"
	unix := func(t *time.Time) string { return fmt.Sprintf("%d", t.Unix()) }
	if f.Eq != nil {
		min, max = unix(f.Eq), unix(f.Eq)
	}
	if f.Gt != nil {
		min = "(" + unix(f.Gt)
	}
	if f.Gte != nil {
		min = unix(f.Gte)
	}
	if f.Lt != nil {
		max = "(" + unix(f.Lt)
	}
	if f.Lte != nil {
		max = unix(f.Lte)
	}
	if len(f.Between) == 2 {
		min, max = unix(f.Between[0]), unix(f.Between[1])
	}
	return fmt.Sprintf("@%s:[%s %s]", field, min, max)
}

// tagSpecials are the characters RediSearch treats as syntax inside tag
// values.
const tagSpecials = ",.<>{}[]\"':;!@#$%^&*()-+=~| /\\"

func escapeTag(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if strings.ContainsRune(tagSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
