package scoring

import (
	"strings"

	"DecideInbox/internal/domain"
	"DecideInbox/internal/ports"
)

// KeywordFilter applies the operator's include/exclude interest lists.
// Matching is case-insensitive substring matching on title and summary.
type KeywordFilter struct {
	include []string
	exclude []string
}

var _ ports.ItemFilter = (*KeywordFilter)(nil)

// NewKeywordFilter normalizes both lists; blank entries are ignored.
func NewKeywordFilter(include, exclude []string) *KeywordFilter {
	return &KeywordFilter{include: normalizeList(include), exclude: normalizeList(exclude)}
}

// Keywords returns the include list, which doubles as evaluation context.
func (f *KeywordFilter) Keywords() []string {
	return append([]string(nil), f.include...)
}

// Filter drops excluded items and, when an include list exists, items that
// match none of it. Kept items carry their matched keywords in Matched.
func (f *KeywordFilter) Filter(items []domain.RawItem) []domain.RawItem {
	out := make([]domain.RawItem, 0, len(items))
	for _, it := range items {
		text := strings.ToLower(it.Title + " " + it.Summary + " " + strings.Join(it.Tags, " "))

		excluded := false
		for _, kw := range f.exclude {
			if strings.Contains(text, kw) {
				excluded = true
				break
			}
		}
		if excluded {
			continue
		}

		var matched []string
		for _, kw := range f.include {
			if strings.Contains(text, kw) {
				matched = append(matched, kw)
			}
		}
		if len(f.include) > 0 && len(matched) == 0 {
			continue
		}
		it.Matched = matched
		out = append(out, it)
	}
	return out
}

func normalizeList(values []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
