package domain

import "strings"

// QueryVariantSet is an ordered list of normalized query strings. Element 0 is
// always the normalized anchor query, regardless of expansion outcome.
type QueryVariantSet struct {
	Variants []string
}

// Anchor returns the normalized original query.
func (s QueryVariantSet) Anchor() string {
	if len(s.Variants) == 0 {
		return ""
	}
	return s.Variants[0]
}

// NormalizeQuery trims leading/trailing whitespace, collapses internal
// whitespace runs to single spaces, and truncates to maxLen runes. The result
// is part of the expansion cache-key contract: changing this function requires
// bumping the expansion logic version.
func NormalizeQuery(raw string, maxLen int) string {
	normalized := strings.Join(strings.Fields(raw), " ")
	if maxLen > 0 {
		runes := []rune(normalized)
		if len(runes) > maxLen {
			normalized = string(runes[:maxLen])
		}
	}
	return normalized
}
