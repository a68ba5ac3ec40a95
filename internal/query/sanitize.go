package query

import "strings"

// Sanitize is the wildcard cleanup both planning strategies share:
// bracket the search with "*...*", collapse adjacent wildcards, replace
// '?' with '*' (non-greedy single-char matching is not supported), and
// collapse again. Sanitize is idempotent.
func Sanitize(s string) string {
	s = "*" + s + "*"
	s = collapseStars(s)
	s = strings.ReplaceAll(s, "?", "*")
	return collapseStars(s)
}

func collapseStars(s string) string {
	if !strings.Contains(s, "**") {
		return s
	}
	var sb strings.Builder
	sb.Grow(len(s))
	prevStar := false
	for i := 0; i < len(s); i++ {
		if s[i] == '*' {
			if prevStar {
				continue
			}
			prevStar = true
		} else {
			prevStar = false
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
