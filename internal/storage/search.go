package storage

import (
	"strings"
)

// MatchesSearch reports whether any whitespace-separated term of query occurs
// in the answer's title, content, category or keywords. A blank query matches
// every answer.
func MatchesSearch(a Answer, query string) bool {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return true
	}

	parts := make([]string, 0, 3+len(a.Keywords))
	parts = append(parts, a.Title, a.Content, a.Category)
	parts = append(parts, a.Keywords...)
	text := strings.ToLower(strings.Join(parts, " "))

	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func filterSearch(answers []Answer, query string) []Answer {
	var out []Answer
	for _, a := range answers {
		if MatchesSearch(a, query) {
			out = append(out, a)
		}
	}
	return out
}
