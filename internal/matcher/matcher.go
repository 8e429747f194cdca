// Package matcher scores catalog answers against a question by keyword
// containment and picks the best one.
package matcher

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/kalambet/folioqa/internal/storage"
)

// Confidence is the coarse strength of a match.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// Points awarded per rule.
const (
	titlePoints      = 100
	keywordPoints    = 10
	categoryPoints   = 20
	answerTypePoints = 15
)

// Tier thresholds. Scores below MinScore are not a match.
const (
	MinScore    = 10
	MediumScore = 25
	HighScore   = 50
)

var placeholderRe = regexp.MustCompile(`\{([^{}]+)\}`)

// Normalize lower-cases question and replaces each {name} token with the
// lower-cased value of the placeholder whose key equals name ignoring case.
// Tokens are replaced in one pass, so substituted values are never rescanned.
// Unknown tokens are left as literal text.
func Normalize(question string, placeholders map[string]string) string {
	q := strings.ToLower(question)
	if len(placeholders) == 0 {
		return q
	}

	keys := make([]string, 0, len(placeholders))
	for k := range placeholders {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lookup := make(map[string]string, len(placeholders))
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, dup := lookup[lk]; !dup {
			lookup[lk] = strings.ToLower(placeholders[k])
		}
	}

	return placeholderRe.ReplaceAllStringFunc(q, func(tok string) string {
		if v, ok := lookup[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}

// Score returns the additive score of a against an already normalized question.
// Empty fields never contribute.
func Score(normalized string, a storage.Answer) int {
	score := 0
	if contains(normalized, a.Title) {
		score += titlePoints
	}
	for _, kw := range a.Keywords {
		if contains(normalized, kw) {
			score += keywordPoints
		}
	}
	if contains(normalized, a.Category) {
		score += categoryPoints
	}
	if contains(normalized, a.AnswerType) {
		score += answerTypePoints
	}
	return score
}

func contains(normalized, field string) bool {
	return field != "" && strings.Contains(normalized, strings.ToLower(field))
}

// Tier maps a score to its confidence. ok is false below MinScore.
func Tier(score int) (c Confidence, ok bool) {
	switch {
	case score >= HighScore:
		return High, true
	case score >= MediumScore:
		return Medium, true
	case score >= MinScore:
		return Low, true
	default:
		return "", false
	}
}

// Match is a winning answer with its score and tier.
type Match struct {
	Answer     storage.Answer
	Score      int
	Confidence Confidence
}

// Best scans answers in order and returns the one with the strictly highest
// score; earlier answers keep the lead on ties. ok is false when answers is
// empty or the best score is below MinScore.
func Best(question string, placeholders map[string]string, answers []storage.Answer) (Match, bool) {
	normalized := Normalize(question, placeholders)

	var best Match
	found := false
	for _, a := range answers {
		s := Score(normalized, a)
		if !found || s > best.Score {
			best = Match{Answer: a, Score: s}
			found = true
		}
	}
	if !found {
		return Match{}, false
	}

	c, ok := Tier(best.Score)
	if !ok {
		return Match{}, false
	}
	best.Confidence = c
	return best, true
}

// AnswerSource supplies the active answers in store order.
type AnswerSource interface {
	ActiveAnswers(ctx context.Context) ([]storage.Answer, error)
}

// Matcher runs Best over the active answers of a store.
type Matcher struct {
	answers AnswerSource
}

func New(answers AnswerSource) *Matcher {
	return &Matcher{answers: answers}
}

// FindBestMatch returns the best active answer for question. A miss is not an
// error: ok is false and err is nil.
func (m *Matcher) FindBestMatch(ctx context.Context, question string, placeholders map[string]string) (Match, bool, error) {
	answers, err := m.answers.ActiveAnswers(ctx)
	if err != nil {
		return Match{}, false, err
	}
	match, ok := Best(question, placeholders, answers)
	return match, ok, nil
}
