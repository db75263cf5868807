package retrieval

import (
	"strings"
	"unicode"
)

// maxMatchTerms bounds the FTS expression for very long queries.
const maxMatchTerms = 32

var lexicalStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "but": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "have": {}, "in": {}, "is": {}, "it": {}, "of": {}, "on": {},
	"or": {}, "the": {}, "to": {}, "was": {}, "were": {}, "with": {},
}

// Terms lowercases text and splits it on anything that is not a letter
// or digit, dropping stopwords and repeats. At most limit terms are kept.
func Terms(text string, limit int) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var terms []string
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if _, stop := lexicalStopwords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		terms = append(terms, f)
		if len(terms) == limit {
			break
		}
	}
	return terms
}

// MatchExpression turns free text into an FTS4 MATCH expression: the distinct
// non-stopword terms, each quoted, joined with OR. Returns "" when no term survives.
func MatchExpression(query string) string {
	terms := Terms(query, maxMatchTerms)
	for i, t := range terms {
		terms[i] = `"` + t + `"`
	}
	return strings.Join(terms, " OR ")
}
