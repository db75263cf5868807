package rag

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// markerGroup matches [C1] and grouped forms like [C1, C3].
var markerGroup = regexp.MustCompile(`\[\s*(C\d+(?:\s*,\s*C\d+)*)\s*\]`)

// ExtractCitations resolves the markers in answer against evidence.
// Markers are deduplicated in first-seen order; markers with no matching
// evidence entry are dropped.
func ExtractCitations(answer string, evidence []Evidence) []Citation {
	citations := []Citation{}
	seen := make(map[int]struct{})
	for _, group := range markerGroup.FindAllStringSubmatch(answer, -1) {
		for _, marker := range strings.Split(group[1], ",") {
			n, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(marker), "C"))
			if err != nil || n < 1 || n > len(evidence) {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}

			ev := evidence[n-1]
			citations = append(citations, Citation{
				Marker:     ev.Marker,
				DocumentID: ev.DocumentID,
				Title:      ev.Title,
				URL:        ev.URL,
				SourceID:   ev.SourceID,
				Excerpt:    Excerpt(ev.excerptSource(), MaxExcerptRunes),
			})
		}
	}
	return citations
}

// Excerpt returns at most limit runes of text, cut at a word boundary when one
// is available and marked with an ellipsis when shortened.
func Excerpt(text string, limit int) string {
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	runes := []rune(text)
	cut := string(runes[:limit-1])
	if i := strings.LastIndexByte(cut, ' '); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "…"
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func markerFor(i int) string {
	return "C" + strconv.Itoa(i+1)
}
