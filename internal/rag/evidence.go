package rag

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// maxQuestionTerms bounds the terms used to rank passages.
const maxQuestionTerms = 32

// passageSeparator joins non-adjacent passages of one document.
const passageSeparator = "\n...\n"

// selectPassages picks the passages that share the most terms with the
// question until budget runes are used, and returns them joined in their
// original order together with the best ranked one. Ties keep document order,
// so a question with no matching terms reads the document from the start.
// A passage that no longer fits is skipped so smaller later ones still can.
func selectPassages(passages, terms []string, budget int) (string, string) {
	type candidate struct {
		index int
		text  string
		score int
		runes int
	}
	candidates := make([]candidate, 0, len(passages))
	for i, p := range passages {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		candidates = append(candidates, candidate{
			index: i,
			text:  p,
			score: termOverlap(p, terms),
			runes: utf8.RuneCountInString(p),
		})
	}
	if len(candidates) == 0 {
		return "", ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	lead := candidates[0]
	if lead.runes > budget {
		lead.text = truncateRunes(lead.text, budget)
		return lead.text, lead.text
	}

	chosen := []candidate{lead}
	used := lead.runes
	for _, c := range candidates[1:] {
		if used+c.runes > budget {
			continue
		}
		chosen = append(chosen, c)
		used += c.runes
	}
	sort.Slice(chosen, func(i, j int) bool { return chosen[i].index < chosen[j].index })

	var b strings.Builder
	for i, c := range chosen {
		if i > 0 {
			if c.index == chosen[i-1].index+1 {
				b.WriteString("\n")
			} else {
				b.WriteString(passageSeparator)
			}
		}
		b.WriteString(c.text)
	}
	return b.String(), lead.text
}

// termOverlap counts the distinct terms that occur as words in text.
func termOverlap(text string, terms []string) int {
	if len(terms) == 0 {
		return 0
	}
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(strings.ToLower(text), isWordSeparator) {
		words[w] = struct{}{}
	}
	n := 0
	for _, t := range terms {
		if _, ok := words[t]; ok {
			n++
		}
	}
	return n
}

func isWordSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// excerptSource is the text a citation excerpt is cut from.
func (ev Evidence) excerptSource() string {
	if ev.Lead != "" {
		return ev.Lead
	}
	return ev.Text
}
