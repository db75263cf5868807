package rag

import (
	"fmt"
	"strings"
)

// systemPrompt constrains the generator to the supplied evidence.
var systemPrompt = "You answer questions using only the numbered evidence provided by the user. " +
	"Do not use outside knowledge. " +
	"Mark every factual claim with the marker of the evidence that supports it, for example [C1] or [C1, C2]. " +
	"If the evidence does not contain the answer, reply with exactly: " + NotFoundSentinel

// buildPrompt returns the system and user messages for a question.
func buildPrompt(question string, evidence []Evidence) (string, string) {
	var b strings.Builder
	b.WriteString("--- Evidence ---\n\n")
	for _, ev := range evidence {
		fmt.Fprintf(&b, "[%s] %s\n", ev.Marker, ev.Title)
		if ev.URL != "" {
			fmt.Fprintf(&b, "Source: %s\n", ev.URL)
		}
		fmt.Fprintf(&b, "%s\n\n", ev.Text)
	}
	b.WriteString("--- End Evidence ---\n\n")
	fmt.Fprintf(&b, "Question: %s", question)
	return systemPrompt, b.String()
}
