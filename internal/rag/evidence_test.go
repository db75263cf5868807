package rag

import "testing"

func TestSelectPassages(t *testing.T) {
	tests := []struct {
		name     string
		passages []string
		terms    []string
		budget   int
		wantText string
		wantLead string
	}{
		{
			name:     "no terms keeps document order",
			passages: []string{"alpha", "beta", "gamma"},
			budget:   100,
			wantText: "alpha\nbeta\ngamma",
			wantLead: "alpha",
		},
		{
			name:     "matching passage wins the budget",
			passages: []string{"alpha one", "beta two", "refund window 30 days"},
			terms:    []string{"refund", "window"},
			budget:   30,
			wantText: "alpha one\n...\nrefund window 30 days",
			wantLead: "refund window 30 days",
		},
		{
			name:     "oversized passage is skipped for smaller ones",
			passages: []string{"refund policy", "a very long passage about shipping", "short"},
			terms:    []string{"refund"},
			budget:   20,
			wantText: "refund policy\n...\nshort",
			wantLead: "refund policy",
		},
		{
			name:     "lead longer than budget is truncated",
			passages: []string{"refund window applies"},
			terms:    []string{"refund"},
			budget:   6,
			wantText: "refund",
			wantLead: "refund",
		},
		{
			name:     "blank passages yield nothing",
			passages: []string{" ", ""},
			budget:   10,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, lead := selectPassages(tt.passages, tt.terms, tt.budget)
			if text != tt.wantText || lead != tt.wantLead {
				t.Errorf("selectPassages() = (%q, %q), want (%q, %q)", text, lead, tt.wantText, tt.wantLead)
			}
		})
	}
}

func TestExtractCitations_ExcerptsLeadPassage(t *testing.T) {
	evidence := []Evidence{{Marker: "C1", DocumentID: "d1", Text: "intro\n...\nThe refund window is 30 days.", Lead: "The refund window is 30 days."}}
	got := ExtractCitations("30 days [C1]", evidence)
	if len(got) != 1 || got[0].Excerpt != "The refund window is 30 days." {
		t.Errorf("ExtractCitations() = %+v", got)
	}
}
