package ranking

import (
	"sort"
	"time"
)

const (
	// LexicalWeight and SemanticWeight blend component scores when both are present.
	LexicalWeight  = 0.4
	SemanticWeight = 0.6

	AvailabilityBoost = 0.05
	FreshnessBoost    = 0.03

	// PinnedScore is reported for pinned items; operators assert their relevance.
	PinnedScore = 1.0

	DefaultMinConfidence   = 0.25
	DefaultFreshnessWindow = 30 * 24 * time.Hour
)

// Outcome classifies a ranked result set.
type Outcome string

const (
	OutcomeOK               Outcome = "ok"
	OutcomeNoConfidentMatch Outcome = "no_confident_match"
	OutcomeNoResults        Outcome = "no_results"
)

// Candidate is one fused item with the metadata the heuristics need.
type Candidate struct {
	ItemID      string
	Lexical     *float64
	Semantic    *float64
	Available   *bool
	PublishedAt *time.Time
}

// Result is a ranked item.
type Result struct {
	ItemID    string
	Lexical   *float64
	Semantic  *float64
	Score     float64
	Directive *Directive
	Pinned    bool
}

// Options controls reranking and the confidence gate.
type Options struct {
	TopK            int
	MinConfidence   float64
	FreshnessWindow time.Duration
	Now             time.Time
}

// Ranking is the gated output of Rerank.
type Ranking struct {
	Outcome Outcome
	Results []Result
	// TopScore is the best score seen before gating, zero when nothing ranked.
	TopScore float64
}

// BaseScore blends component scores: the weighted blend when both exist, otherwise the one present.
func BaseScore(lexical, semantic *float64) float64 {
	switch {
	case lexical != nil && semantic != nil:
		return LexicalWeight**lexical + SemanticWeight**semantic
	case semantic != nil:
		return *semantic
	case lexical != nil:
		return *lexical
	default:
		return 0
	}
}

// Rerank applies heuristics and directives, orders the result and applies the confidence gate.
func Rerank(candidates []Candidate, directives map[string]Directive, opts Options) Ranking {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	if opts.FreshnessWindow == 0 {
		opts.FreshnessWindow = DefaultFreshnessWindow
	}

	var pinned, scored []Result
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if _, dup := seen[c.ItemID]; dup {
			continue
		}
		seen[c.ItemID] = struct{}{}

		res := Result{ItemID: c.ItemID, Lexical: c.Lexical, Semantic: c.Semantic}
		score := BaseScore(c.Lexical, c.Semantic)
		if c.Available != nil && *c.Available {
			score += AvailabilityBoost
		}
		if c.PublishedAt != nil && opts.Now.Sub(*c.PublishedAt) <= opts.FreshnessWindow {
			score += FreshnessBoost
		}

		if d, ok := directives[c.ItemID]; ok {
			d := d
			res.Directive = &d
			switch d.Action {
			case ActionExclude:
				continue
			case ActionPin:
				res.Pinned = true
				res.Score = PinnedScore
				pinned = append(pinned, res)
				continue
			case ActionBoost, ActionDemote:
				score *= d.Weight
			}
		}
		res.Score = score
		scored = append(scored, res)
	}

	sort.SliceStable(pinned, func(i, j int) bool {
		a, b := pinned[i].Directive, pinned[j].Directive
		if a.Weight != b.Weight {
			return a.Weight > b.Weight
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return pinned[i].ItemID < pinned[j].ItemID
	})
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ItemID < scored[j].ItemID
	})

	results := append(pinned, scored...)
	if opts.TopK > 0 && len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return Gate(results, opts.MinConfidence)
}

// Gate suppresses a result list whose best score is below minConfidence.
func Gate(results []Result, minConfidence float64) Ranking {
	if len(results) == 0 {
		return Ranking{Outcome: OutcomeNoResults, Results: []Result{}}
	}
	top := results[0].Score
	if top < minConfidence {
		return Ranking{Outcome: OutcomeNoConfidentMatch, Results: []Result{}, TopScore: top}
	}
	return Ranking{Outcome: OutcomeOK, Results: results, TopScore: top}
}
