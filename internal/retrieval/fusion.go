package retrieval

import "github.com/em-ech/siftopsv1-sub000/internal/ranking"

// Fuse merges lexical and vector hits by item id, keeping both component
// scores. An item missing from one list has a nil score for that component.
// Duplicate ids within one list keep the higher score.
func Fuse(lexical, vector []Hit) map[string]*ranking.Candidate {
	out := make(map[string]*ranking.Candidate, len(lexical)+len(vector))
	get := func(id string) *ranking.Candidate {
		c, ok := out[id]
		if !ok {
			c = &ranking.Candidate{ItemID: id}
			out[id] = c
		}
		return c
	}

	for _, h := range lexical {
		c := get(h.ItemID)
		if c.Lexical == nil || h.Score > *c.Lexical {
			s := h.Score
			c.Lexical = &s
		}
	}
	for _, h := range vector {
		c := get(h.ItemID)
		if c.Semantic == nil || h.Score > *c.Semantic {
			s := h.Score
			c.Semantic = &s
		}
	}
	return out
}
