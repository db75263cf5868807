package storage

import (
	"encoding/binary"
	"math"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// termStats are the corpus statistics of one tenant, so that BM25 scores
// never depend on another tenant's chunks.
type termStats struct {
	rows    int     // chunks owned by the tenant
	avgLen  float64 // mean tokens per chunk
	docFreq []int   // per phrase, tenant chunks containing it
}

// phraseHits decodes a matchinfo(..., 'pcx') blob of a one-column table into
// the hits of each phrase in the current row. Returns nil when malformed.
func phraseHits(matchinfo []byte) []int {
	if len(matchinfo) < 8 || len(matchinfo)%4 != 0 {
		return nil
	}
	v := make([]uint32, len(matchinfo)/4)
	for i := range v {
		v[i] = binary.NativeEndian.Uint32(matchinfo[i*4:])
	}

	phrases, cols := int(v[0]), int(v[1])
	if cols != 1 || len(v) < 2+3*phrases {
		return nil
	}
	tf := make([]int, phrases)
	for p := range tf {
		tf[p] = int(v[2+3*p])
	}
	return tf
}

// bm25 scores a row of rowLen tokens holding tf[p] hits of phrase p.
func bm25(tf []int, rowLen int, st termStats) float64 {
	avg := st.avgLen
	if avg <= 0 {
		avg = 1
	}
	norm := 1 - bm25B + bm25B*float64(rowLen)/avg

	var score float64
	for p, hits := range tf {
		if hits == 0 || p >= len(st.docFreq) {
			continue
		}
		df := float64(st.docFreq[p])
		idf := math.Log((float64(st.rows)-df+0.5)/(df+0.5) + 1)
		score += idf * float64(hits) * (bm25K1 + 1) / (float64(hits) + bm25K1*norm)
	}
	return score
}

// tokenCount counts the tokens the FTS4 simple tokenizer produces for text:
// runs of ASCII letters, digits and non-ASCII bytes.
// It is registered as the SQL function fts_tokens on every connection.
func tokenCount(text string) int {
	n := 0
	inToken := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		isToken := c >= 0x80 || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
		if isToken && !inToken {
			n++
		}
		inToken = isToken
	}
	return n
}
