package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

type fakeSearcher struct {
	got  service.SearchRequest
	resp *service.SearchResponse
	err  error
}

func (f *fakeSearcher) Search(_ context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	f.got = req
	return f.resp, f.err
}

func TestSearchHandler(t *testing.T) {
	lex := 0.8
	pin := &ranking.Directive{Action: ranking.ActionPin}

	tests := []struct {
		name           string
		path           string
		body           string
		searcher       *fakeSearcher
		expectedStatus int
		check          func(t *testing.T, f *fakeSearcher, resp SearchResponse)
	}{
		{
			name: "ranked results",
			path: "/search",
			body: `{"query":"brow gel","category":"brows","top_k":5}`,
			searcher: &fakeSearcher{resp: &service.SearchResponse{
				Outcome:  ranking.OutcomeOK,
				TopScore: 1,
				Results: []service.SearchResult{
					{ItemID: "kit", Title: "Brow kit", SourceID: "shop", Score: 1, Pinned: true, Directive: pin},
					{ItemID: "gel", Title: "Brow gel", SourceID: "shop", Score: 0.7, Lexical: &lex},
				},
			}},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f *fakeSearcher, resp SearchResponse) {
				if f.got.TenantID != "acme" || f.got.Category != "brows" || f.got.TopK != 5 || f.got.Debug {
					t.Errorf("request = %+v", f.got)
				}
				if resp.Outcome != "ok" || len(resp.Results) != 2 {
					t.Fatalf("response = %+v", resp)
				}
				if resp.Results[0].Directive != "pin" || !resp.Results[0].Pinned {
					t.Errorf("first result = %+v", resp.Results[0])
				}
				if resp.Results[1].Lexical == nil || *resp.Results[1].Lexical != lex || resp.Results[1].Semantic != nil {
					t.Errorf("second result = %+v", resp.Results[1])
				}
				if resp.Debug != nil {
					t.Errorf("debug = %+v, want nil", resp.Debug)
				}
			},
		},
		{
			name: "debug and empty results",
			path: "/search?debug=true",
			body: `{"query":"nothing matches"}`,
			searcher: &fakeSearcher{resp: &service.SearchResponse{
				Outcome: ranking.OutcomeNoResults,
				Debug:   &service.SearchDebug{Degraded: []string{"vector"}},
			}},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, f *fakeSearcher, resp SearchResponse) {
				if !f.got.Debug {
					t.Error("debug flag not forwarded")
				}
				if resp.Outcome != "no_results" || resp.Results == nil || len(resp.Results) != 0 {
					t.Errorf("response = %+v", resp)
				}
				if resp.Debug == nil || len(resp.Debug.Degraded) != 1 {
					t.Errorf("debug = %+v", resp.Debug)
				}
			},
		},
		{
			name:           "validation",
			path:           "/search",
			body:           `{"query":""}`,
			searcher:       &fakeSearcher{err: &service.ValidationError{Field: "query", Message: "cannot be empty"}},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "both retrievers down",
			path:           "/search",
			body:           `{"query":"gel"}`,
			searcher:       &fakeSearcher{err: service.Upstream("retrieve", errors.New("down"))},
			expectedStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, NewSearchHandler(tt.searcher), http.MethodPost, tt.path, tt.body)
			if w.Code != tt.expectedStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.expectedStatus, w.Body.String())
			}
			if tt.check == nil {
				return
			}
			var resp SearchResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			tt.check(t, tt.searcher, resp)
		})
	}
}
