package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// ModelProbe asks an OpenAI-compatible server which models it serves.
type ModelProbe struct {
	api endpoint
}

// NewModelProbe creates a probe against baseURL with a short timeout.
func NewModelProbe(baseURL string) *ModelProbe {
	return &ModelProbe{api: endpoint{baseURL: baseURL, http: &http.Client{Timeout: 5 * time.Second}}}
}

type modelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// HasModel reports whether model is listed. An empty model only checks
// that the server answers.
func (p *ModelProbe) HasModel(ctx context.Context, model string) (bool, error) {
	var list modelList
	if err := p.api.getJSON(ctx, "/v1/models", &list); err != nil {
		return false, fmt.Errorf("failed to list models: %w", err)
	}
	if model == "" {
		return true, nil
	}
	for _, m := range list.Data {
		if m.ID == model {
			return true, nil
		}
	}
	return false, nil
}
