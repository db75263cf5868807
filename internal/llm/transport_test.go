package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestStatusError_Retryable(t *testing.T) {
	tests := []struct {
		code int
		want bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusBadGateway, true},
	}
	for _, tt := range tests {
		if got := (&StatusError{Code: tt.code}).Retryable(); got != tt.want {
			t.Errorf("StatusError{%d}.Retryable() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestEndpoint_ErrorBodyTruncated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(strings.Repeat("x", 4*maxErrorBody)))
	}))
	defer server.Close()

	api := endpoint{baseURL: server.URL + "/", apiKey: "secret", http: server.Client()}
	err := api.postJSON(context.Background(), "/v1/anything", map[string]string{"a": "b"}, &struct{}{})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusUnprocessableEntity {
		t.Errorf("Code = %d", se.Code)
	}
	if len(se.Body) != maxErrorBody {
		t.Errorf("Body length = %d, want %d", len(se.Body), maxErrorBody)
	}
}

func TestRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, fastRetry, func() (int, error) {
		calls++
		cancel()
		return 0, errors.New("flaky")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
