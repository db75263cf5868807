package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/em-ech/siftopsv1-sub000/internal/contextutil"
	"github.com/em-ech/siftopsv1-sub000/internal/ranking"
	"github.com/em-ech/siftopsv1-sub000/internal/service"
)

const (
	// TenantHeader selects the tenant a request acts on.
	TenantHeader  = "X-Tenant-ID"
	DefaultTenant = "default"

	maxBodyBytes = 8 << 20
	// retryAfterSeconds is advertised on retryable upstream failures.
	retryAfterSeconds = 5
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
	// Field names the offending input for validation errors.
	Field string `json:"field,omitempty"`
	// Retryable is set when repeating the request later may succeed.
	Retryable bool `json:"retryable,omitempty"`
}

// tenantID reads the tenant from the request header.
func tenantID(r *http.Request) string {
	if t := strings.TrimSpace(r.Header.Get(TenantHeader)); t != "" {
		return t
	}
	return DefaultTenant
}

func isDebug(r *http.Request) bool {
	v := strings.ToLower(r.URL.Query().Get("debug"))
	return v == "true" || v == "1"
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: message,
	})
}

// writeServiceError maps domain errors to HTTP status codes.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)

	var validation *service.ValidationError
	var field *ranking.FieldError
	var upstream *service.UpstreamError
	resp := ErrorResponse{Error: defaultMsg}
	status := http.StatusInternalServerError

	switch {
	case errors.As(err, &validation):
		status, resp.Error, resp.Field = http.StatusBadRequest, validation.Message, validation.Field
	case errors.As(err, &field):
		status, resp.Error, resp.Field = http.StatusBadRequest, field.Message, field.Field
	case errors.Is(err, service.ErrInvalidInput):
		status, resp.Error = http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		status, resp.Error = http.StatusNotFound, err.Error()
	case errors.Is(err, service.ErrInvalidState):
		status, resp.Error = http.StatusConflict, err.Error()
	case errors.As(err, &upstream):
		status, resp.Error, resp.Retryable = http.StatusBadGateway, "Upstream service unavailable", upstream.Retryable
		if upstream.Retryable {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		}
	case errors.Is(err, context.DeadlineExceeded):
		status, resp.Error = http.StatusGatewayTimeout, "Request timed out"
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, defaultMsg, "error", err, "status", status)
	} else {
		logger.WarnContext(ctx, defaultMsg, "error", err, "status", status)
	}
	writeJSON(ctx, w, status, resp)
}
