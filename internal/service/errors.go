package service

import (
	"errors"
	"fmt"

	"github.com/em-ech/siftopsv1-sub000/internal/storage"
)

var (
	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a requested resource is not found.
	// It is the storage sentinel, so repository misses need no translation.
	ErrNotFound = storage.ErrNotFound
	// ErrInvalidState is returned when an operation is not allowed in the current state,
	// for example asking a question against an unlocked bundle.
	ErrInvalidState = errors.New("invalid state")
	// ErrUpstreamUnavailable is returned when an embedding, index, or generation dependency fails.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrEvidenceInsufficient is returned when the selected sources hold no usable text.
	ErrEvidenceInsufficient = errors.New("evidence insufficient")
)

// ValidationError names the request field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold for validation errors.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// UpstreamError is a failed call to the embedder, a retriever or the generator.
// Retryable means the client may repeat the request later.
type UpstreamError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Is reports a match against ErrUpstreamUnavailable.
func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstreamUnavailable
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Upstream wraps err as a retryable UpstreamError for op. Returns nil for nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Retryable: true, Err: err}
}

// IsRetryable reports whether err is an UpstreamError the caller may retry.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable
}
