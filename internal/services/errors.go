package services

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the retrieval pipeline. Callers can match
// these with errors.Is to decide whether to degrade or propagate.
var (
	// ErrEmbeddingUnavailable means the embedding provider is not configured
	// or is unreachable. Semantic branches degrade to lexical alternatives.
	ErrEmbeddingUnavailable = errors.New("embedding capability unavailable")

	// ErrRateLimited means an upstream provider rejected the request with a
	// rate limit response after retries were exhausted.
	ErrRateLimited = errors.New("upstream rate limit exceeded")

	// ErrInvalidExtraction means the model returned output that does not
	// conform to the expected extraction schema.
	ErrInvalidExtraction = errors.New("invalid extraction output")

	// ErrNotFound means the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// UpstreamError wraps an error from an external provider with the provider
// name and HTTP status for logging.
type UpstreamError struct {
	Provider string
	Status   int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s request failed (status %d): %v", e.Provider, e.Status, e.Err)
	}
	return fmt.Sprintf("%s request failed (status %d)", e.Provider, e.Status)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}
