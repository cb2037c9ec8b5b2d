// Package sources contains the upstream source adapters. Each adapter
// fetches raw event records for a scope and performs no persistence; the
// reconciler owns dedup and merge.
package sources

import (
	"fmt"
	"time"
)

// RateLimitError indicates the upstream throttled the request. The
// scheduler treats it as retryable and backs off.
type RateLimitError struct {
	Source     string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limit exceeded, retry after %v", e.Source, e.RetryAfter)
}

// UnauthorizedError indicates a rejected credential. Retrying without
// operator intervention will not help, but the task machinery still
// follows the normal retry path so the failure surfaces in dead letters.
type UnauthorizedError struct {
	Source string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("%s rejected credentials", e.Source)
}

// UnreachableError indicates a transport failure or upstream 5xx.
type UnreachableError struct {
	Source string
	Err    error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Source, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}
