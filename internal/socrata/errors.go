package socrata

import "errors"

var (
	// ErrSourceUnavailable marks upstream outages: circuit open, exhausted
	// retries, or non-retryable HTTP failures.
	ErrSourceUnavailable = errors.New("source_unavailable")
	// ErrRateLimited marks admission failures from our own outbound pacing
	// or an upstream 429 that survived retries.
	ErrRateLimited = errors.New("source_rate_limited")
)
