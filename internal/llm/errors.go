package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUpstream marks a call that failed after the retry budget was spent,
	// or failed with an error that is never retried.
	ErrUpstream = errors.New("upstream LLM call failed")

	// ErrRateLimited marks a provider rate-limit response (HTTP 429 class).
	ErrRateLimited = errors.New("rate limited")

	// ErrFatalAPI marks auth, billing and quota errors that retrying cannot fix.
	ErrFatalAPI = errors.New("fatal API error")
)

var fatalMarkers = []string{
	"credit balance",
	"quota exceeded",
	"insufficient_quota",
	"billing",
	"invalid api key",
	"invalid_api_key",
	"incorrect api key",
	"authentication",
	"unauthorized",
	"permission denied",
	"401",
	"403",
}

var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"too many requests",
}

// isFatalAPIError reports whether err looks like a non-retryable provider error.
func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFatalAPI) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), fatalMarkers)
}

// isRateLimitError reports whether err is a provider rate-limit response.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()), rateLimitMarkers)
}

// classify tags a raw provider error with ErrFatalAPI or ErrRateLimited.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrFatalAPI), errors.Is(err, ErrRateLimited):
		return err
	case isRateLimitError(err):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case isFatalAPIError(err):
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	default:
		return err
	}
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}
