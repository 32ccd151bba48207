package llmproxy

import (
	"context"
	"errors"
	"net/http"

	"github.com/cenkalti/backoff/v5"
)

// maxCallAttempts bounds retries on upstream rate-limiting (HTTP 429) and
// overload (HTTP 529) responses, spec.md §4.6.
const maxCallAttempts = 50

// rateLimitError marks an upstream error as retryable; forwarders wrap
// 429/529 responses in this so callWithRetry knows to keep trying instead
// of failing the request immediately.
type rateLimitError struct{ err error }

func (e *rateLimitError) Error() string { return e.err.Error() }
func (e *rateLimitError) Unwrap() error { return e.err }

// RateLimited wraps err to mark it retryable by callWithRetry. Forwarders
// call this when the upstream responds 429 or 529.
func RateLimited(err error) error { return &rateLimitError{err: err} }

type callResult struct {
	result           string
	promptTokens     int64
	completionTokens int64
}

func callWithRetry(ctx context.Context, fwd Forwarder, entry ModelEntry, query string, temperature *float64, maxTokens *int64) (string, int64, int64, error) {
	op := func() (callResult, error) {
		result, promptTokens, completionTokens, err := fwd.Call(ctx, entry, query, temperature, maxTokens)
		if err != nil {
			var rl *rateLimitError
			if errors.As(err, &rl) {
				return callResult{}, err
			}
			return callResult{}, backoff.Permanent(err)
		}
		return callResult{result: result, promptTokens: promptTokens, completionTokens: completionTokens}, nil
	}

	res, err := backoff.Retry(ctx, op, backoff.WithMaxTries(maxCallAttempts))
	if err != nil {
		return "", 0, 0, err
	}
	return res.result, res.promptTokens, res.completionTokens, nil
}

// isRetryableStatus reports whether an HTTP status code from an upstream
// provider should trigger a backoff retry rather than an immediate failure.
func isRetryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status == 529
}
