package fsstore

import (
	"context"
	"time"

	"github.com/tearne/abcd-go/abcderr"
)

// backoffBase and backoffCap bound the exponential retry schedule (§9
// "Storage retries"): base 100ms, doubling, capped at 10s, at most
// maxAttempts tries before surfacing an infrastructure error.
const (
	backoffBase   = 100 * time.Millisecond
	backoffCap    = 10 * time.Second
	maxAttempts   = 8
)

// withRetry runs op up to maxAttempts times with exponential backoff,
// returning the last error wrapped as an infrastructure error once the
// budget is exhausted. Only transient I/O is expected to hit this path;
// fsstore's own classified errors (stale generation, already exists,
// system invariant violations) are returned immediately without retry.
func withRetry(ctx context.Context, op func() error) error {
	delay := backoffBase
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return abcderr.Infrastructuref(ctx.Err(), "storage operation cancelled during retry backoff")
			case <-time.After(delay):
			}
			delay *= 2
			if delay > backoffCap {
				delay = backoffCap
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}
	return abcderr.Infrastructuref(lastErr, "storage operation exhausted %d retry attempts", maxAttempts)
}

// isTransient reports whether err looks like a transient local I/O
// failure worth retrying, as opposed to an already-classified abcderr
// error (stale generation, already-exists, system invariant) which
// should propagate immediately.
func isTransient(err error) bool {
	if _, ok := err.(*abcderr.Error); ok {
		return false
	}
	if err == errGenerationAlreadyExists {
		return false
	}
	return true
}
