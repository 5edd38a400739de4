// Package retry wraps calls to the remote store with bounded retries, exponential
// backoff with jitter, a circuit breaker and a caller side timeout race.
//
// Failures are classified into a Kind. Errors created at the boundary with NewError,
// Wrap or FromStatus carry their kind as a go-errors category; untagged errors are
// classified by message keywords (network, timeout, connection, 5xx, rate limit).
// Only Network, Timeout, RateLimit and Server failures are retried; an unrecognized
// failure is not.
//
//	res := retry.Execute(ctx, func(ctx context.Context) ([]Project, error) {
//		return retry.Guard(ctx, breaker, fetch)
//	}, retry.DefaultConfig())
//	if !res.Success {
//		// fall back to cached data
//	}
package retry
