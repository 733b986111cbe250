//Kunhua Huang 2026

package interceptor

import (
	"context"
	"fmt"

	"github.com/ecstasoy/rpcbind/pkg/protocol"
	"github.com/ecstasoy/rpcbind/pkg/ratelimiter"
)

// RateLimit throttles outgoing invocations. With wait set, callers block
// for a token until ctx ends; otherwise they fail fast with
// ratelimiter.ErrRateLimitExceeded.
func RateLimit(limiter ratelimiter.RateLimiter, wait bool) Interceptor {
	return func(ctx context.Context, req *protocol.Request, invoker Invoker) (*protocol.Response, error) {
		if wait {
			if err := limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: %w", ratelimiter.ErrRateLimitExceeded, err)
			}
		} else if !limiter.Allow(ctx) {
			return nil, ratelimiter.ErrRateLimitExceeded
		}

		return invoker(ctx, req)
	}
}
