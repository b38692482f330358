package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/ideaspaper/reqkit/pkg/transport"
)

// RateLimit delays requests so no more than rps are sent per second, with
// bursts of up to burst. Waiting is bounded by ctx.
func RateLimit(rps float64, burst int) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return func(next transport.Transport) transport.Transport {
		return Wrap(next, func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// The limiter refuses waits that would outlive the deadline.
				return nil, context.DeadlineExceeded
			}
			return next.Send(ctx, req)
		})
	}
}
