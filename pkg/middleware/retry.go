package middleware

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/ideaspaper/reqkit/pkg/transport"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	// Delay is the pause between attempts.
	Delay time.Duration

	// Statuses lists response codes that trigger another attempt.
	Statuses []int
}

// DefaultRetryPolicy retries three times on common transient statuses.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Delay:      200 * time.Millisecond,
		Statuses:   []int{429, 502, 503, 504},
	}
}

// Retry resends a request after a transport error or a listed status.
// The body of a discarded response is closed. Context errors are never retried.
func Retry(p RetryPolicy) Middleware {
	return func(next transport.Transport) transport.Transport {
		return Wrap(next, func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			for attempt := 0; ; attempt++ {
				resp, err := next.Send(ctx, req)
				last := attempt >= p.MaxRetries
				switch {
				case err != nil:
					if last || ctx.Err() != nil {
						return nil, err
					}
				case slices.Contains(p.Statuses, resp.StatusCode) && !last:
					discard(resp)
				default:
					return resp, nil
				}

				if err := sleep(ctx, p.Delay); err != nil {
					return nil, err
				}
			}
		})
	}
}

func discard(resp *transport.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
