package middleware

import (
	"context"

	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

// StaticHeaders sets every header in h that the request does not already carry.
func StaticHeaders(h httputil.Header) Middleware {
	return func(next transport.Transport) transport.Transport {
		return Wrap(next, func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			var missing bool
			for name := range h.All() {
				if !req.Header.Has(name) {
					missing = true
					break
				}
			}
			if !missing {
				return next.Send(ctx, req)
			}

			out := *req
			out.Header = req.Header.Clone()
			for name, value := range h.All() {
				if !req.Header.Has(name) {
					out.Header.Add(name, value)
				}
			}
			return next.Send(ctx, &out)
		})
	}
}
