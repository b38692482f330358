package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

// LogOptions controls what Logging records.
type LogOptions struct {
	// Headers includes request and response headers in the log records.
	Headers bool
}

// Logging logs every exchange at debug level, tagging both records with a
// fresh request_id. Credential headers are redacted.
func Logging(logger *slog.Logger, opts LogOptions) Middleware {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next transport.Transport) transport.Transport {
		return Wrap(next, func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			log := logger.With("request_id", uuid.NewString())

			attrs := []any{"method", req.Method, "url", req.URL.String(), "transport", next.Name()}
			if opts.Headers {
				attrs = append(attrs, "headers", redact(req.Header))
			}
			log.DebugContext(ctx, "sending request", attrs...)

			start := time.Now()
			resp, err := next.Send(ctx, req)
			elapsed := time.Since(start)
			if err != nil {
				log.DebugContext(ctx, "request failed", "elapsed", elapsed, "error", err)
				return nil, err
			}

			attrs = []any{"status", resp.StatusCode, "elapsed", elapsed}
			if opts.Headers {
				attrs = append(attrs, "headers", redact(resp.Header))
			}
			log.DebugContext(ctx, "received response", attrs...)
			return resp, nil
		})
	}
}

var sensitive = []string{
	constants.HeaderAuthorization,
	constants.HeaderProxyAuth,
	constants.HeaderCookie,
	constants.HeaderSetCookie,
}

func redact(h httputil.Header) map[string]string {
	out := make(map[string]string, h.Len())
	for name, value := range h.All() {
		for _, s := range sensitive {
			if strings.EqualFold(name, s) {
				value = "[REDACTED]"
				break
			}
		}
		if prev, ok := out[name]; ok {
			value = prev + ", " + value
		}
		out[name] = value
	}
	return out
}
