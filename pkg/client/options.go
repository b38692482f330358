package client

import (
	"log/slog"
	"time"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	"github.com/ideaspaper/reqkit/pkg/executor"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/proxy"
	"github.com/ideaspaper/reqkit/pkg/timeout"
	"github.com/ideaspaper/reqkit/pkg/tlsconfig"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

// Option configures a Client.
type Option func(*settings)

type settings struct {
	timeouts timeout.Policy
	defaults httputil.Header
	baseURL  string

	cookies    *cookies.Store
	cookiesSet bool
	proxy      proxy.Policy
	tls        *tlsconfig.Policy
	auth       auth.Policy

	followRedirects bool
	maxRedirects    int

	transportName string
	transport     transport.Transport
	poolMaxIdle   int

	middleware   []middleware.Middleware
	logger       *slog.Logger
	fs           filesystem.FileSystem
	onTransition func(from, to executor.State)
}

// WithTimeout sets the overall deadline for one exchange. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d <= 0 {
			s.timeouts = timeout.Unlimited().Merge(s.timeouts)
			s.timeouts.Overall = 0
			return
		}
		s.timeouts.Overall = d
	}
}

// WithConnectTimeout bounds dialing.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeouts.Connect = d }
}

// WithReadTimeout bounds the wait for response headers.
func WithReadTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeouts.Read = d }
}

// WithWriteTimeout records a write timeout on the policy.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeouts.Write = d }
}

// WithPoolIdleTimeout sets how long idle connections stay pooled.
func WithPoolIdleTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeouts.PoolIdle = d }
}

// WithTimeoutPolicy replaces the whole timeout policy.
func WithTimeoutPolicy(p timeout.Policy) Option {
	return func(s *settings) { s.timeouts = p }
}

// WithDefaultHeader adds a header sent when a request does not set it.
func WithDefaultHeader(name, value string) Option {
	return func(s *settings) { s.defaults.Set(name, value) }
}

// WithUserAgent replaces the default User-Agent.
func WithUserAgent(ua string) Option {
	return WithDefaultHeader("User-Agent", ua)
}

// WithBaseURL resolves relative request URLs against base.
func WithBaseURL(base string) Option {
	return func(s *settings) { s.baseURL = base }
}

// WithCookieStore shares store between clients. Nil disables cookies.
func WithCookieStore(store *cookies.Store) Option {
	return func(s *settings) {
		s.cookies = store
		s.cookiesSet = true
	}
}

// WithProxy routes requests through p.
func WithProxy(p proxy.Policy) Option {
	return func(s *settings) { s.proxy = p }
}

// WithTLS sets the TLS policy.
func WithTLS(p tlsconfig.Policy) Option {
	return func(s *settings) { s.tls = &p }
}

// WithAuth sets the auth policy applied to every request.
func WithAuth(p auth.Policy) Option {
	return func(s *settings) { s.auth = p }
}

// WithMaxRedirects sets the redirect budget.
func WithMaxRedirects(n int) Option {
	return func(s *settings) {
		s.followRedirects = true
		s.maxRedirects = n
	}
}

// WithoutRedirects returns 3xx responses instead of following them.
func WithoutRedirects() Option {
	return func(s *settings) { s.followRedirects = false }
}

// WithTransportName selects one of the standard transports: http1, http2 or h2c.
func WithTransportName(name string) Option {
	return func(s *settings) { s.transportName = name }
}

// WithHTTP2PriorKnowledge speaks cleartext HTTP/2 without negotiation.
func WithHTTP2PriorKnowledge() Option {
	return WithTransportName(transport.FlavorH2C)
}

// WithTransport sends through t instead of a standard transport.
func WithTransport(t transport.Transport) Option {
	return func(s *settings) { s.transport = t }
}

// WithPoolMaxIdlePerHost caps idle connections kept per host.
func WithPoolMaxIdlePerHost(n int) Option {
	return func(s *settings) { s.poolMaxIdle = n }
}

// WithMiddleware wraps the transport. The first middleware is outermost.
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(s *settings) { s.middleware = append(s.middleware, m...) }
}

// WithLogger sets the logger shared by the executor and cookie store.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFileSystem sets where multipart files and TLS material are read from.
func WithFileSystem(fsys filesystem.FileSystem) Option {
	return func(s *settings) { s.fs = fsys }
}

// WithStateHook observes executor state transitions.
func WithStateHook(fn func(from, to executor.State)) Option {
	return func(s *settings) { s.onTransition = fn }
}
