// Package executor runs a request descriptor through cookies, auth, body
// encoding, the transport and redirect handling, and returns the final
// response.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/response"
	"github.com/ideaspaper/reqkit/pkg/timeout"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

// Policy is the per-call configuration of an execution.
type Policy struct {
	// Cookies is consulted before each hop and updated from Set-Cookie
	// headers. Nil disables cookie handling.
	Cookies *cookies.Store

	Timeouts timeout.Policy
	Auth     auth.Policy

	FollowRedirects bool
	MaxRedirects    int
}

// DefaultPolicy follows up to constants.DefaultMaxRedirects redirects with
// the default timeouts and no cookies or auth.
func DefaultPolicy() Policy {
	return Policy{
		Timeouts:        timeout.Default,
		FollowRedirects: true,
		MaxRedirects:    constants.DefaultMaxRedirects,
	}
}

// Options configures an Executor.
type Options struct {
	// Logger receives state transitions at debug level.
	Logger *slog.Logger

	// OnTransition is called on every state change.
	OnTransition func(from, to State)

	// Encoder renders request bodies.
	Encoder request.Encoder
}

// Executor is safe for concurrent use.
type Executor struct {
	transport transport.Transport
	opts      Options
}

// New creates an Executor sending through t.
func New(t transport.Transport, opts Options) *Executor {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Executor{transport: t, opts: opts}
}

// Transport returns the transport the executor sends through.
func (e *Executor) Transport() transport.Transport { return e.transport }

// Execute sends d and follows redirects according to p. Validation, auth
// and encoding failures are returned before any transport call.
func (e *Executor) Execute(ctx context.Context, d request.Descriptor, p Policy) (*response.Response, error) {
	run := &execution{exec: e, method: d.Method(), state: StateBuilding}

	if err := d.Validate(); err != nil {
		return nil, run.fail(err)
	}

	u := d.URL()
	header := d.Header()
	body := d.Body()
	run.url = u

	if !header.Has(constants.HeaderAuthorization) && !p.Auth.IsNone() {
		if p.Auth.Kind() == auth.KindDigest {
			e.opts.Logger.Debug("digest auth unsupported, no header produced", "url", u.String())
		}
		var err error
		u, body, err = applyAuth(p.Auth, &header, u, body)
		if err != nil {
			return nil, run.fail(err)
		}
	}

	payload, err := e.opts.Encoder.Encode(body)
	if err != nil {
		return nil, run.fail(err)
	}
	if payload.ContentType != "" && !header.Has(constants.HeaderContentType) {
		header.Set(constants.HeaderContentType, payload.ContentType)
	}

	limit, bounded := timeout.Resolve(d.TimeoutOverride(), p.Timeouts)
	method := d.Method()
	data := payload.Data
	redirects := 0

	for {
		run.method, run.url = method, u

		hopHeader := header.Clone()
		mergeCookies(&hopHeader, p.Cookies, u)

		var hopCtx context.Context
		var cancel context.CancelFunc
		if bounded {
			hopCtx, cancel = context.WithTimeout(ctx, limit)
		} else {
			hopCtx, cancel = context.WithCancel(ctx)
		}
		budget := hopBudget(ctx, limit, bounded)

		run.transition(StateAwaitingTransport)
		start := time.Now()
		resp, err := e.transport.Send(hopCtx, &transport.Request{
			Method: method,
			URL:    u,
			Header: hopHeader,
			Body:   data,
		})
		if err != nil {
			mapped := mapSendError(ctx, hopCtx, err, budget, u)
			cancel()
			return nil, run.fail(mapped)
		}
		elapsed := time.Since(start)

		if p.Cookies != nil {
			p.Cookies.StoreAll(resp.Header.Values(constants.HeaderSetCookie), u)
		}

		location := resp.Header.Get(constants.HeaderLocation)
		if !p.FollowRedirects || !response.IsRedirectStatus(resp.StatusCode) || location == "" {
			run.transition(StateDone)
			return response.New(response.Params{
				StatusCode:   resp.StatusCode,
				Status:       resp.Status,
				Proto:        resp.Proto,
				Header:       resp.Header,
				Body:         resp.Body,
				EffectiveURL: u,
				Redirects:    redirects,
				Elapsed:      elapsed,
				Timeout:      budget,
				Release:      cancel,
			}), nil
		}

		discard(resp.Body)
		cancel()

		if redirects >= p.MaxRedirects {
			return nil, run.fail(&errors.RedirectError{Max: p.MaxRedirects, URL: u.String()})
		}
		next, err := u.Parse(location)
		if err != nil {
			return nil, run.fail(errors.NewParseError("invalid Location header "+location, err))
		}
		if next.Scheme != "http" && next.Scheme != "https" {
			return nil, run.fail(errors.NewValidationErrorWithValue("location", next.String(), "redirect to unsupported scheme"))
		}
		redirects++
		run.transition(StateRedirecting)

		switch resp.StatusCode {
		case 301, 302, 303:
			if method != constants.MethodGET && method != constants.MethodHEAD {
				method = constants.MethodGET
			}
			data = nil
			header.Del(constants.HeaderContentType)
			header.Del(constants.HeaderContentLength)
		}
		if !sameHost(u, next) {
			header.Del(constants.HeaderAuthorization)
			header.Del(constants.HeaderCookie)
		}
		u = next
	}
}

// applyAuth places the resolved credential. Query credentials never
// override a parameter the caller already set.
func applyAuth(p auth.Policy, header *httputil.Header, u *url.URL, body request.Body) (*url.URL, request.Body, error) {
	cred, err := p.Resolve()
	if err != nil {
		return u, body, err
	}

	switch cred.Target {
	case auth.TargetHeader:
		header.Set(cred.Name, cred.Value)
	case auth.TargetQuery:
		if u.Query().Has(cred.Name) {
			break
		}
		pair := url.QueryEscape(cred.Name) + "=" + url.QueryEscape(cred.Value)
		if u.RawQuery == "" {
			u.RawQuery = pair
		} else {
			u.RawQuery += "&" + pair
		}
	case auth.TargetBody:
		if body.HasFormKey(cred.Name) {
			break
		}
		kind := body.Kind()
		if kind != request.BodyEmpty && kind != request.BodyForm {
			return u, body, errors.NewAuthError(p.Kind().String(), "body credentials need a form or empty body, got "+kind.String())
		}
		body, err = body.WithFormPair(cred.Name, cred.Value)
		if err != nil {
			return u, body, err
		}
	}
	return u, body, nil
}

// mergeCookies combines the caller's Cookie header with the store's entries
// for u. Names the caller set win.
func mergeCookies(header *httputil.Header, store *cookies.Store, u *url.URL) {
	if store == nil {
		return
	}
	matched := store.Match(u)
	if len(matched) == 0 {
		return
	}

	caller := header.Get(constants.HeaderCookie)
	taken := make(map[string]bool)
	var parts []string
	if caller != "" {
		parts = append(parts, caller)
		for _, pair := range strings.Split(caller, ";") {
			name, _, _ := strings.Cut(strings.TrimSpace(pair), "=")
			taken[name] = true
		}
	}
	for _, c := range matched {
		if taken[c.Name] {
			continue
		}
		taken[c.Name] = true
		parts = append(parts, c.Name+"="+c.Value)
	}
	header.Set(constants.HeaderCookie, strings.Join(parts, "; "))
}

// hopBudget is the time one hop may take: the resolved limit, or what is
// left of the caller's deadline when that expires first.
func hopBudget(ctx context.Context, limit time.Duration, bounded bool) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	if left := time.Until(dl); !bounded || left < limit {
		return max(left, 0)
	}
	return limit
}

func mapSendError(parent, hop context.Context, err error, limit time.Duration, u *url.URL) error {
	if parent.Err() != nil && errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", errors.ErrCanceled, context.Cause(parent))
	}
	if errors.Is(hop.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError(limit, u.String())
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return errors.NewTimeoutError(limit, u.String())
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", errors.ErrCanceled, err)
	}
	if errors.Is(err, errors.ErrConfig) {
		return err
	}
	return errors.NewNetworkError("send", u.String(), err)
}

func sameHost(a, b *url.URL) bool {
	return strings.EqualFold(a.Host, b.Host)
}

// discard drains a bounded amount of an intermediate body so the
// connection can be reused.
func discard(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 64<<10))
	_ = body.Close()
}
