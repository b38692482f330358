// Package client is the high-level entry point: a configured Client plus a
// fluent RequestBuilder on top of the executor.
package client

import (
	"context"
	"log/slog"
	"net/url"
	"sync/atomic"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/cookies"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/executor"
	"github.com/ideaspaper/reqkit/pkg/middleware"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/response"
	"github.com/ideaspaper/reqkit/pkg/timeout"
	"github.com/ideaspaper/reqkit/pkg/transport"
)

// Client is safe for concurrent use.
type Client struct {
	exec     *executor.Executor
	manager  *transport.Manager
	raw      transport.Transport
	policy   executor.Policy
	baseURL  *url.URL
	defaults httputil.Header
	logger   *slog.Logger

	closed atomic.Bool
}

// New builds a client. With no options it follows up to 10 redirects,
// keeps cookies in memory and uses the default timeouts over HTTP/2 with
// HTTP/1.1 fallback. Timeout options adjust single fields of
// timeout.Default; the overall deadline stays unless WithTimeout(0) or an
// unlimited WithTimeoutPolicy removes it.
func New(opts ...Option) (*Client, error) {
	s := &settings{
		timeouts:        timeout.Default,
		defaults:        httputil.NewHeader(constants.HeaderUserAgent, constants.DefaultUserAgent),
		followRedirects: true,
		maxRedirects:    constants.DefaultMaxRedirects,
		logger:          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !s.cookiesSet {
		s.cookies = cookies.New(cookies.WithLogger(s.logger))
	}

	c := &Client{
		defaults: s.defaults,
		logger:   s.logger,
		policy: executor.Policy{
			Cookies:         s.cookies,
			Timeouts:        s.timeouts,
			Auth:            s.auth,
			FollowRedirects: s.followRedirects,
			MaxRedirects:    s.maxRedirects,
		},
	}

	if s.baseURL != "" {
		base, err := url.Parse(s.baseURL)
		if err != nil {
			return nil, errors.NewConfigError("baseURL", err.Error())
		}
		if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
			return nil, errors.NewConfigError("baseURL", "must be an absolute http or https URL")
		}
		c.baseURL = base
	}

	t := s.transport
	if t == nil {
		m, err := transport.StandardManager(transport.Config{
			Proxy:              s.proxy,
			TLS:                s.tls,
			Timeouts:           s.timeouts,
			PoolMaxIdlePerHost: s.poolMaxIdle,
			FS:                 s.fs,
		})
		if err != nil {
			return nil, err
		}
		if s.transportName != "" {
			if err := m.SetDefault(s.transportName); err != nil {
				return nil, err
			}
		}
		if t, err = m.Default(); err != nil {
			return nil, err
		}
		c.manager = m
	}

	c.raw = t
	c.exec = executor.New(middleware.Chain(t, s.middleware...), executor.Options{
		Logger:       s.logger,
		OnTransition: s.onTransition,
		Encoder:      request.Encoder{FS: s.fs},
	})
	return c, nil
}

// Cookies returns the shared cookie store, or nil when cookies are disabled.
func (c *Client) Cookies() *cookies.Store { return c.policy.Cookies }

// Policy returns the execution policy applied to every request.
func (c *Client) Policy() executor.Policy { return c.policy }

// TransportName names the transport requests go through.
func (c *Client) TransportName() string { return c.exec.Transport().Name() }

// Request starts a builder for method and rawURL. A relative URL is resolved
// against the base URL when the request is built.
func (c *Client) Request(method, rawURL string) *RequestBuilder {
	d, err := request.New(method, rawURL)
	return &RequestBuilder{client: c, desc: d, err: err}
}

func (c *Client) Get(rawURL string) *RequestBuilder     { return c.Request(constants.MethodGET, rawURL) }
func (c *Client) Post(rawURL string) *RequestBuilder    { return c.Request(constants.MethodPOST, rawURL) }
func (c *Client) Put(rawURL string) *RequestBuilder     { return c.Request(constants.MethodPUT, rawURL) }
func (c *Client) Delete(rawURL string) *RequestBuilder  { return c.Request(constants.MethodDELETE, rawURL) }
func (c *Client) Patch(rawURL string) *RequestBuilder   { return c.Request(constants.MethodPATCH, rawURL) }
func (c *Client) Head(rawURL string) *RequestBuilder    { return c.Request(constants.MethodHEAD, rawURL) }
func (c *Client) Options(rawURL string) *RequestBuilder { return c.Request(constants.MethodOPTIONS, rawURL) }

// Do executes a pre-built descriptor with the client's policy.
func (c *Client) Do(ctx context.Context, d request.Descriptor) (*response.Response, error) {
	return c.do(ctx, d, c.policy)
}

func (c *Client) do(ctx context.Context, d request.Descriptor, p executor.Policy) (*response.Response, error) {
	if c.closed.Load() {
		return nil, errors.NewConfigError("", "client is closed")
	}
	return c.exec.Execute(ctx, c.prepare(d), p)
}

// prepare resolves d against the base URL and fills default headers.
func (c *Client) prepare(d request.Descriptor) request.Descriptor {
	if u := d.URL(); u != nil && !u.IsAbs() && c.baseURL != nil {
		d = d.WithURL(c.baseURL.ResolveReference(u))
	}
	header := d.Header()
	for name, value := range c.defaults.All() {
		if !header.Has(name) {
			d = d.WithHeader(name, value)
		}
	}
	return d
}

// Close makes later sends fail and releases idle connections.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	if c.manager != nil {
		c.manager.CloseIdleConnections()
	} else if ci, ok := c.raw.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
	return nil
}
