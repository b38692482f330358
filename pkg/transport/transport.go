// Package transport moves encoded requests over the wire.
//
// The request executor owns redirects, cookies and auth; a Transport performs
// exactly one exchange per Send.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/ideaspaper/reqkit/internal/filesystem"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/errors"
	"github.com/ideaspaper/reqkit/pkg/proxy"
	"github.com/ideaspaper/reqkit/pkg/timeout"
	"github.com/ideaspaper/reqkit/pkg/tlsconfig"
)

// Flavor names.
const (
	FlavorHTTP1 = "http1"
	FlavorHTTP2 = "http2"
	FlavorH2C   = "h2c"
)

// Request is one fully encoded exchange.
type Request struct {
	Method string
	URL    *url.URL
	Header httputil.Header
	Body   []byte
}

// Response is the raw result of one exchange. Body must be closed.
type Response struct {
	StatusCode int
	Status     string
	Proto      string
	Header     httputil.Header
	Body       io.ReadCloser
}

// Transport sends a single request and returns the response head with an
// unread body.
type Transport interface {
	Name() string
	Send(ctx context.Context, req *Request) (*Response, error)
}

// Config feeds the net/http transports.
type Config struct {
	Proxy    proxy.Policy
	TLS      *tlsconfig.Policy // nil means tlsconfig.New()
	Timeouts timeout.Policy

	PoolMaxIdlePerHost int

	FS filesystem.FileSystem
}

func (c Config) tlsConfig() (*tls.Config, error) {
	p := tlsconfig.New()
	if c.TLS != nil {
		p = *c.TLS
	}
	return p.Config(c.FS)
}

// HTTP wraps a net/http round tripper.
type HTTP struct {
	name      string
	rt        http.RoundTripper
	closeIdle func()
}

var _ Transport = (*HTTP)(nil)

// New builds the transport for flavor, one of FlavorHTTP1, FlavorHTTP2 or FlavorH2C.
func New(flavor string, cfg Config) (*HTTP, error) {
	switch flavor {
	case FlavorHTTP1:
		return NewHTTP1(cfg)
	case "", FlavorHTTP2:
		return NewHTTP2(cfg)
	case FlavorH2C:
		return NewH2C(cfg)
	default:
		return nil, errors.NewConfigError("transport", "unknown transport flavor "+flavor)
	}
}

func baseTransport(cfg Config) (*http.Transport, error) {
	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, err
	}

	connect := cfg.Timeouts.Connect
	if connect <= 0 {
		connect = 30 * time.Second
	}
	idle := cfg.Timeouts.PoolIdle
	if idle <= 0 {
		idle = 90 * time.Second
	}

	return &http.Transport{
		Proxy:           cfg.Proxy.Func(),
		TLSClientConfig: tlsCfg,
		DialContext: (&net.Dialer{
			Timeout:   connect,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.PoolMaxIdlePerHost,
		IdleConnTimeout:       idle,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeouts.Read,
		ExpectContinueTimeout: 1 * time.Second,
	}, nil
}

// NewHTTP1 speaks HTTP/1.1 only.
func NewHTTP1(cfg Config) (*HTTP, error) {
	t, err := baseTransport(cfg)
	if err != nil {
		return nil, err
	}
	t.TLSNextProto = map[string]func(string, *tls.Conn) http.RoundTripper{}
	return &HTTP{name: FlavorHTTP1, rt: t, closeIdle: t.CloseIdleConnections}, nil
}

// NewHTTP2 speaks HTTP/1.1 and negotiates HTTP/2 over TLS through ALPN.
func NewHTTP2(cfg Config) (*HTTP, error) {
	t, err := baseTransport(cfg)
	if err != nil {
		return nil, err
	}
	if err := http2.ConfigureTransport(t); err != nil {
		return nil, errors.NewConfigError("transport", err.Error())
	}
	return &HTTP{name: FlavorHTTP2, rt: t, closeIdle: t.CloseIdleConnections}, nil
}

// NewH2C speaks cleartext HTTP/2 with prior knowledge. Proxies are not
// consulted on this flavor.
func NewH2C(cfg Config) (*HTTP, error) {
	tlsCfg, err := cfg.tlsConfig()
	if err != nil {
		return nil, err
	}
	connect := cfg.Timeouts.Connect
	if connect <= 0 {
		connect = 30 * time.Second
	}
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}

	t := &http2.Transport{
		AllowHTTP:       true,
		TLSClientConfig: tlsCfg,
		IdleConnTimeout: cfg.Timeouts.PoolIdle,
		DialTLSContext: func(ctx context.Context, network, addr string, tc *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		},
	}
	return &HTTP{name: FlavorH2C, rt: t, closeIdle: t.CloseIdleConnections}, nil
}

// Name returns the flavor name.
func (t *HTTP) Name() string { return t.name }

// Send performs one round trip. Redirects are never followed here.
func (t *HTTP) Send(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL.String(), body)
	if err != nil {
		return nil, errors.NewRequestErrorWithURL("build", req.Method, req.URL.String(), err)
	}
	httpReq.Header = req.Header.HTTP()
	if host := req.Header.Get("Host"); host != "" {
		httpReq.Host = host
		httpReq.Header.Del("Host")
	}

	resp, err := t.rt.RoundTrip(httpReq)
	if err != nil {
		return nil, err
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Proto:      resp.Proto,
		Header:     httputil.FromHTTP(resp.Header),
		Body:       resp.Body,
	}, nil
}

// CloseIdleConnections releases pooled connections.
func (t *HTTP) CloseIdleConnections() {
	if t.closeIdle != nil {
		t.closeIdle()
	}
}
