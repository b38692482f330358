package client

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/pkg/auth"
	"github.com/ideaspaper/reqkit/pkg/request"
	"github.com/ideaspaper/reqkit/pkg/response"
)

// RequestBuilder accumulates a request. The first error any method hits is
// kept and returned by Build and Send; later calls are ignored.
type RequestBuilder struct {
	client *Client
	desc   request.Descriptor
	auth   *auth.Policy
	err    error
}

func (b *RequestBuilder) apply(fn func(d request.Descriptor) (request.Descriptor, error)) *RequestBuilder {
	if b.err != nil {
		return b
	}
	b.desc, b.err = fn(b.desc)
	return b
}

func (b *RequestBuilder) set(fn func(d request.Descriptor) request.Descriptor) *RequestBuilder {
	return b.apply(func(d request.Descriptor) (request.Descriptor, error) { return fn(d), nil })
}

// Header sets name to value.
func (b *RequestBuilder) Header(name, value string) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithHeader(name, value) })
}

// Headers sets every entry of h, in key order.
func (b *RequestBuilder) Headers(h map[string]string) *RequestBuilder {
	for _, name := range slices.Sorted(maps.Keys(h)) {
		b.Header(name, h[name])
	}
	return b
}

func (b *RequestBuilder) ContentType(ct string) *RequestBuilder {
	return b.Header(constants.HeaderContentType, ct)
}

func (b *RequestBuilder) UserAgent(ua string) *RequestBuilder {
	return b.Header(constants.HeaderUserAgent, ua)
}

func (b *RequestBuilder) Accept(accept string) *RequestBuilder {
	return b.Header(constants.HeaderAccept, accept)
}

// Query appends key=value to the URL.
func (b *RequestBuilder) Query(key, value string) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithQuery(key, value) })
}

// JSON sends v as application/json.
func (b *RequestBuilder) JSON(v any) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithBody(request.JSON(v)) })
}

func (b *RequestBuilder) Text(s string) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithBody(request.Text(s)) })
}

func (b *RequestBuilder) Bytes(data []byte) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithBody(request.Bytes(data)) })
}

// Form appends one url-encoded field. It fails when another body kind was
// already set.
func (b *RequestBuilder) Form(key, value string) *RequestBuilder {
	return b.apply(func(d request.Descriptor) (request.Descriptor, error) {
		body, err := d.Body().WithFormPair(key, value)
		if err != nil {
			return d, err
		}
		return d.WithBody(body), nil
	})
}

// Multipart replaces the body with parts.
func (b *RequestBuilder) Multipart(parts ...request.Part) *RequestBuilder {
	return b.set(func(d request.Descriptor) request.Descriptor { return d.WithBody(request.Multipart(parts...)) })
}

// BasicAuth authenticates this request only. The password is optional.
func (b *RequestBuilder) BasicAuth(username string, password ...string) *RequestBuilder {
	pass := ""
	if len(password) > 0 {
		pass = password[0]
	}
	return b.Auth(auth.Basic(username, pass))
}

func (b *RequestBuilder) BearerAuth(token string) *RequestBuilder {
	return b.Auth(auth.Bearer(token))
}

// Auth overrides the client's auth policy for this request.
func (b *RequestBuilder) Auth(p auth.Policy) *RequestBuilder {
	if b.err == nil {
		b.auth = &p
	}
	return b
}

// Timeout sets a per-request deadline; zero means none.
func (b *RequestBuilder) Timeout(d time.Duration) *RequestBuilder {
	return b.set(func(desc request.Descriptor) request.Descriptor { return desc.WithTimeout(d) })
}

// Build returns the descriptor that Send would execute.
func (b *RequestBuilder) Build() (request.Descriptor, error) {
	if b.err != nil {
		return request.Descriptor{}, b.err
	}
	d := b.client.prepare(b.desc)
	if err := d.Validate(); err != nil {
		return request.Descriptor{}, err
	}
	return d, nil
}

// Send builds and executes the request.
func (b *RequestBuilder) Send(ctx context.Context) (*response.Response, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.client.policy
	if b.auth != nil {
		p.Auth = *b.auth
	}
	return b.client.do(ctx, b.desc, p)
}
