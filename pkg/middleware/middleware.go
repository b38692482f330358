// Package middleware wraps transports with cross-cutting behavior.
package middleware

import (
	"context"

	"github.com/ideaspaper/reqkit/pkg/transport"
)

// Middleware decorates a transport.
type Middleware func(transport.Transport) transport.Transport

// Chain wraps t so that the first middleware is the outermost.
func Chain(t transport.Transport, m ...Middleware) transport.Transport {
	for i := len(m) - 1; i >= 0; i-- {
		if m[i] != nil {
			t = m[i](t)
		}
	}
	return t
}

// SendFunc adapts a function to the send half of a Transport.
type SendFunc func(ctx context.Context, req *transport.Request) (*transport.Response, error)

type wrapped struct {
	name string
	send SendFunc
}

func (w *wrapped) Name() string { return w.name }

func (w *wrapped) Send(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	return w.send(ctx, req)
}

// Wrap builds a transport that keeps next's name and sends through fn.
func Wrap(next transport.Transport, fn SendFunc) transport.Transport {
	return &wrapped{name: next.Name(), send: fn}
}
