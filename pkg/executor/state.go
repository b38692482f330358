package executor

import (
	"net/url"
)

// State is a step of one execution. Done and Failed are terminal.
type State int

const (
	StateBuilding State = iota
	StateAwaitingTransport
	StateRedirecting
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateBuilding:
		return "building"
	case StateAwaitingTransport:
		return "awaiting_transport"
	case StateRedirecting:
		return "redirecting"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type execution struct {
	exec   *Executor
	state  State
	method string
	url    *url.URL
}

func (r *execution) transition(to State) {
	from := r.state
	if from.Terminal() {
		return
	}
	r.state = to

	u := ""
	if r.url != nil {
		u = r.url.String()
	}
	r.exec.opts.Logger.Debug("request state",
		"from", from.String(),
		"to", to.String(),
		"method", r.method,
		"url", u,
	)
	if r.exec.opts.OnTransition != nil {
		r.exec.opts.OnTransition(from, to)
	}
}

func (r *execution) fail(err error) error {
	r.transition(StateFailed)
	r.exec.opts.Logger.Debug("request failed", "method", r.method, "error", err)
	return err
}
