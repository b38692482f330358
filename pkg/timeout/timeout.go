// Package timeout resolves the deadline applied to a single exchange.
package timeout

import (
	"net/http"
	"time"

	"github.com/ideaspaper/reqkit/internal/constants"
)

// Policy groups the timeouts a client or a single request can configure.
// A zero field is unset.
//
// The effective deadline is Overall when set, otherwise Connect+Read when
// both are set, otherwise none. Clients layer their fields over Default,
// so tuning Connect alone keeps the default Overall.
type Policy struct {
	Overall  time.Duration
	Connect  time.Duration
	Read     time.Duration
	Write    time.Duration
	PoolIdle time.Duration

	unlimited bool
}

// Default is used when neither the request nor the client sets a policy.
var Default = Policy{
	Overall:  constants.DefaultTimeout,
	Connect:  constants.DefaultConnectTimeout,
	PoolIdle: constants.DefaultPoolIdle,
}

// Unlimited returns a policy that explicitly has no deadline.
func Unlimited() Policy {
	return Policy{unlimited: true}
}

// Quick suits health checks and cheap lookups.
func Quick() Policy {
	return Policy{
		Overall:  5 * time.Second,
		Connect:  2 * time.Second,
		Read:     3 * time.Second,
		Write:    3 * time.Second,
		PoolIdle: 30 * time.Second,
	}
}

// Long suits uploads and slow batch endpoints.
func Long() Policy {
	return Policy{
		Overall:  300 * time.Second,
		Connect:  30 * time.Second,
		Read:     270 * time.Second,
		Write:    270 * time.Second,
		PoolIdle: 300 * time.Second,
	}
}

// Streaming has no overall deadline so long-lived bodies are not cut off.
func Streaming() Policy {
	return Policy{
		Connect:   10 * time.Second,
		Read:      60 * time.Second,
		Write:     60 * time.Second,
		PoolIdle:  90 * time.Second,
		unlimited: true,
	}
}

// IsZero reports whether no field is set.
func (p Policy) IsZero() bool {
	return p == Policy{}
}

// IsUnlimited reports whether the policy was built to have no deadline.
func (p Policy) IsUnlimited() bool {
	return p.unlimited && p.Overall == 0
}

// Effective returns the deadline this policy implies and whether there is one.
func (p Policy) Effective() (time.Duration, bool) {
	switch {
	case p.Overall > 0:
		return p.Overall, true
	case p.unlimited:
		return 0, false
	case p.Connect > 0 && p.Read > 0:
		return p.Connect + p.Read, true
	default:
		return 0, false
	}
}

// Merge returns p with every set field of other overriding it.
func (p Policy) Merge(other Policy) Policy {
	if other.Overall > 0 {
		p.Overall = other.Overall
	}
	if other.Connect > 0 {
		p.Connect = other.Connect
	}
	if other.Read > 0 {
		p.Read = other.Read
	}
	if other.Write > 0 {
		p.Write = other.Write
	}
	if other.PoolIdle > 0 {
		p.PoolIdle = other.PoolIdle
	}
	if other.unlimited {
		p.unlimited = true
	}
	return p
}

// Resolve picks the deadline for one exchange: the per-request override
// first, then the client policy, then Default.
func Resolve(override *time.Duration, client Policy) (time.Duration, bool) {
	if override != nil {
		if *override <= 0 {
			return 0, false
		}
		return *override, true
	}
	if client.IsZero() {
		return Default.Effective()
	}
	return client.Effective()
}

// Reasonable reports whether d is positive and under an hour.
func Reasonable(d time.Duration) bool {
	return d > 0 && d < time.Hour
}

// ForMethod suggests a deadline for a request with the given method.
func ForMethod(method string, hasBody bool) time.Duration {
	switch method {
	case http.MethodGet, http.MethodHead:
		if hasBody {
			return 60 * time.Second
		}
		return 30 * time.Second
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return 120 * time.Second
	case http.MethodDelete:
		return 60 * time.Second
	default:
		return 30 * time.Second
	}
}
