package proxy

import "net/url"

// Builder assembles a Policy. The first invalid URL is kept and returned by Build.
type Builder struct {
	policy Policy
	err    error
}

// NewBuilder starts an empty policy.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) parse(raw string, set func(*url.URL)) *Builder {
	if b.err != nil {
		return b
	}
	u, err := parseProxyURL(raw)
	if err != nil {
		b.err = err
		return b
	}
	set(u)
	return b
}

// HTTP sets the proxy for http:// requests.
func (b *Builder) HTTP(raw string) *Builder {
	return b.parse(raw, func(u *url.URL) { b.policy.HTTPProxy = u })
}

// HTTPS sets the proxy for https:// requests.
func (b *Builder) HTTPS(raw string) *Builder {
	return b.parse(raw, func(u *url.URL) { b.policy.HTTPSProxy = u })
}

// All sets the same proxy for both schemes.
func (b *Builder) All(raw string) *Builder {
	return b.parse(raw, func(u *url.URL) {
		b.policy.HTTPProxy = u
		b.policy.HTTPSProxy = u
	})
}

// WithAuth sets a proxy for both schemes with embedded credentials.
func (b *Builder) WithAuth(raw, username, password string) *Builder {
	return b.parse(raw, func(u *url.URL) {
		u.User = url.UserPassword(username, password)
		b.policy.HTTPProxy = u
		b.policy.HTTPSProxy = u
	})
}

// Credentials sets proxy credentials applied to whichever proxy is chosen.
func (b *Builder) Credentials(username, password string) *Builder {
	b.policy.Auth = &Credentials{Username: username, Password: password}
	return b
}

// Bypass adds a pattern that sends matching requests direct.
func (b *Builder) Bypass(pattern string) *Builder {
	b.policy.Bypass = append(b.policy.Bypass, pattern)
	return b
}

// Custom routes requests for host through their own proxy.
func (b *Builder) Custom(host, raw string) *Builder {
	return b.parse(raw, func(u *url.URL) {
		if b.policy.Custom == nil {
			b.policy.Custom = make(map[string]*url.URL)
		}
		b.policy.Custom[host] = u
	})
}

// Build returns the policy or the first error.
func (b *Builder) Build() (Policy, error) {
	if b.err != nil {
		return Policy{}, b.err
	}
	return b.policy, nil
}
