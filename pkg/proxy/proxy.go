// Package proxy selects the outbound proxy for a request URL.
package proxy

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Credentials authenticate against the proxy itself.
type Credentials struct {
	Username string
	Password string
}

// Policy describes which proxy, if any, each request goes through.
type Policy struct {
	HTTPProxy  *url.URL
	HTTPSProxy *url.URL

	// Bypass holds substrings; a request whose host or full URL contains
	// any of them goes direct.
	Bypass []string

	// Custom maps an exact host to its own proxy.
	Custom map[string]*url.URL

	Auth *Credentials
}

// Enabled reports whether any proxy is configured.
func (p Policy) Enabled() bool {
	return p.HTTPProxy != nil || p.HTTPSProxy != nil || len(p.Custom) > 0
}

// ShouldBypass reports whether u matches a bypass pattern.
func (p Policy) ShouldBypass(u *url.URL) bool {
	host := u.Hostname()
	full := u.String()
	for _, pattern := range p.Bypass {
		if pattern == "" {
			continue
		}
		if strings.Contains(host, pattern) || strings.Contains(full, pattern) {
			return true
		}
	}
	return false
}

// ForURL returns the proxy for u, or nil when u goes direct.
func (p Policy) ForURL(u *url.URL) *url.URL {
	if p.ShouldBypass(u) {
		return nil
	}
	if proxy, ok := p.Custom[u.Hostname()]; ok {
		return proxy
	}
	switch u.Scheme {
	case "http":
		return p.HTTPProxy
	case "https":
		return p.HTTPSProxy
	default:
		return nil
	}
}

// Func adapts the policy to http.Transport.Proxy. Proxy credentials are
// carried as URL userinfo, which net/http turns into Proxy-Authorization.
func (p Policy) Func() func(*http.Request) (*url.URL, error) {
	return func(req *http.Request) (*url.URL, error) {
		proxy := p.ForURL(req.URL)
		if proxy == nil {
			return nil, nil
		}
		if p.Auth != nil && proxy.User == nil {
			withAuth := *proxy
			withAuth.User = url.UserPassword(p.Auth.Username, p.Auth.Password)
			return &withAuth, nil
		}
		return proxy, nil
	}
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// FromEnv reads HTTP_PROXY, HTTPS_PROXY and NO_PROXY. Unparsable proxy URLs
// are ignored.
func FromEnv(lookup LookupFunc) Policy {
	var p Policy
	if lookup == nil {
		return p
	}
	if v, ok := lookup(constants.EnvHTTPProxy); ok {
		if u, err := parseProxyURL(v); err == nil {
			p.HTTPProxy = u
		}
	}
	if v, ok := lookup(constants.EnvHTTPSProxy); ok {
		if u, err := parseProxyURL(v); err == nil {
			p.HTTPSProxy = u
		}
	}
	if v, ok := lookup(constants.EnvNoProxy); ok {
		p.Bypass = SplitList(v)
	}
	return p
}

// SplitList splits a comma-separated pattern list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Localhost proxies every request through http://localhost:port.
func Localhost(port int) Policy {
	u := &url.URL{Scheme: "http", Host: "localhost:" + strconv.Itoa(port)}
	return Policy{HTTPProxy: u, HTTPSProxy: u}
}

// HostPort proxies every request through http://host:port.
func HostPort(host string, port int) (Policy, error) {
	u, err := parseProxyURL(fmt.Sprintf("http://%s:%d", host, port))
	if err != nil {
		return Policy{}, err
	}
	return Policy{HTTPProxy: u, HTTPSProxy: u}, nil
}

func parseProxyURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.NewConfigError("proxy", fmt.Sprintf("invalid proxy URL %q: %v", raw, err))
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.NewConfigError("proxy", fmt.Sprintf("invalid proxy URL %q: scheme and host are required", raw))
	}
	return u, nil
}
