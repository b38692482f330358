// Package request describes an HTTP request as an immutable value.
package request

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ideaspaper/reqkit/internal/constants"
	"github.com/ideaspaper/reqkit/internal/httputil"
	"github.com/ideaspaper/reqkit/pkg/errors"
)

var validMethods = map[string]bool{
	constants.MethodGET:     true,
	constants.MethodPOST:    true,
	constants.MethodPUT:     true,
	constants.MethodDELETE:  true,
	constants.MethodPATCH:   true,
	constants.MethodHEAD:    true,
	constants.MethodOPTIONS: true,
}

// ValidMethod reports whether m is one of the supported methods.
func ValidMethod(m string) bool {
	return validMethods[m]
}

// Descriptor is a declarative request. Every With method returns a modified
// copy and leaves the receiver untouched, so a Descriptor can be shared.
type Descriptor struct {
	method  string
	url     *url.URL
	header  httputil.Header
	body    Body
	timeout *time.Duration
}

// New creates a descriptor for method and rawURL. The method is upper-cased.
func New(method, rawURL string) (Descriptor, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Descriptor{}, errors.NewValidationErrorWithValue("url", rawURL, err.Error())
	}
	return Descriptor{method: strings.ToUpper(method), url: u}, nil
}

// FromURL creates a descriptor for an already parsed URL.
func FromURL(method string, u *url.URL) Descriptor {
	return Descriptor{method: strings.ToUpper(method), url: cloneURL(u)}
}

// Method returns the request method.
func (d Descriptor) Method() string { return d.method }

// URL returns a copy of the target URL.
func (d Descriptor) URL() *url.URL { return cloneURL(d.url) }

// Header returns a copy of the headers.
func (d Descriptor) Header() httputil.Header { return d.header.Clone() }

// Body returns the body.
func (d Descriptor) Body() Body { return d.body }

// Timeout returns the per-request timeout override, if any.
func (d Descriptor) Timeout() (time.Duration, bool) {
	if d.timeout == nil {
		return 0, false
	}
	return *d.timeout, true
}

// TimeoutOverride returns the override as a pointer, nil when unset.
func (d Descriptor) TimeoutOverride() *time.Duration {
	if d.timeout == nil {
		return nil
	}
	t := *d.timeout
	return &t
}

// WithMethod returns d with a different method.
func (d Descriptor) WithMethod(m string) Descriptor {
	d.method = strings.ToUpper(m)
	return d
}

// WithURL returns d targeting u.
func (d Descriptor) WithURL(u *url.URL) Descriptor {
	d.url = cloneURL(u)
	return d
}

// WithHeader returns d with name set to value, replacing earlier values.
func (d Descriptor) WithHeader(name, value string) Descriptor {
	d.header = d.header.Clone()
	d.header.Set(name, value)
	return d
}

// AddHeader returns d with value appended to name.
func (d Descriptor) AddHeader(name, value string) Descriptor {
	d.header = d.header.Clone()
	d.header.Add(name, value)
	return d
}

// WithoutHeader returns d with every value of name removed.
func (d Descriptor) WithoutHeader(name string) Descriptor {
	d.header = d.header.Clone()
	d.header.Del(name)
	return d
}

// WithHeaders returns d with h replacing all headers.
func (d Descriptor) WithHeaders(h httputil.Header) Descriptor {
	d.header = h.Clone()
	return d
}

// WithQuery returns d with key=value appended to the query string.
func (d Descriptor) WithQuery(key, value string) Descriptor {
	u := cloneURL(d.url)
	if u == nil {
		return d
	}
	q := u.Query()
	q.Add(key, value)
	u.RawQuery = q.Encode()
	d.url = u
	return d
}

// WithBody returns d carrying b.
func (d Descriptor) WithBody(b Body) Descriptor {
	d.body = b
	return d
}

// WithTimeout returns d with a per-request deadline. Zero means no deadline.
func (d Descriptor) WithTimeout(t time.Duration) Descriptor {
	d.timeout = &t
	return d
}

// Validate checks the method, the URL and every header.
func (d Descriptor) Validate() error {
	if d.method == "" {
		return errors.NewValidationError("method", "method is required")
	}
	if !validMethods[d.method] {
		return errors.NewValidationErrorWithValue("method", d.method, "unsupported HTTP method")
	}

	if d.url == nil || d.url.String() == "" {
		return errors.NewValidationError("url", "URL is required")
	}
	scheme := strings.ToLower(d.url.Scheme)
	if scheme == "" {
		return errors.NewValidationErrorWithValue("url", d.url.String(), "URL must include scheme (http:// or https://)")
	}
	if scheme != "http" && scheme != "https" {
		return errors.NewValidationErrorWithValue("url", d.url.String(), fmt.Sprintf("unsupported URL scheme %s (use http or https)", d.url.Scheme))
	}
	if d.url.Host == "" {
		return errors.NewValidationErrorWithValue("url", d.url.String(), "URL must include a host")
	}

	for name, value := range d.header.All() {
		if name == "" {
			return errors.NewValidationError("header", "header name cannot be empty")
		}
		if !httputil.ValidName(name) {
			return errors.NewValidationErrorWithValue("header", name, "header name contains invalid characters")
		}
		if !httputil.ValidValue(value) {
			return errors.NewValidationError("header "+name, "header value contains invalid characters")
		}
	}
	return nil
}

func cloneURL(u *url.URL) *url.URL {
	if u == nil {
		return nil
	}
	c := *u
	if u.User != nil {
		user := *u.User
		c.User = &user
	}
	return &c
}
