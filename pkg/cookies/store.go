// Package cookies keeps per-destination cookie state across requests.
package cookies

import (
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Cookie is one stored entry. Name is unique per (Domain, Path).
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"httpOnly,omitempty"`
	Expires  time.Time `json:"expires,omitzero"`
	SameSite string    `json:"sameSite,omitempty"`
}

// Expired reports whether the entry has an expiry at or before now.
func (c Cookie) Expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

// HTTP converts the entry to a net/http cookie.
func (c Cookie) HTTP() *http.Cookie {
	hc := &http.Cookie{
		Name:     c.Name,
		Value:    c.Value,
		Domain:   c.Domain,
		Path:     c.Path,
		Secure:   c.Secure,
		HttpOnly: c.HttpOnly,
		Expires:  c.Expires,
	}
	switch c.SameSite {
	case "Strict":
		hc.SameSite = http.SameSiteStrictMode
	case "Lax":
		hc.SameSite = http.SameSiteLaxMode
	case "None":
		hc.SameSite = http.SameSiteNoneMode
	}
	return hc
}

func (c Cookie) sameKey(o Cookie) bool {
	return c.Domain == o.Domain && c.Path == o.Path && c.Name == o.Name
}

// Store is a concurrency-safe cookie jar. Entries keep insertion order and a
// replaced entry keeps its original position.
type Store struct {
	mu      sync.Mutex
	entries []Cookie

	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger that receives dropped-directive diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

var _ http.CookieJar = (*Store)(nil)

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		logger: slog.New(slog.DiscardHandler),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store parses one Set-Cookie directive received from requestHost.
// A rejected directive returns a *errors.CookieError and leaves the store unchanged.
func (s *Store) Store(setCookie, requestHost string) error {
	hc, err := http.ParseSetCookie(setCookie)
	if err != nil {
		return s.drop(setCookie, err.Error())
	}
	return s.storeHTTP(hc, requestHost, setCookie)
}

// StoreAll stores every directive, scoped to the host of u. Invalid
// directives are logged at debug level and skipped. It returns the number
// of directives that were applied.
func (s *Store) StoreAll(directives []string, u *url.URL) int {
	applied := 0
	for _, d := range directives {
		if err := s.Store(d, u.Host); err == nil {
			applied++
		}
	}
	return applied
}

func (s *Store) drop(directive, msg string) error {
	err := &errors.CookieError{Directive: directive, Message: msg}
	s.logger.Debug("dropping cookie directive", "directive", directive, "reason", msg)
	return err
}

func (s *Store) storeHTTP(hc *http.Cookie, requestHost, directive string) error {
	host := canonicalHost(requestHost)
	if host == "" {
		return s.drop(directive, "request host is empty")
	}

	domain := host
	if hc.Domain != "" {
		domain = strings.ToLower(strings.TrimPrefix(hc.Domain, "."))
		if !domainMatch(host, domain) {
			return s.drop(directive, "domain "+domain+" does not match host "+host)
		}
		if domain != host {
			if suffix, _ := publicsuffix.PublicSuffix(domain); suffix == domain {
				return s.drop(directive, "domain "+domain+" is a public suffix")
			}
		}
	}

	path := hc.Path
	if path == "" || path[0] != '/' {
		path = "/"
	}

	now := s.now()
	c := Cookie{
		Name:     hc.Name,
		Value:    hc.Value,
		Domain:   domain,
		Path:     path,
		Secure:   hc.Secure,
		HttpOnly: hc.HttpOnly,
		SameSite: sameSiteName(hc.SameSite),
	}
	deleting := false
	switch {
	case hc.MaxAge < 0:
		deleting = true
	case hc.MaxAge > 0:
		c.Expires = now.Add(time.Duration(hc.MaxAge) * time.Second)
	case !hc.Expires.IsZero():
		c.Expires = hc.Expires
		deleting = c.Expired(now)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if deleting {
		s.removeLocked(func(e Cookie) bool { return e.sameKey(c) })
		return nil
	}
	s.upsertLocked(c)
	return nil
}

func (s *Store) upsertLocked(c Cookie) {
	for i := range s.entries {
		if s.entries[i].sameKey(c) {
			s.entries[i] = c
			return
		}
	}
	s.entries = append(s.entries, c)
}

func (s *Store) removeLocked(match func(Cookie) bool) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	clear(s.entries[len(kept):])
	s.entries = kept
}

// Set inserts or replaces c directly. An empty Path becomes "/".
func (s *Store) Set(c Cookie) {
	c.Domain = strings.ToLower(strings.TrimPrefix(c.Domain, "."))
	if c.Path == "" {
		c.Path = "/"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertLocked(c)
}

// Match returns the live entries that apply to u, in insertion order.
func (s *Store) Match(u *url.URL) []Cookie {
	host := canonicalHost(u.Host)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	secure := u.Scheme == "https"
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Cookie
	for _, e := range s.entries {
		if e.Expired(now) {
			continue
		}
		if e.Secure && !secure {
			continue
		}
		if !domainMatch(host, e.Domain) || !pathMatch(path, e.Path) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// CookieHeader renders the matching entries for u as a Cookie header value,
// or "" when none match.
func (s *Store) CookieHeader(u *url.URL) string {
	matched := s.Match(u)
	if len(matched) == 0 {
		return ""
	}
	parts := make([]string, len(matched))
	for i, c := range matched {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

// Get returns the first entry named name.
func (s *Store) Get(name string) (Cookie, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.Name == name {
			return e, true
		}
	}
	return Cookie{}, false
}

// Remove deletes every entry named name.
func (s *Store) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(func(e Cookie) bool { return e.Name == name })
}

// Clear deletes all entries.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

// All returns a copy of every entry in insertion order.
func (s *Store) All() []Cookie {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Cookie(nil), s.entries...)
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// SetCookies implements http.CookieJar.
func (s *Store) SetCookies(u *url.URL, cookies []*http.Cookie) {
	for _, hc := range cookies {
		_ = s.storeHTTP(hc, u.Host, hc.String())
	}
}

// Cookies implements http.CookieJar.
func (s *Store) Cookies(u *url.URL) []*http.Cookie {
	matched := s.Match(u)
	out := make([]*http.Cookie, len(matched))
	for i, c := range matched {
		out[i] = &http.Cookie{Name: c.Name, Value: c.Value}
	}
	return out
}

func canonicalHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

func domainMatch(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == cookiePath || cookiePath == "/" {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func sameSiteName(m http.SameSite) string {
	switch m {
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}
