package transport

import (
	"slices"
	"sync"

	"github.com/ideaspaper/reqkit/pkg/errors"
)

// Manager is a registry of named transports with one default.
type Manager struct {
	mu         sync.RWMutex
	transports map[string]Transport
	def        string
}

// NewManager creates an empty registry.
func NewManager() *Manager {
	return &Manager{transports: make(map[string]Transport)}
}

// Add registers t under its Name. The first transport added becomes the default.
func (m *Manager) Add(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[t.Name()] = t
	if m.def == "" {
		m.def = t.Name()
	}
}

// Get returns the transport registered under name.
func (m *Manager) Get(name string) (Transport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transports[name]
	if !ok {
		return nil, errors.NewConfigError("transport", "unknown transport "+name)
	}
	return t, nil
}

// SetDefault selects the default transport.
func (m *Manager) SetDefault(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.transports[name]; !ok {
		return errors.NewConfigError("transport", "unknown transport "+name)
	}
	m.def = name
	return nil
}

// Default returns the default transport.
func (m *Manager) Default() (Transport, error) {
	m.mu.RLock()
	name := m.def
	m.mu.RUnlock()
	if name == "" {
		return nil, errors.NewConfigError("transport", "no transports registered")
	}
	return m.Get(name)
}

// Names lists registered transports in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.transports))
	for n := range m.transports {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// StandardManager registers the http1, http2 and h2c flavors built from cfg,
// with http2 as the default.
func StandardManager(cfg Config) (*Manager, error) {
	m := NewManager()
	for _, flavor := range []string{FlavorHTTP2, FlavorHTTP1, FlavorH2C} {
		t, err := New(flavor, cfg)
		if err != nil {
			return nil, err
		}
		m.Add(t)
	}
	return m, nil
}

// CloseIdleConnections releases pooled connections on every transport that
// supports it.
func (m *Manager) CloseIdleConnections() {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.transports {
		if c, ok := t.(interface{ CloseIdleConnections() }); ok {
			c.CloseIdleConnections()
		}
	}
}
