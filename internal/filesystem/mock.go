package filesystem

import (
	"io/fs"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// MockFileSystem is an in-memory FileSystem for tests.
type MockFileSystem struct {
	mu sync.RWMutex

	// Files stores file contents by path.
	Files map[string][]byte

	// Dirs stores directory paths.
	Dirs map[string]bool

	// ErrByPath returns an error for a specific path from any operation.
	ErrByPath map[string]error

	// HomeDir is returned from UserHomeDir.
	HomeDir string
}

var _ FileSystem = (*MockFileSystem)(nil)

// NewMockFileSystem creates an empty MockFileSystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:     make(map[string][]byte),
		Dirs:      make(map[string]bool),
		ErrByPath: make(map[string]error),
		HomeDir:   "/home/testuser",
	}
}

func (m *MockFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.ErrByPath[name]; err != nil {
		return nil, err
	}
	data, ok := m.Files[name]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MockFileSystem) Stat(name string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.ErrByPath[name]; err != nil {
		return nil, err
	}
	if data, ok := m.Files[name]; ok {
		return &mockFileInfo{name: filepath.Base(name), size: int64(len(data))}, nil
	}
	if m.Dirs[name] {
		return &mockFileInfo{name: filepath.Base(name), isDir: true}, nil
	}
	for p := range m.Files {
		if strings.HasPrefix(p, name+"/") {
			return &mockFileInfo{name: filepath.Base(name), isDir: true}, nil
		}
	}
	return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
}

func (m *MockFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrByPath[name]; err != nil {
		return err
	}
	m.Files[name] = append([]byte(nil), data...)
	return nil
}

func (m *MockFileSystem) Rename(oldpath, newpath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrByPath[newpath]; err != nil {
		return err
	}
	data, ok := m.Files[oldpath]
	if !ok {
		return &fs.PathError{Op: "rename", Path: oldpath, Err: fs.ErrNotExist}
	}
	delete(m.Files, oldpath)
	m.Files[newpath] = data
	return nil
}

func (m *MockFileSystem) MkdirAll(path string, perm fs.FileMode) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrByPath[path]; err != nil {
		return err
	}
	for p := filepath.Clean(path); p != "." && p != "/"; p = filepath.Dir(p) {
		m.Dirs[p] = true
	}
	return nil
}

func (m *MockFileSystem) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ErrByPath[name]; err != nil {
		return err
	}
	if _, ok := m.Files[name]; ok {
		delete(m.Files, name)
		return nil
	}
	if m.Dirs[name] {
		delete(m.Dirs, name)
		return nil
	}
	return &fs.PathError{Op: "remove", Path: name, Err: fs.ErrNotExist}
}

func (m *MockFileSystem) UserHomeDir() (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.HomeDir, nil
}

// WithFile adds a file and returns the mock for chaining.
func (m *MockFileSystem) WithFile(path string, content []byte) *MockFileSystem {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Files[path] = content
	return m
}

// WithFileString adds a file with string content.
func (m *MockFileSystem) WithFileString(path, content string) *MockFileSystem {
	return m.WithFile(path, []byte(content))
}

// WithPathError makes every operation on path fail with err.
func (m *MockFileSystem) WithPathError(path string, err error) *MockFileSystem {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ErrByPath[path] = err
	return m
}

// HasFile reports whether path holds a file.
func (m *MockFileSystem) HasFile(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.Files[path]
	return ok
}

type mockFileInfo struct {
	name  string
	size  int64
	isDir bool
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) ModTime() time.Time { return time.Time{} }
func (fi *mockFileInfo) IsDir() bool        { return fi.isDir }
func (fi *mockFileInfo) Sys() any           { return nil }

func (fi *mockFileInfo) Mode() fs.FileMode {
	if fi.isDir {
		return fs.ModeDir | 0755
	}
	return 0644
}
