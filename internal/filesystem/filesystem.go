// Package filesystem provides a file system abstraction for testability.
package filesystem

import (
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem defines the file operations used by multipart encoding,
// TLS material loading and cookie jar persistence.
type FileSystem interface {
	ReadFile(name string) ([]byte, error)
	Stat(name string) (fs.FileInfo, error)

	WriteFile(name string, data []byte, perm fs.FileMode) error
	Rename(oldpath, newpath string) error
	MkdirAll(path string, perm fs.FileMode) error
	Remove(name string) error

	UserHomeDir() (string, error)
}

// OSFileSystem implements FileSystem using the real OS file system.
type OSFileSystem struct{}

// Default is the default file system implementation using OS calls.
var Default FileSystem = OSFileSystem{}

func (OSFileSystem) ReadFile(name string) ([]byte, error) { return os.ReadFile(name) }

func (OSFileSystem) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

func (OSFileSystem) WriteFile(name string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(name, data, perm)
}

func (OSFileSystem) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OSFileSystem) MkdirAll(path string, perm fs.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) Remove(name string) error { return os.Remove(name) }

func (OSFileSystem) UserHomeDir() (string, error) { return os.UserHomeDir() }

// WriteFileAtomic writes data next to name and renames it into place, so a
// reader never observes a half-written file. Parent directories are created.
func WriteFileAtomic(fsys FileSystem, name string, data []byte, perm fs.FileMode) error {
	if err := fsys.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return err
	}
	tmp := name + ".tmp"
	if err := fsys.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := fsys.Rename(tmp, name); err != nil {
		_ = fsys.Remove(tmp)
		return err
	}
	return nil
}

// Exists returns true if the path exists (file or directory).
func Exists(path string) bool {
	_, err := Default.Stat(path)
	return err == nil
}

// IsFile returns true if the path is a regular file.
func IsFile(path string) bool {
	info, err := Default.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// IsDir returns true if the path is a directory.
func IsDir(path string) bool {
	info, err := Default.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return Default.MkdirAll(path, 0755)
}
