// Package paths provides common path utilities for the application.
package paths

import (
	"path/filepath"

	"github.com/ideaspaper/reqkit/internal/filesystem"
)

const (
	// AppDirName is the name of the application's data directory
	AppDirName = ".reqkit"

	configFileName    = "config.json"
	cookieJarFileName = "cookies.json"
)

// HomeDir returns the user's home directory.
func HomeDir() (string, error) {
	return filesystem.Default.UserHomeDir()
}

// AppDataDir returns the path to the application's data directory.
// If subdir is provided, it returns the path to that subdirectory.
func AppDataDir(subdir string) (string, error) {
	home, err := HomeDir()
	if err != nil {
		return "", err
	}
	if subdir == "" {
		return filepath.Join(home, AppDirName), nil
	}
	return filepath.Join(home, AppDirName, subdir), nil
}

// DefaultConfigPath returns the path to the default config file.
func DefaultConfigPath() (string, error) {
	dir, err := AppDataDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// DefaultCookieJarPath returns the path where the CLI persists cookies.
func DefaultCookieJarPath() (string, error) {
	dir, err := AppDataDir("")
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, cookieJarFileName), nil
}
