package database

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	AppDirName      = ".route-optimizer"
	CacheDBFileName = "cache.db"
)

// GetAppDir returns ~/.route-optimizer, creating it if needed
func GetAppDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	appDir := filepath.Join(homeDir, AppDirName)
	if err := os.MkdirAll(appDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create app directory: %w", err)
	}

	return appDir, nil
}

// GetDefaultCachePath returns the default SQLite cache path: ~/.route-optimizer/cache.db
func GetDefaultCachePath() (string, error) {
	appDir, err := GetAppDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(appDir, CacheDBFileName), nil
}

// EnsureParentDir creates the directory holding path
func EnsureParentDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
