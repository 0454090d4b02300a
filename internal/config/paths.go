package config

import (
	"os"
	"path/filepath"
)

// GetSurgeDir returns the per-user config directory, creating nothing.
func GetSurgeDir() string {
	if dir := os.Getenv("SURGE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".surge")
}

// GetLogsDir returns the directory debug logs are written to.
func GetLogsDir() string {
	return filepath.Join(GetSurgeDir(), "logs")
}

// GetDBPath returns the path to the engine's SQLite database file.
func GetDBPath() string {
	return filepath.Join(GetSurgeDir(), "surge.db")
}

// GetDownloadsDir returns the default base directory for partial and
// finalized downloads when the caller didn't specify one.
func GetDownloadsDir() string {
	return filepath.Join(GetSurgeDir(), "downloads")
}

// EnsureDirs creates the config, logs and downloads directories if absent.
func EnsureDirs() error {
	for _, dir := range []string{GetSurgeDir(), GetLogsDir(), GetDownloadsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
