// Package taskdir provides constants and utilities for the .taskman directory structure.
package taskdir

import "path/filepath"

const (
	// Dir is the name of the taskman state directory.
	Dir = ".taskman"

	// DefaultDataDir is where task data lives unless configured otherwise.
	DefaultDataDir = "~/" + Dir

	// DefaultConfigFile is the config file name (inside .taskman or the project root).
	DefaultConfigFile = "taskman.toml"

	// DefaultDBFile is the SQLite database file name (inside the data dir).
	DefaultDBFile = "taskman.db"

	// LogsDir is the log directory name (inside the data dir).
	LogsDir = "logs"
)

// DirPath returns the full path to the .taskman directory within a base directory.
func DirPath(baseDir string) string {
	if baseDir == "." || baseDir == "" {
		return Dir
	}
	return filepath.Join(baseDir, Dir)
}

// ConfigPath returns the full path to the config file within a base directory.
func ConfigPath(baseDir string) string {
	return filepath.Join(DirPath(baseDir), DefaultConfigFile)
}

// DBPath returns the SQLite database path within a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DefaultDBFile)
}

// LogPath returns the default log directory within a data directory.
func LogPath(dataDir string) string {
	return filepath.Join(dataDir, LogsDir)
}
