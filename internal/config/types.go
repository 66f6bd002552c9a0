package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nibzard/taskman-go/internal/kv"
	"github.com/nibzard/taskman-go/internal/taskdir"
)

// ConfigSource represents where a configuration value came from.
type ConfigSource string

const (
	SourceDefault  ConfigSource = "default"
	SourceUserFile ConfigSource = "user file"
	SourceProjFile ConfigSource = "project file"
	SourceEnv      ConfigSource = "environment"
	SourceFlag     ConfigSource = "flag"
)

// ConfigWithSources holds configuration along with source information for each field.
type ConfigWithSources struct {
	Config  *Config
	Sources map[string]ConfigSource
	// Files lists the config files that were read, in load order.
	Files []string
}

// Default values.
const (
	DefaultDataDir   = taskdir.DefaultDataDir
	DefaultBackend   = kv.BackendFile
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
)

// Config holds the full configuration for taskman.
type Config struct {
	// Storage
	DataDir string `toml:"data_dir"`
	Backend string `toml:"backend"`

	// Logging configuration
	LogDir        string `toml:"log_dir"` // defaults to <data_dir>/logs
	LogLevel      string `toml:"log_level"`
	LogFormat     string `toml:"log_format"`
	LogTimestamps bool   `toml:"log_timestamps"`
	LogCaller     bool   `toml:"log_caller"`

	// Warnings collects non-fatal problems found while loading, such as
	// unknown keys in a config file.
	Warnings []string `toml:"-"`
}

var (
	validLogLevels  = []string{"debug", "info", "warn", "error", "fatal"}
	validLogFormats = []string{"text", "json", "logfmt"}
)

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	if !slices.Contains(kv.Backends(), c.Backend) {
		return fmt.Errorf("invalid backend %q, must be one of: %s", c.Backend, strings.Join(kv.Backends(), ", "))
	}
	if !slices.Contains(validLogLevels, strings.ToLower(c.LogLevel)) {
		return fmt.Errorf("invalid log_level %q, must be one of: %s", c.LogLevel, strings.Join(validLogLevels, ", "))
	}
	if !slices.Contains(validLogFormats, strings.ToLower(c.LogFormat)) {
		return fmt.Errorf("invalid log_format %q, must be one of: %s", c.LogFormat, strings.Join(validLogFormats, ", "))
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	return nil
}

// configFields returns the list of configurable field names for source tracking.
func configFields() []string {
	return []string{
		"data_dir",
		"backend",
		"log_dir",
		"log_level",
		"log_format",
		"log_timestamps",
		"log_caller",
	}
}

// Fields returns the configurable field names in display order.
func Fields() []string {
	return configFields()
}

// Value returns the string form of a configurable field.
func (c *Config) Value(field string) string {
	switch field {
	case "data_dir":
		return c.DataDir
	case "backend":
		return c.Backend
	case "log_dir":
		return c.LogDir
	case "log_level":
		return c.LogLevel
	case "log_format":
		return c.LogFormat
	case "log_timestamps":
		return fmt.Sprint(c.LogTimestamps)
	case "log_caller":
		return fmt.Sprint(c.LogCaller)
	}
	return ""
}
