package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// loadFromEnv overrides config from TASKMAN_* environment variables and
// updates source tracking when sources is non-nil.
func loadFromEnv(cfg *Config, sources map[string]ConfigSource) error {
	set := func(field string) {
		if sources != nil {
			sources[field] = SourceEnv
		}
	}
	setBool := func(name, field string, target *bool) error {
		v := os.Getenv(name)
		if v == "" {
			return nil
		}
		b, err := boolFromString(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*target = b
		set(field)
		return nil
	}

	if v := os.Getenv("TASKMAN_DATA_DIR"); v != "" {
		cfg.DataDir = v
		set("data_dir")
	}
	if v := os.Getenv("TASKMAN_BACKEND"); v != "" {
		cfg.Backend = v
		set("backend")
	}

	// Logging configuration
	if v := os.Getenv("TASKMAN_LOG_DIR"); v != "" {
		cfg.LogDir = v
		set("log_dir")
	}
	if v := os.Getenv("TASKMAN_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
		set("log_level")
	}
	if v := os.Getenv("TASKMAN_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
		set("log_format")
	}
	if err := setBool("TASKMAN_LOG_TIMESTAMPS", "log_timestamps", &cfg.LogTimestamps); err != nil {
		return err
	}
	return setBool("TASKMAN_LOG_CALLER", "log_caller", &cfg.LogCaller)
}

func boolFromString(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return strconv.ParseBool(s)
}
