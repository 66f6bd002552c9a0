// Package config tests configuration loading.
package config

import (
	"flag"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// isolate points every config lookup at empty temp directories.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("APPDATA", filepath.Join(home, "AppData"))
	for _, name := range []string{
		"TASKMAN_DATA_DIR", "TASKMAN_BACKEND", "TASKMAN_LOG_DIR", "TASKMAN_LOG_LEVEL",
		"TASKMAN_LOG_FORMAT", "TASKMAN_LOG_TIMESTAMPS", "TASKMAN_LOG_CALLER",
	} {
		t.Setenv(name, "")
	}
	// Equivalent of t.Chdir (Go 1.24+) for older toolchains.
	oldWd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() error = %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("Chdir() error = %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldWd) })
	return home
}

func TestDefaults(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	if cfg.DataDir != DefaultDataDir {
		t.Errorf("DataDir: got %q, want %q", cfg.DataDir, DefaultDataDir)
	}
	if cfg.Backend != "file" {
		t.Errorf("Backend: got %q, want file", cfg.Backend)
	}
	if cfg.LogLevel != "info" || cfg.LogFormat != "text" {
		t.Errorf("logging defaults: got %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if err := finalizeConfig(cfg); err != nil {
		t.Fatalf("finalizeConfig: %v", err)
	}
	if cfg.LogDir != filepath.Join(cfg.DataDir, "logs") {
		t.Errorf("LogDir: got %q, want it under %q", cfg.LogDir, cfg.DataDir)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TASKMAN_DATA_DIR", "/tmp/tasks")
	t.Setenv("TASKMAN_BACKEND", "sqlite")
	t.Setenv("TASKMAN_LOG_LEVEL", "debug")
	t.Setenv("TASKMAN_LOG_FORMAT", "json")
	t.Setenv("TASKMAN_LOG_TIMESTAMPS", "yes")
	t.Setenv("TASKMAN_LOG_CALLER", "")
	t.Setenv("TASKMAN_LOG_DIR", "")

	cfg := &Config{}
	setDefaults(cfg)
	sources := map[string]ConfigSource{}
	if err := loadFromEnv(cfg, sources); err != nil {
		t.Fatalf("loadFromEnv: %v", err)
	}

	if cfg.DataDir != "/tmp/tasks" {
		t.Errorf("DataDir: got %q, want /tmp/tasks", cfg.DataDir)
	}
	if cfg.Backend != "sqlite" {
		t.Errorf("Backend: got %q, want sqlite", cfg.Backend)
	}
	if cfg.LogLevel != "debug" || cfg.LogFormat != "json" {
		t.Errorf("logging: got %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if !cfg.LogTimestamps {
		t.Error("LogTimestamps: want true")
	}
	if sources["backend"] != SourceEnv {
		t.Errorf("backend source: got %q, want %q", sources["backend"], SourceEnv)
	}
	if _, ok := sources["log_caller"]; ok {
		t.Error("unset variable should not be tracked")
	}
}

func TestLoadFromEnvInvalidBool(t *testing.T) {
	t.Setenv("TASKMAN_LOG_CALLER", "maybe")
	cfg := &Config{}
	setDefaults(cfg)
	err := loadFromEnv(cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "TASKMAN_LOG_CALLER") {
		t.Errorf("expected error naming the variable, got %v", err)
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "taskman.toml")

	content := []byte(`data_dir = "/srv/tasks"
backend = "sqlite"
log_format = "logfmt"
colour = "blue"
`)
	if err := os.WriteFile(configFile, content, 0644); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{}
	setDefaults(cfg)
	sources := map[string]ConfigSource{"data_dir": SourceDefault, "log_level": SourceDefault}
	if err := loadConfigFile(cfg, configFile, sources, SourceProjFile); err != nil {
		t.Fatalf("loadConfigFile: %v", err)
	}

	if cfg.DataDir != "/srv/tasks" {
		t.Errorf("DataDir: got %q, want /srv/tasks", cfg.DataDir)
	}
	if cfg.Backend != "sqlite" {
		t.Errorf("Backend: got %q, want sqlite", cfg.Backend)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel should keep its default, got %q", cfg.LogLevel)
	}
	if sources["data_dir"] != SourceProjFile {
		t.Errorf("data_dir source: got %q", sources["data_dir"])
	}
	if sources["log_level"] != SourceDefault {
		t.Errorf("log_level source: got %q", sources["log_level"])
	}
	if len(cfg.Warnings) != 1 || !strings.Contains(cfg.Warnings[0], "colour") {
		t.Errorf("expected warning about unknown key, got %v", cfg.Warnings)
	}
}

func TestLoadConfigFileSyntaxError(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "taskman.toml")
	if err := os.WriteFile(configFile, []byte("backend = \n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := loadConfigFile(&Config{}, configFile, nil, SourceUserFile); err == nil {
		t.Error("expected decode error")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}

	tests := []struct {
		input string
		want  string
	}{
		{"~/test", filepath.Join(home, "test")},
		{"~", home},
		{"/absolute/path", "/absolute/path"},
		{"relative", "relative"},
	}
	if runtime.GOOS == "windows" {
		t.Setenv("TASKMAN_TEST_HOME", home)
		tests = append(tests, struct {
			input string
			want  string
		}{
			input: `%TASKMAN_TEST_HOME%\tasks`,
			want:  filepath.Join(home, "tasks"),
		})
	} else {
		t.Setenv("TASKMAN_TEST_HOME", "/env/home")
		tests = append(tests, struct {
			input string
			want  string
		}{
			input: "$TASKMAN_TEST_HOME/tasks",
			want:  "/env/home/tasks",
		})
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := expandPath(tt.input)
			if got != tt.want {
				t.Errorf("expandPath(%q): got %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	cfg := &Config{}
	setDefaults(cfg)

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	args := []string{
		"--data-dir", "/flag/tasks",
		"--backend", "memory",
		"--log-caller",
		"add", "milk",
	}

	sources := map[string]ConfigSource{}
	if err := parseFlags(cfg, fs, args, sources); err != nil {
		t.Fatalf("parseFlags: %v", err)
	}

	if cfg.DataDir != "/flag/tasks" {
		t.Errorf("DataDir: got %q, want /flag/tasks", cfg.DataDir)
	}
	if cfg.Backend != "memory" {
		t.Errorf("Backend: got %q, want memory", cfg.Backend)
	}
	if !cfg.LogCaller {
		t.Error("LogCaller: want true")
	}
	if got := fs.Args(); len(got) != 2 || got[0] != "add" {
		t.Errorf("remaining args: got %v", got)
	}
	if sources["backend"] != SourceFlag {
		t.Errorf("backend source: got %q", sources["backend"])
	}
	if _, ok := sources["log_level"]; ok {
		t.Error("unset flag should not be tracked")
	}
}

func TestBoolFromString(t *testing.T) {
	tests := []struct {
		input   string
		want    bool
		wantErr bool
	}{
		{"1", true, false},
		{"true", true, false},
		{"TRUE", true, false},
		{"yes", true, false},
		{"on", true, false},
		{"0", false, false},
		{"false", false, false},
		{"no", false, false},
		{"off", false, false},
		{"maybe", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := boolFromString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("boolFromString(%q) error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("boolFromString(%q): got %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"unknown backend", func(c *Config) { c.Backend = "redis" }, "backend"},
		{"unknown level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"unknown format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data_dir"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadWithSourcesLayering(t *testing.T) {
	home := isolate(t)

	userDir := filepath.Join(home, ".taskman")
	if err := os.MkdirAll(userDir, 0755); err != nil {
		t.Fatal(err)
	}
	userFile := filepath.Join(userDir, "taskman.toml")
	if err := os.WriteFile(userFile, []byte("backend = \"sqlite\"\nlog_level = \"warn\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile("taskman.toml", []byte("log_level = \"error\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TASKMAN_LOG_FORMAT", "json")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cws, err := LoadWithSources(fs, []string{"-data-dir", "~/lists"})
	if err != nil {
		t.Fatalf("LoadWithSources: %v", err)
	}
	cfg := cws.Config

	if cfg.Backend != "sqlite" || cws.Sources["backend"] != SourceUserFile {
		t.Errorf("backend: got %q from %q", cfg.Backend, cws.Sources["backend"])
	}
	if cfg.LogLevel != "error" || cws.Sources["log_level"] != SourceProjFile {
		t.Errorf("log_level: got %q from %q", cfg.LogLevel, cws.Sources["log_level"])
	}
	if cfg.LogFormat != "json" || cws.Sources["log_format"] != SourceEnv {
		t.Errorf("log_format: got %q from %q", cfg.LogFormat, cws.Sources["log_format"])
	}
	if cfg.DataDir != filepath.Join(home, "lists") || cws.Sources["data_dir"] != SourceFlag {
		t.Errorf("data_dir: got %q from %q", cfg.DataDir, cws.Sources["data_dir"])
	}
	if cfg.LogDir != filepath.Join(home, "lists", "logs") {
		t.Errorf("LogDir: got %q", cfg.LogDir)
	}
	if cws.Sources["log_caller"] != SourceDefault {
		t.Errorf("log_caller source: got %q", cws.Sources["log_caller"])
	}
	if len(cws.Files) != 2 || cws.Files[0] != userFile {
		t.Errorf("Files: got %v", cws.Files)
	}
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	isolate(t)
	t.Setenv("TASKMAN_BACKEND", "redis")
	if _, err := Load(flag.NewFlagSet("test", flag.ContinueOnError), nil); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestExampleConfigDecodes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taskman.toml")
	if err := os.WriteFile(path, []byte(ExampleConfig()), 0644); err != nil {
		t.Fatal(err)
	}
	cfg := &Config{}
	setDefaults(cfg)
	if err := loadConfigFile(cfg, path, nil, SourceUserFile); err != nil {
		t.Fatalf("example config does not decode: %v", err)
	}
	if len(cfg.Warnings) != 0 {
		t.Errorf("example config has unknown keys: %v", cfg.Warnings)
	}
	if err := finalizeConfig(cfg); err != nil {
		t.Errorf("example config invalid: %v", err)
	}
}
