package config

// ExampleConfig returns an example configuration showing all available options.
func ExampleConfig() string {
	return `# Taskman configuration file
# Values can be overridden by TASKMAN_* environment variables or CLI flags

# Directory holding the task list (supports ~ expansion and %VAR% on Windows)
data_dir = "~/.taskman"

# Storage backend: file, sqlite or memory
#   file   -> <data_dir>/tasks.json
#   sqlite -> <data_dir>/taskman.db
#   memory -> nothing is written to disk
backend = "file"

# Log directory for the interactive UI (default: <data_dir>/logs)
# log_dir = "~/.taskman/logs"

# Log level: debug, info, warn, error
log_level = "info"

# Log format: text, json, logfmt
log_format = "text"

# Show timestamps and caller locations in log lines
log_timestamps = false
log_caller = false
`
}
