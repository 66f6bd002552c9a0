// Package cmd implements the CLI command structure for taskman.
package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nibzard/taskman-go/internal/config"
	"github.com/nibzard/taskman-go/internal/kv"
	"github.com/nibzard/taskman-go/internal/logging"
	"github.com/nibzard/taskman-go/internal/store"
	"github.com/nibzard/taskman-go/internal/task"
	"github.com/nibzard/taskman-go/internal/ui"
)

// Version is set via ldflags at build time.
var Version = "dev"

// closeTimeout bounds how long a command waits for its writes to land.
const closeTimeout = 10 * time.Second

// Run executes the taskman CLI.
func Run(ctx context.Context, args []string) error {
	// Create a flag set for global options
	fs := flag.NewFlagSet("taskman", flag.ContinueOnError)
	fs.Usage = func() {
		printUsage(fs, os.Stderr)
	}
	help := fs.Bool("help", false, "Show help")
	fs.BoolVar(help, "h", false, "Show help")
	showVersion := fs.Bool("version", false, "Show version")
	fs.BoolVar(showVersion, "v", false, "Show version")

	// Global flags
	cws, err := config.LoadWithSources(fs, args)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := cws.Config
	if *help {
		printUsage(fs, os.Stdout)
		return nil
	}
	if *showVersion {
		return versionCommand()
	}

	// Determine the subcommand; the interactive screen is the default
	subcommand := "tui"
	remainingArgs := fs.Args()
	if len(remainingArgs) > 0 {
		subcommand = remainingArgs[0]
		remainingArgs = remainingArgs[1:]
	}

	switch subcommand {
	case "tui":
		return tuiCommand(ctx, cfg, remainingArgs)
	case "add":
		return addCommand(ctx, cfg, remainingArgs)
	case "ls":
		return lsCommand(ctx, cfg, remainingArgs)
	case "toggle":
		return toggleCommand(ctx, cfg, remainingArgs)
	case "rm":
		return rmCommand(ctx, cfg, remainingArgs)
	case "clear-completed":
		return clearCompletedCommand(ctx, cfg, remainingArgs)
	case "doctor":
		return doctorCommand(ctx, cfg, remainingArgs)
	case "config":
		return configCommand(cws, remainingArgs)
	case "tail":
		return tailCommand(ctx, cfg, remainingArgs)
	case "version":
		return versionCommand()
	case "help":
		printUsage(fs, os.Stdout)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", subcommand)
		printUsage(fs, os.Stderr)
		return fmt.Errorf("unknown command: %s", subcommand)
	}
}

// newLogger builds the console logger used by non-interactive commands.
func newLogger(cfg *config.Config, w io.Writer) (*log.Logger, error) {
	return logging.New(w, logging.Options{
		Level:           cfg.LogLevel,
		Format:          cfg.LogFormat,
		ReportTimestamp: cfg.LogTimestamps,
		ReportCaller:    cfg.LogCaller,
		Prefix:          "taskman",
	})
}

// withStore opens the configured backend, loads the task list, runs fn, and
// waits for every write fn caused before returning.
func withStore(ctx context.Context, cfg *config.Config, fn func(*store.Store) error) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}

	gw, err := kv.Open(ctx, cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", cfg.Backend, err)
	}
	defer gw.Close()

	st := store.New(gw, store.WithLogger(logger))
	if err := st.LoadInitial(ctx); err != nil {
		// A malformed blob has been quarantined; anything else would
		// risk overwriting data we could not read.
		if !errors.Is(err, task.ErrMalformed) {
			st.Close(ctx)
			return fmt.Errorf("loading tasks: %w", err)
		}
		logger.Warn("starting with an empty task list", "err", err)
	}

	runErr := fn(st)

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := st.Close(closeCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("waiting for writes: %w", err))
	}
	if status := st.Status(); status.State == store.SyncFailed && status.Err != nil {
		return errors.Join(runErr, fmt.Errorf("saving tasks: %w", status.Err))
	}
	return runErr
}

// tuiCommand runs the interactive screen, logging to a per-run file.
func tuiCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("taskman tui", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if !ui.IsTTY(os.Stdout) {
		return fmt.Errorf("tui requires a TTY; use 'taskman ls' to print tasks")
	}

	runLog, err := logging.NewRunLogger(cfg.LogDir, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("creating run log: %w", err)
	}
	defer runLog.Close()

	logger, err := newLogger(cfg, runLog.Writer())
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings {
		logger.Warn(w)
	}
	logger.Info("starting tui", "data_dir", cfg.DataDir, "backend", cfg.Backend, "run_id", runLog.RunID)

	gw, err := kv.Open(ctx, cfg.Backend, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("opening %s backend: %w", cfg.Backend, err)
	}
	defer gw.Close()

	st := store.New(gw, store.WithLogger(logger))
	runErr := ui.RunTUI(ctx, st, ui.WithFlushTimeout(closeTimeout))

	closeCtx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := st.Close(closeCtx); err != nil {
		logger.Error("pending writes not flushed", "err", err)
		return errors.Join(runErr, fmt.Errorf("waiting for writes: %w", err))
	}
	return runErr
}

// addCommand adds one task whose title is the joined arguments.
func addCommand(ctx context.Context, cfg *config.Config, args []string) error {
	title := strings.Join(args, " ")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("usage: taskman add <title>")
	}
	return withStore(ctx, cfg, func(st *store.Store) error {
		t, ok := st.AddTask(title)
		if !ok {
			return fmt.Errorf("title is empty")
		}
		fmt.Printf("Added %s\n", formatTask(t))
		return nil
	})
}

// lsCommand prints the tasks matching a filter in insertion order.
func lsCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("taskman ls", flag.ContinueOnError)
	filterName := fs.String("filter", "all", "Filter tasks (all|completed|pending)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) > 1 {
		return fmt.Errorf("unexpected arguments: %v", remaining[1:])
	}
	if len(remaining) == 1 {
		*filterName = remaining[0]
	}
	filter, err := task.ParseFilter(*filterName)
	if err != nil {
		return err
	}

	return withStore(ctx, cfg, func(st *store.Store) error {
		st.SetFilter(filter)
		printTaskList(st.VisibleTasks())
		counts := st.Counts()
		fmt.Printf("\n%d tasks, %d completed, %d pending\n", counts.Total, counts.Completed, counts.Pending)
		return nil
	})
}

// toggleCommand flips the completed flag of one task.
func toggleCommand(ctx context.Context, cfg *config.Config, args []string) error {
	id, err := parseID("toggle", args)
	if err != nil {
		return err
	}
	return withStore(ctx, cfg, func(st *store.Store) error {
		if !st.ToggleTask(id) {
			fmt.Printf("No task with id %d\n", id)
			return nil
		}
		t, _ := st.Tasks().Find(id)
		fmt.Printf("Toggled %s\n", formatTask(t))
		return nil
	})
}

// rmCommand deletes one task.
func rmCommand(ctx context.Context, cfg *config.Config, args []string) error {
	id, err := parseID("rm", args)
	if err != nil {
		return err
	}
	return withStore(ctx, cfg, func(st *store.Store) error {
		t, found := st.Tasks().Find(id)
		if !found || !st.DeleteTask(id) {
			fmt.Printf("No task with id %d\n", id)
			return nil
		}
		fmt.Printf("Deleted %s\n", formatTask(t))
		return nil
	})
}

// clearCompletedCommand removes every completed task.
func clearCompletedCommand(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}
	return withStore(ctx, cfg, func(st *store.Store) error {
		n := st.ClearCompleted()
		fmt.Printf("Removed %d completed %s\n", n, plural(n, "task", "tasks"))
		return nil
	})
}

// doctorCommand checks the configuration, the data directory, and the stored
// task list without modifying anything.
func doctorCommand(ctx context.Context, cfg *config.Config, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %v", args)
	}

	fmt.Println("Taskman Doctor")
	fmt.Println("==============")
	fmt.Println()

	allOK := true

	fmt.Println("Config:")
	fmt.Printf("  Data dir: %s\n", cfg.DataDir)
	fmt.Printf("  Backend:  %s\n", cfg.Backend)
	fmt.Printf("  Log dir:  %s\n", cfg.LogDir)
	if len(cfg.Warnings) == 0 {
		fmt.Println("  ✅ OK")
	}
	for _, w := range cfg.Warnings {
		fmt.Printf("  ⚠️  %s\n", w)
	}
	fmt.Println()

	if cfg.Backend != kv.BackendMemory {
		fmt.Printf("Data dir: %s\n", cfg.DataDir)
		if info, err := os.Stat(cfg.DataDir); err != nil {
			if os.IsNotExist(err) {
				fmt.Println("  ✅ Not created yet (created on first save)")
			} else {
				fmt.Printf("  ❌ Error: %v\n", err)
				allOK = false
			}
		} else if !info.IsDir() {
			fmt.Println("  ❌ Error: not a directory")
			allOK = false
		} else {
			fmt.Println("  ✅ OK")
		}
		fmt.Println()
	}

	fmt.Printf("Stored tasks (%s backend):\n", cfg.Backend)
	if ok := checkStoredTasks(ctx, cfg); !ok {
		allOK = false
	}
	fmt.Println()

	if allOK {
		fmt.Println("✅ All checks passed.")
		return nil
	}
	fmt.Println("⚠️  Some checks failed. Taskman may not function correctly.")
	return fmt.Errorf("doctor checks failed")
}

func checkStoredTasks(ctx context.Context, cfg *config.Config) bool {
	gw, err := kv.Open(ctx, cfg.Backend, cfg.DataDir)
	if err != nil {
		fmt.Printf("  ❌ Open: %v\n", err)
		return false
	}
	defer gw.Close()

	data, ok, err := gw.Get(ctx, task.StorageKey)
	if err != nil {
		fmt.Printf("  ❌ Read: %v\n", err)
		return false
	}
	if !ok {
		fmt.Println("  ✅ No saved tasks yet")
		return true
	}

	c, err := task.Decode(data)
	if err != nil {
		fmt.Println("  ❌ Malformed task list:")
		for _, line := range strings.Split(err.Error(), "\n") {
			fmt.Printf("     %s\n", line)
		}
		return false
	}
	counts := c.Counts()
	fmt.Printf("  ✅ %d tasks (%d completed, %d pending)\n", counts.Total, counts.Completed, counts.Pending)
	return true
}

// configCommand prints the effective configuration and where each value
// came from.
func configCommand(cws *config.ConfigWithSources, args []string) error {
	fs := flag.NewFlagSet("taskman config", flag.ContinueOnError)
	example := fs.Bool("example", false, "Print an example config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	if *example {
		fmt.Print(config.ExampleConfig())
		return nil
	}

	if len(cws.Files) == 0 {
		fmt.Println("Config files: (none)")
	} else {
		fmt.Println("Config files:")
		for _, f := range cws.Files {
			fmt.Printf("  %s\n", f)
		}
	}
	fmt.Println()
	for _, field := range config.Fields() {
		fmt.Printf("%-15s = %-30q (%s)\n", field, cws.Config.Value(field), cws.Sources[field])
	}
	for _, w := range cws.Config.Warnings {
		fmt.Printf("\nwarning: %s\n", w)
	}
	return nil
}

// tailCommand tails the latest interactive session log.
func tailCommand(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("taskman tail", flag.ContinueOnError)
	follow := fs.Bool("f", false, "Follow the log (like tail -f)")
	fs.BoolVar(follow, "follow", false, "Follow the log (like tail -f)")
	n := fs.Int("n", 0, "Number of lines to show (0 = all)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	logDir, err := logging.FindLogDir(cfg.LogDir, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("finding log directory: %w", err)
	}

	logPath, err := logging.FindLatestLog(logDir)
	if err != nil {
		return fmt.Errorf("finding latest log: %w", err)
	}

	if logPath == "" {
		fmt.Println("No log files found.")
		return nil
	}

	fmt.Printf("Tailing: %s\n", logPath)
	if *follow {
		fmt.Println("(Ctrl+C to stop)")
	}
	fmt.Println()

	return logging.TailLog(ctx, os.Stdout, logPath, *n, *follow)
}

// versionCommand prints version information.
func versionCommand() error {
	fmt.Printf("taskman version %s\n", Version)
	return nil
}

// printUsage prints the usage message.
func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "Taskman - a small persistent to-do list")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  taskman [options] [command]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  tui                Launch the interactive screen (default command)")
	fmt.Fprintln(w, "  add <title>        Add a task")
	fmt.Fprintln(w, "  ls [filter]        List tasks (all|completed|pending)")
	fmt.Fprintln(w, "  toggle <id>        Mark a task completed or pending")
	fmt.Fprintln(w, "  rm <id>            Delete a task")
	fmt.Fprintln(w, "  clear-completed    Delete every completed task")
	fmt.Fprintln(w, "  doctor             Check config, data dir, and stored tasks")
	fmt.Fprintln(w, "  config             Show the effective configuration")
	fmt.Fprintln(w, "  tail               Tail the latest session log")
	fmt.Fprintln(w, "  version            Show version information")
	fmt.Fprintln(w, "  help               Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Options:")
	fs.SetOutput(w)
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Ls Options (use with 'ls' command):")
	fmt.Fprintln(w, "  -filter string")
	fmt.Fprintln(w, "        Filter tasks (all|completed|pending) (default \"all\")")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config Options (use with 'config' command):")
	fmt.Fprintln(w, "  -example")
	fmt.Fprintln(w, "        Print an example config file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Tail Options (use with 'tail' command):")
	fmt.Fprintln(w, "  -f, --follow")
	fmt.Fprintln(w, "        Follow the log (like tail -f)")
	fmt.Fprintln(w, "  -n int")
	fmt.Fprintln(w, "        Number of lines to show (0 = all)")
}

// printTaskList prints one line per task, or the empty-state message.
func printTaskList(tasks task.Collection) {
	if len(tasks) == 0 {
		fmt.Println("No tasks available. Start by adding a task!")
		return
	}
	for _, t := range tasks {
		fmt.Printf("  %s\n", formatTask(t))
	}
}

func formatTask(t task.Task) string {
	box := "[ ]"
	if t.Completed {
		box = "[x]"
	}
	return fmt.Sprintf("%s %d %s", box, t.ID, t.Title)
}

func parseID(command string, args []string) (int64, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("usage: taskman %s <id>", command)
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q: %w", args[0], err)
	}
	return id, nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
