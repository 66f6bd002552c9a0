// Package ui provides the interactive terminal interface.
package ui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/cursor"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nibzard/taskman-go/internal/store"
	"github.com/nibzard/taskman-go/internal/task"
)

const title = "Task Manager"

// TUIOption configures the TUI behavior.
type TUIOption func(*tuiConfig)

// tuiConfig holds TUI configuration.
type tuiConfig struct {
	tickInterval time.Duration
	flushTimeout time.Duration
}

// WithTickInterval sets how often the sync status is refreshed.
func WithTickInterval(d time.Duration) TUIOption {
	return func(c *tuiConfig) {
		if d > 0 {
			c.tickInterval = d
		}
	}
}

// WithFlushTimeout bounds how long quitting waits for pending writes.
func WithFlushTimeout(d time.Duration) TUIOption {
	return func(c *tuiConfig) {
		if d > 0 {
			c.flushTimeout = d
		}
	}
}

// RunTUI starts the TUI over st. The initial load runs inside the program.
func RunTUI(ctx context.Context, st *store.Store, opts ...TUIOption) error {
	if !IsTTY(os.Stdout) {
		return fmt.Errorf("tui requires a TTY")
	}

	model := newTUIModel(ctx, st, opts...)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return err
	}
	return nil
}

type focusArea int

const (
	focusInput focusArea = iota
	focusList
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	tabStyle       = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("244"))
	activeTabStyle = lipgloss.NewStyle().Padding(0, 1).Bold(true).Underline(true).Foreground(lipgloss.Color("212"))
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	doneStyle      = lipgloss.NewStyle().Strikethrough(true).Foreground(lipgloss.Color("244"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

type tuiModel struct {
	ctx          context.Context
	store        *store.Store
	input        textinput.Model
	focus        focusArea
	cursor       int
	loaded       bool
	loadErr      error
	sync         store.SyncStatus
	showHelp     bool
	quitting     bool
	tickInterval time.Duration
	flushTimeout time.Duration
}

type tickMsg time.Time

type loadedMsg struct {
	err error
}

type flushedMsg struct {
	err error
}

func newTUIModel(ctx context.Context, st *store.Store, opts ...TUIOption) *tuiModel {
	c := &tuiConfig{
		tickInterval: 250 * time.Millisecond,
		flushTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	ti := textinput.New()
	ti.Placeholder = "Add a new task"
	ti.CharLimit = 256
	ti.Width = 40
	ti.Cursor.SetMode(cursor.CursorStatic)
	ti.Focus()

	return &tuiModel{
		ctx:          ctx,
		store:        st,
		input:        ti,
		focus:        focusInput,
		tickInterval: c.tickInterval,
		flushTimeout: c.flushTimeout,
	}
}

func (m *tuiModel) Init() tea.Cmd {
	return tea.Batch(loadCmd(m.ctx, m.store), tickCmd(m.tickInterval))
}

func (m *tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.quitting {
			return m, nil
		}
		if msg.String() == "ctrl+c" {
			return m.quit()
		}
		if msg.String() == "tab" {
			m.toggleFocus()
			return m, nil
		}
		if m.focus == focusInput {
			return m.updateInput(msg)
		}
		return m.updateList(msg)
	case tea.WindowSizeMsg:
		if msg.Width > 10 {
			m.input.Width = msg.Width - 10
		}
	case loadedMsg:
		m.loaded = true
		m.loadErr = msg.err
		m.sync = m.store.Status()
		m.clampCursor()
	case tickMsg:
		m.sync = m.store.Status()
		return m, tickCmd(m.tickInterval)
	case flushedMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m *tuiModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if _, ok := m.store.AddTask(m.input.Value()); ok {
			m.input.SetValue("")
			m.clampCursor()
			m.sync = m.store.Status()
		}
		return m, nil
	case "esc":
		m.setFocus(focusList)
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *tuiModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m.quit()
	case "?":
		m.showHelp = !m.showHelp
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		m.cursor++
		m.clampCursor()
	case " ", "x":
		if t, ok := m.selected(); ok {
			m.store.ToggleTask(t.ID)
		}
	case "d", "delete":
		if t, ok := m.selected(); ok {
			m.store.DeleteTask(t.ID)
		}
	case "1", "a":
		m.store.SetFilter(task.FilterAll)
	case "2", "c":
		m.store.SetFilter(task.FilterCompleted)
	case "3", "p":
		m.store.SetFilter(task.FilterPending)
	case "C":
		m.store.ClearCompleted()
	case "i", "/":
		m.setFocus(focusInput)
	default:
		return m, nil
	}
	m.clampCursor()
	m.sync = m.store.Status()
	return m, nil
}

func (m *tuiModel) quit() (tea.Model, tea.Cmd) {
	m.quitting = true
	return m, flushCmd(m.store, m.flushTimeout)
}

func (m *tuiModel) toggleFocus() {
	if m.focus == focusInput {
		m.setFocus(focusList)
		return
	}
	m.setFocus(focusInput)
}

func (m *tuiModel) setFocus(f focusArea) {
	m.focus = f
	if f == focusInput {
		m.input.Focus()
		return
	}
	m.input.Blur()
}

func (m *tuiModel) selected() (task.Task, bool) {
	visible := m.store.VisibleTasks()
	if m.cursor < 0 || m.cursor >= len(visible) {
		return task.Task{}, false
	}
	return visible[m.cursor], true
}

func (m *tuiModel) clampCursor() {
	n := len(m.store.VisibleTasks())
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m *tuiModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")

	if m.showHelp {
		writeHelp(&b)
		writeFooter(&b, m)
		return b.String()
	}

	b.WriteString(m.input.View() + "\n\n")
	writeTabs(&b, m.store.Filter())

	if !m.loaded {
		b.WriteString("Loading...\n\n")
		writeFooter(&b, m)
		return b.String()
	}

	visible := m.store.VisibleTasks()
	if len(visible) == 0 {
		b.WriteString("No tasks available. Start by adding a task!\n\n")
	} else {
		for i, t := range visible {
			b.WriteString(formatTask(t, m.focus == focusList && i == m.cursor))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	writeFooter(&b, m)
	return b.String()
}

func writeTabs(b *strings.Builder, active task.Filter) {
	tabs := make([]string, 0, len(task.Filters))
	for _, f := range task.Filters {
		if f == active {
			tabs = append(tabs, activeTabStyle.Render(f.Label()))
			continue
		}
		tabs = append(tabs, tabStyle.Render(f.Label()))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...) + "\n\n")
}

func formatTask(t task.Task, selected bool) string {
	pointer := "  "
	if selected {
		pointer = cursorStyle.Render("> ")
	}
	box := "[ ]"
	name := t.Title
	if t.Completed {
		box = "[x]"
		name = doneStyle.Render(t.Title)
	}
	return fmt.Sprintf("%s%s %s", pointer, box, name)
}

func writeHelp(b *strings.Builder) {
	b.WriteString("Keyboard Shortcuts\n\n")
	b.WriteString("  tab          Switch between input and list\n")
	b.WriteString("  enter        Add the typed task\n")
	b.WriteString("  esc, i       Leave or enter the input\n")
	b.WriteString("  up/k down/j  Move the cursor\n")
	b.WriteString("  space, x     Toggle completed\n")
	b.WriteString("  d, delete    Delete task\n")
	b.WriteString("  1, a         Show all\n")
	b.WriteString("  2, c         Show completed\n")
	b.WriteString("  3, p         Show pending\n")
	b.WriteString("  C            Clear completed tasks\n")
	b.WriteString("  ?            Toggle this help screen\n")
	b.WriteString("  q, ctrl+c    Quit\n\n")
}

func writeFooter(b *strings.Builder, m *tuiModel) {
	counts := m.store.Counts()
	status := syncLabel(m.sync, m.loadErr)
	if m.sync.State == store.SyncFailed {
		status = errorStyle.Render(status)
	}
	if m.quitting {
		status = "saving before exit..."
	}
	line := fmt.Sprintf("%d tasks, %d pending | %s | ? for help | q to quit", counts.Total, counts.Pending, status)
	b.WriteString(faintStyle.Render(line) + "\n")
}

// syncLabel renders a one-line description of the persistence state.
func syncLabel(st store.SyncStatus, loadErr error) string {
	switch st.State {
	case store.SyncLoading:
		return "loading..."
	case store.SyncSaving:
		return "saving..."
	case store.SyncSaved:
		return "saved"
	case store.SyncFailed:
		if loadErr != nil && st.Err == loadErr {
			return fmt.Sprintf("load failed: %v", st.Err)
		}
		return fmt.Sprintf("save failed: %v", st.Err)
	}
	return "ready"
}

func loadCmd(ctx context.Context, st *store.Store) tea.Cmd {
	return func() tea.Msg {
		return loadedMsg{err: st.LoadInitial(ctx)}
	}
}

func flushCmd(st *store.Store, timeout time.Duration) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return flushedMsg{err: st.Flush(ctx)}
	}
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// IsTTY returns true if w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
