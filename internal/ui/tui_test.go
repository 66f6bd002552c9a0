package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/go-cmp/cmp"

	"github.com/nibzard/taskman-go/internal/kv"
	"github.com/nibzard/taskman-go/internal/store"
	"github.com/nibzard/taskman-go/internal/task"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newLoadedModel(t *testing.T) (*tuiModel, *store.Store) {
	t.Helper()
	ctx := context.Background()
	st := store.New(kv.NewMemory())
	t.Cleanup(func() { st.Close(context.Background()) })

	m := newTUIModel(ctx, st)
	m.Update(loadCmd(ctx, st)())
	if !m.loaded {
		t.Fatal("model not loaded")
	}
	return m, st
}

func addTasks(m *tuiModel, titles ...string) {
	for _, title := range titles {
		m.input.SetValue(title)
		m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	}
}

func visibleTitles(st *store.Store) []string {
	var out []string
	for _, t := range st.VisibleTasks() {
		out = append(out, t.Title)
	}
	return out
}

func TestViewBeforeLoad(t *testing.T) {
	st := store.New(kv.NewMemory())
	defer st.Close(context.Background())

	view := newTUIModel(context.Background(), st).View()
	for _, want := range []string{"Task Manager", "Loading...", "All", "Completed", "Pending"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestViewEmptyState(t *testing.T) {
	m, _ := newLoadedModel(t)
	if view := m.View(); !strings.Contains(view, "No tasks available. Start by adding a task!") {
		t.Errorf("expected empty state, got:\n%s", view)
	}
}

func TestEnterAddsTaskAndClearsInput(t *testing.T) {
	m, st := newLoadedModel(t)

	addTasks(m, "Buy milk")
	if m.input.Value() != "" {
		t.Errorf("input not cleared: %q", m.input.Value())
	}

	m.input.SetValue("   ")
	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.input.Value() != "   " {
		t.Error("blank title should stay in the input")
	}

	if diff := cmp.Diff([]string{"Buy milk"}, visibleTitles(st)); diff != "" {
		t.Errorf("tasks mismatch (-want +got):\n%s", diff)
	}
	if view := m.View(); !strings.Contains(view, "[ ] Buy milk") {
		t.Errorf("view missing task:\n%s", view)
	}
}

func TestListKeys(t *testing.T) {
	m, st := newLoadedModel(t)
	addTasks(m, "A", "B", "C")

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusList {
		t.Fatal("tab should focus the list")
	}

	// Toggle the second task.
	m.Update(runes("j"))
	m.Update(tea.KeyMsg{Type: tea.KeySpace})
	if c := st.Counts(); c.Completed != 1 {
		t.Fatalf("completed after toggle: got %d, want 1", c.Completed)
	}

	m.Update(runes("2"))
	if diff := cmp.Diff([]string{"B"}, visibleTitles(st)); diff != "" {
		t.Errorf("completed filter (-want +got):\n%s", diff)
	}
	if m.cursor != 0 {
		t.Errorf("cursor not clamped: %d", m.cursor)
	}

	m.Update(runes("p"))
	if diff := cmp.Diff([]string{"A", "C"}, visibleTitles(st)); diff != "" {
		t.Errorf("pending filter (-want +got):\n%s", diff)
	}

	m.Update(runes("d"))
	if diff := cmp.Diff([]string{"C"}, visibleTitles(st)); diff != "" {
		t.Errorf("after delete (-want +got):\n%s", diff)
	}

	m.Update(runes("a"))
	m.Update(runes("C"))
	if diff := cmp.Diff([]string{"C"}, visibleTitles(st)); diff != "" {
		t.Errorf("after clear completed (-want +got):\n%s", diff)
	}
	if st.Filter() != task.FilterAll {
		t.Errorf("filter: got %v, want all", st.Filter())
	}
}

func TestKeysOnEmptyListAreNoOps(t *testing.T) {
	m, st := newLoadedModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	for _, msg := range []tea.KeyMsg{runes("x"), runes("d"), {Type: tea.KeyDelete}, runes("j"), runes("k")} {
		m.Update(msg)
	}
	if c := st.Counts(); c.Total != 0 {
		t.Errorf("expected no tasks, got %d", c.Total)
	}
	if m.cursor != 0 {
		t.Errorf("cursor: got %d, want 0", m.cursor)
	}
}

func TestTypingQInInputDoesNotQuit(t *testing.T) {
	m, _ := newLoadedModel(t)
	m.Update(runes("q"))
	if m.quitting {
		t.Error("q in the input should type, not quit")
	}
	if m.input.Value() != "q" {
		t.Errorf("input: got %q, want q", m.input.Value())
	}
}

func TestQuitFlushesFirst(t *testing.T) {
	m, st := newLoadedModel(t)
	addTasks(m, "Buy milk")

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	_, cmd := m.Update(runes("q"))
	if !m.quitting || cmd == nil {
		t.Fatal("q should start quitting with a flush command")
	}
	msg := cmd()
	if _, ok := msg.(flushedMsg); !ok {
		t.Fatalf("expected flushedMsg, got %T", msg)
	}
	if p := st.Status().Pending; p != 0 {
		t.Errorf("pending writes after flush: %d", p)
	}

	_, cmd = m.Update(msg)
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestHelpToggle(t *testing.T) {
	m, _ := newLoadedModel(t)
	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m.Update(runes("?"))
	if view := m.View(); !strings.Contains(view, "Keyboard Shortcuts") {
		t.Errorf("help not shown:\n%s", view)
	}
	m.Update(runes("?"))
	if view := m.View(); strings.Contains(view, "Keyboard Shortcuts") {
		t.Error("help still shown")
	}
}

func TestSyncLabel(t *testing.T) {
	loadErr := context.DeadlineExceeded
	tests := []struct {
		name   string
		status store.SyncStatus
		want   string
	}{
		{"idle", store.SyncStatus{}, "ready"},
		{"loading", store.SyncStatus{State: store.SyncLoading}, "loading..."},
		{"saving", store.SyncStatus{State: store.SyncSaving}, "saving..."},
		{"saved", store.SyncStatus{State: store.SyncSaved}, "saved"},
		{"load failed", store.SyncStatus{State: store.SyncFailed, Err: loadErr}, "load failed: context deadline exceeded"},
		{"save failed", store.SyncStatus{State: store.SyncFailed, Err: context.Canceled}, "save failed: context canceled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := syncLabel(tt.status, loadErr); got != tt.want {
				t.Errorf("syncLabel: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOptions(t *testing.T) {
	st := store.New(kv.NewMemory())
	defer st.Close(context.Background())

	m := newTUIModel(context.Background(), st, WithTickInterval(time.Second), WithFlushTimeout(time.Minute), WithTickInterval(0))
	if m.tickInterval != time.Second {
		t.Errorf("tickInterval: got %s, want 1s", m.tickInterval)
	}
	if m.flushTimeout != time.Minute {
		t.Errorf("flushTimeout: got %s, want 1m", m.flushTimeout)
	}
}

// gatedGateway holds reads until gate is closed.
type gatedGateway struct {
	*kv.Memory
	started chan struct{}
	gate    chan struct{}
}

func (g gatedGateway) Get(ctx context.Context, key string) ([]byte, bool, error) {
	close(g.started)
	<-g.gate
	return g.Memory.Get(ctx, key)
}

func TestQuitDuringLoadKeepsTypedTask(t *testing.T) {
	ctx := context.Background()
	gw := gatedGateway{Memory: kv.NewMemory(), started: make(chan struct{}), gate: make(chan struct{})}
	st := store.New(gw)
	defer st.Close(ctx)

	m := newTUIModel(ctx, st, WithFlushTimeout(5*time.Second))
	loaded := make(chan tea.Msg, 1)
	go func() { loaded <- loadCmd(ctx, st)() }()
	<-gw.started

	addTasks(m, "typed while loading")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !m.quitting || cmd == nil {
		t.Fatal("ctrl+c should start quitting with a flush command")
	}

	flushed := make(chan tea.Msg, 1)
	go func() { flushed <- cmd() }()
	select {
	case <-flushed:
		t.Fatal("flush finished before the load settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(gw.gate)
	m.Update(<-loaded)
	msg := <-flushed
	if fm, ok := msg.(flushedMsg); !ok || fm.err != nil {
		t.Fatalf("expected clean flushedMsg, got %#v", msg)
	}

	data, ok, err := gw.Memory.Get(ctx, task.StorageKey)
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	c, err := task.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(c) != 1 || c[0].Title != "typed while loading" {
		t.Errorf("stored tasks: got %+v", c)
	}
}

func TestIsTTY(t *testing.T) {
	if IsTTY(&strings.Builder{}) {
		t.Error("a builder is not a terminal")
	}
}
