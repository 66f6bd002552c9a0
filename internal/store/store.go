// Package store owns the in-memory task collection and keeps it in sync with
// a kv.Gateway.
//
// Every mutation ends with an explicit save that enqueues a snapshot of the
// whole collection. A single writer goroutine drains the queue in order, so
// writes never reorder and callers never wait on I/O. Writes are held back
// until the first LoadInitial settles; mutations made before then are
// replayed on top of whatever the load returns.
package store

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/nibzard/taskman-go/internal/kv"
	"github.com/nibzard/taskman-go/internal/task"
)

// DefaultWriteTimeout bounds a single gateway write.
const DefaultWriteTimeout = 10 * time.Second

type loadState int

const (
	loadPending loadState = iota
	loadRunning
	loadDone
)

// mutation is a recorded collection transition, replayed after a load.
type mutation func(task.Collection) task.Collection

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards output.
func WithLogger(logger *log.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithKey overrides the gateway key (default task.StorageKey).
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithIDSource sets the id generator.
func WithIDSource(ids *task.IDSource) Option {
	return func(s *Store) {
		if ids != nil {
			s.ids = ids
		}
	}
}

// WithWriteTimeout bounds each gateway write.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

// WithQuarantineName sets the generator for quarantine key suffixes.
func WithQuarantineName(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.quarantineName = fn
		}
	}
}

// Store is the task list state container. The collection is only reachable
// through its methods; readers always get copies.
type Store struct {
	gw             kv.Gateway
	key            string
	logger         *log.Logger
	ids            *task.IDSource
	writeTimeout   time.Duration
	quarantineName func() string

	mu     sync.Mutex
	cond   *sync.Cond
	tasks  task.Collection
	filter task.Filter
	load   loadState
	replay []mutation
	status SyncStatus

	queue    [][]byte
	enqueued uint64
	written  uint64
	closed   bool
	done     chan struct{}
	settled  chan struct{} // closed when the initial load settles
}

// New returns an empty store persisting through gw and starts its writer.
func New(gw kv.Gateway, opts ...Option) *Store {
	s := &Store{
		gw:             gw,
		key:            task.StorageKey,
		logger:         log.New(io.Discard),
		ids:            task.NewIDSource(nil),
		writeTimeout:   DefaultWriteTimeout,
		quarantineName: func() string { return uuid.NewString() },
		tasks:          task.Collection{},
		filter:         task.FilterAll,
		done:           make(chan struct{}),
		settled:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cond = sync.NewCond(&s.mu)
	go s.writeLoop()
	return s
}

// LoadInitial fetches the persisted collection and replaces the in-memory
// one with it. An absent key leaves the collection empty. A read failure or a
// malformed blob is logged, reported in Status, and returned, and the store
// continues with an empty collection; a malformed blob is first copied to a
// quarantine key so the next save cannot destroy it.
//
// Mutations made before LoadInitial settles are replayed on top of the
// loaded collection and saved once.
//
// Only the first call loads; later calls return nil without touching state.
func (s *Store) LoadInitial(ctx context.Context) error {
	s.mu.Lock()
	if s.load != loadPending {
		s.mu.Unlock()
		s.logger.Debug("tasks already loaded, ignoring reload", "key", s.key)
		return nil
	}
	s.load = loadRunning
	s.status.State = SyncLoading
	s.mu.Unlock()

	loaded, loadErr := s.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	base := loaded
	if base == nil {
		base = task.Collection{}
	}
	replayed := len(s.replay)
	for _, m := range s.replay {
		base = m(base)
	}
	s.replay = nil
	s.tasks = base
	s.load = loadDone
	close(s.settled)
	s.ids.Observe(idsOf(base)...)

	if loadErr != nil {
		s.status.State = SyncFailed
		s.status.Err = loadErr
	} else {
		s.status.State = SyncIdle
		s.status.Err = nil
	}
	s.logger.Debug("tasks loaded", "key", s.key, "count", len(loaded), "replayed", replayed)

	if replayed > 0 {
		s.save()
	}
	return loadErr
}

func (s *Store) fetch(ctx context.Context) (task.Collection, error) {
	data, ok, err := s.gw.Get(ctx, s.key)
	if err != nil {
		s.logger.Error("read tasks failed, starting empty", "key", s.key, "err", err)
		return nil, fmt.Errorf("read %s: %w", s.key, err)
	}
	if !ok {
		s.logger.Debug("no saved tasks", "key", s.key)
		return nil, nil
	}

	c, err := task.Decode(data)
	if err != nil {
		s.logger.Error("saved tasks are malformed, starting empty", "key", s.key, "err", err)
		s.quarantine(ctx, data)
		return nil, fmt.Errorf("decode %s: %w", s.key, err)
	}
	return c, nil
}

func (s *Store) quarantine(ctx context.Context, data []byte) {
	key := s.key + ".corrupt." + s.quarantineName()
	if err := s.gw.Set(ctx, key, data); err != nil {
		s.logger.Error("quarantine malformed tasks failed", "key", key, "err", err)
		return
	}
	s.logger.Warn("malformed tasks preserved", "key", key)
}

// AddTask appends a pending task titled title. Blank titles are ignored and
// ok is false. Invalid UTF-8 sequences are replaced with U+FFFD.
func (s *Store) AddTask(title string) (t task.Task, ok bool) {
	title = strings.ToValidUTF8(title, "\uFFFD")
	if strings.TrimSpace(title) == "" {
		return task.Task{}, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t = task.Task{ID: s.ids.Next(), Title: title}
	s.apply(func(c task.Collection) task.Collection { return c.Append(t) })
	s.logger.Debug("task added", "id", t.ID)
	return t, true
}

// ToggleTask flips the completed flag of the task with id. It reports false,
// without saving, when no task has that id.
func (s *Store) ToggleTask(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks.Find(id); !ok {
		return false
	}
	s.apply(func(c task.Collection) task.Collection {
		next, _ := c.Toggle(id)
		return next
	})
	s.logger.Debug("task toggled", "id", id)
	return true
}

// DeleteTask removes the task with id. It reports false, without saving,
// when no task has that id.
func (s *Store) DeleteTask(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks.Find(id); !ok {
		return false
	}
	s.apply(func(c task.Collection) task.Collection {
		next, _ := c.Remove(id)
		return next
	})
	s.logger.Debug("task deleted", "id", id)
	return true
}

// ClearCompleted removes every completed task in one mutation and returns
// how many were removed.
func (s *Store) ClearCompleted() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.tasks.Counts().Completed
	if n == 0 {
		return 0
	}
	s.apply(func(c task.Collection) task.Collection {
		next, _ := c.RemoveCompleted()
		return next
	})
	s.logger.Debug("completed tasks cleared", "count", n)
	return n
}

// apply runs m against the collection and saves. Before the initial load
// settles m is also recorded for replay and the save is deferred.
// Callers hold s.mu.
func (s *Store) apply(m mutation) {
	s.tasks = m(s.tasks)
	if s.load != loadDone {
		s.replay = append(s.replay, m)
		return
	}
	s.save()
}

// SetFilter changes the active filter. Filters are never persisted.
func (s *Store) SetFilter(f task.Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filter = f
}

// Filter returns the active filter.
func (s *Store) Filter() task.Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// VisibleTasks returns the tasks matching the active filter in insertion
// order.
func (s *Store) VisibleTasks() task.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Visible(s.filter)
}

// Tasks returns a copy of the whole collection.
func (s *Store) Tasks() task.Collection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Clone()
}

// Counts summarizes the whole collection regardless of filter.
func (s *Store) Counts() task.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks.Counts()
}

// Loaded reports whether the initial load has settled.
func (s *Store) Loaded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load == loadDone
}

func idsOf(c task.Collection) []int64 {
	ids := make([]int64, len(c))
	for i, t := range c {
		ids[i] = t.ID
	}
	return ids
}
