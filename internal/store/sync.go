package store

import (
	"context"
	"time"

	"github.com/nibzard/taskman-go/internal/task"
)

// SyncState describes what the persistence side of the store is doing.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncLoading
	SyncSaving
	SyncSaved
	SyncFailed
)

func (s SyncState) String() string {
	switch s {
	case SyncLoading:
		return "loading"
	case SyncSaving:
		return "saving"
	case SyncSaved:
		return "saved"
	case SyncFailed:
		return "failed"
	default:
		return "idle"
	}
}

// SyncStatus is a snapshot of the persistence state.
type SyncStatus struct {
	State     SyncState
	Err       error     // last load or write error, cleared by the next successful write
	LastSaved time.Time // completion time of the last successful write
	Pending   int       // writes queued or in flight
}

// Status returns the current sync status.
func (s *Store) Status() SyncStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Pending = int(s.enqueued - s.written)
	return st
}

// save snapshots the collection and queues it for writing. Callers hold s.mu.
func (s *Store) save() {
	if s.closed {
		s.logger.Warn("save after close dropped", "key", s.key)
		return
	}
	data, err := task.Encode(s.tasks)
	if err != nil {
		s.status.State = SyncFailed
		s.status.Err = err
		s.logger.Error("encode tasks failed", "key", s.key, "err", err)
		return
	}
	s.queue = append(s.queue, data)
	s.enqueued++
	s.status.State = SyncSaving
	s.cond.Broadcast()
}

// writeLoop writes queued snapshots in FIFO order until the store is closed
// and the queue is empty.
func (s *Store) writeLoop() {
	defer close(s.done)

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return
		}
		data := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.gw.Set(ctx, s.key, data)
		cancel()

		s.mu.Lock()
		s.written++
		if err != nil {
			s.status.State = SyncFailed
			s.status.Err = err
			s.logger.Error("save tasks failed", "key", s.key, "err", err)
		} else {
			s.status.LastSaved = time.Now()
			s.status.Err = nil
			if s.written == s.enqueued {
				s.status.State = SyncSaved
			}
			s.logger.Debug("tasks saved", "key", s.key, "bytes", len(data))
		}
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// waitLoad blocks while a LoadInitial is in flight, since its replayed
// mutations are not queued until it settles. A load that never started is
// not waited for.
func (s *Store) waitLoad(ctx context.Context) error {
	s.mu.Lock()
	running := s.load == loadRunning
	s.mu.Unlock()
	if !running {
		return nil
	}
	select {
	case <-s.settled:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush blocks until every write queued before the call has completed, or
// ctx is done. A load in flight is waited for first, so mutations it will
// replay are included. It does not report write errors; see Status.
func (s *Store) Flush(ctx context.Context) error {
	if err := s.waitLoad(ctx); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	})
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.enqueued
	for s.written < target {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// Close waits for a load in flight, drains queued writes, and stops the
// writer. Saves after Close are dropped. It returns ctx.Err() if the queue
// could not drain in time.
func (s *Store) Close(ctx context.Context) error {
	if err := s.waitLoad(ctx); err != nil {
		s.mu.Lock()
		s.closed = true
		s.cond.Broadcast()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
