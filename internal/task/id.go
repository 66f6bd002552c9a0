package task

import (
	"sync"
	"time"
)

// IDSource issues task ids derived from the wall clock.
type IDSource struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

// NewIDSource returns an IDSource reading now. A nil now uses time.Now.
func NewIDSource(now func() time.Time) *IDSource {
	if now == nil {
		now = time.Now
	}
	return &IDSource{now: now}
}

// Next returns the current time in Unix milliseconds, or last+1 if the clock
// has not advanced past the previously issued id.
func (s *IDSource) Next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.now().UnixMilli()
	if id <= s.last {
		id = s.last + 1
	}
	s.last = id
	return id
}

// Observe records existing ids so later ids sort after them.
func (s *IDSource) Observe(ids ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if id > s.last {
			s.last = id
		}
	}
}
