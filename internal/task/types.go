package task

import (
	"fmt"
	"strings"
)

// Task is a single to-do item.
type Task struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

// Collection is the ordered list of tasks. Transitions never modify the
// receiver; they return a fresh slice so callers comparing by identity see
// every change.
type Collection []Task

// Filter selects which tasks are visible.
type Filter int

const (
	FilterAll Filter = iota
	FilterCompleted
	FilterPending
)

// Filters lists every filter in display order.
var Filters = []Filter{FilterAll, FilterCompleted, FilterPending}

func (f Filter) String() string {
	switch f {
	case FilterCompleted:
		return "completed"
	case FilterPending:
		return "pending"
	default:
		return "all"
	}
}

// Label returns the capitalized name used by the UI.
func (f Filter) Label() string {
	switch f {
	case FilterCompleted:
		return "Completed"
	case FilterPending:
		return "Pending"
	default:
		return "All"
	}
}

// ParseFilter parses a filter name. "done" and "todo" are accepted as
// aliases for completed and pending.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "completed", "done":
		return FilterCompleted, nil
	case "pending", "todo":
		return FilterPending, nil
	}
	return FilterAll, fmt.Errorf("invalid filter %q, must be one of: all, completed, pending", s)
}

// Match reports whether t is visible under f.
func (f Filter) Match(t Task) bool {
	switch f {
	case FilterCompleted:
		return t.Completed
	case FilterPending:
		return !t.Completed
	default:
		return true
	}
}

// Counts summarizes a collection.
type Counts struct {
	Total     int
	Completed int
	Pending   int
}

// Clone returns a copy of c that shares no backing array with it.
func (c Collection) Clone() Collection {
	out := make(Collection, len(c))
	copy(out, c)
	return out
}

// Find returns the task with the given id.
func (c Collection) Find(id int64) (Task, bool) {
	for _, t := range c {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Append returns a new collection with t at the end.
func (c Collection) Append(t Task) Collection {
	out := make(Collection, len(c), len(c)+1)
	copy(out, c)
	return append(out, t)
}

// Toggle returns a new collection with the completed flag of the matching
// task flipped. The second result is false, and c is returned unchanged, when
// no task has the id.
func (c Collection) Toggle(id int64) (Collection, bool) {
	idx := c.index(id)
	if idx < 0 {
		return c, false
	}
	out := c.Clone()
	out[idx].Completed = !out[idx].Completed
	return out, true
}

// Remove returns a new collection without the matching task.
func (c Collection) Remove(id int64) (Collection, bool) {
	idx := c.index(id)
	if idx < 0 {
		return c, false
	}
	out := make(Collection, 0, len(c)-1)
	out = append(out, c[:idx]...)
	return append(out, c[idx+1:]...), true
}

// RemoveCompleted returns a new collection holding only pending tasks and the
// number of tasks dropped.
func (c Collection) RemoveCompleted() (Collection, int) {
	out := c.Visible(FilterPending)
	return out, len(c) - len(out)
}

// Visible projects c through f. Relative order is preserved and c is not
// modified.
func (c Collection) Visible(f Filter) Collection {
	out := make(Collection, 0, len(c))
	for _, t := range c {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Counts returns the total, completed, and pending counts.
func (c Collection) Counts() Counts {
	counts := Counts{Total: len(c)}
	for _, t := range c {
		if t.Completed {
			counts.Completed++
		}
	}
	counts.Pending = counts.Total - counts.Completed
	return counts
}

func (c Collection) index(id int64) int {
	for i := range c {
		if c[i].ID == id {
			return i
		}
	}
	return -1
}
