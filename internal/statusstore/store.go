// Package statusstore keeps the latest known state of every job of a run in
// memory so it can be read while the run is still in progress.
//
// The store is written by many goroutines (executor workers, monitor polls)
// and read by the healthcheck server. Each job's entry is independent, so
// it uses sync.Map instead of a single mutex.
package statusstore

import (
	"sort"
	"sync"
	"time"
)

// State is the lifecycle state of a job.
type State string

const (
	Pending  State = "pending"
	Running  State = "running"
	Finished State = "finished"
	Failed   State = "failed"
	Skipped  State = "skipped"
)

// Entry is the last report recorded for one job.
type Entry struct {
	Name    string    `json:"name"`
	State   State     `json:"state"`
	Message string    `json:"message,omitempty"`
	Updated time.Time `json:"updated"`
}

// Store is a concurrent map of job name to Entry.
type Store struct {
	entries sync.Map // Key: job name, Value: Entry
	now     func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{now: time.Now}
}

// Set records e under name. Name and Updated are filled in when empty.
func (s *Store) Set(name string, e Entry) {
	e.Name = name
	if e.Updated.IsZero() {
		e.Updated = s.now()
	}
	s.entries.Store(name, e)
}

// Get returns the entry for name. Unknown jobs are reported as pending.
func (s *Store) Get(name string) Entry {
	v, ok := s.entries.Load(name)
	if !ok {
		return Entry{Name: name, State: Pending}
	}
	return v.(Entry)
}

// Snapshot returns every entry sorted by job name.
func (s *Store) Snapshot() []Entry {
	var out []Entry
	s.entries.Range(func(_, v any) bool {
		out = append(out, v.(Entry))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Count returns how many entries are in state st.
func (s *Store) Count(st State) int {
	n := 0
	s.entries.Range(func(_, v any) bool {
		if v.(Entry).State == st {
			n++
		}
		return true
	})
	return n
}
