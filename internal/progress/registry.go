// Package progress tracks in-flight acquisition jobs for polling callers.
//
// Entries are keyed by job label and live only as long as the Registry that
// holds them; nothing is persisted. Two jobs with the same label share one
// entry and overwrite each other's progress.
package progress

import (
	"math"
	"sync"
	"time"
)

// Entry is the polled state of one job.
type Entry struct {
	Percent   float64   `json:"percent"`
	Message   string    `json:"message,omitempty"`
	State     string    `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Registry is a concurrency-safe map of job label to Entry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*Entry), now: time.Now}
}

// Start resets the entry for label to 0% in the given state.
func (r *Registry) Start(label, state string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[label] = &Entry{State: state, UpdatedAt: r.now()}
}

// SetState records a state transition, keeping the current percent.
func (r *Registry) SetState(label, state string) {
	r.update(label, func(e *Entry) { e.State = state })
}

// SetPercent stores percent rounded to two decimals and clamped to 0..100.
func (r *Registry) SetPercent(label string, percent float64) {
	percent = math.Round(percent*100) / 100
	percent = math.Max(0, math.Min(100, percent))
	r.update(label, func(e *Entry) { e.Percent = percent })
}

// SetMessage replaces the free-text message.
func (r *Registry) SetMessage(label, message string) {
	r.update(label, func(e *Entry) { e.Message = message })
}

// StateFailed is the state Fail records.
const StateFailed = "Failed"

// Fail records a terminal failure with a human-readable message.
func (r *Registry) Fail(label, message string) {
	r.update(label, func(e *Entry) {
		e.State = StateFailed
		e.Message = message
	})
}

// Get returns a copy of the entry for label.
func (r *Registry) Get(label string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[label]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Remove deletes the entry for label.
func (r *Registry) Remove(label string) {
	r.mu.Lock()
	delete(r.entries, label)
	r.mu.Unlock()
}

// Snapshot copies every entry.
func (r *Registry) Snapshot() map[string]Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Entry, len(r.entries))
	for label, e := range r.entries {
		out[label] = *e
	}
	return out
}

// Clear drops every entry.
func (r *Registry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*Entry)
	r.mu.Unlock()
}

func (r *Registry) update(label string, fn func(*Entry)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[label]
	if !ok {
		e = &Entry{}
		r.entries[label] = e
	}
	fn(e)
	e.UpdatedAt = r.now()
}
