package bridge

import (
	"sync"

	"github.com/atu-ide/bizbridge/internal/models"
)

// Listener receives every envelope pushed on its event key
type Listener func(resp *models.RawResponse)

// Disposable undoes exactly one registration. Dispose is idempotent.
type Disposable interface {
	Dispose()
}

// DisposeFunc adapts a func to Disposable
type DisposeFunc func()

func (f DisposeFunc) Dispose() { f() }

// entry wraps a listener so two registrations of the same func stay distinct
type entry struct {
	fn Listener
}

// Registry maps event keys to listeners in registration order.
// Keys with no listeners are removed.
type Registry struct {
	mu      sync.Mutex
	entries map[string][]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string][]*entry)}
}

// Add appends fn under key and returns its disposer
func (r *Registry) Add(key string, fn Listener) Disposable {
	e := &entry{fn: fn}

	r.mu.Lock()
	r.entries[key] = append(r.entries[key], e)
	r.mu.Unlock()

	var once sync.Once
	return DisposeFunc(func() {
		once.Do(func() { r.remove(key, e) })
	})
}

func (r *Registry) remove(key string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, ok := r.entries[key]
	if !ok {
		return
	}
	idx := -1
	for i, cur := range list {
		if cur == e {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}

	if len(list) == 1 {
		delete(r.entries, key)
		return
	}
	// copy so snapshots taken by an ongoing dispatch stay intact
	next := make([]*entry, 0, len(list)-1)
	next = append(next, list[:idx]...)
	next = append(next, list[idx+1:]...)
	r.entries[key] = next
}

// Snapshot returns the listeners for key at this instant
func (r *Registry) Snapshot(key string) []Listener {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[key]
	if len(list) == 0 {
		return nil
	}
	out := make([]Listener, len(list))
	for i, e := range list {
		out[i] = e.fn
	}
	return out
}

// Count returns how many listeners are registered for key
func (r *Registry) Count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries[key])
}

// Has reports whether key has any listener
func (r *Registry) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Counts returns the listener count of every registered key
func (r *Registry) Counts() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.entries))
	for k, list := range r.entries {
		out[k] = len(list)
	}
	return out
}
