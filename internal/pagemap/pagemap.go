// Package pagemap keeps a keyed set of factories that may each be
// registered once, such as the per-service response renderers.
package pagemap

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
)

// Registry maps keys to values with register-once semantics
type Registry[K cmp.Ordered, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

func New[K cmp.Ordered, V any]() *Registry[K, V] {
	return &Registry[K, V]{data: make(map[K]V)}
}

// Register stores v under key and returns it, failing if key is taken
func (r *Registry[K, V]) Register(key K, v V) (V, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.data[key]; ok {
		var zero V
		return zero, fmt.Errorf("%v: %w", key, ErrAlreadyRegistered)
	}
	r.data[key] = v
	return v, nil
}

func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.data[key]
	return ok
}

// Get returns the value for key or ErrNotRegistered
func (r *Registry[K, V]) Get(key K) (V, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("%v: %w", key, ErrNotRegistered)
	}
	return v, nil
}

// Keys returns the registered keys in ascending order
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	keys := make([]K, 0, len(r.data))
	for k := range r.data {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	return keys
}
