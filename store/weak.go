package store

import (
	"context"
	"runtime"
	"sync"
	"weak"

	"github.com/cockroachdb/errors"
)

// Weak is a controller that holds weak references to its values. An entry
// disappears once the caller drops the last strong reference to the stored
// pointer, without waiting for deletion, expiry, or eviction.
//
// This is a narrower-applicability variant: it is only sound when the cached
// values are pointers the caller keeps alive for as long as the entry should
// remain retrievable. Save rejects values that are not of type *V.
type Weak[V any] struct {
	mu      sync.Mutex
	entries map[string]weak.Pointer[V]
}

var _ Controller = (*Weak[int])(nil)

// NewWeak returns an empty weak-reference controller for values of type *V.
func NewWeak[V any]() *Weak[V] {
	return &Weak[V]{entries: make(map[string]weak.Pointer[V])}
}

func (w *Weak[V]) Save(_ context.Context, key string, value any, _ []any) (any, error) {
	ptr, ok := value.(*V)
	if !ok {
		return nil, errors.Newf("store: weak controller requires %T values, got %T", (*V)(nil), value)
	}
	wp := weak.Make(ptr)
	w.mu.Lock()
	w.entries[key] = wp
	w.mu.Unlock()
	// Drop the map entry once the value has been collected. The cleanup
	// compares pointers so a key overwritten with a new value is left alone.
	runtime.AddCleanup(ptr, func(k string) {
		w.mu.Lock()
		if cur, ok := w.entries[k]; ok && cur == wp {
			delete(w.entries, k)
		}
		w.mu.Unlock()
	}, key)
	return value, nil
}

func (w *Weak[V]) Retrieve(_ context.Context, key string, _ []any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.entries[key]
	if !ok {
		return NotCached, nil
	}
	ptr := wp.Value()
	if ptr == nil {
		delete(w.entries, key)
		return NotCached, nil
	}
	return ptr, nil
}

func (w *Weak[V]) Delete(_ context.Context, key string, _ []any) (any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.entries[key]
	if !ok {
		return NotCached, nil
	}
	delete(w.entries, key)
	if ptr := wp.Value(); ptr != nil {
		return ptr, nil
	}
	return NotCached, nil
}

func (w *Weak[V]) Empty(_ context.Context) error {
	w.mu.Lock()
	w.entries = make(map[string]weak.Pointer[V])
	w.mu.Unlock()
	return nil
}

func (w *Weak[V]) Contents(_ context.Context) (map[string]any, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	snapshot := make(map[string]any, len(w.entries))
	for k, wp := range w.entries {
		if ptr := wp.Value(); ptr != nil {
			snapshot[k] = ptr
		}
	}
	return snapshot, nil
}
