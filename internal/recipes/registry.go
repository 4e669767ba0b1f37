// Package recipes holds the recipe registries shared by every processing
// unit and the matching rules each unit kind resolves its inputs with.
package recipes

import (
	"errors"
	"sync"
)

var (
	ErrInvalidRecipe   = errors.New("invalid recipe")
	ErrDuplicateRecipe = errors.New("duplicate recipe")
)

// Keyed is a recipe with an input signature. Two recipes with the same
// key compete for the same inputs and cannot both be registered.
type Keyed interface {
	Key() string
}

// Registry stores recipes by key with thread-safe access. Iteration follows
// registration order so resolution is deterministic.
type Registry[R Keyed] struct {
	mu    sync.RWMutex
	byKey map[string]R
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry[R Keyed]() *Registry[R] {
	return &Registry[R]{byKey: make(map[string]R)}
}

// Register adds r. It returns false when a recipe with the same key exists.
func (r *Registry[R]) Register(rec R) bool {
	_, loaded := r.LoadOrStore(rec)
	return !loaded
}

// LoadOrStore returns the recipe already stored under rec's key, or stores
// rec and returns it. Concurrent callers with the same key all get the
// same stored recipe.
func (r *Registry[R]) LoadOrStore(rec R) (R, bool) {
	key := rec.Key()

	r.mu.RLock()
	existing, ok := r.byKey[key]
	r.mu.RUnlock()
	if ok {
		return existing, true
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[key]; ok {
		return existing, true
	}
	r.byKey[key] = rec
	r.order = append(r.order, key)
	return rec, false
}

// Get returns the recipe stored under key.
func (r *Registry[R]) Get(key string) (R, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byKey[key]
	return rec, ok
}

// Find returns the first recipe, in registration order, accepted by match.
func (r *Registry[R]) Find(match func(R) bool) (R, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, key := range r.order {
		if rec := r.byKey[key]; match(rec) {
			return rec, true
		}
	}
	var zero R
	return zero, false
}

// All returns every recipe in registration order.
func (r *Registry[R]) All() []R {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]R, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byKey[key])
	}
	return out
}

// Remove deletes the recipe under key and reports whether it existed.
func (r *Registry[R]) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[key]; !ok {
		return false
	}
	delete(r.byKey, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of stored recipes.
func (r *Registry[R]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey)
}
