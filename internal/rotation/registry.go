package rotation

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
)

const (
	defaultCodeLength  = 6
	defaultMaxAttempts = 32
)

// RandomCode returns a random decimal code of exactly length digits with
// no leading zero.
func RandomCode(length int) string {
	if length < 1 {
		length = 1
	}
	lo := int64(1)
	for range length - 1 {
		lo *= 10
	}
	return strconv.FormatInt(lo+rand.Int64N(9*lo), 10)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithIDGenerator replaces the join code generator.
func WithIDGenerator(gen func() string) RegistryOption {
	return func(r *Registry) { r.newID = gen }
}

// WithCodeLength sets the number of digits of generated join codes.
func WithCodeLength(n int) RegistryOption {
	return func(r *Registry) {
		r.newID = func() string { return RandomCode(n) }
	}
}

// WithMaxAttempts bounds how many ids Add tries before giving up.
func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

// Registry holds the live sessions of this process keyed by join code.
type Registry struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	newID       func() string
	maxAttempts int
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		newID:       func() string { return RandomCode(defaultCodeLength) },
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add picks an id not currently registered, builds the session with it and
// registers the result.
func (r *Registry) Add(build func(id string) (*Session, error)) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for range r.maxAttempts {
		id := r.newID()
		if _, taken := r.sessions[id]; taken {
			continue
		}
		s, err := build(id)
		if err != nil {
			return nil, err
		}
		r.sessions[id] = s
		return s, nil
	}
	return nil, fmt.Errorf("after %d attempts: %w", r.maxAttempts, ErrRegistryFull)
}

// Get returns the session registered under id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Find returns the first session, in List order, matching pred.
func (r *Registry) Find(pred func(*Session) bool) (*Session, bool) {
	for _, s := range r.List() {
		if pred(s) {
			return s, true
		}
	}
	return nil, false
}

// Remove deregisters id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// List returns all registered sessions, oldest first.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].startedAt.Equal(out[j].startedAt) {
			return out[i].startedAt.Before(out[j].startedAt)
		}
		return out[i].id < out[j].id
	})
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
