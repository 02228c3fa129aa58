package config

import (
	"sync"
	"sync/atomic"
)

// Store holds the live configuration. Readers get an immutable snapshot;
// writers replace it wholesale and subscribers are told about the swap.
type Store struct {
	cur atomic.Pointer[Config]

	// writeMu serializes writers so an Update never loses another write.
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[int]func(old, cur *Config)
	next int
}

// NewStore creates a store holding cfg, or defaults when cfg is nil.
func NewStore(cfg *Config) *Store {
	if cfg == nil {
		cfg = Default()
	}
	s := &Store{subs: make(map[int]func(old, cur *Config))}
	s.cur.Store(cfg.Clone())
	return s
}

// Get returns the current snapshot. Callers must not modify it.
func (s *Store) Get() *Config {
	return s.cur.Load()
}

// Set replaces the configuration and notifies subscribers synchronously.
func (s *Store) Set(cfg *Config) {
	cfg = cfg.Clone()
	s.writeMu.Lock()
	old := s.cur.Swap(cfg)
	s.writeMu.Unlock()
	s.notify(old, cfg)
}

// Update applies fn to a copy of the current configuration and stores it.
// Concurrent updates are applied one after another. fn must not call Set
// or Update.
func (s *Store) Update(fn func(*Config)) {
	s.writeMu.Lock()
	old := s.cur.Load()
	cfg := old.Clone()
	fn(cfg)
	s.cur.Store(cfg)
	s.writeMu.Unlock()
	s.notify(old, cfg)
}

func (s *Store) notify(old, cur *Config) {
	s.mu.Lock()
	subs := make([]func(old, cur *Config), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(old, cur)
	}
}

// Subscribe registers fn for configuration changes. The returned function
// removes the subscription.
func (s *Store) Subscribe(fn func(old, cur *Config)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}
