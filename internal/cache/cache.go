// Package cache provides small in-memory TTL stores for slow-changing
// upstream data (location metadata, glossary terms).
//
// Expiry is lazy: entries are checked against their deadline on access, never
// swept in the background. Stale entries are small and bounded by the set of
// actively configured destinations, so this is cheaper than a sweeper
// goroutine per store.
package cache

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
)

type item struct {
	value   any
	expires time.Time
}

// Store is a single named TTL cache. Safe for concurrent use.
type Store struct {
	name  string
	ttl   time.Duration
	clock clockwork.Clock

	hits   prometheus.Counter
	misses prometheus.Counter

	mu    sync.Mutex
	items map[string]item
}

func NewStore(name string, defaultTTL time.Duration, clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		name:  name,
		ttl:   defaultTTL,
		clock: clock,
		items: make(map[string]item),
	}
}

func (s *Store) Name() string { return s.name }

// Instrument attaches hit/miss counters. Either may be nil.
func (s *Store) Instrument(hits, misses prometheus.Counter) {
	s.mu.Lock()
	s.hits = hits
	s.misses = misses
	s.mu.Unlock()
}

// Get returns the value for key, evicting it first if its TTL has elapsed.
func (s *Store) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[key]
	if !ok {
		s.miss()
		return nil, false
	}
	if !s.clock.Now().Before(it.expires) {
		delete(s.items, key)
		s.miss()
		return nil, false
	}
	if s.hits != nil {
		s.hits.Inc()
	}
	return it.value, true
}

func (s *Store) miss() {
	if s.misses != nil {
		s.misses.Inc()
	}
}

// Set stores value under key with the store's default TTL, overwriting any
// existing entry and resetting its deadline.
func (s *Store) Set(key string, value any) {
	s.SetTTL(key, value, s.ttl)
}

// SetTTL is Set with an explicit per-entry TTL.
func (s *Store) SetTTL(key string, value any, ttl time.Duration) {
	s.mu.Lock()
	s.items[key] = item{value: value, expires: s.clock.Now().Add(ttl)}
	s.mu.Unlock()
}

func (s *Store) Delete(key string) {
	s.mu.Lock()
	delete(s.items, key)
	s.mu.Unlock()
}

// Len counts live entries without evicting expired ones.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Manager hands out named stores, creating each on first use.
type Manager struct {
	clock clockwork.Clock

	mu     sync.Mutex
	stores map[string]*Store
	hits   *prometheus.CounterVec
	misses *prometheus.CounterVec
}

func NewManager(clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{clock: clock, stores: make(map[string]*Store)}
}

// Instrument attaches per-store hit/miss counter vecs, labelled by store
// name. Applies to existing stores and to stores created later.
func (m *Manager) Instrument(hits, misses *prometheus.CounterVec) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hits = hits
	m.misses = misses
	for name, st := range m.stores {
		st.Instrument(hits.WithLabelValues(name), misses.WithLabelValues(name))
	}
}

// Store returns the named store, creating it with defaultTTL on first use.
// The TTL of an existing store is not changed.
func (m *Manager) Store(name string, defaultTTL time.Duration) *Store {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stores[name]; ok {
		return st
	}
	st := NewStore(name, defaultTTL, m.clock)
	if m.hits != nil && m.misses != nil {
		st.Instrument(m.hits.WithLabelValues(name), m.misses.WithLabelValues(name))
	}
	m.stores[name] = st
	return st
}
