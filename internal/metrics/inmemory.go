package metrics

import (
	"sync"
	"sync/atomic"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	EventsCreated uint64
	Registrations map[string]uint64
	Cancellations uint64
	CacheHits     uint64
	CacheMisses   uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	eventsCreated uint64
	cancellations uint64
	cacheHits     uint64
	cacheMisses   uint64

	mu            sync.Mutex
	registrations map[string]uint64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{registrations: make(map[string]uint64)}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	registrations := make(map[string]uint64, len(m.registrations))
	for outcome, n := range m.registrations {
		registrations[outcome] = n
	}
	m.mu.Unlock()

	return Snapshot{
		EventsCreated: atomic.LoadUint64(&m.eventsCreated),
		Registrations: registrations,
		Cancellations: atomic.LoadUint64(&m.cancellations),
		CacheHits:     atomic.LoadUint64(&m.cacheHits),
		CacheMisses:   atomic.LoadUint64(&m.cacheMisses),
	}
}

// IncEventCreated increments event created counter.
func (m *InMemoryRecorder) IncEventCreated() {
	atomic.AddUint64(&m.eventsCreated, 1)
}

// IncRegistration increments the registration counter for an outcome.
func (m *InMemoryRecorder) IncRegistration(outcome string) {
	m.mu.Lock()
	m.registrations[outcome]++
	m.mu.Unlock()
}

// IncCancellation increments cancellation counter.
func (m *InMemoryRecorder) IncCancellation() {
	atomic.AddUint64(&m.cancellations, 1)
}

// IncCacheHit increments cache hit counter.
func (m *InMemoryRecorder) IncCacheHit() {
	atomic.AddUint64(&m.cacheHits, 1)
}

// IncCacheMiss increments cache miss counter.
func (m *InMemoryRecorder) IncCacheMiss() {
	atomic.AddUint64(&m.cacheMisses, 1)
}
