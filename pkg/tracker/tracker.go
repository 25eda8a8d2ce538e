package tracker

import (
	"sync"
	"sync/atomic"
)

// Tracker tracks runtime counters per subsystem (registry, stitch, marker,
// nav). Counters feed the /api/stats endpoint.
type Tracker struct {
	mu       sync.RWMutex
	counters map[string]*int64
}

// Counter names.
const (
	RegistryFetchOK     = "registry_fetch_ok"
	RegistryFetchFailed = "registry_fetch_failed"
	RegistryCacheServed = "registry_cache_served"
	ScenesIngested      = "scenes_ingested"
	LoadsRequested      = "loads_requested"
	LoadsCompleted      = "loads_completed"
	LoadsStale          = "loads_stale"
	ResidentSetChanges  = "resident_set_changes"
	MarkerTransitions   = "marker_transitions"
	NavTransitions      = "nav_transitions"
	NavRejected         = "nav_rejected"
)

// New creates a new Tracker.
func New() *Tracker {
	return &Tracker{
		counters: make(map[string]*int64),
	}
}

func (t *Tracker) counter(name string) *int64 {
	t.mu.RLock()
	c, ok := t.counters[name]
	t.mu.RUnlock()
	if ok {
		return c
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if c, ok = t.counters[name]; ok {
		return c
	}
	c = new(int64)
	t.counters[name] = c
	return c
}

// Track increments a counter by one.
func (t *Tracker) Track(name string) {
	atomic.AddInt64(t.counter(name), 1)
}

// Add increments a counter by n.
func (t *Tracker) Add(name string, n int64) {
	atomic.AddInt64(t.counter(name), n)
}

// Get returns the current value of a counter.
func (t *Tracker) Get(name string) int64 {
	return atomic.LoadInt64(t.counter(name))
}

// Snapshot returns a copy of all counters.
func (t *Tracker) Snapshot() map[string]int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]int64, len(t.counters))
	for k, v := range t.counters {
		result[k] = atomic.LoadInt64(v)
	}
	return result
}
