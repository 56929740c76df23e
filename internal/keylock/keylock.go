// Package keylock provides per-key mutual exclusion. Each entity (a position
// keyed by pool ID, a migration keyed by its ID) is mutated under its own
// critical section so unrelated entities never serialize on each other.
package keylock

import "sync"

// Map hands out one mutex per key. Locks are created on first use and never
// reclaimed; the key space here (pools, migrations) is small and long-lived.
type Map struct {
	locks sync.Map // key -> *sync.Mutex
}

// Lock acquires the mutex for key, creating it if needed, and returns the
// unlock function.
func (m *Map) Lock(key string) func() {
	v, _ := m.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
