package dedupe

import (
	"context"
	"sync"
	"time"
)

// MemoryGate is the in-process Gate used in tests and alongside the
// in-memory queue backend. Expiry is checked lazily on access.
type MemoryGate struct {
	mu   sync.Mutex
	keys map[string]time.Time

	// now is swappable in tests.
	now func() time.Time
}

// NewMemoryGate returns an empty in-process gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{
		keys: make(map[string]time.Time),
		now:  time.Now,
	}
}

var _ Gate = (*MemoryGate)(nil)

// expiredLocked removes the key if its window has elapsed. Caller holds mu.
func (g *MemoryGate) expiredLocked(key string) bool {
	deadline, ok := g.keys[key]
	if !ok {
		return true
	}
	if g.now().After(deadline) {
		delete(g.keys, key)
		return true
	}
	return false
}

func (g *MemoryGate) TrySetKey(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.expiredLocked(key) {
		return false, nil
	}
	g.keys[key] = g.now().Add(ttl)
	return true, nil
}

func (g *MemoryGate) CheckKey(_ context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.expiredLocked(key), nil
}

func (g *MemoryGate) DeleteKey(_ context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.keys, key)
	return nil
}

func (g *MemoryGate) TTL(_ context.Context, key string) (time.Duration, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.expiredLocked(key) {
		return 0, false, nil
	}
	return g.keys[key].Sub(g.now()), true, nil
}
