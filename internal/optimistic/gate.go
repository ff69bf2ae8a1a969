package optimistic

import "sync"

// Gate is a keyed in-flight set. A key that is already held cannot be
// acquired again until it is released; callers drop the request instead of
// queueing it. Distinct keys never block each other.
//
// The zero value is ready to use.
type Gate struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

// TryAcquire claims key. When ok is false the key is already in flight and
// release is a no-op.
func (g *Gate) TryAcquire(key string) (release func(), ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.busy == nil {
		g.busy = make(map[string]struct{})
	}
	if _, held := g.busy[key]; held {
		return func() {}, false
	}
	g.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, true
}

// Busy reports whether key is currently held.
func (g *Gate) Busy(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.busy[key]
	return held
}

// Active returns the number of keys currently held.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.busy)
}
