// Package optimistic tracks locally applied mutations of a shared value so
// they can be confirmed or rolled back once the remote write settles.
package optimistic

import "sync"

// Token identifies one applied mutation. It is returned by Apply and
// handed back to Confirm or Rollback.
type Token struct {
	Key string
	Rev uint64
}

// Undo reverts a single mutation. It is produced by the mutator passed to
// Apply and only ever runs under the ledger lock.
type Undo[T any] func(v *T)

// Ledger holds a value of type T and a revision counter.
//
// Every write bumps the revision and records it against the keys it
// touched. A failed mutation that has newer pending mutations of the same
// key is not reverted directly; its undo is handed to the next newer one,
// so the value falls back to the last settled state once every pending
// mutation of the key has failed. A rollback older than a confirmed or
// plain write of its key does nothing.
type Ledger[T any] struct {
	mu      sync.Mutex
	value   T
	clone   func(T) T
	rev     uint64
	written map[string]uint64
	settled map[string]uint64
	pending map[Token]Undo[T]
}

// NewLedger creates a ledger around initial. clone must return a deep copy;
// it is used for every value handed out.
func NewLedger[T any](initial T, clone func(T) T) *Ledger[T] {
	if clone == nil {
		clone = func(v T) T { return v }
	}
	return &Ledger[T]{
		value:   clone(initial),
		clone:   clone,
		written: make(map[string]uint64),
		settled: make(map[string]uint64),
		pending: make(map[Token]Undo[T]),
	}
}

// Get returns a copy of the current value.
func (l *Ledger[T]) Get() T {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clone(l.value)
}

// Revision returns the revision of the most recent write.
func (l *Ledger[T]) Revision() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rev
}

// Apply runs mutate against the current value and records its undo under
// key. It returns the token and a copy of the value after the mutation.
func (l *Ledger[T]) Apply(key string, mutate func(v *T) Undo[T]) (Token, T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	undo := mutate(&l.value)
	l.rev++
	tok := Token{Key: key, Rev: l.rev}
	l.written[key] = l.rev
	if undo != nil {
		l.pending[tok] = undo
	} else {
		l.settle(key, l.rev)
	}
	return tok, l.clone(l.value)
}

// Confirm forgets the undo of a settled mutation.
func (l *Ledger[T]) Confirm(tok Token) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, tok)
	l.settle(tok.Key, tok.Rev)
}

func (l *Ledger[T]) settle(key string, rev uint64) {
	if rev > l.settled[key] {
		l.settled[key] = rev
	}
}

// nextPending returns the oldest pending token of tok's key newer than tok.
func (l *Ledger[T]) nextPending(tok Token) (Token, bool) {
	var next Token
	found := false
	for t := range l.pending {
		if t.Key != tok.Key || t.Rev <= tok.Rev {
			continue
		}
		if !found || t.Rev < next.Rev {
			next, found = t, true
		}
	}
	return next, found
}

// Rollback reverts the mutation identified by tok. When newer mutations of
// the same key are still pending, the next newer one inherits the undo
// instead and the value is left alone. It reports whether the value
// changed and returns a copy of the value either way.
func (l *Ledger[T]) Rollback(tok Token) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	undo, ok := l.pending[tok]
	delete(l.pending, tok)
	if !ok || l.settled[tok.Key] > tok.Rev {
		return l.clone(l.value), false
	}
	if next, found := l.nextPending(tok); found {
		// next was applied on top of a value the remote never accepted
		l.pending[next] = undo
		return l.clone(l.value), false
	}

	undo(&l.value)
	l.rev++
	l.written[tok.Key] = l.rev
	return l.clone(l.value), true
}

// Write applies a mutation that is not expected to be rolled back, marking
// every key in keys as written.
func (l *Ledger[T]) Write(keys []string, mutate func(v *T)) T {
	l.mu.Lock()
	defer l.mu.Unlock()

	mutate(&l.value)
	l.rev++
	for _, k := range keys {
		l.written[k] = l.rev
		l.settle(k, l.rev)
	}
	return l.clone(l.value)
}

// Snapshot returns a copy of the current value with its revision.
func (l *Ledger[T]) Snapshot() (T, uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.clone(l.value), l.rev
}

// Rebase replaces the value with fresh, a newer copy read back from the
// remote side. carry runs first and copies over local state fresh does not
// reflect yet: written reports the revision of the last local write of a
// key and pending whether an unconfirmed mutation of it is in flight.
// Write history and pending undos are kept.
func (l *Ledger[T]) Rebase(fresh T, carry func(cur T, next *T, written func(key string) uint64, pending func(key string) bool)) T {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.clone(fresh)
	if carry != nil {
		written := func(key string) uint64 { return l.written[key] }
		pending := func(key string) bool {
			for t := range l.pending {
				if t.Key == key {
					return true
				}
			}
			return false
		}
		carry(l.clone(l.value), &next, written, pending)
	}
	l.value = next
	l.rev++
	return l.clone(l.value)
}

// Merge applies a mutation computed from data requested at revision since.
// The stale callback reports whether a key was written after since; mutate
// is expected to leave such keys alone. The returned bool reports whether
// anything was written at all. The merged keys are not marked as written
// so that a later merge from the same snapshot is not vetoed.
func (l *Ledger[T]) Merge(since uint64, mutate func(v *T, stale func(key string) bool) bool) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	stale := func(key string) bool {
		return l.written[key] > since
	}
	if !mutate(&l.value, stale) {
		return l.clone(l.value), false
	}
	l.rev++
	return l.clone(l.value), true
}

// Pending returns the number of mutations awaiting Confirm or Rollback.
func (l *Ledger[T]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}
