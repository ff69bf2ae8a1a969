package optimistic

import (
	"sync"
	"testing"
)

type record struct {
	Flag  bool
	Notes []string
	Title string
}

func cloneRecord(r record) record {
	r.Notes = append([]string(nil), r.Notes...)
	return r
}

func toggle(r *record) Undo[record] {
	prev := r.Flag
	r.Flag = !prev
	return func(r *record) { r.Flag = prev }
}

func TestLedgerRollbackRestoresPriorValue(t *testing.T) {
	l := NewLedger(record{}, cloneRecord)

	tok, after := l.Apply("flag", toggle)
	if !after.Flag {
		t.Fatal("expected optimistic value to be applied")
	}

	got, reverted := l.Rollback(tok)
	if !reverted {
		t.Fatal("expected rollback to take effect")
	}
	if got.Flag {
		t.Error("expected flag to be restored to false")
	}
	if l.Pending() != 0 {
		t.Errorf("expected no pending mutations, got %d", l.Pending())
	}
}

func TestLedgerStaleRollbackIsIgnored(t *testing.T) {
	l := NewLedger(record{}, cloneRecord)

	first, _ := l.Apply("flag", toggle)
	second, _ := l.Apply("flag", toggle)

	// the first write fails after the second was applied
	got, reverted := l.Rollback(first)
	if reverted {
		t.Error("stale rollback must not revert a newer write")
	}
	if got.Flag {
		t.Error("expected the second toggle's value to survive")
	}

	l.Confirm(second)
	if l.Pending() != 0 {
		t.Errorf("expected no pending mutations, got %d", l.Pending())
	}
}

func TestLedgerOverlappingFailuresRestoreSettledValue(t *testing.T) {
	tests := []struct {
		name       string
		newerFirst bool
	}{
		{"older fails first", false},
		{"newer fails first", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger(record{}, cloneRecord)
			first, _ := l.Apply("flag", toggle)
			second, _ := l.Apply("flag", toggle)

			order := []Token{first, second}
			if tt.newerFirst {
				order = []Token{second, first}
			}
			for _, tok := range order {
				l.Rollback(tok)
			}

			if got := l.Get(); got.Flag {
				t.Error("expected the settled value false after both writes failed")
			}
			if l.Pending() != 0 {
				t.Errorf("expected no pending mutations, got %d", l.Pending())
			}
		})
	}
}

func TestLedgerRollbackAfterNewerConfirmIsIgnored(t *testing.T) {
	l := NewLedger(record{}, cloneRecord)
	first, _ := l.Apply("flag", toggle)
	second, _ := l.Apply("flag", toggle)
	third, _ := l.Apply("flag", toggle)

	l.Confirm(second)
	if _, reverted := l.Rollback(first); reverted {
		t.Error("rollback older than a confirmed write must not change the value")
	}
	got, reverted := l.Rollback(third)
	if !reverted || got.Flag {
		t.Errorf("expected the confirmed value false, got %+v (reverted=%v)", got, reverted)
	}
}

func TestLedgerRollbackIsScopedToKey(t *testing.T) {
	l := NewLedger(record{Title: "a"}, cloneRecord)

	tok, _ := l.Apply("flag", toggle)
	l.Write([]string{"title"}, func(r *record) { r.Title = "b" })

	got, reverted := l.Rollback(tok)
	if !reverted {
		t.Fatal("write to another key must not block rollback")
	}
	if got.Flag || got.Title != "b" {
		t.Errorf("unexpected value after rollback: %+v", got)
	}
}

func TestLedgerGetReturnsCopy(t *testing.T) {
	l := NewLedger(record{Notes: []string{"x"}}, cloneRecord)

	v := l.Get()
	v.Notes[0] = "mutated"

	if l.Get().Notes[0] != "x" {
		t.Error("Get must not expose internal state")
	}
}

func TestLedgerMergeSkipsKeysWrittenAfterSnapshot(t *testing.T) {
	l := NewLedger(record{Title: "orig"}, cloneRecord)

	since := l.Revision()
	l.Write([]string{"title"}, func(r *record) { r.Title = "local" })

	got, changed := l.Merge(since, func(r *record, stale func(string) bool) bool {
		wrote := false
		if !stale("title") {
			r.Title = "remote"
			wrote = true
		}
		if !stale("notes") {
			r.Notes = []string{"remote"}
			wrote = true
		}
		return wrote
	})

	if !changed {
		t.Fatal("expected merge to apply non-stale keys")
	}
	if got.Title != "local" {
		t.Errorf("stale merge clobbered a later write: %q", got.Title)
	}
	if len(got.Notes) != 1 || got.Notes[0] != "remote" {
		t.Errorf("expected notes to merge, got %v", got.Notes)
	}
}

func TestGateDropsReentryPerKey(t *testing.T) {
	var g Gate

	release, ok := g.TryAcquire("summary")
	if !ok {
		t.Fatal("expected first acquire to succeed")
	}
	if _, ok := g.TryAcquire("summary"); ok {
		t.Error("expected re-entry on the same key to be refused")
	}
	if r, ok := g.TryAcquire("strength"); !ok {
		t.Error("distinct keys must not block each other")
	} else {
		r()
	}

	release()
	release()

	if g.Busy("summary") {
		t.Error("expected key to be free after release")
	}
	if _, ok := g.TryAcquire("summary"); !ok {
		t.Error("expected key to be acquirable again")
	}
}

func TestGateConcurrentAcquireSingleWinner(t *testing.T) {
	var g Gate
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := g.TryAcquire("row-1"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
	if g.Active() != 1 {
		t.Errorf("expected one active key, got %d", g.Active())
	}
}
