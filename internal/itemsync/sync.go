// Package itemsync keeps one in-memory library item consistent with the
// metadata store. Mutations are applied locally first and reconciled when
// the remote write settles.
package itemsync

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/metrics"
	"github.com/franz/xeenaps-tracer/internal/optimistic"
	"github.com/franz/xeenaps-tracer/internal/report"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// Flag is a user-state boolean of an item. Its value is the JSON field name.
type Flag string

const (
	FlagBookmarked Flag = "isBookmarked"
	FlagFavorite   Flag = "isFavorite"
)

func (f Flag) get(it *library.Item) (bool, bool) {
	switch f {
	case FlagBookmarked:
		return it.IsBookmarked, true
	case FlagFavorite:
		return it.IsFavorite, true
	}
	return false, false
}

func (f Flag) set(it *library.Item, v bool) {
	switch f {
	case FlagBookmarked:
		it.IsBookmarked = v
	case FlagFavorite:
		it.IsFavorite = v
	}
}

// MetadataStore is the durable record store.
type MetadataStore interface {
	UpsertItem(ctx context.Context, it *library.Item) error
	DeleteItem(ctx context.Context, id string) error
}

// Generator produces AI-derived content for an item.
type Generator interface {
	GenerateInsight(ctx context.Context, it *library.Item) (*aiproxy.Insight, error)
	TranslateSection(ctx context.Context, it *library.Item, section, lang string) (string, error)
}

// Observer is told about every change to the item so views can re-render.
type Observer interface {
	ItemUpdated(it library.Item)
	ItemDeleted(id string)
	RefreshRequested()
}

// Notifier shows transient user-facing messages.
type Notifier interface {
	Info(msg string)
	Success(msg string)
	Error(msg string)
}

// Options wires a Synchronizer to its collaborators. Observer, Notifier
// and Events may be nil.
type Options struct {
	Store    MetadataStore
	Blobs    blob.Fetcher
	AI       Generator
	Observer Observer
	Notifier Notifier
	Events   *report.EventLogger
	Now      func() time.Time
}

var errNoAI = fmt.Errorf("no AI provider configured: %w", util.ErrInvalidConfig)

const (
	keyInsights  = "insights"
	keyHydrate   = "hydrate"
	keyUpdatedAt = "updatedAt"
)

// Synchronizer owns the current item. It is safe for concurrent use.
type Synchronizer struct {
	ledger *optimistic.Ledger[library.Item]
	gate   optimistic.Gate

	store  MetadataStore
	blobs  blob.Fetcher
	ai     Generator
	obs    Observer
	notify Notifier
	events *report.EventLogger
	now    func() time.Time

	mu          sync.Mutex
	stored      blob.Content // last hydrated insight bundle
	storedSince uint64
	savedRev    uint64
}

// New creates a synchronizer holding a copy of item
func New(item library.Item, opts Options) *Synchronizer {
	s := &Synchronizer{
		ledger: optimistic.NewLedger(item, library.Item.Clone),
		store:  opts.Store,
		blobs:  opts.Blobs,
		ai:     opts.AI,
		obs:    opts.Observer,
		notify: opts.Notifier,
		events: opts.Events,
		now:    opts.Now,
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.notify == nil {
		s.notify = LogNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Current returns a copy of the item.
func (s *Synchronizer) Current() library.Item {
	return s.ledger.Get()
}

// Busy reports whether insights, hydration or the named section are in flight.
func (s *Synchronizer) Busy(key string) bool {
	return s.gate.Busy(key)
}

func record(op string, err error) {
	metrics.SyncOps.WithLabelValues(op, metrics.Outcome(err)).Inc()
}

// ToggleFlag flips a flag locally, tells the observer, and upserts the
// whole item. When the upsert fails the flag falls back to the last value
// the store accepted, once no newer toggle of it is still in flight, and
// the error is returned wrapped in util.ErrRemoteWrite.
func (s *Synchronizer) ToggleFlag(ctx context.Context, f Flag) error {
	if _, ok := f.get(&library.Item{}); !ok {
		return fmt.Errorf("unknown flag %q: %w", f, util.ErrInvalidInput)
	}

	var value bool
	tok, next := s.ledger.Apply(string(f), func(it *library.Item) optimistic.Undo[library.Item] {
		prev, _ := f.get(it)
		value = !prev
		f.set(it, value)
		return func(it *library.Item) { f.set(it, prev) }
	})
	s.obs.ItemUpdated(next)

	if err := s.store.UpsertItem(ctx, &next); err != nil {
		restored, applied := s.ledger.Rollback(tok)
		metrics.Rollbacks.WithLabelValues(string(f), strconv.FormatBool(applied)).Inc()
		if applied {
			s.obs.ItemUpdated(restored)
		}
		s.notify.Error("Failed to update item")
		s.events.LogToggle(next.ID, string(f), value, applied, err)
		record("toggle", err)
		return fmt.Errorf("toggle %s on %s: %w: %v", f, next.ID, util.ErrRemoteWrite, err)
	}

	s.ledger.Confirm(tok)
	s.events.LogToggle(next.ID, string(f), value, false, nil)
	record("toggle", nil)
	return nil
}

// GenerateInsights asks the AI for the six insight fields and replaces all
// of them on the item, so a field the AI leaves empty is cleared. It reports false without calling the AI
// when a generation or a hydration is already in flight. The result is not
// persisted; see SaveInsights.
func (s *Synchronizer) GenerateInsights(ctx context.Context) (bool, error) {
	if s.gate.Busy(keyHydrate) {
		metrics.Dropped.WithLabelValues("insights").Inc()
		return false, nil
	}
	release, ok := s.gate.TryAcquire(keyInsights)
	if !ok {
		metrics.Dropped.WithLabelValues("insights").Inc()
		return false, nil
	}
	defer release()

	cur := s.ledger.Get()
	if !cur.HasContent() {
		return false, util.ErrNoContent
	}
	if s.ai == nil {
		return false, fmt.Errorf("insight generation: %w", errNoAI)
	}

	start := time.Now()
	in, err := s.ai.GenerateInsight(ctx, &cur)
	s.events.LogInsight(cur.ID, time.Since(start), err)
	record("insights", err)
	if err != nil {
		s.notify.Error("Failed to generate insights")
		return false, err
	}

	fields := map[string]library.Text{
		library.SectionResearchMethodology:   in.ResearchMethodology,
		library.SectionSummary:               in.Summary,
		library.SectionStrength:              in.Strength,
		library.SectionWeakness:              in.Weakness,
		library.SectionUnfamiliarTerminology: in.UnfamiliarTerminology,
		library.SectionQuickTips:             in.QuickTipsForYou,
	}
	keys := []string{keyUpdatedAt}
	for name := range fields {
		keys = append(keys, name)
	}

	stamp := s.now().UTC().Format(time.RFC3339)
	next := s.ledger.Write(keys, func(it *library.Item) {
		for name, text := range fields {
			it.SetSection(name, text)
		}
		it.UpdatedAt = stamp
	})
	s.obs.ItemUpdated(next)
	s.notify.Success("Insights generated")
	return true, nil
}

// SaveInsights persists the current item, typically after GenerateInsights.
func (s *Synchronizer) SaveInsights(ctx context.Context) error {
	cur, rev := s.ledger.Snapshot()
	err := s.store.UpsertItem(ctx, &cur)
	record("save_insights", err)
	if err != nil {
		s.notify.Error("Failed to save insights")
		return fmt.Errorf("save %s: %w: %v", cur.ID, util.ErrRemoteWrite, err)
	}
	s.mu.Lock()
	if rev > s.savedRev {
		s.savedRev = rev
	}
	s.mu.Unlock()
	s.notify.Success("Insights saved")
	return nil
}

// TranslateSection replaces one insight section with its translation. A
// request for a section that is already translating is dropped and
// reported as false. Other sections translate independently.
func (s *Synchronizer) TranslateSection(ctx context.Context, section, lang string) (bool, error) {
	if !library.IsInsightSection(section) {
		return false, fmt.Errorf("unknown section %q: %w", section, util.ErrInvalidInput)
	}
	if s.ai == nil {
		return false, fmt.Errorf("translation: %w", errNoAI)
	}
	release, ok := s.gate.TryAcquire("translate:" + section)
	if !ok {
		metrics.Dropped.WithLabelValues("translate").Inc()
		return false, nil
	}
	defer release()

	cur := s.ledger.Get()
	start := time.Now()
	text, err := s.ai.TranslateSection(ctx, &cur, section, lang)
	s.events.LogTranslate(cur.ID, section, lang, time.Since(start), err)
	record("translate", err)
	if err != nil {
		s.notify.Error("Translation failed")
		return false, err
	}

	next := s.ledger.Write([]string{section}, func(it *library.Item) {
		it.SetSection(section, library.Text(text))
	})
	s.obs.ItemUpdated(next)
	s.notify.Success("Section translated")
	return true, nil
}

// Delete removes the item. The caller must already have confirmed. The
// observer sees the removal first; blob cleanup is best-effort and a
// failed row delete asks the observer to refresh instead of restoring.
func (s *Synchronizer) Delete(ctx context.Context) error {
	cur := s.ledger.Get()
	s.obs.ItemDeleted(cur.ID)

	if s.blobs != nil {
		for _, id := range []string{cur.ExtractedJSONID, cur.InsightJSONID} {
			if id == "" {
				continue
			}
			if err := s.blobs.Delete(ctx, id, cur.StorageNodeURL); err != nil {
				util.WarnLog("Could not delete blob %s of item %s: %v", id, cur.ID, err)
			}
		}
	}

	err := s.store.DeleteItem(ctx, cur.ID)
	s.events.LogDelete(cur.ID, "item", err)
	record("delete", err)
	if err != nil {
		s.notify.Error("Failed to delete item from the server. Please refresh.")
		s.obs.RefreshRequested()
		return fmt.Errorf("delete %s: %w: %v", cur.ID, util.ErrRemoteWrite, err)
	}
	s.notify.Success("Item deleted")
	return nil
}

// Hydrate loads the stored insight bundle and overlays it onto the item.
// Fields written locally after the fetch started are left alone. Missing
// or malformed bundles are ignored. It reports whether anything changed.
func (s *Synchronizer) Hydrate(ctx context.Context) (bool, error) {
	cur := s.ledger.Get()
	if !cur.HasStoredInsights() || s.blobs == nil {
		return false, nil
	}
	release, ok := s.gate.TryAcquire(keyHydrate)
	if !ok {
		return false, nil
	}
	defer release()

	since := s.ledger.Revision()
	content, err := s.blobs.FetchContent(ctx, cur.InsightJSONID, cur.StorageNodeURL)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		util.DebugLog("Hydration of %s skipped: %v", cur.ID, err)
		record("hydrate", err)
		return false, nil
	}
	if len(content) == 0 {
		return false, nil
	}

	var applied, skipped []string
	next, changed := s.ledger.Merge(since, func(it *library.Item, stale func(string) bool) bool {
		skip := func(key string) bool {
			if stale(key) {
				skipped = append(skipped, key)
				return true
			}
			return false
		}
		keys, err := library.Overlay(it, content, skip)
		if err != nil {
			return false
		}
		applied = keys
		return len(keys) > 0
	})
	s.mu.Lock()
	s.stored, s.storedSince = content, since
	s.mu.Unlock()
	s.events.LogHydrate(cur.ID, len(applied), skipped)
	record("hydrate", nil)
	if changed {
		s.obs.ItemUpdated(next)
	}
	return changed, nil
}

// Reload rebases the synchronizer on fresh, a newer copy of the item read
// from the store. The hydrated bundle is laid over it again, except for
// keys written locally since that hydration. Flags with a toggle in flight
// and insight fields not yet saved keep their local value.
func (s *Synchronizer) Reload(fresh library.Item) library.Item {
	s.mu.Lock()
	stored, since, saved := s.stored, s.storedSince, s.savedRev
	s.mu.Unlock()

	next := s.ledger.Rebase(fresh, func(cur library.Item, next *library.Item, written func(string) uint64, pending func(string) bool) {
		if len(stored) > 0 {
			if _, err := library.Overlay(next, stored, func(key string) bool { return written(key) > since }); err != nil {
				util.DebugLog("Re-applying stored insights of %s failed: %v", cur.ID, err)
			}
		}
		for _, f := range []Flag{FlagBookmarked, FlagFavorite} {
			if pending(string(f)) {
				v, _ := f.get(&cur)
				f.set(next, v)
			}
		}
		for _, name := range library.InsightSections {
			if written(name) > saved {
				text, _ := cur.Section(name)
				next.SetSection(name, text)
			}
		}
		if written(keyUpdatedAt) > saved {
			next.UpdatedAt = cur.UpdatedAt
		}
	})
	s.obs.ItemUpdated(next)
	return next
}

type nopObserver struct{}

func (nopObserver) ItemUpdated(library.Item) {}
func (nopObserver) ItemDeleted(string)       {}
func (nopObserver) RefreshRequested()        {}

// LogNotifier routes toasts to the levelled logger.
type LogNotifier struct{}

func (LogNotifier) Info(msg string)    { util.InfoLog("%s", msg) }
func (LogNotifier) Success(msg string) { util.SuccessLog("%s", msg) }
func (LogNotifier) Error(msg string)   { util.ErrorLog("%s", msg) }
