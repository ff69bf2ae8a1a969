// Package detail is the single-item detail view: it owns the item through
// a synchronizer, routes user intents to it, and tracks which sub-view or
// modal is showing.
package detail

import (
	"context"
	"fmt"
	"sync"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// ActiveView is the full-screen sub-workflow shown instead of the record.
// Only one can be active.
type ActiveView int

const (
	ViewNone ActiveView = iota
	ViewPresentations
	ViewQuestions
	ViewConsultations
	ViewNotebook
)

var viewNames = map[ActiveView]string{
	ViewNone:          "record",
	ViewPresentations: "presentations",
	ViewQuestions:     "questions",
	ViewConsultations: "consultations",
	ViewNotebook:      "notebook",
}

func (v ActiveView) String() string {
	if name, ok := viewNames[v]; ok {
		return name
	}
	return "unknown"
}

// ParseView maps a view name back to its value.
func ParseView(name string) (ActiveView, bool) {
	for v, n := range viewNames {
		if n == name {
			return v, true
		}
	}
	return ViewNone, false
}

// needsContent reports whether v only works on items with extracted content.
func (v ActiveView) needsContent() bool {
	return v == ViewPresentations || v == ViewQuestions || v == ViewConsultations
}

// Modal is a dialog layered over the current view.
type Modal int

const (
	ModalNone Modal = iota
	ModalCitation
	ModalTips
	ModalShare
	ModalTracerPicker
	ModalTeachingPicker
	ModalContentManager
)

func (m Modal) needsContent() bool {
	return m == ModalTracerPicker
}

// Citer formats citations.
type Citer interface {
	GenerateCitations(ctx context.Context, it *library.Item, style, lang string) (*aiproxy.Citation, error)
}

// Confirmer asks the user to confirm a destructive action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Options wires a View.
type Options struct {
	Citer     Citer
	Confirmer Confirmer
	Nav       NavContext
}

// View is the detail view of one item.
type View struct {
	mu     sync.Mutex
	active ActiveView
	modal  Modal

	sync    *itemsync.Synchronizer
	citer   Citer
	confirm Confirmer
	nav     NavContext
}

// NewView creates a view over s. The navigation context is copied.
func NewView(s *itemsync.Synchronizer, opts Options) *View {
	return &View{
		sync:    s,
		citer:   opts.Citer,
		confirm: opts.Confirmer,
		nav:     opts.Nav.clone(),
	}
}

// Mount starts hydration of stored insights.
func (v *View) Mount(ctx context.Context) error {
	_, err := v.sync.Hydrate(ctx)
	return err
}

// Reload rebases the view on a fresh copy of its item from the store.
func (v *View) Reload(fresh library.Item) library.Item {
	return v.sync.Reload(fresh)
}

// Item returns a copy of the current item.
func (v *View) Item() library.Item {
	return v.sync.Current()
}

// Active returns the active sub-view.
func (v *View) Active() ActiveView {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Modal returns the open modal.
func (v *View) Modal() Modal {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.modal
}

// Open switches to a sub-view, replacing whatever was active. Content-backed
// views are refused for items without extracted content.
func (v *View) Open(view ActiveView) error {
	if view.needsContent() {
		it := v.sync.Current()
		if !it.HasContent() {
			return fmt.Errorf("%s needs extracted content: %w", view, util.ErrNoContent)
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = view
	return nil
}

// CloseView returns to the record view.
func (v *View) CloseView() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.active = ViewNone
}

// OpenModal shows a dialog.
func (v *View) OpenModal(m Modal) error {
	if m.needsContent() {
		it := v.sync.Current()
		if !it.HasContent() {
			return fmt.Errorf("modal needs extracted content: %w", util.ErrNoContent)
		}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modal = m
	return nil
}

// CloseModal dismisses the open dialog.
func (v *View) CloseModal() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modal = ModalNone
}

// Back returns where the back action leads.
func (v *View) Back() BackTarget {
	return v.nav.Back()
}

// Cite formats a citation for the item.
func (v *View) Cite(ctx context.Context, style, lang string) (*aiproxy.Citation, error) {
	it := v.sync.Current()
	return v.citer.GenerateCitations(ctx, &it, style, lang)
}

func (v *View) ToggleBookmark(ctx context.Context) error {
	return v.sync.ToggleFlag(ctx, itemsync.FlagBookmarked)
}

func (v *View) ToggleFavorite(ctx context.Context) error {
	return v.sync.ToggleFlag(ctx, itemsync.FlagFavorite)
}

func (v *View) GenerateInsights(ctx context.Context) (bool, error) {
	return v.sync.GenerateInsights(ctx)
}

func (v *View) SaveInsights(ctx context.Context) error {
	return v.sync.SaveInsights(ctx)
}

func (v *View) Translate(ctx context.Context, section, lang string) (bool, error) {
	return v.sync.TranslateSection(ctx, section, lang)
}

// Delete asks for confirmation and then deletes the item. It reports false
// when the user declined; nothing is touched in that case.
func (v *View) Delete(ctx context.Context) (bool, error) {
	if v.confirm == nil {
		return false, fmt.Errorf("no confirmer configured: %w", util.ErrInvalidConfig)
	}
	ok, err := v.confirm.Confirm(ctx, "Delete 1 item? This cannot be undone.")
	if err != nil || !ok {
		return false, err
	}
	return true, v.sync.Delete(ctx)
}

// ViewLink returns the link to the source document.
func (v *View) ViewLink() string {
	it := v.sync.Current()
	return it.ViewLink()
}

// Tips returns the quick tips text.
func (v *View) Tips() string {
	it := v.sync.Current()
	return it.Tips()
}
