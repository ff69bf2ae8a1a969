// Package quote implements the quote discovery workflow: query an item's
// extracted content for quotes, pick and translate some, and save them
// onto a tracer reference.
package quote

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/metrics"
	"github.com/franz/xeenaps-tracer/internal/optimistic"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// Stage is the workflow state.
type Stage int

const (
	StageInput Stage = iota
	StageProcessing
	StageResult
)

func (s Stage) String() string {
	switch s {
	case StageInput:
		return "input"
	case StageProcessing:
		return "processing"
	case StageResult:
		return "result"
	}
	return "unknown"
}

// Languages a result row can be translated into.
var Languages = []string{"en", "id", "fr", "de", "es", "pt"}

// Extractor finds quotes in an item's extracted content.
type Extractor interface {
	ExtractQuotes(ctx context.Context, itemID, query, blobID, nodeURL string) ([]aiproxy.QuoteCandidate, error)
}

// Translator translates free text.
type Translator interface {
	TranslateText(ctx context.Context, text, lang string) (string, error)
}

// Persister stores a batch of saved quotes.
type Persister func(ctx context.Context, quotes []store.SavedQuote) error

// Row is one extracted quote in the result stage.
type Row struct {
	OriginalText string
	EnhancedText string
	Lang         string
	Selected     bool
}

// Options wires a Workflow. Notifier, Now and NewID may be nil.
type Options struct {
	Extractor  Extractor
	Translator Translator
	Persist    Persister
	Notifier   itemsync.Notifier
	Now        func() time.Time
	NewID      func() string
}

// Workflow is the quote discovery state machine for one item. It is safe
// for concurrent use; rows are addressed by index because the result list
// never changes length.
type Workflow struct {
	mu    sync.Mutex
	stage Stage
	query string
	rows  []Row
	run   uint64 // bumped whenever results are discarded

	gate optimistic.Gate

	item    library.Item
	extract Extractor
	trans   Translator
	persist Persister
	notify  itemsync.Notifier
	now     func() time.Time
	newID   func() string
}

// New creates a workflow for item in the input stage
func New(item library.Item, opts Options) *Workflow {
	w := &Workflow{
		item:    item.Clone(),
		extract: opts.Extractor,
		trans:   opts.Translator,
		persist: opts.Persist,
		notify:  opts.Notifier,
		now:     opts.Now,
		newID:   opts.NewID,
	}
	if w.notify == nil {
		w.notify = itemsync.LogNotifier{}
	}
	if w.now == nil {
		w.now = time.Now
	}
	if w.newID == nil {
		w.newID = uuid.NewString
	}
	return w
}

// Stage returns the current stage.
func (w *Workflow) Stage() Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stage
}

// Query returns the current context query.
func (w *Workflow) Query() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.query
}

// Rows returns a copy of the result rows.
func (w *Workflow) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Row(nil), w.rows...)
}

// SetQuery updates the context query while in the input stage.
func (w *Workflow) SetQuery(q string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage == StageInput {
		w.query = q
	}
}

// Start runs the extraction. An empty or failed extraction returns the
// workflow to the input stage; a successful one moves it to the result
// stage with every row selected. It returns the number of rows found.
func (w *Workflow) Start(ctx context.Context) (int, error) {
	w.mu.Lock()
	if w.stage != StageInput {
		w.mu.Unlock()
		return 0, fmt.Errorf("quote search is %s: %w", w.stage, util.ErrBusy)
	}
	query := strings.TrimSpace(w.query)
	if query == "" {
		w.mu.Unlock()
		return 0, fmt.Errorf("context query cannot be empty: %w", util.ErrInvalidInput)
	}
	w.stage = StageProcessing
	run := w.run
	w.mu.Unlock()

	quotes, err := w.extract.ExtractQuotes(ctx, w.item.ID, query, w.item.ExtractedJSONID, w.item.StorageNodeURL)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.run != run {
		// closed while processing
		return 0, nil
	}
	if err != nil {
		w.stage = StageInput
		w.notify.Error("Extraction engine failure")
		return 0, err
	}
	if len(quotes) == 0 {
		w.stage = StageInput
		w.notify.Error("No relevant quotes identified")
		return 0, nil
	}

	w.rows = make([]Row, len(quotes))
	for i, q := range quotes {
		w.rows[i] = Row{
			OriginalText: q.OriginalText,
			EnhancedText: q.EnhancedText,
			Lang:         "en",
			Selected:     true,
		}
	}
	w.stage = StageResult
	return len(w.rows), nil
}

// Toggle flips the selection of row i.
func (w *Workflow) Toggle(i int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkRow(i); err != nil {
		return err
	}
	w.rows[i].Selected = !w.rows[i].Selected
	return nil
}

func (w *Workflow) checkRow(i int) error {
	if w.stage != StageResult {
		return fmt.Errorf("no results to edit: %w", util.ErrInvalidInput)
	}
	if i < 0 || i >= len(w.rows) {
		return fmt.Errorf("row %d out of range: %w", i, util.ErrInvalidInput)
	}
	return nil
}

func validLanguage(lang string) bool {
	for _, l := range Languages {
		if l == lang {
			return true
		}
	}
	return false
}

// Translate replaces the enhanced text of row i with its translation into
// lang. A row that is already translating drops the request and reports
// false; different rows translate independently.
func (w *Workflow) Translate(ctx context.Context, i int, lang string) (bool, error) {
	if !validLanguage(lang) {
		return false, fmt.Errorf("unsupported language %q: %w", lang, util.ErrInvalidInput)
	}

	w.mu.Lock()
	if err := w.checkRow(i); err != nil {
		w.mu.Unlock()
		return false, err
	}
	text := w.rows[i].EnhancedText
	run := w.run
	w.mu.Unlock()

	release, ok := w.gate.TryAcquire(strconv.Itoa(i))
	if !ok {
		metrics.Dropped.WithLabelValues("quote_translate").Inc()
		return false, nil
	}
	defer release()

	translated, err := w.trans.TranslateText(ctx, text, lang)
	if err != nil {
		w.notify.Error("Translation failed")
		return false, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.run != run {
		return false, nil
	}
	w.rows[i].EnhancedText = cleanTranslation(translated)
	w.rows[i].Lang = lang
	return true, nil
}

var leadingDash = regexp.MustCompile(`(?m)^- ?`)

// cleanTranslation strips list dashes models put in front of lines.
func cleanTranslation(s string) string {
	return strings.TrimSpace(leadingDash.ReplaceAllString(s, ""))
}

// Save persists the selected rows as saved quotes and closes the workflow.
// Nothing is persisted when no row is selected. It returns the number of
// quotes saved.
func (w *Workflow) Save(ctx context.Context) (int, error) {
	w.mu.Lock()
	if w.stage != StageResult {
		w.mu.Unlock()
		return 0, fmt.Errorf("no results to save: %w", util.ErrInvalidInput)
	}
	var batch []store.SavedQuote
	for _, r := range w.rows {
		if !r.Selected {
			continue
		}
		batch = append(batch, store.SavedQuote{
			ID:           w.newID(),
			OriginalText: r.OriginalText,
			EnhancedText: r.EnhancedText,
			Lang:         r.Lang,
			CreatedAt:    w.now().UTC().Format(time.RFC3339Nano),
		})
	}
	w.mu.Unlock()

	if len(batch) == 0 {
		return 0, nil
	}
	if err := w.persist(ctx, batch); err != nil {
		w.notify.Error("Failed to save quotes")
		return 0, fmt.Errorf("save quotes: %w: %v", util.ErrRemoteWrite, err)
	}

	w.notify.Success(fmt.Sprintf("%d quotes anchored", len(batch)))
	w.Close()
	return len(batch), nil
}

// NewTrace discards the results and returns to the input stage, keeping
// the query.
func (w *Workflow) NewTrace() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stage != StageResult {
		return
	}
	w.reset(false)
}

// Close abandons the workflow from any stage and resets it.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset(true)
}

func (w *Workflow) reset(clearQuery bool) {
	w.stage = StageInput
	w.rows = nil
	w.run++
	if clearQuery {
		w.query = ""
	}
}

// Copy returns the text of row i to put on the clipboard: the original
// quote when verbatim is set, else the enhanced text.
func (w *Workflow) Copy(i int, verbatim bool) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkRow(i); err != nil {
		return "", err
	}
	if verbatim {
		return w.rows[i].OriginalText, nil
	}
	return w.rows[i].EnhancedText, nil
}
