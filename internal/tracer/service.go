// Package tracer manages research projects and the records they own:
// journal logs, linked references with their saved quotes, todos and
// finance entries.
package tracer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/broadcast"
	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/metrics"
	"github.com/franz/xeenaps-tracer/internal/quote"
	"github.com/franz/xeenaps-tracer/internal/report"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

// Store is the metadata store the tracer writes through.
type Store interface {
	UpsertProject(ctx context.Context, p *store.Project) error
	GetProject(ctx context.Context, id string) (*store.Project, error)
	FetchProjects(ctx context.Context, q store.Query) (store.Page[store.Project], error)
	DeleteProject(ctx context.Context, id string) error

	UpsertLog(ctx context.Context, l *store.Log) error
	FetchLogs(ctx context.Context, projectID string) ([]store.Log, error)
	DeleteLog(ctx context.Context, id string) error

	UpsertReference(ctx context.Context, r *store.Reference) error
	GetReference(ctx context.Context, id string) (*store.Reference, error)
	FetchReferences(ctx context.Context, projectID string) ([]store.Reference, error)
	DeleteReference(ctx context.Context, id string) error

	UpsertTodo(ctx context.Context, t *store.Todo) error
	FetchTodos(ctx context.Context, projectID string) ([]store.Todo, error)
	FetchPendingTodos(ctx context.Context) ([]store.Todo, error)
	DeleteTodo(ctx context.Context, id string) error

	UpsertFinance(ctx context.Context, f *store.FinanceItem) error
	FetchFinance(ctx context.Context, projectID string, f store.FinanceFilter) ([]store.FinanceItem, error)
	DeleteFinance(ctx context.Context, id string) error
}

// BlobDeleter removes legacy content blobs left behind by older records.
type BlobDeleter interface {
	Delete(ctx context.Context, blobID, nodeURL string) error
}

// Assistant is the AI surface used for project fields.
type Assistant interface {
	TranslateText(ctx context.Context, text, lang string) (string, error)
	RefineField(ctx context.Context, field, value string, project aiproxy.ProjectContext, mode aiproxy.RefineMode) (string, error)
}

// Renderer posts export requests to the PDF engine.
type Renderer interface {
	Do(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// Options wires a Service. Only Store is required.
type Options struct {
	Store    Store
	Blobs    BlobDeleter
	AI       Assistant
	Renderer Renderer
	Bus      *broadcast.Bus
	Notifier itemsync.Notifier
	Events   *report.EventLogger
	Now      func() time.Time
}

// Service is the tracer's write path. Every record is validated before it
// reaches the store and ids are assigned here, before any write.
type Service struct {
	store    Store
	blobs    BlobDeleter
	ai       Assistant
	renderer Renderer
	bus      *broadcast.Bus
	notify   itemsync.Notifier
	events   *report.EventLogger
	now      func() time.Time
	validate *validator.Validate
}

// NewService creates a tracer service
func NewService(opts Options) *Service {
	s := &Service{
		store:    opts.Store,
		blobs:    opts.Blobs,
		ai:       opts.AI,
		renderer: opts.Renderer,
		bus:      opts.Bus,
		notify:   opts.Notifier,
		events:   opts.Events,
		now:      opts.Now,
		validate: validator.New(),
	}
	if s.notify == nil {
		s.notify = itemsync.LogNotifier{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) stamp() string {
	return s.now().UTC().Format(time.RFC3339Nano)
}

func (s *Service) check(kind string, v any) error {
	if err := s.validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %s: %w: %v", kind, util.ErrInvalidInput, err)
	}
	return nil
}

// write runs one store mutation with the shared bookkeeping.
func (s *Service) write(projectID, action, id string, fn func() error) error {
	err := fn()
	s.events.LogTracer(projectID, action, id, err)
	metrics.SyncOps.WithLabelValues("tracer_"+action, metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("%s %s: %w: %v", action, id, util.ErrRemoteWrite, err)
	}
	return nil
}

// removed reports a failed delete. The record is already gone from the
// caller's view, so it is told to refresh rather than restore it.
func (s *Service) removed(err error) error {
	if err != nil {
		s.notify.Error("Failed to delete from the server. Please refresh.")
	}
	return err
}

// FetchProjects returns one page of projects, most recently updated first
// unless q says otherwise.
func (s *Service) FetchProjects(ctx context.Context, q store.Query) (store.Page[store.Project], error) {
	if q.SortField == "" {
		q.SortField, q.SortDir = "updatedAt", "desc"
	}
	return s.store.FetchProjects(ctx, q)
}

// GetProject loads one project.
func (s *Service) GetProject(ctx context.Context, id string) (*store.Project, error) {
	p, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("project %s: %w", id, util.ErrNotFound)
	}
	return p, nil
}

// SaveProject creates or updates a project. Subscribers hear about the
// change before the write lands.
func (s *Service) SaveProject(ctx context.Context, p *store.Project) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.UpdatedAt = s.stamp()
	if p.CreatedAt == "" {
		p.CreatedAt = p.UpdatedAt
	}
	if err := s.check("project", p); err != nil {
		return err
	}

	snapshot := *p
	snapshot.Authors = append([]string(nil), p.Authors...)
	s.bus.Publish(broadcast.Event{Topic: broadcast.TracerUpdated, ID: p.ID, Payload: snapshot})

	return s.write(p.ID, "save_project", p.ID, func() error {
		return s.store.UpsertProject(ctx, p)
	})
}

// DeleteProject removes a project and everything it owns.
func (s *Service) DeleteProject(ctx context.Context, id string) error {
	s.bus.Publish(broadcast.Event{Topic: broadcast.TracerDeleted, ID: id})
	return s.removed(s.write(id, "delete_project", id, func() error {
		return s.store.DeleteProject(ctx, id)
	}))
}

// FetchLogs returns a project's journal, newest first.
func (s *Service) FetchLogs(ctx context.Context, projectID string) ([]store.Log, error) {
	return s.store.FetchLogs(ctx, projectID)
}

// SaveLog stores a log entry with its body embedded in the row.
func (s *Service) SaveLog(ctx context.Context, l *store.Log, content store.LogContent) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	l.Description = content.Description
	l.Attachments = content.Attachments
	l.UpdatedAt = s.stamp()
	if err := s.check("log", l); err != nil {
		return err
	}
	return s.write(l.ProjectID, "save_log", l.ID, func() error {
		return s.store.UpsertLog(ctx, l)
	})
}

func (s *Service) DeleteLog(ctx context.Context, id string) error {
	return s.removed(s.write("", "delete_log", id, func() error {
		return s.store.DeleteLog(ctx, id)
	}))
}

// FetchReferences returns a project's linked references in link order.
func (s *Service) FetchReferences(ctx context.Context, projectID string) ([]store.Reference, error) {
	return s.store.FetchReferences(ctx, projectID)
}

// LinkReference attaches a library item to a project. The new reference
// starts with no quotes and no content blob.
func (s *Service) LinkReference(ctx context.Context, projectID, collectionID string) (*store.Reference, error) {
	ref := &store.Reference{
		ID:           uuid.NewString(),
		ProjectID:    projectID,
		CollectionID: collectionID,
		Quotes:       []store.SavedQuote{},
		CreatedAt:    s.stamp(),
	}
	if err := s.check("reference", ref); err != nil {
		return nil, err
	}
	err := s.write(projectID, "link_reference", ref.ID, func() error {
		return s.store.UpsertReference(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// UnlinkReference removes a reference. A legacy content blob, if the
// reference still has one, is deleted best-effort.
func (s *Service) UnlinkReference(ctx context.Context, id string) error {
	ref, err := s.store.GetReference(ctx, id)
	if err != nil {
		return err
	}
	if ref != nil && ref.ContentJSONID != "" && s.blobs != nil {
		if err := s.blobs.Delete(ctx, ref.ContentJSONID, ref.StorageNodeURL); err != nil {
			util.WarnLog("Could not delete legacy content %s of reference %s: %v", ref.ContentJSONID, id, err)
		}
	}
	projectID := ""
	if ref != nil {
		projectID = ref.ProjectID
	}
	return s.removed(s.write(projectID, "unlink_reference", id, func() error {
		return s.store.DeleteReference(ctx, id)
	}))
}

// SaveReferenceContent replaces the quotes stored on a reference.
func (s *Service) SaveReferenceContent(ctx context.Context, refID string, content store.ReferenceContent) (*store.Reference, error) {
	ref, err := s.reference(ctx, refID)
	if err != nil {
		return nil, err
	}
	ref.Quotes = content.Quotes
	if ref.Quotes == nil {
		ref.Quotes = []store.SavedQuote{}
	}
	if err := s.check("reference", ref); err != nil {
		return nil, err
	}
	err = s.write(ref.ProjectID, "save_quotes", ref.ID, func() error {
		return s.store.UpsertReference(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// AppendQuotes adds saved quotes after the ones a reference already has.
func (s *Service) AppendQuotes(ctx context.Context, refID string, quotes []store.SavedQuote) error {
	ref, err := s.reference(ctx, refID)
	if err != nil {
		return err
	}
	all := append(append([]store.SavedQuote{}, ref.Quotes...), quotes...)
	_, err = s.SaveReferenceContent(ctx, refID, store.ReferenceContent{Quotes: all})
	s.events.LogQuoteSave(ref.CollectionID, refID, len(quotes), err)
	return err
}

// QuotePersister returns the save path of the quote workflow for one
// reference.
func (s *Service) QuotePersister(refID string) quote.Persister {
	return func(ctx context.Context, quotes []store.SavedQuote) error {
		return s.AppendQuotes(ctx, refID, quotes)
	}
}

func (s *Service) reference(ctx context.Context, id string) (*store.Reference, error) {
	ref, err := s.store.GetReference(ctx, id)
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("reference %s: %w", id, util.ErrNotFound)
	}
	return ref, nil
}

func (s *Service) FetchTodos(ctx context.Context, projectID string) ([]store.Todo, error) {
	return s.store.FetchTodos(ctx, projectID)
}

// PendingTodos returns open todos across every project.
func (s *Service) PendingTodos(ctx context.Context) ([]store.Todo, error) {
	return s.store.FetchPendingTodos(ctx)
}

// SaveTodo creates or updates a todo and announces it.
func (s *Service) SaveTodo(ctx context.Context, t *store.Todo) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.UpdatedAt = s.stamp()
	if err := s.check("todo", t); err != nil {
		return err
	}
	s.bus.Publish(broadcast.Event{Topic: broadcast.TodoUpdated, ID: t.ID, Payload: *t})
	return s.write(t.ProjectID, "save_todo", t.ID, func() error {
		return s.store.UpsertTodo(ctx, t)
	})
}

func (s *Service) DeleteTodo(ctx context.Context, id string) error {
	s.bus.Publish(broadcast.Event{Topic: broadcast.TodoDeleted, ID: id})
	return s.removed(s.write("", "delete_todo", id, func() error {
		return s.store.DeleteTodo(ctx, id)
	}))
}

// FetchFinance returns a project's ledger lines filtered by f.
func (s *Service) FetchFinance(ctx context.Context, projectID string, f store.FinanceFilter) ([]store.FinanceItem, error) {
	return s.store.FetchFinance(ctx, projectID, f)
}

// SaveFinance stores a ledger line with its attachments embedded.
func (s *Service) SaveFinance(ctx context.Context, f *store.FinanceItem, content store.FinanceContent) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.Attachments = content.Attachments
	f.UpdatedAt = s.stamp()
	if err := s.check("finance entry", f); err != nil {
		return err
	}
	return s.write(f.ProjectID, "save_finance", f.ID, func() error {
		return s.store.UpsertFinance(ctx, f)
	})
}

func (s *Service) DeleteFinance(ctx context.Context, id string) error {
	return s.removed(s.write("", "delete_finance", id, func() error {
		return s.store.DeleteFinance(ctx, id)
	}))
}

// TranslateField translates free text on a tracer record. Blank input
// yields "" without a proxy call.
func (s *Service) TranslateField(ctx context.Context, text, lang string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if s.ai == nil {
		return "", fmt.Errorf("no AI assistant configured: %w", util.ErrInvalidConfig)
	}
	return s.ai.TranslateText(ctx, text, lang)
}

// RefineField rewrites or expands one field of a project, using the rest
// of the project as context.
func (s *Service) RefineField(ctx context.Context, projectID, field, value string, mode aiproxy.RefineMode) (string, error) {
	if s.ai == nil {
		return "", fmt.Errorf("no AI assistant configured: %w", util.ErrInvalidConfig)
	}
	p, err := s.GetProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	return s.ai.RefineField(ctx, field, value, projectContext(p), mode)
}

func projectContext(p *store.Project) aiproxy.ProjectContext {
	return aiproxy.ProjectContext{
		Title:       p.DisplayTitle(""),
		Topic:       p.Topic,
		Problem:     p.ProblemStatement,
		Gap:         p.ResearchGap,
		Question:    p.ResearchQuestion,
		Methodology: p.Methodology,
		Population:  p.Population,
	}
}
