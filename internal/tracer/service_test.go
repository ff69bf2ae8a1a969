package tracer

import (
	"context"
	"encoding/base64"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/broadcast"
	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "tracer.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

type toasts struct{ errors []string }

func (n *toasts) Info(string)      {}
func (n *toasts) Success(string)   {}
func (n *toasts) Error(msg string) { n.errors = append(n.errors, msg) }

func newService(t *testing.T, opts Options) *Service {
	t.Helper()
	if opts.Store == nil {
		opts.Store = openStore(t)
	}
	if opts.Notifier == nil {
		opts.Notifier = &toasts{}
	}
	opts.Now = func() time.Time { return fixedNow }
	return NewService(opts)
}

func TestSaveProjectAssignsIDAndBroadcasts(t *testing.T) {
	bus := broadcast.New()
	var got []broadcast.Event
	bus.Subscribe(broadcast.TracerUpdated, func(e broadcast.Event) { got = append(got, e) })

	svc := newService(t, Options{Bus: bus})
	ctx := context.Background()

	p := &store.Project{Label: "Coral study", Authors: []string{"Ana"}}
	if err := svc.SaveProject(ctx, p); err != nil {
		t.Fatalf("SaveProject failed: %v", err)
	}
	if _, err := uuid.Parse(p.ID); err != nil {
		t.Errorf("expected a uuid id, got %q", p.ID)
	}
	if p.UpdatedAt != "2024-06-01T09:30:00Z" {
		t.Errorf("UpdatedAt = %q", p.UpdatedAt)
	}
	if len(got) != 1 || got[0].ID != p.ID {
		t.Fatalf("expected one update event for %s, got %+v", p.ID, got)
	}

	stored, err := svc.GetProject(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.DisplayTitle("") != "Coral study" {
		t.Errorf("stored project title = %q", stored.DisplayTitle(""))
	}
}

func TestSaveProjectRejectsInvalid(t *testing.T) {
	bus := broadcast.New()
	published := false
	bus.Subscribe(broadcast.TracerUpdated, func(broadcast.Event) { published = true })
	svc := newService(t, Options{Bus: bus})

	tests := []struct {
		name string
		p    store.Project
	}{
		{"no title or label", store.Project{}},
		{"unknown status", store.Project{Title: "x", Status: "archived"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.p
			err := svc.SaveProject(context.Background(), &p)
			if !errors.Is(err, util.ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
	if published {
		t.Error("invalid projects must not be announced")
	}
}

func TestDeleteProjectAnnouncesBeforeDeleting(t *testing.T) {
	st := openStore(t)
	bus := broadcast.New()
	svc := newService(t, Options{Store: st, Bus: bus})
	ctx := context.Background()

	p := &store.Project{Title: "Doomed"}
	if err := svc.SaveProject(ctx, p); err != nil {
		t.Fatal(err)
	}

	sawRow := false
	bus.Subscribe(broadcast.TracerDeleted, func(e broadcast.Event) {
		row, _ := st.GetProject(ctx, e.ID)
		sawRow = row != nil
	})

	if err := svc.DeleteProject(ctx, p.ID); err != nil {
		t.Fatal(err)
	}
	if !sawRow {
		t.Error("delete event should fire before the row is removed")
	}
	if _, err := svc.GetProject(ctx, p.ID); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

type failingDeletes struct {
	Store
}

func (failingDeletes) DeleteTodo(ctx context.Context, id string) error {
	return errors.New("connection refused")
}

func TestDeleteFailureAsksForRefresh(t *testing.T) {
	n := &toasts{}
	bus := broadcast.New()
	announced := 0
	bus.Subscribe(broadcast.TodoDeleted, func(broadcast.Event) { announced++ })

	svc := newService(t, Options{Store: failingDeletes{Store: openStore(t)}, Bus: bus, Notifier: n})
	err := svc.DeleteTodo(context.Background(), "t1")
	if !errors.Is(err, util.ErrRemoteWrite) {
		t.Fatalf("expected ErrRemoteWrite, got %v", err)
	}
	if announced != 1 {
		t.Errorf("local removal should still be announced, got %d events", announced)
	}
	if len(n.errors) != 1 || n.errors[0] != "Failed to delete from the server. Please refresh." {
		t.Errorf("unexpected toasts %v", n.errors)
	}
}

func TestSaveLogEmbedsContent(t *testing.T) {
	svc := newService(t, Options{})
	ctx := context.Background()

	l := &store.Log{ProjectID: "p1", Title: "Field day", Date: "2024-05-30"}
	content := store.LogContent{
		Description: "Sampled three reefs.",
		Attachments: []store.Attachment{{Label: "photos", FileID: "f1"}},
	}
	if err := svc.SaveLog(ctx, l, content); err != nil {
		t.Fatal(err)
	}

	logs, err := svc.FetchLogs(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].Description != "Sampled three reefs." || len(logs[0].Attachments) != 1 {
		t.Errorf("content not embedded: %+v", logs[0])
	}
}

func TestReferenceQuoteLifecycle(t *testing.T) {
	svc := newService(t, Options{})
	ctx := context.Background()

	ref, err := svc.LinkReference(ctx, "p1", "item-7")
	if err != nil {
		t.Fatal(err)
	}
	if ref.Quotes == nil || len(ref.Quotes) != 0 || ref.ContentJSONID != "" {
		t.Errorf("new reference should start empty: %+v", ref)
	}

	persist := svc.QuotePersister(ref.ID)
	quote := func(text string) store.SavedQuote {
		return store.SavedQuote{ID: uuid.NewString(), OriginalText: text, Lang: "en", CreatedAt: "2024-06-01T09:30:00Z"}
	}
	if err := persist(ctx, []store.SavedQuote{quote("a"), quote("b")}); err != nil {
		t.Fatal(err)
	}
	if err := persist(ctx, []store.SavedQuote{quote("c")}); err != nil {
		t.Fatal(err)
	}

	refs, err := svc.FetchReferences(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 1 {
		t.Fatalf("expected 1 reference, got %d", len(refs))
	}
	var texts []string
	for _, q := range refs[0].Quotes {
		texts = append(texts, q.OriginalText)
	}
	if len(texts) != 3 || texts[0] != "a" || texts[2] != "c" {
		t.Errorf("quotes = %v, want [a b c]", texts)
	}

	err = svc.AppendQuotes(ctx, "missing", []store.SavedQuote{quote("x")})
	if !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown reference, got %v", err)
	}
	err = persist(ctx, []store.SavedQuote{{ID: "q", Lang: "en", CreatedAt: "x"}})
	if !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("quote without text should be rejected, got %v", err)
	}
}

type blobLog struct{ deleted []string }

func (b *blobLog) Delete(ctx context.Context, blobID, nodeURL string) error {
	b.deleted = append(b.deleted, blobID+"@"+nodeURL)
	return errors.New("node offline")
}

func TestUnlinkRemovesLegacyContent(t *testing.T) {
	st := openStore(t)
	blobs := &blobLog{}
	svc := newService(t, Options{Store: st, Blobs: blobs})
	ctx := context.Background()

	legacy := &store.Reference{ID: "r1", ProjectID: "p1", CollectionID: "c1", ContentJSONID: "blob-1", StorageNodeURL: "https://node"}
	if err := st.UpsertReference(ctx, legacy); err != nil {
		t.Fatal(err)
	}

	if err := svc.UnlinkReference(ctx, "r1"); err != nil {
		t.Fatalf("blob failures must not fail the unlink: %v", err)
	}
	if len(blobs.deleted) != 1 || blobs.deleted[0] != "blob-1@https://node" {
		t.Errorf("deleted blobs = %v", blobs.deleted)
	}
	if ref, _ := st.GetReference(ctx, "r1"); ref != nil {
		t.Error("reference row should be gone")
	}
}

func TestTodosBroadcastAndPending(t *testing.T) {
	bus := broadcast.New()
	var ids []string
	bus.Subscribe(broadcast.TodoUpdated, func(e broadcast.Event) { ids = append(ids, e.ID) })
	svc := newService(t, Options{Bus: bus})
	ctx := context.Background()

	open := &store.Todo{ProjectID: "p1", Title: "Write intro", Deadline: "2024-07-01"}
	done := &store.Todo{ProjectID: "p2", Title: "Book lab", IsDone: true}
	for _, td := range []*store.Todo{open, done} {
		if err := svc.SaveTodo(ctx, td); err != nil {
			t.Fatal(err)
		}
	}
	if len(ids) != 2 || ids[0] != open.ID {
		t.Errorf("update events = %v", ids)
	}

	pending, err := svc.PendingTodos(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != open.ID {
		t.Errorf("pending = %+v", pending)
	}
}

func TestBuildLedger(t *testing.T) {
	items := []store.FinanceItem{
		{ID: "c", Date: "2024-03-10", Debit: 30},
		{ID: "a", Date: "2024-01-05T08:00:00Z", Credit: 100, Attachments: []store.Attachment{{URL: "https://r/1"}, {FileID: "f2"}}},
		{ID: "b", Date: "2024-02-01", Credit: 20, Debit: 5, Attachments: []store.Attachment{{Label: "empty"}}},
	}

	got := BuildLedger(items)

	want := []struct {
		id      string
		balance float64
		links   string
	}{
		{"a", 100, "https://r/1 | https://drive.google.com/file/d/f2/view"},
		{"b", 115, "-"},
		{"c", 85, "-"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].ID != w.id || got[i].Balance != w.balance || got[i].Links != w.links {
			t.Errorf("line %d = {%s %v %q}, want %+v", i, got[i].ID, got[i].Balance, got[i].Links, w)
		}
	}
	if items[0].ID != "c" {
		t.Error("BuildLedger must not reorder its input")
	}
}

type captureRenderer struct {
	req  gateway.Request
	resp *gateway.Response
}

func (c *captureRenderer) Do(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	c.req = req
	return c.resp, nil
}

func TestExportFinance(t *testing.T) {
	ctx := context.Background()
	renderer := &captureRenderer{resp: &gateway.Response{
		Status:   "success",
		Base64:   base64.StdEncoding.EncodeToString([]byte("plain text, not a pdf")),
		Filename: "ledger.pdf",
	}}
	svc := newService(t, Options{Renderer: renderer})

	if _, err := svc.ExportFinance(ctx, "p1", "EUR"); !errors.Is(err, util.ErrNotFound) {
		t.Fatalf("empty ledger should be ErrNotFound, got %v", err)
	}

	p := &store.Project{Title: "Grant 12"}
	if err := svc.SaveProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	for _, f := range []*store.FinanceItem{
		{ProjectID: p.ID, Date: "2024-02-01", Debit: 40},
		{ProjectID: p.ID, Date: "2024-01-01", Credit: 100},
	} {
		if err := svc.SaveFinance(ctx, f, store.FinanceContent{}); err != nil {
			t.Fatal(err)
		}
	}

	_, err := svc.ExportFinance(ctx, p.ID, "EUR")
	if err == nil {
		t.Fatal("a document that is not a PDF must be rejected")
	}

	if renderer.req.Action != "generateFinanceExport" {
		t.Errorf("action = %q", renderer.req.Action)
	}
	payload, ok := renderer.req.Payload.(ExportPayload)
	if !ok {
		t.Fatalf("payload type %T", renderer.req.Payload)
	}
	if payload.ProjectTitle != "Grant 12" || payload.ProjectAuthors != "Xeenaps User" || payload.Currency != "EUR" {
		t.Errorf("payload header = %q / %q / %q", payload.ProjectTitle, payload.ProjectAuthors, payload.Currency)
	}
	if len(payload.Transactions) != 2 || payload.Transactions[1].Balance != 60 {
		t.Errorf("transactions = %+v", payload.Transactions)
	}
}

func TestExportPayloadFallbacks(t *testing.T) {
	got := exportPayload(nil, nil, "IDR")
	if got.ProjectTitle != "Financial Report" || got.ProjectAuthors != "Xeenaps User" {
		t.Errorf("fallbacks = %q / %q", got.ProjectTitle, got.ProjectAuthors)
	}

	got = exportPayload(&store.Project{Label: "L", Authors: []string{"A", "B"}}, nil, "IDR")
	if got.ProjectTitle != "L" || got.ProjectAuthors != "A, B" {
		t.Errorf("header = %q / %q", got.ProjectTitle, got.ProjectAuthors)
	}
}

type recordingAssistant struct {
	calls   int
	project aiproxy.ProjectContext
	mode    aiproxy.RefineMode
}

func (r *recordingAssistant) TranslateText(ctx context.Context, text, lang string) (string, error) {
	r.calls++
	return "[" + lang + "] " + text, nil
}

func (r *recordingAssistant) RefineField(ctx context.Context, field, value string, project aiproxy.ProjectContext, mode aiproxy.RefineMode) (string, error) {
	r.calls++
	r.project, r.mode = project, mode
	return value + " (refined)", nil
}

func TestAIHelpers(t *testing.T) {
	ai := &recordingAssistant{}
	svc := newService(t, Options{AI: ai})
	ctx := context.Background()

	got, err := svc.TranslateField(ctx, "   ", "id")
	if err != nil || got != "" || ai.calls != 0 {
		t.Errorf("blank text should not call the proxy: %q %v %d", got, err, ai.calls)
	}

	p := &store.Project{Title: "Reefs", ResearchGap: "No long-term data", Population: "Coral colonies"}
	if err := svc.SaveProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	got, err = svc.RefineField(ctx, p.ID, "methodology", "Transects", aiproxy.RefineExpand)
	if err != nil {
		t.Fatal(err)
	}
	if got != "Transects (refined)" || ai.mode != aiproxy.RefineExpand {
		t.Errorf("refine = %q with mode %s", got, ai.mode)
	}
	if ai.project.Title != "Reefs" || ai.project.Gap != "No long-term data" || ai.project.Population != "Coral colonies" {
		t.Errorf("project context = %+v", ai.project)
	}

	if _, err := svc.RefineField(ctx, "missing", "f", "v", aiproxy.RefineRewrite); !errors.Is(err, util.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
