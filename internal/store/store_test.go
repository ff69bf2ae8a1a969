package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/franz/xeenaps-tracer/internal/library"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreOpenAndMigrate(t *testing.T) {
	store := openTestStore(t)

	version, err := store.getSchemaVersion()
	if err != nil {
		t.Fatalf("failed to get schema version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", currentSchemaVersion, version)
	}

	tables := []string{
		"library_items", "tracer_projects", "tracer_logs", "tracer_references",
		"tracer_todos", "tracer_finance", "schema_version",
	}
	for _, table := range tables {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("expected table %s to exist", table)
		}
	}

	v2Indexes := []string{
		"idx_library_items_updated",
		"idx_tracer_todos_pending",
		"idx_tracer_finance_project_date",
	}
	for _, index := range v2Indexes {
		var count int
		err := store.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name=?", index).Scan(&count)
		if err != nil {
			t.Fatalf("failed to query index %s: %v", index, err)
		}
		if count != 1 {
			t.Errorf("expected index %s to exist (schema v2)", index)
		}
	}

	if err := store.CheckIntegrity(); err != nil {
		t.Errorf("integrity check failed: %v", err)
	}
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	for i := 0; i < 2; i++ {
		s, err := OpenWithOptions(path, &OpenOptions{SyncedFolder: true})
		if err != nil {
			t.Fatalf("open #%d failed: %v", i+1, err)
		}
		s.Close()
	}
}

func TestItemUpsertAndRetrieve(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	it := &library.Item{
		ID:      "item-1",
		Title:   "Deep Learning",
		Authors: library.Authors{"Goodfellow", "Bengio"},
		PubInfo: library.PubInfo{Journal: "Nature", Vol: "12"},
		Tags:    library.Tags{Keywords: []string{"ml"}},
	}
	if err := store.UpsertItem(ctx, it); err != nil {
		t.Fatalf("failed to upsert item: %v", err)
	}
	if it.CreatedAt == "" {
		t.Error("expected createdAt to be stamped")
	}

	got, err := store.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if got == nil {
		t.Fatal("expected to retrieve item, got nil")
	}
	if got.Title != it.Title || got.PubInfo.Line() != "Nature • Vol. 12" {
		t.Errorf("unexpected item: %+v", got)
	}

	it.IsFavorite = true
	if err := store.UpsertItem(ctx, it); err != nil {
		t.Fatalf("failed to update item: %v", err)
	}
	got, _ = store.GetItem(ctx, "item-1")
	if !got.IsFavorite {
		t.Error("expected favourite flag to be persisted")
	}

	if err := store.DeleteItem(ctx, "item-1"); err != nil {
		t.Fatalf("failed to delete item: %v", err)
	}
	got, err = store.GetItem(ctx, "item-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Error("expected item to be gone")
	}

	if err := store.DeleteItem(ctx, "item-1"); err != nil {
		t.Errorf("deleting a missing item should not fail: %v", err)
	}
}

func TestFetchItemsPaginationAndSearch(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 7; i++ {
		title := fmt.Sprintf("Paper %d", i)
		if i == 3 {
			title = "Über Café Studies"
		}
		it := &library.Item{
			ID:        fmt.Sprintf("id-%d", i),
			Title:     title,
			CreatedAt: fmt.Sprintf("2024-01-0%dT00:00:00Z", i),
			UpdatedAt: fmt.Sprintf("2024-01-0%dT00:00:00Z", i),
		}
		if err := store.UpsertItem(ctx, it); err != nil {
			t.Fatalf("failed to upsert: %v", err)
		}
	}

	page, err := store.FetchItems(ctx, Query{Page: 2, Limit: 3, SortField: "createdAt", SortDir: "desc"})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if page.TotalCount != 7 {
		t.Errorf("expected total 7, got %d", page.TotalCount)
	}
	if len(page.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(page.Items))
	}
	if page.Items[0].ID != "id-4" {
		t.Errorf("expected id-4 first on page 2, got %s", page.Items[0].ID)
	}

	page, err = store.FetchItems(ctx, Query{Search: "uber cafe"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if page.TotalCount != 1 || page.Items[0].ID != "id-3" {
		t.Errorf("expected diacritic-insensitive match on id-3, got %+v", page)
	}

	page, err = store.FetchItems(ctx, Query{Search: "100%"})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if page.TotalCount != 0 || page.Items == nil {
		t.Errorf("expected empty non-nil page, got %+v", page)
	}

	// unknown sort fields fall back instead of reaching SQL
	if _, err := store.FetchItems(ctx, Query{SortField: "id; DROP TABLE library_items"}); err != nil {
		t.Errorf("unexpected error for unknown sort field: %v", err)
	}
}

func TestItemsWithStoredInsights(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	store.UpsertItem(ctx, &library.Item{ID: "a", InsightJSONID: "blob-a"})
	store.UpsertItem(ctx, &library.Item{ID: "b"})

	items, err := store.ItemsWithStoredInsights(ctx)
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "a" {
		t.Errorf("expected only item a, got %+v", items)
	}

	n, err := store.CountItems(ctx)
	if err != nil || n != 2 {
		t.Errorf("expected 2 items, got %d (%v)", n, err)
	}
}

func TestProjectPaginationAndCascade(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		p := &Project{
			ID:        fmt.Sprintf("p%d", i),
			Title:     fmt.Sprintf("Project %d", i),
			UpdatedAt: fmt.Sprintf("2024-02-0%dT00:00:00Z", i),
		}
		if err := store.UpsertProject(ctx, p); err != nil {
			t.Fatalf("failed to upsert project: %v", err)
		}
	}

	page, err := store.FetchProjects(ctx, Query{Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if page.TotalCount != 3 || len(page.Items) != 2 {
		t.Fatalf("unexpected page: %+v", page)
	}
	if page.Items[0].ID != "p3" {
		t.Errorf("expected most recently updated first, got %s", page.Items[0].ID)
	}

	store.UpsertLog(ctx, &Log{ID: "l1", ProjectID: "p1", Title: "day one"})
	store.UpsertTodo(ctx, &Todo{ID: "t1", ProjectID: "p1", Title: "write"})
	store.UpsertReference(ctx, &Reference{ID: "r1", ProjectID: "p1", CollectionID: "item-1"})
	store.UpsertFinance(ctx, &FinanceItem{ID: "f1", ProjectID: "p1", Date: "2024-01-01"})

	if err := store.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	logs, _ := store.FetchLogs(ctx, "p1")
	todos, _ := store.FetchTodos(ctx, "p1")
	refs, _ := store.FetchReferences(ctx, "p1")
	fin, _ := store.FetchFinance(ctx, "p1", FinanceFilter{})
	if len(logs)+len(todos)+len(refs)+len(fin) != 0 {
		t.Errorf("expected children to be removed, got %d/%d/%d/%d", len(logs), len(todos), len(refs), len(fin))
	}
	if p, _ := store.GetProject(ctx, "p1"); p != nil {
		t.Error("expected project to be gone")
	}
}

func TestReferenceQuotesInline(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	ref := &Reference{ID: "r1", ProjectID: "p1", CollectionID: "item-1"}
	if err := store.UpsertReference(ctx, ref); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	ref.Quotes = append(ref.Quotes, SavedQuote{ID: "q1", OriginalText: "orig", EnhancedText: "enh", Lang: "en", CreatedAt: "2024-01-01T00:00:00Z"})
	if err := store.UpsertReference(ctx, ref); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	got, err := store.GetReference(ctx, "r1")
	if err != nil || got == nil {
		t.Fatalf("get failed: %v", err)
	}
	if len(got.Quotes) != 1 || got.Quotes[0].EnhancedText != "enh" {
		t.Errorf("expected inline quote, got %+v", got.Quotes)
	}
}

func TestPendingTodosAcrossProjects(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	todos := []*Todo{
		{ID: "a", ProjectID: "p1", Title: "late", Deadline: "2024-05-01"},
		{ID: "b", ProjectID: "p2", Title: "early", Deadline: "2024-03-01"},
		{ID: "c", ProjectID: "p2", Title: "done", IsDone: true},
		{ID: "d", ProjectID: "p1", Title: "no deadline"},
	}
	for _, td := range todos {
		if err := store.UpsertTodo(ctx, td); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	pending, err := store.FetchPendingTodos(ctx)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	var ids []string
	for _, td := range pending {
		ids = append(ids, td.ID)
	}
	expected := []string{"b", "a", "d"}
	if fmt.Sprint(ids) != fmt.Sprint(expected) {
		t.Errorf("expected %v, got %v", expected, ids)
	}
}

func TestFetchFinanceFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []*FinanceItem{
		{ID: "1", ProjectID: "p", Date: "2024-01-05", Description: "Printer paper", Debit: 10},
		{ID: "2", ProjectID: "p", Date: "2024-02-10T09:30:00", Description: "Grant", Credit: 500},
		{ID: "3", ProjectID: "p", Date: "2024-03-01", Description: "Survey incentive", Debit: 50},
		{ID: "4", ProjectID: "other", Date: "2024-02-01", Description: "Grant"},
	}
	for _, e := range entries {
		if err := store.UpsertFinance(ctx, e); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
	}

	tests := []struct {
		name     string
		filter   FinanceFilter
		expected []string
	}{
		{"all", FinanceFilter{}, []string{"1", "2", "3"}},
		{"range inclusive end day", FinanceFilter{StartDate: "2024-02-01", EndDate: "2024-02-10"}, []string{"2"}},
		{"search", FinanceFilter{Search: "grant"}, []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.FetchFinance(ctx, "p", tt.filter)
			if err != nil {
				t.Fatalf("fetch failed: %v", err)
			}
			var ids []string
			for _, f := range got {
				ids = append(ids, f.ID)
			}
			if fmt.Sprint(ids) != fmt.Sprint(tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, ids)
			}
		})
	}
}

func TestFoldSearch(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Müller  Straße", "muller straße"},
		{"  CAFÉ ", "cafe"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := foldSearch(tt.input); got != tt.expected {
			t.Errorf("foldSearch(%q) = %q, expected %q", tt.input, got, tt.expected)
		}
	}
}
