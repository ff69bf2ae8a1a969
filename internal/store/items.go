package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/franz/xeenaps-tracer/internal/library"
)

var itemSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
	"year":      "year",
	"authors":   "authors",
	"category":  "category",
}

// UpsertItem inserts or replaces a library item
func (s *Store) UpsertItem(ctx context.Context, it *library.Item) error {
	if it == nil || it.ID == "" {
		return fmt.Errorf("failed to upsert item: missing id")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if it.CreatedAt == "" {
		it.CreatedAt = now
	}
	if it.UpdatedAt == "" {
		it.UpdatedAt = now
	}

	payload, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	search := searchText(it.Title, it.Authors.String(), it.Publisher, it.Topic, it.SubTopic,
		string(it.PubInfo.Journal), string(it.Identifiers.DOI))

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO library_items (
			id, title, authors, year, category, search_text,
			is_bookmarked, is_favorite,
			insight_json_id, extracted_json_id, storage_node_url,
			payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			authors = excluded.authors,
			year = excluded.year,
			category = excluded.category,
			search_text = excluded.search_text,
			is_bookmarked = excluded.is_bookmarked,
			is_favorite = excluded.is_favorite,
			insight_json_id = excluded.insight_json_id,
			extracted_json_id = excluded.extracted_json_id,
			storage_node_url = excluded.storage_node_url,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`,
		it.ID, it.Title, it.Authors.String(), string(it.Year), it.Category, search,
		it.IsBookmarked, it.IsFavorite,
		it.InsightJSONID, it.ExtractedJSONID, it.StorageNodeURL,
		string(payload), it.CreatedAt, it.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert item: %w", err)
	}

	return nil
}

// GetItem retrieves a library item by id. It returns nil, nil when absent.
func (s *Store) GetItem(ctx context.Context, id string) (*library.Item, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM library_items WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	it, err := library.DecodeItem([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to decode item %s: %w", id, err)
	}
	return &it, nil
}

// DeleteItem removes a library item. Deleting a missing item is not an error.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM library_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// FetchItems returns one page of library items.
func (s *Store) FetchItems(ctx context.Context, q Query) (Page[library.Item], error) {
	offset, limit := q.offsetLimit()

	where := ""
	args := []any{}
	if q.Search != "" {
		where = `WHERE search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(q.Search))
	}

	var page Page[library.Item]
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM library_items "+where, args...).Scan(&page.TotalCount)
	if err != nil {
		return page, fmt.Errorf("failed to count items: %w", err)
	}

	order := orderBy(q.SortField, q.SortDir, itemSortColumns, "created_at")
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM library_items "+where+" ORDER BY "+order+", id LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return page, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	page.Items = []library.Item{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return page, fmt.Errorf("failed to scan item: %w", err)
		}
		it, err := library.DecodeItem([]byte(payload))
		if err != nil {
			return page, fmt.Errorf("failed to decode item: %w", err)
		}
		page.Items = append(page.Items, it)
	}

	return page, rows.Err()
}

// ItemsWithStoredInsights returns every item whose insight bundle lives in
// the blob store.
func (s *Store) ItemsWithStoredInsights(ctx context.Context) ([]library.Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM library_items
		WHERE insight_json_id != ''
		ORDER BY updated_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []library.Item
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it, err := library.DecodeItem([]byte(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to decode item: %w", err)
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

// CountItems returns the number of library items.
func (s *Store) CountItems(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM library_items").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}

// LibraryStats summarizes the library table.
type LibraryStats struct {
	Items        int
	WithContent  int
	WithInsights int
	Bookmarked   int
	Favorites    int
	LastUpdated  string
}

// GetLibraryStats returns aggregate counts over the library.
func (s *Store) GetLibraryStats(ctx context.Context) (*LibraryStats, error) {
	var st LibraryStats
	var last sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(extracted_json_id != ''), 0),
			COALESCE(SUM(insight_json_id != ''), 0),
			COALESCE(SUM(is_bookmarked), 0),
			COALESCE(SUM(is_favorite), 0),
			MAX(updated_at)
		FROM library_items
	`).Scan(&st.Items, &st.WithContent, &st.WithInsights, &st.Bookmarked, &st.Favorites, &last)
	if err != nil {
		return nil, fmt.Errorf("failed to read library stats: %w", err)
	}
	st.LastUpdated = last.String
	return &st, nil
}
