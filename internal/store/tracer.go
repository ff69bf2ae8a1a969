package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

var projectSortColumns = map[string]string{
	"createdAt": "created_at",
	"updatedAt": "updated_at",
	"title":     "title",
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func encodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

// scanPayloads decodes the single payload column of every row.
func scanPayloads[T any](rows *sql.Rows) ([]T, error) {
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var v T
		if err := json.Unmarshal([]byte(payload), &v); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table+" WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", table, err)
	}
	return nil
}

// UpsertProject inserts or replaces a project
func (s *Store) UpsertProject(ctx context.Context, p *Project) error {
	if p.CreatedAt == "" {
		p.CreatedAt = nowISO()
	}
	if p.UpdatedAt == "" {
		p.UpdatedAt = p.CreatedAt
	}
	payload, err := encodePayload(p)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracer_projects (id, title, search_text, payload, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			search_text = excluded.search_text,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, p.ID, p.DisplayTitle(""), searchText(p.Title, p.Label, p.Topic, strings.Join(p.Authors, " ")),
		payload, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert project: %w", err)
	}
	return nil
}

// GetProject retrieves a project by id. It returns nil, nil when absent.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM tracer_projects WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	var p Project
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to decode project %s: %w", id, err)
	}
	return &p, nil
}

// FetchProjects returns one page of projects.
func (s *Store) FetchProjects(ctx context.Context, q Query) (Page[Project], error) {
	offset, limit := q.offsetLimit()

	where := ""
	args := []any{}
	if q.Search != "" {
		where = `WHERE search_text LIKE ? ESCAPE '\'`
		args = append(args, likePattern(q.Search))
	}

	var page Page[Project]
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tracer_projects "+where, args...).Scan(&page.TotalCount); err != nil {
		return page, fmt.Errorf("failed to count projects: %w", err)
	}

	order := orderBy(q.SortField, q.SortDir, projectSortColumns, "updated_at")
	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM tracer_projects "+where+" ORDER BY "+order+", id LIMIT ? OFFSET ?",
		append(args, limit, offset)...)
	if err != nil {
		return page, fmt.Errorf("failed to query projects: %w", err)
	}

	page.Items, err = scanPayloads[Project](rows)
	return page, err
}

// DeleteProject removes a project and every record it owns.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"tracer_logs", "tracer_references", "tracer_todos", "tracer_finance"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE project_id = ?", id); err != nil {
				return fmt.Errorf("failed to delete from %s: %w", table, err)
			}
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM tracer_projects WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete project: %w", err)
		}
		return nil
	})
}

// UpsertLog inserts or replaces a log entry
func (s *Store) UpsertLog(ctx context.Context, l *Log) error {
	if l.CreatedAt == "" {
		l.CreatedAt = nowISO()
	}
	payload, err := encodePayload(l)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracer_logs (id, project_id, log_date, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			log_date = excluded.log_date,
			payload = excluded.payload
	`, l.ID, l.ProjectID, l.Date, payload, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert log: %w", err)
	}
	return nil
}

// FetchLogs returns a project's logs, newest first.
func (s *Store) FetchLogs(ctx context.Context, projectID string) ([]Log, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM tracer_logs WHERE project_id = ?
		ORDER BY log_date DESC, created_at DESC, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	return scanPayloads[Log](rows)
}

// DeleteLog removes a log entry
func (s *Store) DeleteLog(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tracer_logs", id)
}

// UpsertReference inserts or replaces a reference, quotes included
func (s *Store) UpsertReference(ctx context.Context, r *Reference) error {
	if r.CreatedAt == "" {
		r.CreatedAt = nowISO()
	}
	if r.Quotes == nil {
		r.Quotes = []SavedQuote{}
	}
	payload, err := encodePayload(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracer_references (id, project_id, collection_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			collection_id = excluded.collection_id,
			payload = excluded.payload
	`, r.ID, r.ProjectID, r.CollectionID, payload, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert reference: %w", err)
	}
	return nil
}

// GetReference retrieves a reference by id. It returns nil, nil when absent.
func (s *Store) GetReference(ctx context.Context, id string) (*Reference, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM tracer_references WHERE id = ?", id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reference: %w", err)
	}
	var r Reference
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return nil, fmt.Errorf("failed to decode reference %s: %w", id, err)
	}
	return &r, nil
}

// FetchReferences returns a project's references in link order.
func (s *Store) FetchReferences(ctx context.Context, projectID string) ([]Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM tracer_references WHERE project_id = ?
		ORDER BY created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query references: %w", err)
	}
	return scanPayloads[Reference](rows)
}

// DeleteReference removes a reference
func (s *Store) DeleteReference(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tracer_references", id)
}

// UpsertTodo inserts or replaces a todo
func (s *Store) UpsertTodo(ctx context.Context, t *Todo) error {
	if t.CreatedAt == "" {
		t.CreatedAt = nowISO()
	}
	payload, err := encodePayload(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracer_todos (id, project_id, is_done, deadline, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			is_done = excluded.is_done,
			deadline = excluded.deadline,
			payload = excluded.payload
	`, t.ID, t.ProjectID, t.IsDone, t.Deadline, payload, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert todo: %w", err)
	}
	return nil
}

// FetchTodos returns a project's todos, open ones first by deadline.
func (s *Store) FetchTodos(ctx context.Context, projectID string) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM tracer_todos WHERE project_id = ?
		ORDER BY is_done, deadline = '', deadline, created_at, id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query todos: %w", err)
	}
	return scanPayloads[Todo](rows)
}

// FetchPendingTodos returns open todos across every project.
func (s *Store) FetchPendingTodos(ctx context.Context) ([]Todo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM tracer_todos WHERE is_done = 0
		ORDER BY deadline = '', deadline, created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending todos: %w", err)
	}
	return scanPayloads[Todo](rows)
}

// DeleteTodo removes a todo
func (s *Store) DeleteTodo(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tracer_todos", id)
}

// UpsertFinance inserts or replaces a finance entry
func (s *Store) UpsertFinance(ctx context.Context, f *FinanceItem) error {
	if f.CreatedAt == "" {
		f.CreatedAt = nowISO()
	}
	payload, err := encodePayload(f)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracer_finance (id, project_id, entry_date, search_text, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			project_id = excluded.project_id,
			entry_date = excluded.entry_date,
			search_text = excluded.search_text,
			payload = excluded.payload
	`, f.ID, f.ProjectID, f.Date, searchText(f.Description), payload, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert finance entry: %w", err)
	}
	return nil
}

// FinanceFilter narrows a finance fetch. Dates are inclusive ISO prefixes;
// empty fields do not filter.
type FinanceFilter struct {
	StartDate string
	EndDate   string
	Search    string
}

// FetchFinance returns a project's finance entries in date order.
func (s *Store) FetchFinance(ctx context.Context, projectID string, f FinanceFilter) ([]FinanceItem, error) {
	where := []string{"project_id = ?"}
	args := []any{projectID}
	if f.StartDate != "" {
		where = append(where, "entry_date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		// compare on the date prefix so a bare end date includes that whole day
		where = append(where, "substr(entry_date, 1, ?) <= ?")
		args = append(args, len(f.EndDate), f.EndDate)
	}
	if f.Search != "" {
		where = append(where, `search_text LIKE ? ESCAPE '\'`)
		args = append(args, likePattern(f.Search))
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM tracer_finance WHERE "+strings.Join(where, " AND ")+" ORDER BY entry_date, created_at, id",
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query finance: %w", err)
	}
	return scanPayloads[FinanceItem](rows)
}

// DeleteFinance removes a finance entry
func (s *Store) DeleteFinance(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "tracer_finance", id)
}
