package store

// Schema v1 - library items and tracer tables.
// Structured sub-objects are kept as JSON in payload; the scalar columns
// exist for filtering, sorting and search.
const schemaV1 = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
  version INTEGER PRIMARY KEY,
  applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Bibliographic items
CREATE TABLE IF NOT EXISTS library_items (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  authors TEXT NOT NULL DEFAULT '',
  year TEXT NOT NULL DEFAULT '',
  category TEXT NOT NULL DEFAULT '',
  search_text TEXT NOT NULL DEFAULT '',
  is_bookmarked INTEGER NOT NULL DEFAULT 0,
  is_favorite INTEGER NOT NULL DEFAULT 0,
  insight_json_id TEXT NOT NULL DEFAULT '',
  extracted_json_id TEXT NOT NULL DEFAULT '',
  storage_node_url TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL DEFAULT ''
);

-- Research projects
CREATE TABLE IF NOT EXISTS tracer_projects (
  id TEXT PRIMARY KEY,
  title TEXT NOT NULL DEFAULT '',
  search_text TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracer_logs (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  log_date TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracer_references (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  collection_id TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracer_todos (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  is_done INTEGER NOT NULL DEFAULT 0,
  deadline TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS tracer_finance (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL,
  entry_date TEXT NOT NULL DEFAULT '',
  search_text TEXT NOT NULL DEFAULT '',
  payload TEXT NOT NULL,
  created_at TEXT NOT NULL DEFAULT ''
);
`

// Schema v2 - indexes for the list views
const schemaV2 = `
CREATE INDEX IF NOT EXISTS idx_library_items_updated ON library_items(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_library_items_created ON library_items(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_library_items_flags ON library_items(is_bookmarked, is_favorite);
CREATE INDEX IF NOT EXISTS idx_tracer_projects_updated ON tracer_projects(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_tracer_logs_project ON tracer_logs(project_id, log_date);
CREATE INDEX IF NOT EXISTS idx_tracer_references_project ON tracer_references(project_id);
CREATE INDEX IF NOT EXISTS idx_tracer_todos_project ON tracer_todos(project_id);
CREATE INDEX IF NOT EXISTS idx_tracer_todos_pending ON tracer_todos(is_done, deadline);
CREATE INDEX IF NOT EXISTS idx_tracer_finance_project_date ON tracer_finance(project_id, entry_date);
`
