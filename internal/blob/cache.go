package blob

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/franz/xeenaps-tracer/internal/util"
)

// Cache provides database-backed read-through caching for blob payloads.
// Insight bundles are written once and rarely change, so the cache keeps
// entries until they are deleted or aged out.
type Cache struct {
	db    *sql.DB
	inner Fetcher
}

// NewCache creates a new cache in front of inner
func NewCache(db *sql.DB, inner Fetcher) *Cache {
	return &Cache{
		db:    db,
		inner: inner,
	}
}

// EnsureSchema creates the cache table if it doesn't exist
func (c *Cache) EnsureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blob_cache (
		blob_id TEXT NOT NULL,
		node_url TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL, -- JSON object
		cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		hit_count INTEGER DEFAULT 0,
		PRIMARY KEY (blob_id, node_url)
	);

	CREATE INDEX IF NOT EXISTS idx_blob_cache_cached_at ON blob_cache(cached_at);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create blob_cache table: %w", err)
	}

	return nil
}

// FetchContent checks the cache first and falls back to the inner fetcher.
// Misses for absent blobs are not cached.
func (c *Cache) FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error) {
	cached, err := c.getFromCache(ctx, blobID, nodeURL)
	if err == nil && cached != nil {
		util.DebugLog("Blob cache hit: %s", blobID)
		c.incrementHitCount(ctx, blobID, nodeURL)
		return cached, nil
	}
	if err != nil {
		util.DebugLog("Blob cache read failed for %s: %v", blobID, err)
	}

	util.DebugLog("Blob cache miss: %s, fetching", blobID)
	content, err := c.inner.FetchContent(ctx, blobID, nodeURL)
	if err != nil {
		return nil, err
	}
	if content == nil {
		return nil, nil
	}

	if err := c.storeInCache(ctx, blobID, nodeURL, content); err != nil {
		// Don't fail the operation if caching fails
		util.WarnLog("Failed to cache blob %s: %v", blobID, err)
	}

	return content, nil
}

// Delete removes the blob remotely and evicts it locally. The local entry
// is evicted even when the remote delete fails.
func (c *Cache) Delete(ctx context.Context, blobID, nodeURL string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM blob_cache WHERE blob_id = ? AND node_url = ?", blobID, nodeURL); err != nil {
		util.DebugLog("Failed to evict blob %s: %v", blobID, err)
	}
	return c.inner.Delete(ctx, blobID, nodeURL)
}

// Cached reports whether a blob is present in the cache.
func (c *Cache) Cached(ctx context.Context, blobID, nodeURL string) bool {
	var n int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM blob_cache WHERE blob_id = ? AND node_url = ?", blobID, nodeURL).Scan(&n)
	return err == nil && n > 0
}

// getFromCache retrieves a cached payload
func (c *Cache) getFromCache(ctx context.Context, blobID, nodeURL string) (Content, error) {
	var payload string
	err := c.db.QueryRowContext(ctx,
		"SELECT payload FROM blob_cache WHERE blob_id = ? AND node_url = ?", blobID, nodeURL).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}

	var content Content
	if err := json.Unmarshal([]byte(payload), &content); err != nil {
		return nil, fmt.Errorf("failed to decode cached blob: %w", err)
	}
	return content, nil
}

// storeInCache stores a payload in the cache
func (c *Cache) storeInCache(ctx context.Context, blobID, nodeURL string, content Content) error {
	payload, err := json.Marshal(content)
	if err != nil {
		return fmt.Errorf("failed to encode blob: %w", err)
	}

	query := `
		INSERT OR REPLACE INTO blob_cache
		(blob_id, node_url, payload, cached_at, hit_count)
		VALUES (?, ?, ?, ?, COALESCE((SELECT hit_count FROM blob_cache WHERE blob_id = ? AND node_url = ?), 0))
	`

	_, err = c.db.ExecContext(ctx, query, blobID, nodeURL, string(payload), time.Now(), blobID, nodeURL)
	if err != nil {
		return fmt.Errorf("failed to insert cache entry: %w", err)
	}

	return nil
}

// incrementHitCount increments the cache hit counter
func (c *Cache) incrementHitCount(ctx context.Context, blobID, nodeURL string) {
	query := `UPDATE blob_cache SET hit_count = hit_count + 1 WHERE blob_id = ? AND node_url = ?`
	if _, err := c.db.ExecContext(ctx, query, blobID, nodeURL); err != nil {
		util.DebugLog("Failed to increment hit count: %v", err)
	}
}

// GetStats returns cache statistics
func (c *Cache) GetStats() (entries int, totalHits int64, err error) {
	query := `SELECT COUNT(*), COALESCE(SUM(hit_count), 0) FROM blob_cache`
	err = c.db.QueryRow(query).Scan(&entries, &totalHits)
	return
}

// ClearCache removes all cached entries
func (c *Cache) ClearCache() error {
	_, err := c.db.Exec("DELETE FROM blob_cache")
	return err
}

// ClearOldEntries removes cache entries older than the specified duration
func (c *Cache) ClearOldEntries(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := c.db.Exec("DELETE FROM blob_cache WHERE cached_at < ?", cutoff)
	if err != nil {
		return 0, err
	}

	rows, _ := result.RowsAffected()
	return int(rows), nil
}
