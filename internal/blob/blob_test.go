package blob

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

type fakeFetcher struct {
	content Content
	err     error
	fetches int
	deletes []string
}

func (f *fakeFetcher) FetchContent(ctx context.Context, blobID, nodeURL string) (Content, error) {
	f.fetches++
	return f.content, f.err
}

func (f *fakeFetcher) Delete(ctx context.Context, blobID, nodeURL string) error {
	f.deletes = append(f.deletes, blobID)
	return f.err
}

func TestDecodeContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey string
		wantNil bool
	}{
		{"object", `{"summary":"s"}`, "summary", false},
		{"string wrapped", `"{\"summary\":\"s\"}"`, "summary", false},
		{"empty object", `{}`, "", true},
		{"array", `[1,2]`, "", true},
		{"null", `null`, "", true},
		{"garbage", `{oops`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decodeContent([]byte(tt.input))
			if tt.wantNil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if _, ok := got[tt.wantKey]; !ok {
				t.Errorf("expected key %q in %v", tt.wantKey, got)
			}
		})
	}
}

func TestParseNodeURL(t *testing.T) {
	bucket, prefix, err := ParseNodeURL("gs://xeenaps-blobs/insights/v2/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "xeenaps-blobs" || prefix != "insights/v2" {
		t.Errorf("unexpected split %q %q", bucket, prefix)
	}
	if got := objectName(prefix, "abc"); got != "insights/v2/abc.json" {
		t.Errorf("unexpected object name %q", got)
	}
	if got := objectName("", "abc.json"); got != "abc.json" {
		t.Errorf("unexpected object name %q", got)
	}

	if _, _, err := ParseNodeURL("https://script.example/exec"); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReadLimited(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		wantErr bool
	}{
		{"under limit", 15, false},
		{"at limit", 16, false},
		{"over limit", 17, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := readLimited(strings.NewReader(strings.Repeat("x", tt.size)), 16)
			if tt.wantErr {
				if !errors.Is(err, ErrTooLarge) {
					t.Errorf("expected ErrTooLarge, got %v", err)
				}
				return
			}
			if err != nil || len(data) != tt.size {
				t.Errorf("readLimited = %d bytes, %v", len(data), err)
			}
		})
	}
}

func TestRouterPicksNodeByScheme(t *testing.T) {
	gw := &fakeFetcher{content: Content{"from": json.RawMessage(`"gateway"`)}}
	gcs := &fakeFetcher{content: Content{"from": json.RawMessage(`"gcs"`)}}
	r := &Router{Gateway: gw, GCS: gcs}

	r.FetchContent(context.Background(), "a", "gs://bucket")
	r.FetchContent(context.Background(), "b", "https://node.example/exec")
	r.FetchContent(context.Background(), "c", "")

	if gcs.fetches != 1 || gw.fetches != 2 {
		t.Errorf("unexpected routing: gcs=%d gateway=%d", gcs.fetches, gw.fetches)
	}

	noGCS := &Router{Gateway: gw}
	noGCS.FetchContent(context.Background(), "d", "gs://bucket")
	if gw.fetches != 3 {
		t.Error("expected gateway fallback when no GCS node is configured")
	}
}

func TestGatewayNodeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req gateway.Request
		json.NewDecoder(r.Body).Decode(&req)
		payload, _ := req.Payload.(map[string]any)
		switch payload["fileId"] {
		case "present":
			w.Write([]byte(`{"status":"success","data":"{\"summary\":\"hello\"}"}`))
		default:
			w.Write([]byte(`{"status":"error","message":"File not found"}`))
		}
	}))
	defer srv.Close()

	client := gateway.NewClient(gateway.Options{
		BaseURL: srv.URL,
		Rate:    1000,
		Retry:   &util.RetryConfig{MaxAttempts: 1, InitialWait: time.Millisecond, MaxWait: time.Millisecond},
	})
	node := NewGatewayNode(client)

	got, err := node.FetchContent(context.Background(), "present", "")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if string(got["summary"]) != `"hello"` {
		t.Errorf("unexpected content %v", got)
	}

	got, err = node.FetchContent(context.Background(), "missing", srv.URL)
	if err != nil {
		t.Fatalf("missing blob should not be an error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil content, got %v", got)
	}

	if _, err := node.FetchContent(context.Background(), " ", ""); !errors.Is(err, util.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func openCache(t *testing.T, inner Fetcher) *Cache {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	c := NewCache(s.DB(), inner)
	if err := c.EnsureSchema(); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return c
}

func TestCacheReadThrough(t *testing.T) {
	inner := &fakeFetcher{content: Content{"summary": json.RawMessage(`"cached"`)}}
	c := openCache(t, inner)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		got, err := c.FetchContent(ctx, "blob-1", "node")
		if err != nil {
			t.Fatalf("fetch #%d failed: %v", i+1, err)
		}
		if string(got["summary"]) != `"cached"` {
			t.Errorf("unexpected content %v", got)
		}
	}

	if inner.fetches != 1 {
		t.Errorf("expected one upstream fetch, got %d", inner.fetches)
	}

	entries, hits, err := c.GetStats()
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if entries != 1 || hits != 2 {
		t.Errorf("expected 1 entry with 2 hits, got %d/%d", entries, hits)
	}

	if !c.Cached(ctx, "blob-1", "node") {
		t.Error("expected blob to be cached")
	}
	if c.Cached(ctx, "blob-1", "other-node") {
		t.Error("cache key must include the node")
	}
}

func TestCacheDoesNotStoreMisses(t *testing.T) {
	inner := &fakeFetcher{}
	c := openCache(t, inner)

	for i := 0; i < 2; i++ {
		got, err := c.FetchContent(context.Background(), "gone", "")
		if err != nil || got != nil {
			t.Fatalf("expected nil, nil; got %v, %v", got, err)
		}
	}
	if inner.fetches != 2 {
		t.Errorf("expected misses to reach upstream each time, got %d", inner.fetches)
	}
}

func TestCacheDeleteEvicts(t *testing.T) {
	inner := &fakeFetcher{content: Content{"k": json.RawMessage(`1`)}}
	c := openCache(t, inner)
	ctx := context.Background()

	c.FetchContent(ctx, "b", "")
	inner.err = errors.New("remote down")

	if err := c.Delete(ctx, "b", ""); err == nil {
		t.Error("expected remote delete error to be returned")
	}
	if c.Cached(ctx, "b", "") {
		t.Error("expected local eviction even when the remote delete fails")
	}

	n, err := c.ClearOldEntries(time.Hour)
	if err != nil || n != 0 {
		t.Errorf("expected nothing to clear, got %d (%v)", n, err)
	}
}
