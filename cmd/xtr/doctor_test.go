package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
)

func TestCheckSQLite(t *testing.T) {
	result := checkSQLite()

	if result.error {
		t.Errorf("SQLite check failed: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected version information in message")
	}
}

func TestCheckDatabase_NonExistent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nonexistent.db")

	result := checkDatabase(dbPath)

	// Should not error - database will be created on first run
	if result.error {
		t.Errorf("non-existent database check should not error: %s", result.message)
	}

	if result.message == "" {
		t.Error("expected message about database creation")
	}
}

func TestCheckDatabase_Existing(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	it := &library.Item{ID: "item-1", Title: "Coral Bleaching"}
	if err := db.UpsertItem(context.Background(), it); err != nil {
		t.Fatalf("failed to insert test item: %v", err)
	}
	db.Close()

	result := checkDatabase(dbPath)

	if result.error {
		t.Errorf("database check failed: %s", result.message)
	}
	if !strings.Contains(result.message, "1 items") {
		t.Errorf("expected item count in message, got %q", result.message)
	}
}

func TestCheckDatabase_Empty(t *testing.T) {
	result := checkDatabase("")

	if !result.warning {
		t.Error("expected warning for empty database path")
	}
}

func TestCheckDatabase_Directory(t *testing.T) {
	result := checkDatabase(t.TempDir())

	if !result.error {
		t.Error("expected error when database path is a directory")
	}
}

func TestCheckGateway(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"success","data":"pong"}`))
	}))
	defer srv.Close()

	down := httptest.NewServer(http.NotFoundHandler())
	downURL := down.URL
	down.Close()

	noRetry := &util.RetryConfig{MaxAttempts: 1}

	tests := []struct {
		name        string
		url         string
		wantError   bool
		wantWarning bool
	}{
		{name: "not configured", url: "", wantWarning: true},
		{name: "reachable", url: srv.URL},
		{name: "unreachable", url: downURL, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := gateway.NewClient(gateway.Options{BaseURL: tt.url, Retry: noRetry})
			result := checkGateway(context.Background(), gw)

			if result.error != tt.wantError {
				t.Errorf("error = %v, want %v (%s)", result.error, tt.wantError, result.message)
			}
			if result.warning != tt.wantWarning {
				t.Errorf("warning = %v, want %v (%s)", result.warning, tt.wantWarning, result.message)
			}
		})
	}
}

func TestCheckAI_NoGateway(t *testing.T) {
	result := checkAI(gateway.NewClient(gateway.Options{}))

	// AI is optional, a missing provider only warns
	if result.error || !result.warning {
		t.Errorf("expected warning without a provider, got %+v", result)
	}
}

func TestCheckEventDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "events")

	result := checkEventDir(dir)

	if result.error {
		t.Errorf("event dir check failed: %s", result.message)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		t.Error("expected directory to be created")
	}
}

func TestCheckEventDir_File(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(filePath, []byte("test"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	result := checkEventDir(filePath)

	if !result.error {
		t.Error("expected error when path is a file, not a directory")
	}
}
