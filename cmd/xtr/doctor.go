package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/gateway"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the environment and configuration",
	Long: `Run diagnostic checks to ensure xtr can operate correctly.

This command checks:
- SQLite version compatibility
- Database accessibility and integrity
- Gateway reachability
- AI provider configuration
- Event log directory permissions

Use this command to troubleshoot issues before running xtr operations.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== XTR Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	// 1. Check SQLite
	results = append(results, checkSQLite())

	// 2. Check database file
	results = append(results, checkDatabase(viper.GetString("db")))

	// 3. Check gateway
	gw := newGateway()
	results = append(results, checkGateway(cmd.Context(), gw))

	// 4. Check AI provider
	results = append(results, checkAI(gw))

	// 5. Check event log directory
	if dir := GetConfigString("events.dir", ""); dir != "" {
		results = append(results, checkEventDir(dir))
	}

	// Print results
	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	// Summary
	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before running xtr.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! System is ready for xtr operations.")
	}

	return nil
}

// checkSQLite verifies SQLite version
func checkSQLite() checkResult {
	// modernc.org/sqlite is pure Go, there is no external library to find
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies database file accessibility
func checkDatabase(dbPath string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	items, _ := db.CountItems(context.Background())
	msg := fmt.Sprintf("%s (%s, %d items", dbPath, humanize.Bytes(uint64(info.Size())), items)
	cache := blob.NewCache(db.DB(), nil)
	if err := cache.EnsureSchema(); err == nil {
		if entries, hits, err := cache.GetStats(); err == nil && entries > 0 {
			msg += fmt.Sprintf(", %d cached blobs, %d hits", entries, hits)
		}
	}

	return checkResult{
		name:    "Database",
		message: msg + ")",
	}
}

// checkGateway pings the gateway; a missing URL only limits the tool to
// the local database.
func checkGateway(ctx context.Context, gw *gateway.Client) checkResult {
	if !gw.Configured() {
		return checkResult{
			name:    "Gateway",
			warning: true,
			message: "gateway.url not set (remote sync, AI and exports disabled)",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	start := time.Now()
	if err := gw.Ping(ctx); err != nil {
		return checkResult{
			name:    "Gateway",
			error:   true,
			message: fmt.Sprintf("%s unreachable: %v", gw.BaseURL(), err),
		}
	}

	return checkResult{
		name:    "Gateway",
		message: fmt.Sprintf("%s (%s)", gw.BaseURL(), time.Since(start).Round(time.Millisecond)),
	}
}

// checkAI verifies an AI provider can be built from configuration
func checkAI(gw *gateway.Client) checkResult {
	if _, err := newCaller(gw); err != nil {
		return checkResult{
			name:    "AI provider",
			warning: true,
			message: fmt.Sprintf("disabled: %v", err),
		}
	}

	return checkResult{
		name:    "AI provider",
		message: fmt.Sprintf("%s (model %s)", GetConfigString("ai.provider", "gateway"), GetConfigString("ai.model", aiproxy.DefaultModel)),
	}
}

// checkEventDir verifies the event log directory is writable
func checkEventDir(path string) checkResult {
	if err := os.MkdirAll(path, 0755); err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot create %s: %v", path, err),
		}
	}

	testFile := filepath.Join(path, ".xtr_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Event log directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}
