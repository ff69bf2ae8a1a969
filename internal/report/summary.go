package report

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/franz/xeenaps-tracer/internal/store"
)

// SummaryReport represents a complete summary report
type SummaryReport struct {
	GeneratedAt time.Time

	// Library statistics
	Items        int
	WithContent  int
	WithInsights int
	Bookmarked   int
	Favorites    int
	LastUpdated  time.Time

	// Tracer statistics
	Projects     int
	PendingTodos int
	OverdueTodos int

	// Event log statistics
	EventCounts map[EventType]int
	Rollbacks   int
	TopErrors   []ErrorSummary

	// Metadata
	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// GenerateSummaryReport creates a summary report from the database and an
// optional event log
func GenerateSummaryReport(ctx context.Context, db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		EventLogPath: eventLogPath,
		EventCounts:  make(map[EventType]int),
		TopErrors:    make([]ErrorSummary, 0),
	}

	stats, err := db.GetLibraryStats(ctx)
	if err != nil {
		return nil, err
	}
	report.Items = stats.Items
	report.WithContent = stats.WithContent
	report.WithInsights = stats.WithInsights
	report.Bookmarked = stats.Bookmarked
	report.Favorites = stats.Favorites
	if t, err := time.Parse(time.RFC3339, stats.LastUpdated); err == nil {
		report.LastUpdated = t
	}

	projects, err := db.FetchProjects(ctx, store.Query{Page: 1, Limit: 1})
	if err != nil {
		return nil, err
	}
	report.Projects = projects.TotalCount

	todos, err := db.FetchPendingTodos(ctx)
	if err != nil {
		return nil, err
	}
	report.PendingTodos = len(todos)
	today := report.GeneratedAt.Format("2006-01-02")
	for _, t := range todos {
		if t.Deadline != "" && t.Deadline[:min(len(t.Deadline), 10)] < today {
			report.OverdueTodos++
		}
	}

	if eventLogPath != "" {
		if err := report.readEvents(eventLogPath, 10); err != nil {
			return nil, err
		}
	}

	return report, nil
}

// readEvents tallies an event log. Lines that do not decode are skipped.
func (r *SummaryReport) readEvents(path string, limit int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	errorCounts := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		r.EventCounts[ev.Event]++
		if ev.Event == EventToggle && ev.Extra["rolled_back"] == "true" {
			r.Rollbacks++
		}
		if ev.Error != "" {
			errorCounts[ev.Error]++
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read event log: %w", err)
	}

	errors := make([]ErrorSummary, 0, len(errorCounts))
	for msg, count := range errorCounts {
		errors = append(errors, ErrorSummary{Error: msg, Count: count})
	}
	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})
	if len(errors) > limit {
		errors = errors[:limit]
	}
	r.TopErrors = errors
	return nil
}

// Markdown renders the summary report
func (r *SummaryReport) Markdown() string {
	var md strings.Builder

	md.WriteString("# Xeenaps Tracer - Summary Report\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", r.GeneratedAt.Format("2006-01-02 15:04:05")))
	if r.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", r.DatabasePath))
	}
	if r.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", r.EventLogPath))
	}
	md.WriteString("---\n\n")

	md.WriteString("## Library\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Items | %s |\n", humanize.Comma(int64(r.Items))))
	md.WriteString(fmt.Sprintf("| With Extracted Content | %s |\n", humanize.Comma(int64(r.WithContent))))
	md.WriteString(fmt.Sprintf("| With Stored Insights | %s |\n", humanize.Comma(int64(r.WithInsights))))
	md.WriteString(fmt.Sprintf("| Bookmarked | %d |\n", r.Bookmarked))
	md.WriteString(fmt.Sprintf("| Favorites | %d |\n", r.Favorites))
	if !r.LastUpdated.IsZero() {
		md.WriteString(fmt.Sprintf("| Last Updated | %s |\n", humanize.RelTime(r.LastUpdated, r.GeneratedAt, "ago", "from now")))
	}
	md.WriteString("\n")

	md.WriteString("## Tracer\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Projects | %d |\n", r.Projects))
	md.WriteString(fmt.Sprintf("| Pending Todos | %d |\n", r.PendingTodos))
	if r.OverdueTodos > 0 {
		md.WriteString(fmt.Sprintf("| Overdue Todos | %d |\n", r.OverdueTodos))
	}
	md.WriteString("\n")

	if len(r.EventCounts) > 0 {
		md.WriteString("## Activity\n\n")
		md.WriteString("| Event | Count |\n")
		md.WriteString("|-------|-------|\n")
		types := make([]string, 0, len(r.EventCounts))
		for t := range r.EventCounts {
			types = append(types, string(t))
		}
		sort.Strings(types)
		for _, t := range types {
			md.WriteString(fmt.Sprintf("| %s | %d |\n", t, r.EventCounts[EventType(t)]))
		}
		if r.Rollbacks > 0 {
			md.WriteString(fmt.Sprintf("| toggle rollbacks | %d |\n", r.Rollbacks))
		}
		md.WriteString("\n")
	}

	if len(r.TopErrors) > 0 {
		md.WriteString("## Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, e := range r.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", e.Count, truncate(e.Error, 120)))
		}
		md.WriteString("\n")
	}

	return md.String()
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := os.WriteFile(outputPath, []byte(report.Markdown()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// truncate shortens s to maxLen runes, keeping the start
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
