package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/franz/xeenaps-tracer/internal/report"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a summary report from the database and event logs",
	Long: `Generate a summary report in Markdown format.

The report includes:
- Library statistics (content, insights, bookmarks, favorites)
- Tracer projects and pending or overdue todos
- Event counts and optimistic rollbacks from the event log
- Top errors

The report is saved to artifacts/reports/<timestamp>/summary.md`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)

	// Report-specific flags
	reportCmd.Flags().String("out", "", "Output directory for report (default: artifacts/reports/<timestamp>)")
	reportCmd.Flags().String("event-log", "", "Path to event log file (optional)")
}

func runReport(cmd *cobra.Command, args []string) error {
	dbPath := viper.GetString("db")

	util.InfoLog("=== Generating Summary Report ===")
	util.InfoLog("Database: %s", dbPath)

	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	eventLogPath, _ := cmd.Flags().GetString("event-log")

	util.InfoLog("Analyzing data...")
	summaryReport, err := report.GenerateSummaryReport(cmd.Context(), db, eventLogPath)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	summaryReport.DatabasePath = dbPath

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		timestamp := time.Now().Format("20060102-150405")
		outputDir = filepath.Join("artifacts", "reports", timestamp)
	}

	outputPath := filepath.Join(outputDir, "summary.md")

	util.InfoLog("Writing report to: %s", outputPath)
	if err := report.WriteMarkdownReport(summaryReport, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report generated successfully!")
	util.InfoLog("")
	util.InfoLog("Report saved to: %s", outputPath)
	util.InfoLog("")
	util.InfoLog("Summary:")
	util.InfoLog("  Items: %d (%d with insights)", summaryReport.Items, summaryReport.WithInsights)
	util.InfoLog("  Projects: %d", summaryReport.Projects)
	if summaryReport.PendingTodos > 0 {
		util.InfoLog("  Pending todos: %d", summaryReport.PendingTodos)
	}
	if summaryReport.OverdueTodos > 0 {
		util.WarnLog("  Overdue todos: %d", summaryReport.OverdueTodos)
	}
	if summaryReport.Rollbacks > 0 {
		util.WarnLog("  Rollbacks: %d", summaryReport.Rollbacks)
	}

	return nil
}
