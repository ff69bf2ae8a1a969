package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/franz/xeenaps-tracer/internal/quote"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <item-id>",
	Short: "Extract quotes from an item and anchor them to a tracer reference",
	Long: `Extract quotes matching a context query from an item's content.

Every quote found is selected. Use --select to keep only some rows
(1-based), --translate to translate rows before saving (2=id,3=fr), and
--ref to save the selection into a tracer reference. Without --ref the
quotes are only printed.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().String("query", "", "context query (required)")
	quoteCmd.Flags().String("ref", "", "tracer reference to save selected quotes into")
	quoteCmd.Flags().IntSlice("select", nil, "rows to keep (default all)")
	quoteCmd.Flags().StringSlice("translate", nil, "row=lang translations")
	quoteCmd.Flags().Int("copy", 0, "print only the text of this row, for the clipboard")
	quoteCmd.Flags().Bool("verbatim", false, "with --copy, print the original quote instead of the enhanced one")
	quoteCmd.MarkFlagRequired("query")
}

func runQuote(cmd *cobra.Command, args []string) error {
	query, _ := cmd.Flags().GetString("query")
	refID, _ := cmd.Flags().GetString("ref")
	keep, _ := cmd.Flags().GetIntSlice("select")
	translations, _ := cmd.Flags().GetStringSlice("translate")
	copyRow, _ := cmd.Flags().GetInt("copy")
	verbatim, _ := cmd.Flags().GetBool("verbatim")

	plan, err := parseTranslations(translations)
	if err != nil {
		return err
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		it, err := a.db.GetItem(ctx, args[0])
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("item %s: %w", args[0], util.ErrNotFound)
		}
		if !it.HasContent() {
			return fmt.Errorf("item %s has no extracted content: %w", it.ID, util.ErrNoContent)
		}

		opts := quote.Options{Extractor: a.ai, Translator: a.ai}
		if refID != "" {
			opts.Persist = a.tracer.QuotePersister(refID)
		}
		w := quote.New(*it, opts)
		defer w.Close()

		w.SetQuery(query)
		util.InfoLog("Tracing quotes in %q...", it.Title)
		n, err := w.Start(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		if len(keep) > 0 {
			if err := applySelection(w, keep, n); err != nil {
				return err
			}
		}
		if err := translateRows(ctx, w, plan); err != nil {
			return err
		}

		if copyRow > 0 {
			text, err := w.Copy(copyRow-1, verbatim)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
		} else {
			printRows(cmd, w.Rows())
		}

		if refID == "" {
			return nil
		}
		saved, err := w.Save(ctx)
		if err != nil {
			return err
		}
		if saved == 0 {
			util.WarnLog("No quotes selected, nothing saved")
		}
		return nil
	})
}

// parseTranslations turns ["2=id"] into {1: "id"} (0-based rows).
func parseTranslations(specs []string) (map[int]string, error) {
	plan := make(map[int]string, len(specs))
	for _, s := range specs {
		row, lang, ok := strings.Cut(s, "=")
		n, err := strconv.Atoi(strings.TrimSpace(row))
		if !ok || err != nil || n < 1 {
			return nil, fmt.Errorf("invalid translation %q (want row=lang): %w", s, util.ErrInvalidInput)
		}
		plan[n-1] = strings.TrimSpace(lang)
	}
	return plan, nil
}

// applySelection deselects every row not listed in keep (1-based).
func applySelection(w *quote.Workflow, keep []int, n int) error {
	wanted := make(map[int]bool, len(keep))
	for _, k := range keep {
		if k < 1 || k > n {
			return fmt.Errorf("row %d out of range 1-%d: %w", k, n, util.ErrInvalidInput)
		}
		wanted[k-1] = true
	}
	for i := 0; i < n; i++ {
		if !wanted[i] {
			if err := w.Toggle(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// translateRows runs the requested translations. Rows translate
// independently, so they run side by side.
func translateRows(ctx context.Context, w *quote.Workflow, plan map[int]string) error {
	if len(plan) == 0 {
		return nil
	}
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(4)
	for row, lang := range plan {
		p.Go(func(ctx context.Context) error {
			if _, err := w.Translate(ctx, row, lang); err != nil {
				return fmt.Errorf("row %d: %w", row+1, err)
			}
			return nil
		})
	}
	return p.Wait()
}

func printRows(cmd *cobra.Command, rows []quote.Row) {
	out := cmd.OutOrStdout()
	width := util.WrapWidth()
	for i, r := range rows {
		mark := " "
		if r.Selected {
			mark = "x"
		}
		fmt.Fprintf(out, "[%s] %d. (%s) %s\n", mark, i+1, r.Lang, truncate(r.EnhancedText, width))
		fmt.Fprintf(out, "       \"%s\"\n", truncate(r.OriginalText, width-8))
	}
}
