package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/franz/xeenaps-tracer/internal/blob"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/schollz/progressbar/v3"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "Maintain the local library mirror",
}

var libraryImportCmd = &cobra.Command{
	Use:   "import <items.json>",
	Short: "Import library items from a JSON export",
	Long: `Import library items from a JSON array as exported by the metadata
store. Structured fields may be native objects or serialized JSON text;
records that cannot be decoded are counted and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runLibraryImport,
}

var libraryHydrateCmd = &cobra.Command{
	Use:   "hydrate",
	Short: "Prefetch stored insight bundles for every item",
	Long: `Fetch the stored insight bundle of every item that has one. Bundles are
kept in the blob cache; with --write the overlaid fields are also written
into the local item rows.`,
	Args: cobra.NoArgs,
	RunE: runLibraryHydrate,
}

var libraryStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library and blob cache statistics",
	Args:  cobra.NoArgs,
	RunE:  runLibraryStats,
}

var libraryBlobsCmd = &cobra.Command{
	Use:   "blobs <gs://bucket/prefix>",
	Short: "List content blobs on a GCS storage node",
	Args:  cobra.ExactArgs(1),
	RunE:  runLibraryBlobs,
}

var libraryClearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Drop cached blob content",
	Args:  cobra.NoArgs,
	RunE:  runLibraryClearCache,
}

func init() {
	rootCmd.AddCommand(libraryCmd)
	libraryCmd.AddCommand(libraryImportCmd, libraryHydrateCmd, libraryStatsCmd, libraryBlobsCmd, libraryClearCacheCmd)

	libraryHydrateCmd.Flags().Int("workers", 4, "concurrent fetches")
	libraryHydrateCmd.Flags().Bool("write", false, "write hydrated fields into the local rows")

	libraryBlobsCmd.Flags().Int("limit", 50, "maximum blobs to list (0 for all)")

	libraryClearCacheCmd.Flags().Duration("older-than", 0, "only drop entries older than this (e.g. 720h)")
}

func newBar(total int, desc, unit string) *progressbar.ProgressBar {
	if !util.ProgressEnabled() {
		return nil
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(unit),
		progressbar.OptionThrottle(200*time.Millisecond),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

func runLibraryImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%s is not a JSON array: %w: %v", args[0], util.ErrInvalidInput, err)
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		util.InfoLog("Importing %d records from %s", len(records), args[0])
		bar := newBar(len(records), "Importing", "items")

		imported, failed := 0, 0
		for i, raw := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			it, err := library.DecodeItem(raw)
			if err == nil && it.ID == "" {
				err = fmt.Errorf("missing id")
			}
			if err == nil {
				err = a.db.UpsertItem(ctx, &it)
			}
			if err != nil {
				failed++
				util.WarnLog("Record %d skipped: %v", i+1, err)
			} else {
				imported++
			}
			if bar != nil {
				bar.Add(1)
			}
		}
		if bar != nil {
			bar.Finish()
		}

		a.events.LogImport(args[0], imported, failed)
		util.SuccessLog("Imported %d items (%d skipped)", imported, failed)
		return nil
	})
}

func runLibraryHydrate(cmd *cobra.Command, args []string) error {
	workers, _ := cmd.Flags().GetInt("workers")
	write, _ := cmd.Flags().GetBool("write")
	if workers < 1 {
		workers = 1
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		items, err := a.db.ItemsWithStoredInsights(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			util.InfoLog("No items with stored insights")
			return nil
		}

		util.InfoLog("Hydrating %d items with %d workers", len(items), workers)
		bar := newBar(len(items), "Hydrating", "items")

		var changed, written atomic.Int64
		p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(workers)
		for _, it := range items {
			p.Go(func(ctx context.Context) error {
				defer func() {
					if bar != nil {
						bar.Add(1)
					}
				}()
				s := itemsync.New(it, itemsync.Options{Blobs: a.blobs, Events: a.events})
				ok, err := s.Hydrate(ctx)
				if err != nil || !ok {
					return err
				}
				changed.Add(1)
				if !write {
					return nil
				}
				cur := s.Current()
				if err := a.db.UpsertItem(ctx, &cur); err != nil {
					return fmt.Errorf("item %s: %w", cur.ID, err)
				}
				written.Add(1)
				return nil
			})
		}
		err = p.Wait()
		if bar != nil {
			bar.Finish()
		}
		if err != nil {
			return err
		}

		util.SuccessLog("Hydrated %d of %d items (%d written)", changed.Load(), len(items), written.Load())
		return nil
	})
}

func runLibraryStats(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		st, err := a.db.GetLibraryStats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Items:          %d\n", st.Items)
		fmt.Fprintf(out, "With content:   %d\n", st.WithContent)
		fmt.Fprintf(out, "With insights:  %d\n", st.WithInsights)
		fmt.Fprintf(out, "Bookmarked:     %d\n", st.Bookmarked)
		fmt.Fprintf(out, "Favorites:      %d\n", st.Favorites)
		if t, err := time.Parse(time.RFC3339, st.LastUpdated); err == nil {
			fmt.Fprintf(out, "Last updated:   %s\n", humanize.Time(t))
		}
		if a.cache != nil {
			if entries, hits, err := a.cache.GetStats(); err == nil {
				fmt.Fprintf(out, "Cached blobs:   %d (%s hits)\n", entries, humanize.Comma(hits))
			}
		}
		return nil
	})
}

func runLibraryBlobs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	nodeURL := args[0]

	return withApp(cmd, func(ctx context.Context, a *app) error {
		node := a.gcs
		if node == nil {
			var err error
			if node, err = blob.OpenGCSNode(ctx); err != nil {
				return err
			}
			defer node.Close()
		}
		ids, err := node.List(ctx, nodeURL, limit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, id := range ids {
			state := ""
			if a.cache != nil && a.cache.Cached(ctx, id, nodeURL) {
				state = "cached"
			}
			fmt.Fprintf(out, "%-44s  %s\n", id, state)
		}
		util.InfoLog("%d blobs", len(ids))
		return nil
	})
}

func runLibraryClearCache(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if a.cache == nil {
			return fmt.Errorf("blob cache is disabled: %w", util.ErrInvalidConfig)
		}
		if olderThan > 0 {
			n, err := a.cache.ClearOldEntries(olderThan)
			if err != nil {
				return err
			}
			util.SuccessLog("Dropped %d cache entries older than %s", n, olderThan)
			return nil
		}
		if err := a.cache.ClearCache(); err != nil {
			return err
		}
		util.SuccessLog("Blob cache cleared")
		return nil
	})
}
