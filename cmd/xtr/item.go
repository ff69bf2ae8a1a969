package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/detail"
	"github.com/franz/xeenaps-tracer/internal/itemsync"
	"github.com/franz/xeenaps-tracer/internal/library"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
)

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Browse and update library items",
}

var itemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List library items",
	Args:  cobra.NoArgs,
	RunE:  runItemList,
}

var itemShowCmd = &cobra.Command{
	Use:   "show <item-id>",
	Short: "Show the detail view of an item",
	Long: `Show the detail view of an item.

Stored insights are hydrated from the blob store before rendering. Pass the
navigation state the item was opened from with --from to print where the
back action leads.`,
	Args: cobra.ExactArgs(1),
	RunE: runItemShow,
}

var itemBookmarkCmd = &cobra.Command{
	Use:   "bookmark <item-id>",
	Short: "Toggle the bookmark flag of an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemToggle(itemsync.FlagBookmarked),
}

var itemFavoriteCmd = &cobra.Command{
	Use:   "favorite <item-id>",
	Short: "Toggle the favorite flag of an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemToggle(itemsync.FlagFavorite),
}

var itemInsightsCmd = &cobra.Command{
	Use:   "insights <item-id>",
	Short: "Generate AI insights for an item",
	Long: `Generate AI insights for an item from its extracted content.

Generated insights are shown but not written back unless --save is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runItemInsights,
}

var itemTranslateCmd = &cobra.Command{
	Use:   "translate <item-id> <section> <lang>",
	Short: "Translate one insight section",
	Long: `Translate one insight section of an item and save it.

Sections: ` + strings.Join(library.InsightSections, ", ") + `
Languages are ISO codes such as en, id, fr.`,
	Args: cobra.ExactArgs(3),
	RunE: runItemTranslate,
}

var itemCiteCmd = &cobra.Command{
	Use:   "cite <item-id>",
	Short: "Generate a citation for an item",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemCite,
}

var itemDeleteCmd = &cobra.Command{
	Use:   "delete <item-id>",
	Short: "Delete an item after confirmation",
	Args:  cobra.ExactArgs(1),
	RunE:  runItemDelete,
}

func init() {
	rootCmd.AddCommand(itemCmd)
	itemCmd.AddCommand(itemListCmd, itemShowCmd, itemBookmarkCmd, itemFavoriteCmd,
		itemInsightsCmd, itemTranslateCmd, itemCiteCmd, itemDeleteCmd)

	itemListCmd.Flags().String("search", "", "filter by title, authors or topic")
	itemListCmd.Flags().Int("page", 1, "page number")
	itemListCmd.Flags().Int("limit", 25, "items per page")
	itemListCmd.Flags().String("sort", "updatedAt", "sort field")
	itemListCmd.Flags().String("dir", "desc", "sort direction (asc or desc)")

	itemShowCmd.Flags().String("from", "", "navigation state as JSON")
	itemShowCmd.Flags().String("view", "", "open a sub-view (presentations, questions, consultations, notebook)")

	itemInsightsCmd.Flags().Bool("save", false, "write generated insights back")

	itemCiteCmd.Flags().String("style", aiproxy.CitationStyles[0], "citation style")
	itemCiteCmd.Flags().String("lang", aiproxy.CitationLanguages[0], "citation language")

	itemDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
}

// withApp opens the application for the duration of fn.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// openView loads an item and wraps it in a hydrated detail view.
func openView(ctx context.Context, a *app, id string, opts detail.Options) (*detail.View, error) {
	it, err := a.db.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return nil, fmt.Errorf("item %s: %w", id, util.ErrNotFound)
	}

	sopts := itemsync.Options{
		Store:  a.db,
		Blobs:  a.blobs,
		Events: a.events,
	}
	if a.ai != nil {
		sopts.AI = a.ai
	}
	if opts.Citer == nil && a.ai != nil {
		opts.Citer = a.ai
	}

	v := detail.NewView(itemsync.New(*it, sopts), opts)
	if err := v.Mount(ctx); err != nil {
		util.WarnLog("Could not load stored insights: %v", err)
	}
	return v, nil
}

func runItemList(cmd *cobra.Command, args []string) error {
	search, _ := cmd.Flags().GetString("search")
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")
	sortField, _ := cmd.Flags().GetString("sort")
	sortDir, _ := cmd.Flags().GetString("dir")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.db.FetchItems(ctx, store.Query{
			Page:      page,
			Limit:     limit,
			Search:    search,
			SortField: sortField,
			SortDir:   sortDir,
		})
		if err != nil {
			return err
		}

		width := util.WrapWidth() - 40
		out := cmd.OutOrStdout()
		for _, it := range res.Items {
			flags := ""
			if it.IsBookmarked {
				flags += "B"
			}
			if it.IsFavorite {
				flags += "F"
			}
			fmt.Fprintf(out, "%-36s  %-2s  %s\n", it.ID, flags, truncate(it.Title, width))
		}
		util.InfoLog("%d of %d items", len(res.Items), res.TotalCount)
		return nil
	})
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n < 10 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func runItemShow(cmd *cobra.Command, args []string) error {
	var nav detail.NavContext
	if from, _ := cmd.Flags().GetString("from"); from != "" {
		if err := json.Unmarshal([]byte(from), &nav); err != nil {
			return fmt.Errorf("invalid --from state: %w: %v", util.ErrInvalidInput, err)
		}
	}

	sub := detail.ViewNone
	if name, _ := cmd.Flags().GetString("view"); name != "" {
		var ok bool
		if sub, ok = detail.ParseView(name); !ok {
			return fmt.Errorf("unknown view %q: %w", name, util.ErrInvalidInput)
		}
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		v, err := openView(ctx, a, args[0], detail.Options{Nav: nav})
		if err != nil {
			return err
		}
		if err := v.Open(sub); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if v.Active() != detail.ViewNone {
			fmt.Fprintf(out, "== %s ==\n", v.Active())
		}
		if err := v.Render(out); err != nil {
			return err
		}
		if link := v.ViewLink(); link != "" {
			fmt.Fprintf(out, "\nOpen: %s\n", link)
		}
		fmt.Fprintf(out, "\nTips: %s\n", v.Tips())

		back := v.Back()
		if back.Close {
			util.DebugLog("Back closes the view")
		} else {
			util.InfoLog("Back: %s", back.Path)
		}
		return nil
	})
}

func runItemToggle(f itemsync.Flag) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			v, err := openView(ctx, a, args[0], detail.Options{})
			if err != nil {
				return err
			}
			if f == itemsync.FlagFavorite {
				err = v.ToggleFavorite(ctx)
			} else {
				err = v.ToggleBookmark(ctx)
			}
			if err != nil {
				return err
			}
			it := v.Item()
			util.SuccessLog("%s: bookmarked=%v favorite=%v", it.ID, it.IsBookmarked, it.IsFavorite)
			return nil
		})
	}
}

func runItemInsights(cmd *cobra.Command, args []string) error {
	save, _ := cmd.Flags().GetBool("save")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		v, err := openView(ctx, a, args[0], detail.Options{})
		if err != nil {
			return err
		}
		if _, err := v.GenerateInsights(ctx); err != nil {
			return err
		}
		if save {
			if err := v.SaveInsights(ctx); err != nil {
				return err
			}
		}
		return v.Render(cmd.OutOrStdout())
	})
}

func runItemTranslate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		v, err := openView(ctx, a, args[0], detail.Options{})
		if err != nil {
			return err
		}
		if _, err := v.Translate(ctx, args[1], args[2]); err != nil {
			return err
		}
		it := v.Item()
		text, _ := it.Section(args[1])
		fmt.Fprintln(cmd.OutOrStdout(), library.HTMLToText(string(text)))
		return nil
	})
}

func runItemCite(cmd *cobra.Command, args []string) error {
	style, _ := cmd.Flags().GetString("style")
	lang, _ := cmd.Flags().GetString("lang")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.requireAI(); err != nil {
			return err
		}
		v, err := openView(ctx, a, args[0], detail.Options{})
		if err != nil {
			return err
		}
		c, err := v.Cite(ctx, style, lang)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Parenthetical: %s\n", c.Parenthetical)
		fmt.Fprintf(out, "Narrative:     %s\n", c.Narrative)
		fmt.Fprintf(out, "Bibliography:  %s\n", library.HTMLToText(c.Bibliography))
		return nil
	})
}

func runItemDelete(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	confirm := &promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: yes}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		v, err := openView(ctx, a, args[0], detail.Options{Confirmer: confirm})
		if err != nil {
			return err
		}
		deleted, err := v.Delete(ctx)
		if err != nil {
			return err
		}
		if !deleted {
			util.InfoLog("Cancelled")
		}
		return nil
	})
}

// promptConfirmer asks on the terminal. Anything but y/yes declines.
type promptConfirmer struct {
	in        io.Reader
	out       io.Writer
	assumeYes bool
}

func (p *promptConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	if p.assumeYes {
		return true, nil
	}
	if f, ok := p.in.(*os.File); ok && !util.IsTerminal(f.Fd()) {
		return false, fmt.Errorf("refusing to delete without a terminal (use --yes): %w", util.ErrInvalidInput)
	}
	fmt.Fprintf(p.out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(p.in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
