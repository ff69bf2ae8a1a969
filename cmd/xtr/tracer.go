package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/franz/xeenaps-tracer/internal/aiproxy"
	"github.com/franz/xeenaps-tracer/internal/store"
	"github.com/franz/xeenaps-tracer/internal/tracer"
	"github.com/franz/xeenaps-tracer/internal/util"
	"github.com/spf13/cobra"
)

var tracerCmd = &cobra.Command{
	Use:   "tracer",
	Short: "Manage research projects and their records",
	Long: `Manage research projects: journal logs, linked references with their
saved quotes, todos and the finance ledger.`,
}

var tracerProjectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runTracerProjects,
}

var tracerCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a project",
	Args:  cobra.NoArgs,
	RunE:  runTracerCreate,
}

var tracerDeleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a project and everything it owns",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracerDelete,
}

var tracerLinkCmd = &cobra.Command{
	Use:   "link <project-id> <item-id>",
	Short: "Link a library item into a project as a reference",
	Args:  cobra.ExactArgs(2),
	RunE:  runTracerLink,
}

var tracerUnlinkCmd = &cobra.Command{
	Use:   "unlink <reference-id>",
	Short: "Remove a reference and its saved quotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracerUnlink,
}

var tracerRefsCmd = &cobra.Command{
	Use:   "refs <project-id>",
	Short: "List the references of a project with their quotes",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracerRefs,
}

var tracerLogCmd = &cobra.Command{
	Use:   "log <project-id>",
	Short: "Add a journal entry to a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracerLog,
}

var tracerTodoCmd = &cobra.Command{
	Use:   "todo <project-id>",
	Short: "Add a todo to a project",
	Args:  cobra.ExactArgs(1),
	RunE:  runTracerTodo,
}

var tracerTodosCmd = &cobra.Command{
	Use:   "todos [project-id]",
	Short: "List todos of a project, or pending todos of all projects",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTracerTodos,
}

var tracerRefineCmd = &cobra.Command{
	Use:   "refine <project-id> <field> <value>",
	Short: "Rewrite or expand a project field with AI",
	Args:  cobra.ExactArgs(3),
	RunE:  runTracerRefine,
}

var tracerTranslateCmd = &cobra.Command{
	Use:   "translate <lang> <text>",
	Short: "Translate a piece of project text",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runTracerTranslate,
}

func init() {
	rootCmd.AddCommand(tracerCmd)
	tracerCmd.AddCommand(tracerProjectsCmd, tracerCreateCmd, tracerDeleteCmd, tracerLinkCmd,
		tracerUnlinkCmd, tracerRefsCmd, tracerLogCmd, tracerTodoCmd, tracerTodosCmd,
		tracerRefineCmd, tracerTranslateCmd)

	tracerProjectsCmd.Flags().String("search", "", "filter by title, label or topic")
	tracerProjectsCmd.Flags().Int("page", 1, "page number")
	tracerProjectsCmd.Flags().Int("limit", 25, "projects per page")

	tracerCreateCmd.Flags().String("title", "", "project title")
	tracerCreateCmd.Flags().String("label", "", "short label, used when there is no title")
	tracerCreateCmd.Flags().String("topic", "", "research topic")
	tracerCreateCmd.Flags().String("status", "draft", "draft, active, paused or done")
	tracerCreateCmd.Flags().StringSlice("author", nil, "project author (repeatable)")

	tracerDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	tracerLogCmd.Flags().String("title", "", "entry title")
	tracerLogCmd.Flags().String("date", "", "entry date (YYYY-MM-DD)")
	tracerLogCmd.Flags().String("description", "", "entry body")
	tracerLogCmd.Flags().StringSlice("attach", nil, "attachment URL (repeatable)")

	tracerTodoCmd.Flags().String("title", "", "todo title")
	tracerTodoCmd.Flags().String("description", "", "todo details")
	tracerTodoCmd.Flags().String("deadline", "", "deadline (YYYY-MM-DD)")

	tracerRefineCmd.Flags().String("mode", string(aiproxy.RefineRewrite), "REWRITE or EXPAND")
}

func runTracerProjects(cmd *cobra.Command, args []string) error {
	search, _ := cmd.Flags().GetString("search")
	page, _ := cmd.Flags().GetInt("page")
	limit, _ := cmd.Flags().GetInt("limit")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		res, err := a.tracer.FetchProjects(ctx, store.Query{Page: page, Limit: limit, Search: search})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, p := range res.Items {
			fmt.Fprintf(out, "%-36s  %-7s  %s\n", p.ID, p.Status, p.DisplayTitle("Untitled project"))
		}
		util.InfoLog("%d of %d projects", len(res.Items), res.TotalCount)
		return nil
	})
}

func runTracerCreate(cmd *cobra.Command, args []string) error {
	var p store.Project
	p.Title, _ = cmd.Flags().GetString("title")
	p.Label, _ = cmd.Flags().GetString("label")
	p.Topic, _ = cmd.Flags().GetString("topic")
	p.Status, _ = cmd.Flags().GetString("status")
	p.Authors, _ = cmd.Flags().GetStringSlice("author")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if err := a.tracer.SaveProject(ctx, &p); err != nil {
			return err
		}
		util.SuccessLog("Created project %s", p.ID)
		fmt.Fprintln(cmd.OutOrStdout(), p.ID)
		return nil
	})
}

func runTracerDelete(cmd *cobra.Command, args []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	confirm := &promptConfirmer{in: cmd.InOrStdin(), out: cmd.ErrOrStderr(), assumeYes: yes}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		p, err := a.tracer.GetProject(ctx, args[0])
		if err != nil {
			return err
		}
		ok, err := confirm.Confirm(ctx, fmt.Sprintf("Delete project %q and all its records?", p.DisplayTitle(p.ID)))
		if err != nil || !ok {
			if err == nil {
				util.InfoLog("Cancelled")
			}
			return err
		}
		return a.tracer.DeleteProject(ctx, p.ID)
	})
}

func runTracerLink(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		it, err := a.db.GetItem(ctx, args[1])
		if err != nil {
			return err
		}
		if it == nil {
			return fmt.Errorf("item %s: %w", args[1], util.ErrNotFound)
		}
		ref, err := a.tracer.LinkReference(ctx, args[0], it.ID)
		if err != nil {
			return err
		}
		util.SuccessLog("Linked %q as reference %s", it.Title, ref.ID)
		return nil
	})
}

func runTracerUnlink(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		return a.tracer.UnlinkReference(ctx, args[0])
	})
}

func runTracerRefs(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		refs, err := a.tracer.FetchReferences(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		width := util.WrapWidth()
		for _, r := range refs {
			title := r.CollectionID
			if it, err := a.db.GetItem(ctx, r.CollectionID); err == nil && it != nil {
				title = it.Title
			}
			fmt.Fprintf(out, "%s  %s (%d quotes)\n", r.ID, title, len(r.Quotes))
			for _, q := range r.Quotes {
				fmt.Fprintf(out, "    (%s) %s\n", q.Lang, truncate(q.EnhancedText, width-10))
			}
		}
		return nil
	})
}

func runTracerLog(cmd *cobra.Command, args []string) error {
	l := store.Log{ProjectID: args[0]}
	l.Title, _ = cmd.Flags().GetString("title")
	l.Date, _ = cmd.Flags().GetString("date")
	var content store.LogContent
	content.Description, _ = cmd.Flags().GetString("description")
	urls, _ := cmd.Flags().GetStringSlice("attach")
	for _, u := range urls {
		content.Attachments = append(content.Attachments, store.Attachment{URL: u, Type: "LINK"})
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.tracer.GetProject(ctx, l.ProjectID); err != nil {
			return err
		}
		if err := a.tracer.SaveLog(ctx, &l, content); err != nil {
			return err
		}
		util.SuccessLog("Saved log %s", l.ID)
		return nil
	})
}

func runTracerTodo(cmd *cobra.Command, args []string) error {
	t := store.Todo{ProjectID: args[0]}
	t.Title, _ = cmd.Flags().GetString("title")
	t.Description, _ = cmd.Flags().GetString("description")
	t.Deadline, _ = cmd.Flags().GetString("deadline")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.tracer.GetProject(ctx, t.ProjectID); err != nil {
			return err
		}
		if err := a.tracer.SaveTodo(ctx, &t); err != nil {
			return err
		}
		util.SuccessLog("Saved todo %s", t.ID)
		return nil
	})
}

func runTracerTodos(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		var (
			todos []store.Todo
			err   error
		)
		if len(args) == 1 {
			todos, err = a.tracer.FetchTodos(ctx, args[0])
		} else {
			todos, err = a.tracer.PendingTodos(ctx)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range todos {
			mark := " "
			if t.IsDone {
				mark = "x"
			}
			deadline := t.Deadline
			if deadline == "" {
				deadline = "-"
			}
			fmt.Fprintf(out, "[%s] %-10s  %s  (%s)\n", mark, deadline, t.Title, t.ID)
		}
		return nil
	})
}

func runTracerRefine(cmd *cobra.Command, args []string) error {
	mode, _ := cmd.Flags().GetString("mode")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		text, err := a.tracer.RefineField(ctx, args[0], args[1], args[2], aiproxy.RefineMode(strings.ToUpper(mode)))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	})
}

func runTracerTranslate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		text, err := a.tracer.TranslateField(ctx, strings.Join(args[1:], " "), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	})
}

var financeCmd = &cobra.Command{
	Use:   "finance",
	Short: "Manage a project's finance ledger",
}

var financeListCmd = &cobra.Command{
	Use:   "list <project-id>",
	Short: "Print the ledger with running balance",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinanceList,
}

var financeAddCmd = &cobra.Command{
	Use:   "add <project-id>",
	Short: "Add a ledger entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinanceAdd,
}

var financeExportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Render the ledger as a PDF report",
	Args:  cobra.ExactArgs(1),
	RunE:  runFinanceExport,
}

func init() {
	tracerCmd.AddCommand(financeCmd)
	financeCmd.AddCommand(financeListCmd, financeAddCmd, financeExportCmd)

	financeListCmd.Flags().String("start", "", "first date (YYYY-MM-DD)")
	financeListCmd.Flags().String("end", "", "last date (YYYY-MM-DD)")
	financeListCmd.Flags().String("search", "", "filter by description")

	financeAddCmd.Flags().String("date", "", "entry date (YYYY-MM-DD)")
	financeAddCmd.Flags().String("description", "", "what the money was for")
	financeAddCmd.Flags().Float64("credit", 0, "amount received")
	financeAddCmd.Flags().Float64("debit", 0, "amount spent")
	financeAddCmd.Flags().StringSlice("attach", nil, "receipt URL (repeatable)")

	financeExportCmd.Flags().String("currency", "IDR", "currency code printed on the report")
	financeExportCmd.Flags().String("out", ".", "directory to write the PDF to")
}

func runFinanceList(cmd *cobra.Command, args []string) error {
	var f store.FinanceFilter
	f.StartDate, _ = cmd.Flags().GetString("start")
	f.EndDate, _ = cmd.Flags().GetString("end")
	f.Search, _ = cmd.Flags().GetString("search")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		items, err := a.tracer.FetchFinance(ctx, args[0], f)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, t := range tracer.BuildLedger(items) {
			fmt.Fprintf(out, "%-10s  %12s  %12s  %14s  %s\n",
				t.Date, money(t.Credit), money(t.Debit), humanize.CommafWithDigits(t.Balance, 2), t.Description)
		}
		return nil
	})
}

func money(v float64) string {
	if v == 0 {
		return "-"
	}
	return humanize.CommafWithDigits(v, 2)
}

func runFinanceAdd(cmd *cobra.Command, args []string) error {
	f := store.FinanceItem{ProjectID: args[0]}
	f.Date, _ = cmd.Flags().GetString("date")
	f.Description, _ = cmd.Flags().GetString("description")
	f.Credit, _ = cmd.Flags().GetFloat64("credit")
	f.Debit, _ = cmd.Flags().GetFloat64("debit")
	var content store.FinanceContent
	urls, _ := cmd.Flags().GetStringSlice("attach")
	for _, u := range urls {
		content.Attachments = append(content.Attachments, store.Attachment{URL: u, Type: "LINK"})
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if _, err := a.tracer.GetProject(ctx, f.ProjectID); err != nil {
			return err
		}
		if err := a.tracer.SaveFinance(ctx, &f, content); err != nil {
			return err
		}
		util.SuccessLog("Saved finance entry %s", f.ID)
		return nil
	})
}

func runFinanceExport(cmd *cobra.Command, args []string) error {
	currency, _ := cmd.Flags().GetString("currency")
	outDir, _ := cmd.Flags().GetString("out")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		util.InfoLog("Rendering finance report...")
		exp, err := a.tracer.ExportFinance(ctx, args[0], currency)
		if err != nil {
			return err
		}
		path, err := exp.WriteFile(outDir)
		if err != nil {
			return err
		}
		util.SuccessLog("Report saved to %s (%s)", path, humanize.Bytes(uint64(len(exp.PDF))))
		return nil
	})
}
