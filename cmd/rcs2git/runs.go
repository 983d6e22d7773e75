package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/rcs2git/internal/errors"
	"github.com/rohankatakam/rcs2git/internal/storage"
)

var (
	flagRunsDB    string
	flagRunsLimit int
	flagRunsFile  string
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List conversion runs recorded in a plan database",
	Long: `Runs lists the plans recorded with --db, newest first.

Examples:
  rcs2git runs --db plan.db
  rcs2git runs show 1b4e28ba-2fa1-11d2-883f-0016d3cca427 --db plan.db`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRunStore()
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(cmd.Context(), flagRunsLimit)
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		printRuns(os.Stdout, runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show the commits, tags and conflicts of a recorded run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openRunStore()
		if err != nil {
			return err
		}
		defer store.Close()
		return printRun(cmd.Context(), os.Stdout, store, args[0], flagRunsFile)
	},
}

func init() {
	runsCmd.PersistentFlags().StringVar(&flagRunsDB, "db", "", "plan database (default: storage.plan_db from the config)")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "number of runs to list")
	runsShowCmd.Flags().StringVar(&flagRunsFile, "file", "", "also list the revisions of this file")
	runsCmd.AddCommand(runsShowCmd)
}

func openRunStore() (storage.Store, error) {
	path := flagRunsDB
	if path == "" {
		path = cfg.Storage.PlanDB
	}
	if path == "" {
		return nil, errors.ConfigError("no plan database: pass --db or set storage.plan_db")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot read plan database: %w", err)
	}
	return storage.NewSQLiteStore(path, logger.Logger)
}

func printRuns(w io.Writer, runs []*storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s %s  %5d commits  %s\n",
			r.ID, r.Status, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Commits, r.Root)
		if r.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", r.Error)
		}
	}
}

func printRun(ctx context.Context, w io.Writer, store storage.Store, id, file string) error {
	run, err := store.GetRun(ctx, id)
	if stderrors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Run %s (%s)\n", run.ID, run.Status)
	fmt.Fprintf(w, "  Root:     %s\n", run.Root)
	fmt.Fprintf(w, "  Started:  %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.FinishedAt.Valid {
		fmt.Fprintf(w, "  Finished: %s\n", run.FinishedAt.Time.Local().Format("2006-01-02 15:04:05"))
	}
	if run.Error != "" {
		fmt.Fprintf(w, "  Error:    %s\n", run.Error)
	}
	fmt.Fprintf(w, "  %d files, %d revisions, %d commits, %d branches, %d tags\n",
		run.Files, run.Revisions, run.Commits, run.Branches, run.Tags)

	commits, err := store.GetCommits(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read commits: %w", err)
	}
	fmt.Fprintf(w, "\nCommits:\n")
	for _, c := range commits {
		parent := "-"
		if c.ParentSeq.Valid {
			parent = fmt.Sprint(c.ParentSeq.Int64)
		}
		fmt.Fprintf(w, "  %5d  parent %-5s %-16s %s  %-10s %3d files  %s\n",
			c.Seq, parent, c.Branch, c.CommittedAt.UTC().Format("2006-01-02 15:04:05"),
			c.Author, c.FileCount, firstLine(c.Message))
	}

	tags, err := store.GetTags(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read tags: %w", err)
	}
	if len(tags) > 0 {
		fmt.Fprintf(w, "\nTags:\n")
		for _, t := range tags {
			fmt.Fprintf(w, "  %-24s commit %d\n", t.Name, t.CommitSeq)
		}
	}

	conflicts, err := store.GetConflicts(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to read conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		fmt.Fprintf(w, "\nReconciliation conflicts (%d):\n", len(conflicts))
		for _, c := range conflicts {
			fmt.Fprintf(w, "  [%s] %s: %s\n", c.Kind, c.Subject, c.Detail)
			fmt.Fprintf(w, "      resolved: %s\n", c.Resolution)
		}
	}

	if file != "" {
		revs, err := store.GetRevisions(ctx, id, file)
		if err != nil {
			return fmt.Errorf("failed to read revisions: %w", err)
		}
		fmt.Fprintf(w, "\nRevisions of %s:\n", file)
		for _, r := range revs {
			fmt.Fprintf(w, "  %-12s commit %-5d %s\n", r.Revision, r.CommitSeq, r.State)
		}
	}
	return nil
}
