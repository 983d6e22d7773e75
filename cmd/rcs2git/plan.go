package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/rcs2git/internal/config"
	"github.com/rohankatakam/rcs2git/internal/convert"
)

var flagLimit int

var planCmd = &cobra.Command{
	Use:   "plan <rcs-root>",
	Short: "Show the history a conversion would produce",
	Long: `Plan reads and resolves the RCS tree without writing a repository. It
lists branches, commits and tags, and reports reconciliation conflicts.

Examples:
  # Preview the first 20 commits
  rcs2git plan ./src --limit 20

  # Keep the plan for later inspection with "rcs2git runs show"
  rcs2git plan ./src --db plan.db`,
	Args: cobra.ExactArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().IntVar(&flagLimit, "limit", 50, "number of commits to list (0 = all)")
	addConversionFlags(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	applyConversionFlags(cmd)
	// plan never checks out content
	cfg.Cache.Enabled = false

	result := cfg.Validate(config.ValidationContextPlan)
	for _, warn := range result.Warnings {
		logger.Warn(warn)
	}
	if err := result.Err(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := openPipeline(args[0])
	if err != nil {
		return err
	}
	defer p.Close()

	planned, err := p.orch.Plan(ctx, args[0])
	if err != nil {
		return err
	}
	printPlan(os.Stdout, planned, flagLimit)
	return nil
}

func printPlan(w io.Writer, planned *convert.Planned, limit int) {
	plan := planned.Plan

	fmt.Fprintf(w, "Branches:\n")
	for _, b := range plan.Branches {
		line := fmt.Sprintf("  %-24s %4d commits", b.Name, len(b.Commits))
		switch {
		case b.IsTrunk():
			line += "  (trunk)"
		case b.Vendor:
			line += fmt.Sprintf("  vendor branch grafted on %s", b.Parent.Name)
		case b.BranchPoint != nil:
			line += fmt.Sprintf("  from %s at commit %d", b.Parent.Name, b.BranchPoint.Order)
		}
		fmt.Fprintln(w, line)
	}

	fmt.Fprintf(w, "\nCommits:\n")
	for i, c := range plan.Commits {
		if limit > 0 && i == limit {
			fmt.Fprintf(w, "  ... %d more\n", len(plan.Commits)-limit)
			break
		}
		parent := "-"
		if c.Parent != nil {
			parent = fmt.Sprint(c.Parent.Order)
		}
		fmt.Fprintf(w, "  %5d  parent %-5s %-16s %s  %-10s %3d files  %s\n",
			c.Order, parent, c.Branch.Name, c.When.Format("2006-01-02 15:04:05"),
			c.Candidate.Author, len(c.Candidate.Records), firstLine(c.Candidate.Message))
	}

	if len(plan.Tags) > 0 {
		fmt.Fprintf(w, "\nTags:\n")
		for _, t := range plan.Tags {
			fmt.Fprintf(w, "  %-24s commit %d on %s\n", t.Name, t.Target.Order, t.Target.Branch.Name)
		}
	}

	printConflicts(w, plan.Conflicts)

	sum := planned.Summary()
	fmt.Fprintf(w, "\n%d files, %d revisions, %d commits, %d branches, %d tags\n",
		sum.Files, sum.Revisions, sum.Commits, sum.Branches, sum.Tags)
	if sum.RunID != "" {
		fmt.Fprintf(w, "Plan recorded as run %s\n", sum.RunID)
	}
}

func firstLine(msg string) string {
	if i := strings.IndexByte(msg, '\n'); i >= 0 {
		return msg[:i]
	}
	return msg
}
