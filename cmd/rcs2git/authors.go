package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rohankatakam/rcs2git/internal/config"
)

var flagMissingOnly bool

var authorsCmd = &cobra.Command{
	Use:   "authors <rcs-root>",
	Short: "List the RCS logins of a tree as an author map",
	Long: `Authors prints every login found in the RCS tree as an author map entry.
Edit the output and pass it back with --authors.

Examples:
  rcs2git authors ./src > authors.yaml
  rcs2git authors ./src --authors authors.yaml --missing`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthors,
}

func init() {
	authorsCmd.Flags().StringVar(&flagAuthors, "authors", "", "existing author map to merge")
	authorsCmd.Flags().BoolVar(&flagMissingOnly, "missing", false, "only list logins without an entry")
}

func runAuthors(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("authors") {
		cfg.Authors.File = flagAuthors
	}
	cfg.Cache.Enabled = false
	cfg.Storage.PlanDB = ""

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p, err := openPipeline(args[0])
	if err != nil {
		return err
	}
	defer p.Close()

	histories, err := p.source.Histories(ctx)
	if err != nil {
		return err
	}
	seen := make(map[string]bool)
	for _, h := range histories {
		for _, r := range h.Records {
			seen[r.Author] = true
		}
	}
	logins := make([]string, 0, len(seen))
	for l := range seen {
		logins = append(logins, l)
	}
	sort.Strings(logins)
	if flagMissingOnly {
		logins = p.authors.Missing(logins)
	}

	return writeAuthors(os.Stdout, logins, p.authors)
}

func writeAuthors(w io.Writer, logins []string, authors *config.Authors) error {
	if len(logins) == 0 {
		_, err := fmt.Fprintln(w, "# no logins to map")
		return err
	}
	return config.WriteAuthorsTemplate(w, logins, authors)
}
