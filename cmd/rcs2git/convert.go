package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/rohankatakam/rcs2git/internal/config"
	"github.com/rohankatakam/rcs2git/internal/convert"
	"github.com/rohankatakam/rcs2git/internal/emit"
	"github.com/rohankatakam/rcs2git/internal/target/fastimport"
	"github.com/rohankatakam/rcs2git/internal/target/gitrepo"
	"github.com/rohankatakam/rcs2git/internal/topology"
)

var (
	flagOutput string
	flagFormat string
)

var convertCmd = &cobra.Command{
	Use:   "convert <rcs-root>",
	Short: "Convert an RCS tree into a git repository",
	Long: `Convert reads every RCS file under the given directory and writes the
reconstructed history.

Examples:
  # Write a bare git repository
  rcs2git convert ./src -o project.git

  # Produce a stream for git fast-import
  rcs2git convert ./src --format fast-import | git fast-import`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "output repository directory or stream file (- for stdout)")
	convertCmd.Flags().StringVar(&flagFormat, "format", "", "output format: git or fast-import")
	addConversionFlags(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	applyConversionFlags(cmd)
	if cmd.Flags().Changed("output") {
		cfg.Output.Path = flagOutput
	}
	if cmd.Flags().Changed("format") {
		cfg.Output.Format = flagFormat
	}

	result := cfg.Validate(config.ValidationContextConvert)
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

	// Structural errors surface here, before any output exists.
	planned, err := p.orch.Plan(ctx, args[0])
	if err != nil {
		return err
	}

	out, err := openOutput(logger.Logger)
	if err != nil {
		return err
	}
	res, err := emitTo(ctx, p.orch, planned, out)
	if err != nil {
		return err
	}

	summary := io.Writer(os.Stdout)
	if cfg.Output.Format == config.FormatFastImport && streamsToStdout() {
		summary = os.Stderr
	}
	printSummary(summary, res)
	return nil
}

func streamsToStdout() bool {
	return cfg.Output.Path == "" || cfg.Output.Path == "-"
}

// output is an opened conversion target. finish completes it after a
// successful emission, discard removes what a failed one left behind.
type output struct {
	w       emit.Writer
	finish  func() error
	discard func()
}

func openOutput(log *logrus.Logger) (*output, error) {
	switch cfg.Output.Format {
	case config.FormatFastImport:
		if streamsToStdout() {
			w := fastimport.New(os.Stdout)
			// Without Flush the stream lacks "done" and git fast-import rejects it.
			return &output{w: w, finish: w.Flush, discard: func() {}}, nil
		}
		path := cfg.Output.Path
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
		w := fastimport.New(f)
		return &output{
			w: w,
			finish: func() error {
				err := w.Flush()
				if cerr := f.Close(); err == nil {
					err = cerr
				}
				return err
			},
			discard: func() {
				f.Close()
				removeOutput(log, path)
			},
		}, nil
	default:
		path := cfg.Output.Path
		_, statErr := os.Stat(path)
		created := os.IsNotExist(statErr)
		w, err := gitrepo.Open(path, cfg.Conversion.TrunkBranch, log)
		if err != nil {
			return nil, err
		}
		return &output{
			w:      w,
			finish: func() error { return nil },
			discard: func() {
				if created {
					removeOutput(log, path)
					return
				}
				log.WithField("path", path).Warn("Conversion failed; existing repository may hold unreferenced objects")
			},
		}, nil
	}
}

// emitTo writes the plan to out, completing it on success and discarding it
// on failure.
func emitTo(ctx context.Context, orch *convert.Orchestrator, planned *convert.Planned, out *output) (*convert.Result, error) {
	res, err := orch.Emit(ctx, planned, out.w)
	if err != nil {
		out.discard()
		return nil, err
	}
	if err := out.finish(); err != nil {
		out.discard()
		return nil, err
	}
	return res, nil
}

func removeOutput(log *logrus.Logger, path string) {
	if err := os.RemoveAll(path); err != nil {
		log.WithError(err).WithField("path", path).Warn("Failed to remove partial output")
	}
}

func printSummary(w io.Writer, res *convert.Result) {
	p := message.NewPrinter(language.English)
	p.Fprintf(w, "\nConversion complete in %s\n", res.Duration.Round(time.Millisecond))
	p.Fprintf(w, "%s\n", strings.Repeat("=", 50))
	p.Fprintf(w, "  Files:      %d\n", res.Files)
	p.Fprintf(w, "  Revisions:  %d\n", res.Revisions)
	p.Fprintf(w, "  Commits:    %d\n", res.Commits)
	p.Fprintf(w, "  Branches:   %d\n", res.Branches)
	p.Fprintf(w, "  Tags:       %d\n", res.Tags)
	if res.RunID != "" {
		p.Fprintf(w, "  Run:        %s\n", res.RunID)
	}
	printConflicts(w, res.Conflicts)
}

func printConflicts(w io.Writer, conflicts []topology.Conflict) {
	if len(conflicts) == 0 {
		return
	}
	fmt.Fprintf(w, "\nReconciliation conflicts (%d):\n", len(conflicts))
	for _, c := range conflicts {
		fmt.Fprintf(w, "  [%s] %s: %s\n", c.Kind, c.Subject, c.Detail)
		fmt.Fprintf(w, "      resolved: %s\n", c.Resolution)
	}
}
