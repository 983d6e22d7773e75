package rcs

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/errors"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("%s failed: %w (stderr: %s)", name, err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("%s failed: %w", name, err)
	}
	return out, nil
}

// Options configures a Source.
type Options struct {
	RlogPath string
	CoPath   string
	// Workers bounds concurrent rlog runs; zero means one per CPU.
	Workers int
	// RateLimit caps rlog and co invocations per second; zero is unlimited.
	RateLimit float64
	Runner    Runner
}

// Source reads the RCS files under a root directory.
type Source struct {
	root    string
	opts    Options
	limiter *rate.Limiter
	logger  *logrus.Logger

	files  []HistoryFile
	byWork map[string]HistoryFile
}

// NewSource creates a source rooted at root.
func NewSource(root string, opts Options, logger *logrus.Logger) *Source {
	if opts.RlogPath == "" {
		opts.RlogPath = "rlog"
	}
	if opts.CoPath == "" {
		opts.CoPath = "co"
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Source{root: root, opts: opts, logger: logger}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return s
}

// Files walks the root once and returns the RCS files found.
func (s *Source) Files() ([]HistoryFile, error) {
	if s.files != nil {
		return s.files, nil
	}
	files, err := WalkHistoryFiles(s.root)
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to walk %s", s.root)
	}
	s.files = files
	s.byWork = make(map[string]HistoryFile, len(files))
	for _, f := range files {
		s.byWork[f.WorkPath] = f
	}
	return files, nil
}

// Histories runs rlog on every RCS file concurrently and returns the parsed
// histories sorted by working path. Any failure cancels the remaining work.
func (s *Source) Histories(ctx context.Context) ([]catalog.FileHistory, error) {
	files, err := s.Files()
	if err != nil {
		return nil, err
	}

	out := make([]catalog.FileHistory, len(files))
	var parsed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, hf := range files {
		i, hf := i, hf
		g.Go(func() error {
			h, err := s.history(gctx, hf)
			if err != nil {
				return err
			}
			out[i] = h
			if n := parsed.Add(1); n%500 == 0 {
				s.logger.WithFields(logrus.Fields{
					"parsed": n,
					"total":  len(files),
				}).Info("Reading RCS histories")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	s.logger.WithFields(logrus.Fields{
		"files": len(out),
		"root":  s.root,
	}).Info("Read RCS histories")
	return out, nil
}

func (s *Source) history(ctx context.Context, hf HistoryFile) (catalog.FileHistory, error) {
	raw, err := s.run(ctx, s.opts.RlogPath, hf.RCSPath)
	if err != nil {
		return catalog.FileHistory{}, errors.ExternalErrorf(err, "rlog failed for %s", hf.RCSPath).
			WithLocations([]string{hf.WorkPath}, nil)
	}
	parsed, err := ParseRlog(bytes.NewReader(raw))
	if err != nil {
		return catalog.FileHistory{}, errors.ExternalErrorf(err, "cannot parse rlog output for %s", hf.RCSPath).
			WithLocations([]string{hf.WorkPath}, nil)
	}
	if len(parsed) != 1 {
		return catalog.FileHistory{}, errors.New(errors.ErrorTypeExternal, errors.SeverityHigh,
			fmt.Sprintf("rlog printed %d files for %s", len(parsed), hf.RCSPath))
	}
	return ToHistory(parsed[0], hf.WorkPath, s.logger)
}

// Content checks out one revision with co, without keyword expansion.
func (s *Source) Content(ctx context.Context, file string, rev catalog.RevID) ([]byte, error) {
	hf, err := s.lookup(file)
	if err != nil {
		return nil, err
	}
	out, err := s.run(ctx, s.opts.CoPath, "-q", "-ko", "-p"+string(rev), hf.RCSPath)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "co failed for %s revision %s", hf.RCSPath, rev)
	}
	return out, nil
}

// Fingerprint identifies the current state of a file's RCS history so that
// cached content can be invalidated when the history changes.
func (s *Source) Fingerprint(file string) (string, error) {
	hf, err := s.lookup(file)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(hf.RCSPath)
	if err != nil {
		return "", errors.FileSystemErrorf(err, "cannot stat %s", hf.RCSPath)
	}
	return fmt.Sprintf("%d-%d", info.ModTime().UnixNano(), info.Size()), nil
}

func (s *Source) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	return s.opts.Runner.Run(ctx, name, args...)
}

func (s *Source) lookup(file string) (HistoryFile, error) {
	if s.byWork == nil {
		if _, err := s.Files(); err != nil {
			return HistoryFile{}, err
		}
	}
	hf, ok := s.byWork[file]
	if !ok {
		return HistoryFile{}, errors.InternalErrorf("no RCS file for %s", file)
	}
	return hf, nil
}
