package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/cluster"
	"github.com/rohankatakam/rcs2git/internal/emit"
	"github.com/rohankatakam/rcs2git/internal/storage"
	"github.com/rohankatakam/rcs2git/internal/timestamp"
	"github.com/rohankatakam/rcs2git/internal/topology"
)

// HistorySource delivers every file's revision history.
type HistorySource interface {
	Histories(ctx context.Context) ([]catalog.FileHistory, error)
}

// Options are the conversion knobs.
type Options struct {
	SkewTolerance  time.Duration
	MessageMatch   cluster.MatchMode
	FuzzyThreshold float64
	VendorBranches bool
	TagMode        topology.TagMode
	TrunkName      string
}

// DefaultOptions returns the defaults of every knob.
func DefaultOptions() Options {
	return Options{
		SkewTolerance:  timestamp.DefaultTolerance,
		MessageMatch:   cluster.MatchExact,
		FuzzyThreshold: cluster.DefaultFuzzyThreshold,
		VendorBranches: true,
		TagMode:        topology.TagStrictFail,
		TrunkName:      topology.DefaultTrunkName,
	}
}

// Orchestrator coordinates a conversion: reading histories, clustering,
// resolving topology and emitting the graph.
type Orchestrator struct {
	source  HistorySource
	content emit.ContentSource
	authors emit.AuthorMap
	store   storage.Store
	opts    Options
	logger  *logrus.Logger
}

// NewOrchestrator creates an orchestrator. store may be nil.
func NewOrchestrator(
	source HistorySource,
	content emit.ContentSource,
	authors emit.AuthorMap,
	store storage.Store,
	opts Options,
	logger *logrus.Logger,
) *Orchestrator {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Orchestrator{
		source:  source,
		content: content,
		authors: authors,
		store:   store,
		opts:    opts,
		logger:  logger,
	}
}

// Planned is a resolved conversion that has not been emitted yet.
type Planned struct {
	Catalog    *catalog.Catalog
	Clustering *cluster.Clustering
	Registry   *topology.Registry
	Plan       *topology.Plan
	Run        *storage.Run

	started time.Time
}

// Result contains the results of a conversion
type Result struct {
	RunID     string
	Files     int
	Revisions int
	Commits   int
	Branches  int
	Tags      int
	Conflicts []topology.Conflict
	Duration  time.Duration
}

// Plan reads and resolves the history without writing anything.
func (o *Orchestrator) Plan(ctx context.Context, root string) (*Planned, error) {
	startTime := time.Now()
	o.logger.WithFields(logrus.Fields{
		"root":      root,
		"tolerance": o.opts.SkewTolerance.String(),
		"match":     o.opts.MessageMatch,
		"tags":      o.opts.TagMode,
	}).Info("Starting conversion plan")

	p := &Planned{started: startTime}
	if o.store != nil {
		run, err := o.store.CreateRun(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("failed to record run: %w", err)
		}
		p.Run = run
	}

	plan, err := o.plan(ctx, p)
	if err != nil {
		o.finish(ctx, p.Run, err)
		return nil, err
	}
	p.Plan = plan

	if o.store != nil {
		if err := o.store.SavePlan(ctx, p.Run, plan); err != nil {
			err = fmt.Errorf("failed to save plan: %w", err)
			o.finish(ctx, p.Run, err)
			return nil, err
		}
	}

	o.logger.WithFields(logrus.Fields{
		"duration":  time.Since(startTime).String(),
		"commits":   len(plan.Commits),
		"branches":  len(plan.Branches),
		"tags":      len(plan.Tags),
		"conflicts": len(plan.Conflicts),
	}).Info("Conversion plan resolved")
	return p, nil
}

func (o *Orchestrator) plan(ctx context.Context, p *Planned) (*topology.Plan, error) {
	// Phase 1: read per-file histories
	histories, err := o.source.Histories(ctx)
	if err != nil {
		return nil, err
	}

	// Phase 2: catalogue
	cat, err := catalog.Build(histories)
	if err != nil {
		return nil, err
	}
	p.Catalog = cat
	o.logger.WithFields(logrus.Fields{
		"files":     len(cat.Files()),
		"revisions": cat.Len(),
	}).Info("Revision catalog built")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 3: cluster
	matcher, err := cluster.NewMatcher(o.opts.MessageMatch, o.opts.FuzzyThreshold)
	if err != nil {
		return nil, err
	}
	p.Clustering = cluster.New(timestamp.New(o.opts.SkewTolerance), matcher).Cluster(cat)
	o.logger.WithField("candidates", len(p.Clustering.Candidates())).Info("Revisions clustered")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase 4: topology
	p.Registry = topology.NewRegistry(o.opts.TrunkName)
	resolver := topology.NewResolver(topology.Options{
		VendorBranches: o.opts.VendorBranches,
		TagMode:        o.opts.TagMode,
	}, o.logger)
	return resolver.Resolve(cat, p.Clustering, p.Registry)
}

// Convert plans the conversion and emits it to w.
func (o *Orchestrator) Convert(ctx context.Context, root string, w emit.Writer) (*Result, error) {
	p, err := o.Plan(ctx, root)
	if err != nil {
		return nil, err
	}
	return o.Emit(ctx, p, w)
}

// Emit writes a resolved plan to w and records the run outcome.
func (o *Orchestrator) Emit(ctx context.Context, p *Planned, w emit.Writer) (*Result, error) {
	// Phase 5: emit
	emitted, err := emit.New(w, o.content, o.authors, o.logger).Emit(ctx, p.Catalog, p.Plan)
	o.finish(ctx, p.Run, err)
	if err != nil {
		return nil, err
	}

	result := p.Summary()
	result.Commits = len(emitted.Nodes)
	result.Branches = emitted.Branches
	result.Tags = emitted.Tags
	result.Duration = time.Since(p.started)

	o.logger.WithFields(logrus.Fields{
		"duration":  result.Duration.String(),
		"files":     result.Files,
		"revisions": result.Revisions,
		"commits":   result.Commits,
		"branches":  result.Branches,
		"tags":      result.Tags,
		"conflicts": len(result.Conflicts),
	}).Info("Conversion completed")
	return result, nil
}

// Summary reports the planned counts.
func (p *Planned) Summary() *Result {
	r := &Result{
		Files:     len(p.Catalog.Files()),
		Revisions: p.Catalog.Len(),
		Commits:   len(p.Plan.Commits),
		Branches:  len(p.Plan.Branches),
		Tags:      len(p.Plan.Tags),
		Conflicts: p.Plan.Conflicts,
	}
	if p.Run != nil {
		r.RunID = p.Run.ID
	}
	return r
}

func (o *Orchestrator) finish(ctx context.Context, run *storage.Run, runErr error) {
	if o.store == nil || run == nil {
		return
	}
	if err := o.store.FinishRun(ctx, run, runErr); err != nil {
		o.logger.WithError(err).WithField("run", run.ID).Warn("Failed to record run outcome")
	}
}
