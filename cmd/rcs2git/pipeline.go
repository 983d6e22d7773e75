package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/rcs2git/internal/cache"
	"github.com/rohankatakam/rcs2git/internal/cluster"
	"github.com/rohankatakam/rcs2git/internal/config"
	"github.com/rohankatakam/rcs2git/internal/convert"
	"github.com/rohankatakam/rcs2git/internal/emit"
	"github.com/rohankatakam/rcs2git/internal/rcs"
	"github.com/rohankatakam/rcs2git/internal/storage"
	"github.com/rohankatakam/rcs2git/internal/topology"
)

// Flags shared by convert and plan. They override the config file.
var (
	flagTolerance time.Duration
	flagMatch     string
	flagThreshold float64
	flagTagMode   string
	flagTrunk     string
	flagNoVendor  bool
	flagAuthors   string
	flagPlanDB    string
	flagNoCache   bool
	flagWorkers   int
)

func addConversionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.DurationVar(&flagTolerance, "tolerance", 300*time.Second, "clock skew tolerance between revisions of one commit")
	f.StringVar(&flagMatch, "match", "exact", "log message matching: exact or fuzzy")
	f.Float64Var(&flagThreshold, "fuzzy-threshold", 0.2, "normalized edit distance accepted by fuzzy matching")
	f.StringVar(&flagTagMode, "tags", "strict-fail", "ambiguous tag handling: strict-fail or pick-latest")
	f.StringVar(&flagTrunk, "trunk", "master", "name of the branch the RCS trunk becomes")
	f.BoolVar(&flagNoVendor, "no-vendor-branches", false, "treat vendor branches as ordinary branches")
	f.StringVar(&flagAuthors, "authors", "", "author map file (YAML)")
	f.StringVar(&flagPlanDB, "db", "", "record the plan in this SQLite database")
	f.BoolVar(&flagNoCache, "no-cache", false, "do not use the revision content cache")
	f.IntVar(&flagWorkers, "workers", 0, "concurrent rlog runs (default: one per CPU)")
}

func applyConversionFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	if f.Changed("tolerance") {
		cfg.Conversion.SkewTolerance = flagTolerance
	}
	if f.Changed("match") {
		cfg.Conversion.MessageMatch = flagMatch
	}
	if f.Changed("fuzzy-threshold") {
		cfg.Conversion.FuzzyThreshold = flagThreshold
	}
	if f.Changed("tags") {
		cfg.Conversion.TagReconciliation = flagTagMode
	}
	if f.Changed("trunk") {
		cfg.Conversion.TrunkBranch = flagTrunk
	}
	if flagNoVendor {
		cfg.Conversion.VendorBranches = false
	}
	if f.Changed("authors") {
		cfg.Authors.File = flagAuthors
	}
	if f.Changed("db") {
		cfg.Storage.PlanDB = flagPlanDB
	}
	if flagNoCache {
		cfg.Cache.Enabled = false
	}
	if f.Changed("workers") {
		cfg.RCS.Workers = flagWorkers
	}
}

func conversionOptions(c *config.Config) convert.Options {
	return convert.Options{
		SkewTolerance:  c.Conversion.SkewTolerance,
		MessageMatch:   cluster.MatchMode(c.Conversion.MessageMatch),
		FuzzyThreshold: c.Conversion.FuzzyThreshold,
		VendorBranches: c.Conversion.VendorBranches,
		TagMode:        topology.TagMode(c.Conversion.TagReconciliation),
		TrunkName:      c.Conversion.TrunkBranch,
	}
}

// pipeline holds the collaborators of one conversion run.
type pipeline struct {
	source  *rcs.Source
	cache   *cache.ContentCache
	store   *storage.SQLiteStore
	authors *config.Authors
	orch    *convert.Orchestrator
}

func openPipeline(root string) (*pipeline, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("cannot read RCS tree: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	p := &pipeline{}
	p.source = rcs.NewSource(root, rcs.Options{
		RlogPath:  cfg.RCS.RlogPath,
		CoPath:    cfg.RCS.CoPath,
		Workers:   cfg.RCS.Workers,
		RateLimit: cfg.RCS.RateLimit,
	}, logger.Logger)

	var content emit.ContentSource = p.source
	if cfg.Cache.Enabled {
		p.cache, err = cache.Open(cfg.Cache.Path, p.source, p.source, logger.Logger)
		if err != nil {
			logger.WithError(err).Warn("Content cache unavailable, checking out every revision")
		} else {
			content = p.cache
		}
	}

	if cfg.Storage.PlanDB != "" {
		p.store, err = storage.NewSQLiteStore(cfg.Storage.PlanDB, logger.Logger)
		if err != nil {
			p.Close()
			return nil, err
		}
	}

	p.authors, err = config.LoadAuthors(cfg.Authors.File, cfg.Authors.DefaultDomain)
	if err != nil {
		p.Close()
		return nil, err
	}

	var store storage.Store
	if p.store != nil {
		store = p.store
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	logger.WithFields(logrus.Fields{
		"root":    abs,
		"cache":   p.cache != nil,
		"plan_db": cfg.Storage.PlanDB,
		"authors": p.authors.Len(),
	}).Debug("Pipeline ready")

	p.orch = convert.NewOrchestrator(p.source, content, p.authors, store, conversionOptions(cfg), logger.Logger)
	return p, nil
}

func (p *pipeline) Close() {
	if p.cache != nil {
		p.cache.Close()
	}
	if p.store != nil {
		p.store.Close()
	}
}
