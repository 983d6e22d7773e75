package topology

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/cluster"
	"github.com/rohankatakam/rcs2git/internal/errors"
)

// TagMode selects how ambiguous tags are reconciled.
type TagMode string

const (
	TagStrictFail TagMode = "strict-fail"
	TagPickLatest TagMode = "pick-latest"
)

// Conflict kinds recorded during resolution.
const (
	ConflictAmbiguousTag = "ambiguous-tag"
	ConflictBranchParent = "branch-parent"
)

// Conflict is a reconciliation problem that did not stop the run.
type Conflict struct {
	Kind       string
	Subject    string
	Detail     string
	Resolution string
	Files      []string
	Revisions  []string
}

// Tag is a symbolic tag placed on a commit.
type Tag struct {
	Name   string
	Target *Commit
}

// Plan is the resolved commit graph, ready for emission.
type Plan struct {
	Trunk *BranchNode
	// Branches are ordered so a parent branch precedes its children.
	Branches []*BranchNode
	// Commits are in emission order: branch by branch, each in sequence.
	Commits   []*Commit
	Tags      []*Tag
	Conflicts []Conflict

	byCandidate map[*cluster.Candidate]*Commit
}

// CommitOf returns the commit built from a candidate.
func (p *Plan) CommitOf(c *cluster.Candidate) *Commit {
	return p.byCandidate[c]
}

// TagsOn returns the tags targeting commits of branch b.
func (p *Plan) TagsOn(b *BranchNode) []*Tag {
	var out []*Tag
	for _, t := range p.Tags {
		if t.Target.Branch == b {
			out = append(out, t)
		}
	}
	return out
}

// Options configures the resolver.
type Options struct {
	VendorBranches bool
	TagMode        TagMode
}

// DefaultOptions returns vendor detection on and strict tag reconciliation.
func DefaultOptions() Options {
	return Options{VendorBranches: true, TagMode: TagStrictFail}
}

// Resolver maps file-level branch labels onto the unified namespace and
// links every candidate to its parent commit.
type Resolver struct {
	opts   Options
	logger *logrus.Logger
}

// NewResolver creates a resolver. A nil logger discards output.
func NewResolver(opts Options, logger *logrus.Logger) *Resolver {
	if opts.TagMode == "" {
		opts.TagMode = TagStrictFail
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(discard{})
	}
	return &Resolver{opts: opts, logger: logger}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

type resolution struct {
	*Resolver
	cat      *catalog.Catalog
	cl       *cluster.Clustering
	reg      *Registry
	plan     *Plan
	parentOf map[*BranchNode]*BranchNode
}

// Resolve builds the plan. The registry is populated in place.
func (r *Resolver) Resolve(cat *catalog.Catalog, cl *cluster.Clustering, reg *Registry) (*Plan, error) {
	res := &resolution{
		Resolver: r,
		cat:      cat,
		cl:       cl,
		reg:      reg,
		plan:     &Plan{Trunk: reg.Trunk(), byCandidate: make(map[*cluster.Candidate]*Commit)},
		parentOf: make(map[*BranchNode]*BranchNode),
	}

	byBranch := make(map[*BranchNode][]*cluster.Candidate)
	for _, c := range cl.Ordered() {
		b := reg.ensure(c.Branch)
		byBranch[b] = append(byBranch[b], c)
	}
	for _, label := range cat.Labels() {
		reg.ensure(label)
	}

	for _, b := range reg.Branches() {
		if b.IsTrunk() {
			continue
		}
		if err := res.collectForks(b); err != nil {
			return nil, err
		}
	}

	order, err := res.sortBranches()
	if err != nil {
		return nil, err
	}
	reg.setOrder(order)
	res.plan.Branches = order

	for _, b := range order {
		cands := byBranch[b]
		if !b.IsTrunk() {
			b.Parent = res.parentOf[b]
			if err := res.findBranchPoint(b, cands); err != nil {
				return nil, err
			}
		}
		res.link(b, cands)
	}

	if err := res.placeTags(); err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"branches":  len(res.plan.Branches),
		"commits":   len(res.plan.Commits),
		"tags":      len(res.plan.Tags),
		"conflicts": len(res.plan.Conflicts),
	}).Debug("Topology resolved")
	return res.plan, nil
}

// collectForks records each file's fork revision for b and elects b's parent
// branch as the label most fork revisions live on.
func (res *resolution) collectForks(b *BranchNode) error {
	votes := make(map[string]int)
	for _, file := range res.cat.FilesWithBranch(b.Label) {
		num, _ := res.cat.BranchNumber(file, b.Label)
		fork := num.BranchPoint()
		rec, ok := res.cat.Lookup(file, fork)
		if !ok {
			res.logger.WithFields(logrus.Fields{
				"branch": b.Name,
				"file":   file,
				"fork":   fork,
			}).Warn("Branch symbol points past the file's revisions, ignoring file")
			continue
		}
		b.Forks[file] = fork
		votes[rec.Branch]++
	}
	if len(votes) == 0 {
		return errors.OrphanBranch(b.Name, "no file holds the branch's fork revision",
			res.cat.FilesWithBranch(b.Label), nil)
	}

	labels := make([]string, 0, len(votes))
	for l := range votes {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool {
		if votes[labels[i]] != votes[labels[j]] {
			return votes[labels[i]] > votes[labels[j]]
		}
		return labels[i] < labels[j]
	})
	parent := res.reg.ensure(labels[0])
	res.parentOf[b] = parent

	if len(labels) > 1 {
		var files []string
		for _, f := range b.Files() {
			rec, _ := res.cat.Lookup(f, b.Forks[f])
			if rec.Branch != labels[0] {
				files = append(files, f)
			}
		}
		res.plan.Conflicts = append(res.plan.Conflicts, Conflict{
			Kind:       ConflictBranchParent,
			Subject:    b.Name,
			Detail:     fmt.Sprintf("files fork from %d different branches", len(labels)),
			Resolution: fmt.Sprintf("parent is %s, the branch most files fork from", parent.Name),
			Files:      files,
		})
	}
	return nil
}

// sortBranches orders branches so every parent precedes its children.
func (res *resolution) sortBranches() ([]*BranchNode, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[*BranchNode]int)
	var order []*BranchNode

	var visit func(b *BranchNode) error
	visit = func(b *BranchNode) error {
		switch state[b] {
		case done:
			return nil
		case visiting:
			return errors.OrphanBranch(b.Name, "branch ancestry forms a cycle", b.Files(), nil)
		}
		state[b] = visiting
		if p := res.parentOf[b]; p != nil {
			if err := visit(p); err != nil {
				return err
			}
		}
		state[b] = done
		order = append(order, b)
		return nil
	}

	branches := make([]*BranchNode, len(res.reg.Branches()))
	copy(branches, res.reg.Branches())
	sort.SliceStable(branches, func(i, j int) bool {
		if branches[i].IsTrunk() != branches[j].IsTrunk() {
			return branches[i].IsTrunk()
		}
		return branches[i].Name < branches[j].Name
	})
	for _, b := range branches {
		if err := visit(b); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// findBranchPoint selects the earliest commit on the parent branch that
// holds one of b's fork revisions and precedes every candidate of b.
func (res *resolution) findBranchPoint(b *BranchNode, cands []*cluster.Candidate) error {
	files := b.Files()
	revs := make([]string, len(files))
	for i, f := range files {
		revs[i] = string(b.Forks[f])
	}

	if res.opts.VendorBranches && res.isVendor(b) {
		trunk := res.reg.Trunk()
		if len(trunk.Commits) == 0 {
			return errors.OrphanBranch(b.Name, "vendor branch but the trunk has no commits", files, revs)
		}
		b.Vendor = true
		b.BranchPoint = trunk.Commits[0]
		res.logger.WithFields(logrus.Fields{
			"branch": b.Name,
			"files":  len(files),
		}).Debug("Grafted vendor branch at first trunk commit")
		return nil
	}

	var first *cluster.Candidate
	if len(cands) > 0 {
		first = cands[0]
	}
	var best *Commit
	for _, f := range files {
		rec, _ := res.cat.Lookup(f, b.Forks[f])
		if rec.Branch != b.Parent.Label {
			continue
		}
		c := res.plan.CommitOf(res.cl.CandidateOf(rec))
		if c == nil || c.Branch != b.Parent {
			continue
		}
		if first != nil && c.Candidate.Seq >= first.Seq {
			continue
		}
		if best == nil || c.Candidate.Seq < best.Candidate.Seq {
			best = c
		}
	}
	if best == nil {
		return errors.OrphanBranch(b.Name,
			fmt.Sprintf("no commit on %s precedes the branch", b.Parent.Name), files, revs)
	}
	b.BranchPoint = best
	return nil
}

// isVendor reports whether every contributing file sprouts b from its root
// revision on the trunk.
func (res *resolution) isVendor(b *BranchNode) bool {
	if b.Parent == nil || !b.Parent.IsTrunk() || len(b.Forks) == 0 {
		return false
	}
	for f, fork := range b.Forks {
		if res.cat.Root(f) != fork {
			return false
		}
	}
	return true
}

// link chains b's candidates into commits starting from the branch point.
func (res *resolution) link(b *BranchNode, cands []*cluster.Candidate) {
	prev := b.BranchPoint
	for _, cand := range cands {
		when := cand.When
		if prev != nil && when.Before(prev.When) {
			when = prev.When
		}
		c := &Commit{
			Candidate: cand,
			Branch:    b,
			Parent:    prev,
			When:      when,
			Order:     len(res.plan.Commits),
		}
		b.Commits = append(b.Commits, c)
		res.plan.Commits = append(res.plan.Commits, c)
		res.plan.byCandidate[cand] = c
		prev = c
	}
}
