package emit

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/errors"
	"github.com/rohankatakam/rcs2git/internal/topology"
)

// Node is an emitted commit.
type Node struct {
	ID      CommitID
	Parents []CommitID
	Branch  string
	Author  Signature
	Message string
	Changes map[string]Change
}

// Result summarises an emission.
type Result struct {
	Nodes    []*Node
	Branches int
	Tags     int
}

// Emitter drives a Writer from a resolved plan.
type Emitter struct {
	writer  Writer
	content ContentSource
	authors AuthorMap
	logger  *logrus.Logger
}

// New creates an emitter. A nil AuthorMap uses LoginAuthors; a nil logger
// uses the standard logrus logger.
func New(w Writer, content ContentSource, authors AuthorMap, logger *logrus.Logger) *Emitter {
	if authors == nil {
		authors = LoginAuthors
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Emitter{writer: w, content: content, authors: authors, logger: logger}
}

type snapshot map[string]catalog.RevID

func (s snapshot) clone() snapshot {
	out := make(snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Emit creates every commit of the plan exactly once, trunk first and each
// branch after the branch it forks from. After a branch's commits its ref
// and the tags placed on it are created.
func (e *Emitter) Emit(ctx context.Context, cat *catalog.Catalog, plan *topology.Plan) (*Result, error) {
	ids := make(map[*topology.Commit]CommitID, len(plan.Commits))
	branchPoints := make(map[*topology.Commit]bool)
	for _, b := range plan.Branches {
		if b.BranchPoint != nil {
			branchPoints[b.BranchPoint] = true
		}
	}
	saved := make(map[*topology.Commit]snapshot)
	result := &Result{Nodes: make([]*Node, 0, len(plan.Commits))}

	for _, b := range plan.Branches {
		snap := snapshot{}
		if b.BranchPoint != nil {
			base, ok := saved[b.BranchPoint]
			if !ok {
				return nil, errors.InternalErrorf("branch %s forks from commit %d before it was emitted",
					b.Name, b.BranchPoint.Order)
			}
			snap = base.clone()
		}

		for _, c := range b.Commits {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			node, err := e.emitCommit(ctx, cat, c, ids, snap)
			if err != nil {
				return nil, err
			}
			result.Nodes = append(result.Nodes, node)
			if branchPoints[c] {
				saved[c] = snap.clone()
			}
			if len(result.Nodes)%1000 == 0 {
				e.logger.WithFields(logrus.Fields{
					"commits": len(result.Nodes),
					"total":   len(plan.Commits),
				}).Info("Emitting commits")
			}
		}

		head := b.Head()
		if head == nil {
			continue
		}
		if err := e.writer.CreateBranchRef(ctx, b.Name, ids[head]); err != nil {
			return nil, errors.ExternalErrorf(err, "failed to create branch %s", b.Name)
		}
		result.Branches++
		for _, t := range plan.TagsOn(b) {
			if err := e.writer.CreateTag(ctx, t.Name, ids[t.Target]); err != nil {
				return nil, errors.ExternalErrorf(err, "failed to create tag %s", t.Name)
			}
			result.Tags++
		}
	}

	e.logger.WithFields(logrus.Fields{
		"commits":  len(result.Nodes),
		"branches": result.Branches,
		"tags":     result.Tags,
	}).Info("Commit graph emitted")
	return result, nil
}

func (e *Emitter) emitCommit(ctx context.Context, cat *catalog.Catalog, c *topology.Commit,
	ids map[*topology.Commit]CommitID, snap snapshot) (*Node, error) {
	cand := c.Candidate
	if len(cand.Records) == 0 {
		return nil, errors.EmptyCommitCandidate(cand.ID)
	}
	if _, dup := ids[c]; dup {
		return nil, errors.InternalErrorf("commit %d emitted twice", c.Order)
	}

	req := &CommitRequest{
		Branch:  c.Branch.Name,
		Message: cand.Message,
		Changes: make(map[string]Change, len(cand.Records)),
	}
	if c.Parent != nil {
		pid, ok := ids[c.Parent]
		if !ok {
			return nil, errors.InternalErrorf("parent of commit %d has not been emitted", c.Order)
		}
		req.Parent = pid
	}
	req.Author = e.authors.Resolve(cand.Author)
	req.Author.When = c.When

	for _, r := range cand.Records {
		ch, err := e.change(ctx, r)
		if err != nil {
			return nil, err
		}
		req.Changes[r.File] = ch
	}

	if c.StartsBranch() && !c.Branch.IsTrunk() {
		for _, f := range c.Branch.Files() {
			fork := c.Branch.Forks[f]
			if _, changed := req.Changes[f]; changed || snap[f] == fork {
				continue
			}
			r, _ := cat.Lookup(f, fork)
			if r.Dead() {
				if _, present := snap[f]; !present {
					continue
				}
			}
			ch, err := e.change(ctx, r)
			if err != nil {
				return nil, err
			}
			if req.Carried == nil {
				req.Carried = make(map[string]Change)
			}
			req.Carried[f] = ch
		}
	}

	apply := func(changes map[string]Change) {
		for path, ch := range changes {
			if ch.Deleted {
				delete(snap, path)
			} else {
				snap[path] = ch.Revision
			}
		}
	}
	apply(req.Carried)
	apply(req.Changes)
	req.Snapshot = snap

	id, err := e.writer.CreateCommit(ctx, req)
	if err != nil {
		return nil, errors.ExternalErrorf(err, "failed to create commit %d on %s", c.Order, c.Branch.Name)
	}
	ids[c] = id

	node := &Node{
		ID:      id,
		Branch:  req.Branch,
		Author:  req.Author,
		Message: req.Message,
		Changes: req.Changes,
	}
	if req.Parent != "" {
		node.Parents = []CommitID{req.Parent}
	}
	return node, nil
}

func (e *Emitter) change(ctx context.Context, r *catalog.RevisionRecord) (Change, error) {
	if r.Dead() {
		return Change{Revision: r.Revision, Deleted: true}, nil
	}
	content := r.Content
	if content == nil {
		var err error
		content, err = e.content.Content(ctx, r.File, r.Revision)
		if err != nil {
			return Change{}, errors.ExternalErrorf(err, "failed to read %s", r.Key()).
				WithLocations([]string{r.File}, []string{string(r.Revision)})
		}
	}
	return Change{Revision: r.Revision, Content: content}, nil
}
