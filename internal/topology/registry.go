package topology

import (
	"sort"
	"time"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/cluster"
)

// DefaultTrunkName is the unified name given to the RCS trunk.
const DefaultTrunkName = "master"

// BranchNode is one branch of the unified namespace.
type BranchNode struct {
	Name string
	// Label is the file-level branch label; catalog.Trunk for the trunk.
	Label  string
	Parent *BranchNode
	// BranchPoint is the commit on Parent this branch diverges from.
	BranchPoint *Commit
	Vendor      bool
	// Forks maps each contributing file to the revision its branch sprouts
	// from. Files whose fork revision does not exist are left out.
	Forks   map[string]catalog.RevID
	Commits []*Commit
}

// IsTrunk reports whether b is the trunk.
func (b *BranchNode) IsTrunk() bool {
	return b.Label == catalog.Trunk
}

// Head returns the commit the branch ref points at: its last commit, or the
// branch point for a branch without revisions of its own.
func (b *BranchNode) Head() *Commit {
	if n := len(b.Commits); n > 0 {
		return b.Commits[n-1]
	}
	return b.BranchPoint
}

// Files lists the contributing files in sorted order.
func (b *BranchNode) Files() []string {
	out := make([]string, 0, len(b.Forks))
	for f := range b.Forks {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Commit is a commit candidate placed in the graph.
type Commit struct {
	Candidate *cluster.Candidate
	Branch    *BranchNode
	// Parent is nil only for the trunk's first commit.
	Parent *Commit
	// When is the logical timestamp, non-decreasing along each branch.
	When time.Time
	// Order is the commit's position in the emission stream.
	Order int
}

// StartsBranch reports whether c is the first commit of its branch.
func (c *Commit) StartsBranch() bool {
	return c.Parent == nil || c.Parent.Branch != c.Branch
}

// IsAncestor reports whether a is b or one of b's ancestors.
func IsAncestor(a, b *Commit) bool {
	for c := b; c != nil; c = c.Parent {
		if c == a {
			return true
		}
	}
	return false
}

// Registry is the unified branch namespace. The resolver is its only writer.
type Registry struct {
	trunkName string
	byLabel   map[string]*BranchNode
	names     map[string]*BranchNode
	order     []*BranchNode
}

// NewRegistry creates a registry whose trunk is called trunkName.
func NewRegistry(trunkName string) *Registry {
	if trunkName == "" {
		trunkName = DefaultTrunkName
	}
	r := &Registry{
		trunkName: trunkName,
		byLabel:   make(map[string]*BranchNode),
		names:     make(map[string]*BranchNode),
	}
	r.ensure(catalog.Trunk)
	return r
}

// Trunk returns the trunk branch.
func (r *Registry) Trunk() *BranchNode {
	return r.byLabel[catalog.Trunk]
}

// Lookup finds a branch by its file-level label.
func (r *Registry) Lookup(label string) (*BranchNode, bool) {
	b, ok := r.byLabel[label]
	return b, ok
}

// ByName finds a branch by its unified name.
func (r *Registry) ByName(name string) (*BranchNode, bool) {
	b, ok := r.names[name]
	return b, ok
}

// Branches returns every branch, parents before children once resolved.
func (r *Registry) Branches() []*BranchNode {
	return r.order
}

func (r *Registry) ensure(label string) *BranchNode {
	if b, ok := r.byLabel[label]; ok {
		return b
	}
	name := label
	if label == catalog.Trunk {
		name = r.trunkName
	}
	for r.names[name] != nil {
		name += "-rcs"
	}
	b := &BranchNode{Name: name, Label: label, Forks: make(map[string]catalog.RevID)}
	r.byLabel[label] = b
	r.names[name] = b
	r.order = append(r.order, b)
	return b
}

func (r *Registry) setOrder(order []*BranchNode) {
	r.order = order
}
