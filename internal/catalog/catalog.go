package catalog

import (
	"fmt"
	"sort"
	"time"

	"github.com/rohankatakam/rcs2git/internal/errors"
)

// Trunk is the branch label carried by trunk revisions.
const Trunk = ""

// StateDead is the RCS state CVS uses to mark a removed file.
const StateDead = "dead"

// Key identifies one revision in the arena.
type Key struct {
	File     string
	Revision RevID
}

func (k Key) String() string {
	return k.File + "@" + string(k.Revision)
}

// RevisionRecord is one file revision as delivered by the RCS reader.
type RevisionRecord struct {
	File      string
	Revision  RevID
	Author    string
	Timestamp time.Time
	Message   string
	Tags      []string
	// Branch is the branch label within the file; Trunk for trunk revisions.
	Branch string
	// Parent is the preceding revision in the same file, empty for the root.
	Parent RevID
	State  string
	// Content is optional preloaded revision text. Nil means fetch lazily.
	Content []byte

	index int
	depth int
}

// Key returns the arena key of the record.
func (r *RevisionRecord) Key() Key {
	return Key{File: r.File, Revision: r.Revision}
}

// Index is the record's position in the catalog arena.
func (r *RevisionRecord) Index() int {
	return r.index
}

// Depth is the number of ancestors of the record within its file.
func (r *RevisionRecord) Depth() int {
	return r.depth
}

// Dead reports whether the revision removes the file.
func (r *RevisionRecord) Dead() bool {
	return r.State == StateDead
}

// FileHistory is the input for one file: its records plus the branch symbols
// declared in the file header.
type FileHistory struct {
	Path    string
	Records []RevisionRecord
	// Branches maps branch labels to branch numbers, including branches that
	// have no revisions in this file.
	Branches map[string]BranchID
}

// Catalog is an arena of every revision of every file, keyed by
// (file, revision). It is immutable once built.
type Catalog struct {
	records  []*RevisionRecord
	index    map[Key]int
	files    []string
	byFile   map[string][]int
	roots    map[string]RevID
	branches map[string]map[string]BranchID
	labels   []string
}

// Build validates the histories and assembles the arena. Any file whose
// revision parents do not form a tree yields a MalformedRevisionTree error.
func Build(histories []FileHistory) (*Catalog, error) {
	c := &Catalog{
		index:    make(map[Key]int),
		byFile:   make(map[string][]int),
		roots:    make(map[string]RevID),
		branches: make(map[string]map[string]BranchID),
	}

	sorted := make([]FileHistory, len(histories))
	copy(sorted, histories)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	labelSet := make(map[string]bool)
	for i := range sorted {
		h := &sorted[i]
		if _, dup := c.byFile[h.Path]; dup {
			return nil, errors.MalformedRevisionTree(h.Path, "", "file listed more than once")
		}
		recs, root, branches, err := validateFile(h)
		if err != nil {
			return nil, err
		}

		c.files = append(c.files, h.Path)
		c.roots[h.Path] = root
		c.branches[h.Path] = branches
		for label := range branches {
			labelSet[label] = true
		}

		idx := make([]int, 0, len(recs))
		for _, r := range recs {
			r.index = len(c.records)
			c.index[r.Key()] = r.index
			idx = append(idx, r.index)
			c.records = append(c.records, r)
		}
		c.byFile[h.Path] = idx
	}

	for label := range labelSet {
		c.labels = append(c.labels, label)
	}
	sort.Strings(c.labels)
	return c, nil
}

func validateFile(h *FileHistory) ([]*RevisionRecord, RevID, map[string]BranchID, error) {
	if len(h.Records) == 0 {
		return nil, "", nil, errors.MalformedRevisionTree(h.Path, "", "file has no revisions")
	}

	byRev := make(map[RevID]*RevisionRecord, len(h.Records))
	recs := make([]*RevisionRecord, 0, len(h.Records))
	for i := range h.Records {
		r := h.Records[i]
		if r.File == "" {
			r.File = h.Path
		}
		if r.File != h.Path {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
				fmt.Sprintf("record belongs to %s", r.File))
		}
		if _, err := ParseRevID(string(r.Revision)); err != nil {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision), err.Error())
		}
		if _, dup := byRev[r.Revision]; dup {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision), "duplicate revision")
		}
		r.Tags = dedupe(r.Tags)
		byRev[r.Revision] = &r
		recs = append(recs, &r)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Revision.Compare(recs[j].Revision) < 0 })

	var root RevID
	for _, r := range recs {
		if r.Parent == "" {
			if root != "" {
				return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
					fmt.Sprintf("second root revision besides %s", root))
			}
			if !r.Revision.IsTrunk() {
				return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
					"branch revision without a parent")
			}
			root = r.Revision
			continue
		}
		parent, ok := byRev[r.Parent]
		if !ok {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
				fmt.Sprintf("parent revision %s does not exist", r.Parent))
		}
		sameLine := r.Revision.Branch() == parent.Revision.Branch() ||
			(r.Revision.IsTrunk() && parent.Revision.IsTrunk())
		if !sameLine && r.Revision.BranchPoint() != parent.Revision {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
				fmt.Sprintf("branch revision attached to %s instead of its branch point %s",
					parent.Revision, r.Revision.BranchPoint()))
		}
	}
	if root == "" {
		return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(recs[0].Revision), "no root revision")
	}

	// Depths double as cycle detection: a record is finished only once its
	// whole ancestry reaches the root.
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[RevID]int, len(recs))
	var walk func(r *RevisionRecord) error
	walk = func(r *RevisionRecord) error {
		switch state[r.Revision] {
		case done:
			return nil
		case visiting:
			return errors.MalformedRevisionTree(h.Path, string(r.Revision), "revision parents form a cycle")
		}
		state[r.Revision] = visiting
		if r.Parent != "" {
			p := byRev[r.Parent]
			if err := walk(p); err != nil {
				return err
			}
			r.depth = p.depth + 1
		}
		state[r.Revision] = done
		return nil
	}
	for _, r := range recs {
		if err := walk(r); err != nil {
			return nil, "", nil, err
		}
	}

	branches := make(map[string]BranchID, len(h.Branches))
	byNumber := make(map[BranchID]string, len(h.Branches))
	for label, num := range h.Branches {
		branches[label] = num
		if prev, ok := byNumber[num]; !ok || label < prev {
			byNumber[num] = label
		}
	}
	for _, r := range recs {
		if r.Revision.IsTrunk() {
			r.Branch = Trunk
			continue
		}
		num := r.Revision.Branch()
		if r.Branch == "" {
			if label, ok := byNumber[num]; ok {
				r.Branch = label
			} else {
				r.Branch = UnlabeledBranch(num)
			}
		}
		if existing, ok := branches[r.Branch]; ok && existing != num {
			return nil, "", nil, errors.MalformedRevisionTree(h.Path, string(r.Revision),
				fmt.Sprintf("branch label %q names both %s and %s", r.Branch, existing, num))
		}
		branches[r.Branch] = num
	}

	return recs, root, branches, nil
}

// UnlabeledBranch names a branch that carries revisions but no symbol.
func UnlabeledBranch(num BranchID) string {
	return "unlabeled-" + string(num)
}

func dedupe(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Len returns the number of records in the arena.
func (c *Catalog) Len() int {
	return len(c.records)
}

// Records returns the arena ordered by file, then revision.
func (c *Catalog) Records() []*RevisionRecord {
	return c.records
}

// Record returns the record at arena index i.
func (c *Catalog) Record(i int) *RevisionRecord {
	return c.records[i]
}

// Lookup finds a record by file and revision.
func (c *Catalog) Lookup(file string, rev RevID) (*RevisionRecord, bool) {
	i, ok := c.index[Key{File: file, Revision: rev}]
	if !ok {
		return nil, false
	}
	return c.records[i], true
}

// Parent returns the record's parent revision, or nil for a root.
func (c *Catalog) Parent(r *RevisionRecord) *RevisionRecord {
	if r.Parent == "" {
		return nil
	}
	p, _ := c.Lookup(r.File, r.Parent)
	return p
}

// Files returns every file path in sorted order.
func (c *Catalog) Files() []string {
	return c.files
}

// FileRecords returns the records of one file ordered by revision.
func (c *Catalog) FileRecords(file string) []*RevisionRecord {
	idx := c.byFile[file]
	out := make([]*RevisionRecord, len(idx))
	for i, j := range idx {
		out[i] = c.records[j]
	}
	return out
}

// Root returns the root revision of a file.
func (c *Catalog) Root(file string) RevID {
	return c.roots[file]
}

// IsRoot reports whether r is the root revision of its file.
func (c *Catalog) IsRoot(r *RevisionRecord) bool {
	return c.roots[r.File] == r.Revision
}

// BranchNumber returns the branch number a label has in file.
func (c *Catalog) BranchNumber(file, label string) (BranchID, bool) {
	num, ok := c.branches[file][label]
	return num, ok
}

// Labels returns every branch label seen in any file, sorted.
func (c *Catalog) Labels() []string {
	return c.labels
}

// FilesWithBranch returns the files that declare or use a branch label.
func (c *Catalog) FilesWithBranch(label string) []string {
	var out []string
	for _, f := range c.files {
		if _, ok := c.branches[f][label]; ok {
			out = append(out, f)
		}
	}
	return out
}
