package cluster

import (
	"sort"
	"strings"
	"time"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/timestamp"
)

// Candidate is a provisional cross-file commit: revisions that share author,
// branch and message within the skew tolerance window.
type Candidate struct {
	// ID is the position in which the candidate was finalized.
	ID int
	// Seq is the position in which the candidate's window was opened. It is
	// the global total order of candidates; Start never decreases with Seq.
	Seq    int
	Start  time.Time
	When   time.Time
	Author string
	Branch string
	// Message is the log message of the revision that opened the window.
	// When matched revisions carry differing messages, each distinct variant
	// follows it on its own line, prefixed by its file.
	Message string
	// Records holds at most one revision per file, sorted by file.
	Records []*catalog.RevisionRecord
}

// Has reports whether the candidate contains a revision of file.
func (c *Candidate) Has(file string) bool {
	for _, r := range c.Records {
		if r.File == file {
			return true
		}
	}
	return false
}

// Files lists the files the candidate touches.
func (c *Candidate) Files() []string {
	out := make([]string, len(c.Records))
	for i, r := range c.Records {
		out[i] = r.File
	}
	return out
}

// Before orders candidates by their open sequence.
func (c *Candidate) Before(o *Candidate) bool {
	return c.Seq < o.Seq
}

// Clustering is the clusterer's output.
type Clustering struct {
	closed   []*Candidate
	ordered  []*Candidate
	owner    []*Candidate
	instants []time.Time
}

// Candidates returns candidates in the order they were finalized.
func (cl *Clustering) Candidates() []*Candidate {
	return cl.closed
}

// Ordered returns candidates in their total (open sequence) order.
func (cl *Clustering) Ordered() []*Candidate {
	return cl.ordered
}

// CandidateOf returns the candidate holding a record.
func (cl *Clustering) CandidateOf(r *catalog.RevisionRecord) *Candidate {
	return cl.owner[r.Index()]
}

// Instant returns the normalized instant used for a record.
func (cl *Clustering) Instant(r *catalog.RevisionRecord) time.Time {
	return cl.instants[r.Index()]
}

// Clusterer groups revisions across files into commit candidates.
type Clusterer struct {
	normalizer *timestamp.Normalizer
	matcher    Matcher
}

// New creates a clusterer. A nil matcher means exact matching.
func New(normalizer *timestamp.Normalizer, matcher Matcher) *Clusterer {
	if matcher == nil {
		matcher = ExactMatcher{}
	}
	return &Clusterer{normalizer: normalizer, matcher: matcher}
}

type windowKey struct {
	author string
	branch string
}

type window struct {
	key     windowKey
	message string
	cand    *Candidate
	files   map[string]bool
	closed  bool
}

type run struct {
	*Clusterer
	cat     *catalog.Catalog
	open    map[windowKey]*window
	queue   []*window
	result  *Clustering
	nextSeq int
}

// Cluster partitions every record of the catalog into candidates. Records
// are visited in non-decreasing normalized time; ties are broken by ancestry
// depth, file and revision so that a revision is always placed after its
// parent and the outcome is reproducible.
func (c *Clusterer) Cluster(cat *catalog.Catalog) *Clustering {
	instants := c.normalizer.Normalize(cat)
	order := make([]int, cat.Len())
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ra, rb := cat.Record(order[a]), cat.Record(order[b])
		ta, tb := instants[order[a]], instants[order[b]]
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		if ra.Depth() != rb.Depth() {
			return ra.Depth() < rb.Depth()
		}
		if ra.File != rb.File {
			return ra.File < rb.File
		}
		return ra.Revision.Compare(rb.Revision) < 0
	})

	r := &run{
		Clusterer: c,
		cat:       cat,
		open:      make(map[windowKey]*window),
		result: &Clustering{
			owner:    make([]*Candidate, cat.Len()),
			instants: instants,
		},
	}
	for _, i := range order {
		r.place(cat.Record(i), instants[i])
	}
	for _, w := range r.queue {
		if !w.closed {
			r.close(w)
		}
	}

	ordered := make([]*Candidate, len(r.result.closed))
	copy(ordered, r.result.closed)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].Seq < ordered[b].Seq })
	r.result.ordered = ordered
	return r.result
}

func (r *run) place(rec *catalog.RevisionRecord, at time.Time) {
	r.expire(at)

	key := windowKey{author: rec.Author, branch: rec.Branch}
	w := r.open[key]
	if w == nil || !r.accepts(w, rec, at) {
		if w != nil {
			r.close(w)
		}
		w = r.openWindow(key, rec, at)
	}

	w.files[rec.File] = true
	w.cand.Records = append(w.cand.Records, rec)
	if at.After(w.cand.When) {
		w.cand.When = at
	}
	r.result.owner[rec.Index()] = w.cand
}

func (r *run) accepts(w *window, rec *catalog.RevisionRecord, at time.Time) bool {
	if !r.normalizer.Within(w.cand.Start, at) {
		return false
	}
	if !r.matcher.Match(w.message, rec.Message) {
		return false
	}
	if w.files[rec.File] {
		return false
	}
	// The window must come after the commit holding this revision's parent,
	// or the file's history would be replayed out of order.
	if p := r.cat.Parent(rec); p != nil {
		if pc := r.result.owner[p.Index()]; pc == nil || pc.Seq >= w.cand.Seq {
			return false
		}
	}
	return true
}

func (r *run) openWindow(key windowKey, rec *catalog.RevisionRecord, at time.Time) *window {
	w := &window{
		key:     key,
		message: rec.Message,
		cand: &Candidate{
			Seq:     r.nextSeq,
			Start:   at,
			When:    at,
			Author:  rec.Author,
			Branch:  rec.Branch,
			Message: rec.Message,
		},
		files: make(map[string]bool),
	}
	r.nextSeq++
	r.open[key] = w
	r.queue = append(r.queue, w)
	return w
}

// expire closes, oldest first, every window that can no longer accept a
// record at instant at.
func (r *run) expire(at time.Time) {
	for len(r.queue) > 0 {
		w := r.queue[0]
		if !w.closed && r.normalizer.Within(w.cand.Start, at) {
			return
		}
		if !w.closed {
			r.close(w)
		}
		r.queue = r.queue[1:]
	}
}

func (r *run) close(w *window) {
	w.closed = true
	if r.open[w.key] == w {
		delete(r.open, w.key)
	}
	sort.Slice(w.cand.Records, func(a, b int) bool {
		return w.cand.Records[a].File < w.cand.Records[b].File
	})
	w.cand.Message = mergeMessages(w.message, w.cand.Records)
	w.cand.ID = len(r.result.closed)
	r.result.closed = append(r.result.closed, w.cand)
}

// skippedMessages are placeholder messages never listed as variants.
var skippedMessages = map[string]bool{
	"initial revision": true,
}

// mergeMessages appends every distinct message of recs that differs from
// first after normalization.
func mergeMessages(first string, recs []*catalog.RevisionRecord) string {
	seen := map[string]bool{normalizeMessage(first): true}
	var variants []string
	for _, r := range recs {
		canon := normalizeMessage(r.Message)
		if seen[canon] || skippedMessages[canon] {
			continue
		}
		seen[canon] = true
		variants = append(variants, r.File+": "+r.Message)
	}
	if len(variants) == 0 {
		return first
	}
	return first + "\n\n" + strings.Join(variants, "\n")
}
