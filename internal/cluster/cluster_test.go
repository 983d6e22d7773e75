package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/timestamp"
)

var t0 = time.Date(2020, time.February, 19, 10, 0, 0, 0, time.UTC)

type rev struct {
	file, rev, parent, author, msg string
	at                             time.Duration
}

func buildCatalog(t *testing.T, revs ...rev) *catalog.Catalog {
	t.Helper()
	byFile := map[string][]catalog.RevisionRecord{}
	var order []string
	for _, r := range revs {
		if _, ok := byFile[r.file]; !ok {
			order = append(order, r.file)
		}
		byFile[r.file] = append(byFile[r.file], catalog.RevisionRecord{
			Revision:  catalog.RevID(r.rev),
			Parent:    catalog.RevID(r.parent),
			Author:    r.author,
			Message:   r.msg,
			Timestamp: t0.Add(r.at),
		})
	}
	var hs []catalog.FileHistory
	for _, f := range order {
		hs = append(hs, catalog.FileHistory{Path: f, Records: byFile[f]})
	}
	c, err := catalog.Build(hs)
	require.NoError(t, err)
	return c
}

func clusterAll(c *catalog.Catalog, m Matcher) *Clustering {
	return New(timestamp.New(timestamp.DefaultTolerance), m).Cluster(c)
}

func filesOf(cands []*Candidate) [][]string {
	out := make([][]string, len(cands))
	for i, c := range cands {
		out[i] = c.Files()
	}
	return out
}

func TestCluster_IdenticalTimestampsFormOneCommit(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "fix bug"},
		rev{file: "b.c", rev: "1.1", author: "alice", msg: "fix bug"},
	)
	got := clusterAll(c, nil)

	require.Len(t, got.Candidates(), 1)
	cand := got.Candidates()[0]
	assert.Equal(t, []string{"a.c", "b.c"}, cand.Files())
	assert.Equal(t, "alice", cand.Author)
	assert.Equal(t, "fix bug", cand.Message)
	assert.Equal(t, t0, cand.When)
}

func TestCluster_SkewWithinTolerance(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "import"},
		rev{file: "b.c", rev: "1.1", author: "alice", msg: "import", at: 299 * time.Second},
		rev{file: "c.c", rev: "1.1", author: "alice", msg: "import", at: 301 * time.Second},
	)
	got := clusterAll(c, nil)

	assert.Equal(t, [][]string{{"a.c", "b.c"}, {"c.c"}}, filesOf(got.Ordered()))
	assert.Equal(t, t0.Add(299*time.Second), got.Ordered()[0].When)
}

func TestCluster_OutlierBecomesSingleton(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "fix bug"},
		rev{file: "b.c", rev: "1.1", author: "alice", msg: "fix bug"},
		rev{file: "c.c", rev: "1.1", author: "carol", msg: "unrelated", at: 2 * time.Hour},
	)
	got := clusterAll(c, nil)

	require.Len(t, got.Candidates(), 2)
	single := got.Ordered()[1]
	assert.Equal(t, []string{"c.c"}, single.Files())
	assert.Equal(t, "carol", single.Author)
}

func TestCluster_EmptyMessageIsAKey(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice"},
		rev{file: "b.c", rev: "1.1", author: "alice", at: time.Second},
		rev{file: "c.c", rev: "1.1", author: "alice", msg: "*** empty log message ***", at: 2 * time.Second},
	)
	got := clusterAll(c, nil)

	assert.Equal(t, [][]string{{"a.c", "b.c"}, {"c.c"}}, filesOf(got.Ordered()))
}

func TestCluster_SameFileNeverSharesACandidate(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "wip"},
		rev{file: "a.c", rev: "1.2", parent: "1.1", author: "alice", msg: "wip"},
		rev{file: "b.c", rev: "1.1", author: "alice", msg: "wip"},
	)
	got := clusterAll(c, nil)

	require.Len(t, got.Candidates(), 2)
	for _, cand := range got.Candidates() {
		seen := map[string]bool{}
		for _, r := range cand.Records {
			assert.False(t, seen[r.File], "file %s twice in candidate %d", r.File, cand.ID)
			seen[r.File] = true
		}
	}
	r11, _ := c.Lookup("a.c", "1.1")
	r12, _ := c.Lookup("a.c", "1.2")
	assert.True(t, got.CandidateOf(r11).Before(got.CandidateOf(r12)))
}

func TestCluster_ParentInLaterWindowSplits(t *testing.T) {
	// bob's edit of b.c sits between alice's two edits of b.c, so alice's
	// second edit may not join her earlier window.
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "m"},
		rev{file: "b.c", rev: "1.1", author: "bob", msg: "n", at: 10 * time.Second},
		rev{file: "b.c", rev: "1.2", parent: "1.1", author: "alice", msg: "m", at: 20 * time.Second},
	)
	got := clusterAll(c, nil)

	require.Len(t, got.Candidates(), 3)
	for _, r := range c.Records() {
		if p := c.Parent(r); p != nil {
			assert.True(t, got.CandidateOf(p).Before(got.CandidateOf(r)), "%s", r.Key())
		}
	}
}

func TestCluster_BranchesClusterSeparately(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "base"},
		rev{file: "a.c", rev: "1.2", parent: "1.1", author: "alice", msg: "same", at: time.Hour},
		rev{file: "a.c", rev: "1.1.2.1", parent: "1.1", author: "alice", msg: "same", at: time.Hour},
	)
	got := clusterAll(c, nil)

	require.Len(t, got.Candidates(), 3)
	branches := map[string]bool{}
	for _, cand := range got.Candidates() {
		branches[cand.Branch] = true
	}
	assert.True(t, branches[catalog.Trunk])
	assert.True(t, branches["unlabeled-1.1.2"])
}

func TestCluster_EveryRecordPlacedOnce(t *testing.T) {
	c := buildCatalog(t,
		rev{file: "a.c", rev: "1.1", author: "alice", msg: "one"},
		rev{file: "a.c", rev: "1.2", parent: "1.1", author: "bob", msg: "two", at: time.Minute},
		rev{file: "a.c", rev: "1.3", parent: "1.2", author: "alice", msg: "one", at: 2 * time.Minute},
		rev{file: "b.c", rev: "1.1", author: "bob", msg: "two", at: time.Minute},
		rev{file: "b.c", rev: "1.2", parent: "1.1", author: "alice", msg: "three", at: 10 * time.Minute},
		rev{file: "c.c", rev: "1.1", author: "alice", msg: "one", at: 30 * time.Second},
	)
	got := clusterAll(c, nil)

	count := map[catalog.Key]int{}
	for _, cand := range got.Candidates() {
		require.NotEmpty(t, cand.Records)
		for _, r := range cand.Records {
			count[r.Key()]++
			assert.Same(t, cand, got.CandidateOf(r))
		}
	}
	assert.Len(t, count, c.Len())
	for k, n := range count {
		assert.Equal(t, 1, n, "%s", k)
	}

	for i, cand := range got.Ordered() {
		assert.Equal(t, i, cand.Seq)
		if i > 0 {
			assert.False(t, cand.Start.Before(got.Ordered()[i-1].Start))
		}
	}
}

func TestCluster_Deterministic(t *testing.T) {
	revs := []rev{
		{file: "z.c", rev: "1.1", author: "alice", msg: "x"},
		{file: "y.c", rev: "1.1", author: "bob", msg: "x"},
		{file: "x.c", rev: "1.1", author: "alice", msg: "x"},
		{file: "x.c", rev: "1.2", parent: "1.1", author: "bob", msg: "x", at: time.Second},
	}
	first := clusterAll(buildCatalog(t, revs...), nil)
	second := clusterAll(buildCatalog(t, revs...), nil)

	assert.Equal(t, filesOf(first.Ordered()), filesOf(second.Ordered()))
	assert.Equal(t, filesOf(first.Candidates()), filesOf(second.Candidates()))
}

func TestCluster_FuzzyMode(t *testing.T) {
	revs := []rev{
		{file: "a.c", rev: "1.1", author: "alice", msg: "Fix the parser bug"},
		{file: "b.c", rev: "1.1", author: "alice", msg: "fix the  parser bug."},
	}

	exact := clusterAll(buildCatalog(t, revs...), nil)
	assert.Len(t, exact.Candidates(), 2)

	m, err := NewMatcher(MatchFuzzy, DefaultFuzzyThreshold)
	require.NoError(t, err)
	fuzzy := clusterAll(buildCatalog(t, revs...), m)
	require.Len(t, fuzzy.Candidates(), 1)
	assert.Equal(t, "Fix the parser bug\n\nb.c: fix the  parser bug.", fuzzy.Candidates()[0].Message,
		"matched variants are kept in the log")
}

func TestCluster_FuzzyMessageMerge(t *testing.T) {
	m, err := NewMatcher(MatchFuzzy, DefaultFuzzyThreshold)
	require.NoError(t, err)

	tests := []struct {
		name string
		revs []rev
		want string
	}{
		{
			name: "case and spacing differences collapse",
			revs: []rev{
				{file: "a.c", rev: "1.1", author: "alice", msg: "Fix bug"},
				{file: "b.c", rev: "1.1", author: "alice", msg: "fix  BUG"},
			},
			want: "Fix bug",
		},
		{
			name: "duplicate variants listed once",
			revs: []rev{
				{file: "a.c", rev: "1.1", author: "alice", msg: "Fix bug"},
				{file: "b.c", rev: "1.1", author: "alice", msg: "fix bug."},
				{file: "c.c", rev: "1.1", author: "alice", msg: "Fix bug."},
			},
			want: "Fix bug\n\nb.c: fix bug.",
		},
		{
			name: "initial revision placeholder skipped",
			revs: []rev{
				{file: "a.c", rev: "1.1", author: "alice", msg: "Initial revisions"},
				{file: "b.c", rev: "1.1", author: "alice", msg: "Initial revision"},
			},
			want: "Initial revisions",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cands := clusterAll(buildCatalog(t, tt.revs...), m).Candidates()
			require.Len(t, cands, 1)
			assert.Equal(t, tt.want, cands[0].Message)
		})
	}
}
