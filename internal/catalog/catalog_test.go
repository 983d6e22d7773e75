package catalog

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/errors"
)

var t0 = time.Date(2020, time.February, 19, 10, 0, 0, 0, time.UTC)

func rec(rev, parent string, offset time.Duration) RevisionRecord {
	return RevisionRecord{
		Revision:  RevID(rev),
		Parent:    RevID(parent),
		Author:    "alice",
		Timestamp: t0.Add(offset),
		Message:   "change " + rev,
	}
}

func TestParseRevID(t *testing.T) {
	tests := []struct {
		in    string
		valid bool
	}{
		{"1.1", true},
		{"1.2.2.1", true},
		{"1", false},
		{"1.2.2", false},
		{"1.x", false},
		{"", false},
	}
	for _, tt := range tests {
		_, err := ParseRevID(tt.in)
		assert.Equal(t, tt.valid, err == nil, "input %q", tt.in)
	}
}

func TestParseBranchID_Magic(t *testing.T) {
	b, err := ParseBranchID("1.2.0.4")
	require.NoError(t, err)
	assert.Equal(t, BranchID("1.2.4"), b)
	assert.True(t, IsMagicBranch("1.2.0.4"))
	assert.False(t, IsMagicBranch("1.2.4"))

	b, err = ParseBranchID("1.1.1")
	require.NoError(t, err)
	assert.Equal(t, BranchID("1.1.1"), b)
	assert.Equal(t, RevID("1.1"), b.BranchPoint())
	assert.Equal(t, 1, b.Depth())

	_, err = ParseBranchID("1.2")
	assert.Error(t, err)
}

func TestRevIDNavigation(t *testing.T) {
	r := RevID("1.2.2.3")
	assert.False(t, r.IsTrunk())
	assert.Equal(t, BranchID("1.2.2"), r.Branch())
	assert.Equal(t, RevID("1.2"), r.BranchPoint())
	assert.Equal(t, BranchID("1"), RevID("1.9").Branch())
	assert.Equal(t, RevID(""), RevID("1.9").BranchPoint())

	assert.Equal(t, -1, RevID("1.9").Compare("1.10"))
	assert.Equal(t, -1, RevID("1.2").Compare("1.2.2.1"))
	assert.Equal(t, 1, RevID("2.1").Compare("1.10"))
	assert.Equal(t, 0, RevID("1.3").Compare("1.3"))
}

func TestBuild_ArenaAndLabels(t *testing.T) {
	c, err := Build([]FileHistory{
		{
			Path: "src/b.c",
			Records: []RevisionRecord{
				rec("1.1", "", 0),
				rec("1.2", "1.1", time.Hour),
				rec("1.2.2.1", "1.2", 2*time.Hour),
				rec("1.2.2.2", "1.2.2.1", 3*time.Hour),
			},
			Branches: map[string]BranchID{"REL1": "1.2.2", "EMPTY": "1.1.4"},
		},
		{
			Path:    "a.c",
			Records: []RevisionRecord{rec("1.1", "", 0)},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a.c", "src/b.c"}, c.Files())
	assert.Equal(t, 5, c.Len())
	for i, r := range c.Records() {
		assert.Equal(t, i, r.Index())
	}

	r, ok := c.Lookup("src/b.c", "1.2.2.2")
	require.True(t, ok)
	assert.Equal(t, "REL1", r.Branch)
	assert.Equal(t, 3, r.Depth())
	assert.Equal(t, RevID("1.2.2.1"), c.Parent(r).Revision)

	trunk, _ := c.Lookup("src/b.c", "1.2")
	assert.Equal(t, Trunk, trunk.Branch)
	assert.True(t, c.IsRoot(c.Parent(trunk)))

	assert.Equal(t, []string{"EMPTY", "REL1"}, c.Labels())
	assert.Equal(t, []string{"src/b.c"}, c.FilesWithBranch("EMPTY"))
	num, ok := c.BranchNumber("src/b.c", "REL1")
	require.True(t, ok)
	assert.Equal(t, BranchID("1.2.2"), num)
}

func TestBuild_UnlabeledBranch(t *testing.T) {
	c, err := Build([]FileHistory{{
		Path: "x",
		Records: []RevisionRecord{
			rec("1.1", "", 0),
			rec("1.1.2.1", "1.1", time.Minute),
		},
	}})
	require.NoError(t, err)
	r, _ := c.Lookup("x", "1.1.2.1")
	assert.Equal(t, "unlabeled-1.1.2", r.Branch)
}

func TestBuild_TrunkAcrossMajorVersions(t *testing.T) {
	_, err := Build([]FileHistory{{
		Path:    "x",
		Records: []RevisionRecord{rec("1.1", "", 0), rec("2.1", "1.1", time.Minute)},
	}})
	assert.NoError(t, err)
}

func TestBuild_MalformedTrees(t *testing.T) {
	tests := []struct {
		name    string
		records []RevisionRecord
	}{
		{"missing parent", []RevisionRecord{rec("1.1", "", 0), rec("1.3", "1.2", 0)}},
		{"two roots", []RevisionRecord{rec("1.1", "", 0), rec("1.2", "", 0)}},
		{"no root", []RevisionRecord{rec("1.1", "1.2", 0), rec("1.2", "1.1", 0)}},
		{"duplicate", []RevisionRecord{rec("1.1", "", 0), rec("1.1", "", 0)}},
		{"branch root", []RevisionRecord{rec("1.1.2.1", "", 0)}},
		{"wrong branch point", []RevisionRecord{rec("1.1", "", 0), rec("1.2", "1.1", 0), rec("1.2.2.1", "1.1", 0)}},
		{"cycle", []RevisionRecord{rec("1.1", "", 0), rec("1.2", "1.3", 0), rec("1.3", "1.2", 0)}},
		{"bad revision", []RevisionRecord{rec("1.1", "", 0), rec("1.a", "1.1", 0)}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build([]FileHistory{{Path: "broken.c", Records: tt.records}})
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrMalformedRevisionTree), "got %v", err)
			assert.Contains(t, err.Error(), "broken.c")
			assert.True(t, errors.IsFatal(err))
		})
	}
}

func TestBuild_DuplicateFile(t *testing.T) {
	h := FileHistory{Path: "a", Records: []RevisionRecord{rec("1.1", "", 0)}}
	_, err := Build([]FileHistory{h, h})
	assert.True(t, stderrors.Is(err, errors.ErrMalformedRevisionTree))
}

func TestBuild_TagsDeduped(t *testing.T) {
	r := rec("1.1", "", 0)
	r.Tags = []string{"v2", "v1", "v2"}
	c, err := Build([]FileHistory{{Path: "a", Records: []RevisionRecord{r}}})
	require.NoError(t, err)
	got, _ := c.Lookup("a", "1.1")
	assert.Equal(t, []string{"v1", "v2"}, got.Tags)
}
