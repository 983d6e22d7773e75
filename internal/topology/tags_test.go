package topology

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/errors"
)

func TestTags_SameCommitAcrossFiles(t *testing.T) {
	cat := buildCatalog(t, nil,
		rev{file: "a.c", rev: "1.1", msg: "init"},
		rev{file: "b.c", rev: "1.1", msg: "init"},
		rev{file: "a.c", rev: "1.2", parent: "1.1", msg: "work", at: time.Hour},
		rev{file: "a.c", rev: "1.3", parent: "1.2", msg: "release", at: 2 * time.Hour, tags: []string{"v1.0"}},
		rev{file: "b.c", rev: "1.2", parent: "1.1", msg: "release", at: 2 * time.Hour, tags: []string{"v1.0"}},
	)
	p, _, cl, err := resolve(t, cat, DefaultOptions())
	require.NoError(t, err)

	require.Len(t, p.Tags, 1)
	assert.Equal(t, "v1.0", p.Tags[0].Name)
	assert.Same(t, commitOf(t, p, cl, cat, "a.c", "1.3"), p.Tags[0].Target)
	assert.Same(t, commitOf(t, p, cl, cat, "b.c", "1.2"), p.Tags[0].Target)
	assert.Empty(t, p.Conflicts)
}

func scenarioRevs() []rev {
	return []rev{
		{file: "a.c", rev: "1.1", msg: "init"},
		{file: "b.c", rev: "1.1", msg: "init"},
		{file: "a.c", rev: "1.2", parent: "1.1", msg: "two", at: time.Hour},
		{file: "a.c", rev: "1.3", parent: "1.2", msg: "five", at: 5 * time.Hour, tags: []string{"v1.0"}},
		{file: "b.c", rev: "1.2", parent: "1.1", msg: "seven", at: 7 * time.Hour, tags: []string{"v1.0"}},
	}
}

func TestTags_DifferentCommitsStrictFail(t *testing.T) {
	cat := buildCatalog(t, nil, scenarioRevs()...)
	_, _, _, err := resolve(t, cat, DefaultOptions())

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAmbiguousTagAssignment))
	assert.Contains(t, err.Error(), "a.c")
	assert.Contains(t, err.Error(), "1.3")
}

func TestTags_DifferentCommitsPickLatest(t *testing.T) {
	cat := buildCatalog(t, nil, scenarioRevs()...)
	p, _, cl, err := resolve(t, cat, Options{VendorBranches: true, TagMode: TagPickLatest})
	require.NoError(t, err)

	require.Len(t, p.Tags, 1)
	assert.Same(t, commitOf(t, p, cl, cat, "b.c", "1.2"), p.Tags[0].Target)
	require.Len(t, p.Conflicts, 1)
	assert.Equal(t, []string{"a.c"}, p.Conflicts[0].Files)
	assert.Equal(t, []string{"1.3"}, p.Conflicts[0].Revisions)
}

func ambiguousRevs() []rev {
	return []rev{
		{file: "a.c", rev: "1.1", msg: "init"},
		{file: "b.c", rev: "1.1", msg: "init"},
		{file: "a.c", rev: "1.2", parent: "1.1", msg: "five", at: 5 * time.Hour, tags: []string{"v1.0"}},
		{file: "a.c", rev: "1.3", parent: "1.2", msg: "six", at: 6 * time.Hour},
		{file: "b.c", rev: "1.2", parent: "1.1", msg: "seven", at: 7 * time.Hour, tags: []string{"v1.0"}},
	}
}

func TestTags_AmbiguousStrictFail(t *testing.T) {
	cat := buildCatalog(t, nil, ambiguousRevs()...)
	_, _, _, err := resolve(t, cat, DefaultOptions())

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAmbiguousTagAssignment))
	assert.True(t, errors.IsFatal(err))
	assert.Contains(t, err.Error(), "v1.0")
	assert.Contains(t, err.Error(), "a.c")
	assert.Contains(t, err.Error(), "1.2")
}

func TestTags_AmbiguousPickLatest(t *testing.T) {
	cat := buildCatalog(t, nil, ambiguousRevs()...)
	p, _, cl, err := resolve(t, cat, Options{VendorBranches: true, TagMode: TagPickLatest})
	require.NoError(t, err)

	require.Len(t, p.Tags, 1)
	assert.Same(t, commitOf(t, p, cl, cat, "b.c", "1.2"), p.Tags[0].Target)
	require.Len(t, p.Conflicts, 1)
	c := p.Conflicts[0]
	assert.Equal(t, ConflictAmbiguousTag, c.Kind)
	assert.Equal(t, "v1.0", c.Subject)
	assert.Equal(t, []string{"a.c"}, c.Files)
	assert.Equal(t, []string{"1.2"}, c.Revisions)
	assert.NotEmpty(t, c.Resolution)
}

func TestTags_BranchTagAcrossForkIsAmbiguous(t *testing.T) {
	// a.c is tagged at its fork revision on the trunk, b.c on the branch.
	syms := branches{"a.c": {"REL": "1.2.2"}, "b.c": {"REL": "1.1.2"}}
	revs := []rev{
		{file: "a.c", rev: "1.1", msg: "init"},
		{file: "b.c", rev: "1.1", msg: "init"},
		{file: "a.c", rev: "1.2", parent: "1.1", msg: "two", at: time.Hour, tags: []string{"REL_1"}},
		{file: "b.c", rev: "1.1.2.1", parent: "1.1", msg: "fix", at: 2 * time.Hour, tags: []string{"REL_1"}},
	}

	_, _, _, err := resolve(t, buildCatalog(t, syms, revs...), DefaultOptions())
	assert.True(t, stderrors.Is(err, errors.ErrAmbiguousTagAssignment))

	p, reg, _, err := resolve(t, buildCatalog(t, syms, revs...), Options{VendorBranches: true, TagMode: TagPickLatest})
	require.NoError(t, err)
	rel, _ := reg.ByName("REL")
	require.Len(t, p.Tags, 1)
	assert.Same(t, rel.Commits[0], p.Tags[0].Target)
	assert.Len(t, p.TagsOn(rel), 1)
	assert.Empty(t, p.TagsOn(reg.Trunk()))
}
