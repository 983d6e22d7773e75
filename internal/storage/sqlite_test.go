package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/cluster"
	"github.com/rohankatakam/rcs2git/internal/timestamp"
	"github.com/rohankatakam/rcs2git/internal/topology"
)

var t0 = time.Date(2020, time.February, 19, 10, 0, 0, 0, time.UTC)

func samplePlan(t *testing.T) *topology.Plan {
	t.Helper()
	rec := func(rev, parent, msg string, at time.Duration, tags ...string) catalog.RevisionRecord {
		return catalog.RevisionRecord{
			Revision:  catalog.RevID(rev),
			Parent:    catalog.RevID(parent),
			Author:    "alice",
			Message:   msg,
			Timestamp: t0.Add(at),
			Tags:      tags,
		}
	}
	cat, err := catalog.Build([]catalog.FileHistory{
		{Path: "a.c", Records: []catalog.RevisionRecord{
			rec("1.1", "", "import", 0, "v1"),
			rec("1.2", "1.1", "fix", time.Hour),
		}},
		{Path: "b.c", Records: []catalog.RevisionRecord{
			rec("1.1", "", "import", 0, "v1"),
		}},
	})
	require.NoError(t, err)
	cl := cluster.New(timestamp.New(timestamp.DefaultTolerance), nil).Cluster(cat)
	plan, err := topology.NewResolver(topology.DefaultOptions(), nil).
		Resolve(cat, cl, topology.NewRegistry(topology.DefaultTrunkName))
	require.NoError(t, err)
	plan.Conflicts = append(plan.Conflicts, topology.Conflict{
		Kind:       topology.ConflictBranchParent,
		Subject:    "REL",
		Detail:     "files disagree",
		Resolution: "chose master",
	})
	return plan
}

func openStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "plan.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_SavePlan(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "/src/project")
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)

	plan := samplePlan(t)
	require.NoError(t, s.SavePlan(ctx, run, plan))
	// saving again replaces the rows
	require.NoError(t, s.SavePlan(ctx, run, plan))

	got, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunPlanned, got.Status)
	assert.Equal(t, 2, got.Files)
	assert.Equal(t, 3, got.Revisions)
	assert.Equal(t, 2, got.Commits)
	assert.Equal(t, 1, got.Branches)
	assert.Equal(t, 1, got.Tags)
	assert.False(t, got.FinishedAt.Valid)

	commits, err := s.GetCommits(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, "import", commits[0].Message)
	assert.False(t, commits[0].ParentSeq.Valid)
	assert.Equal(t, 2, commits[0].FileCount)
	assert.True(t, commits[1].ParentSeq.Valid)
	assert.Equal(t, int64(commits[0].Seq), commits[1].ParentSeq.Int64)
	assert.True(t, commits[1].CommittedAt.Equal(t0.Add(time.Hour)))

	revs, err := s.GetRevisions(ctx, run.ID, "a.c")
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, "1.1", revs[0].Revision)
	assert.Equal(t, "1.2", revs[1].Revision)

	all, err := s.GetRevisions(ctx, run.ID, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tags, err := s.GetTags(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)
	assert.Equal(t, "v1", tags[0].Name)
	assert.Equal(t, commits[0].Seq, tags[0].CommitSeq)

	conflicts, err := s.GetConflicts(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "chose master", conflicts[0].Resolution)
}

func TestSQLiteStore_FinishRun(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	ok, err := s.CreateRun(ctx, "/a")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, ok, nil))

	bad, err := s.CreateRun(ctx, "/b")
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, bad, fmt.Errorf("orphan branch")))

	got, err := s.GetRun(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, RunEmitted, got.Status)
	assert.True(t, got.FinishedAt.Valid)

	got, err = s.GetRun(ctx, bad.ID)
	require.NoError(t, err)
	assert.Equal(t, RunFailed, got.Status)
	assert.Equal(t, "orphan branch", got.Error)

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = s.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.FinishRun(ctx, &Run{ID: "missing"}, nil), ErrNotFound)
}
