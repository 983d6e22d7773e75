package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/convert"
	"github.com/rohankatakam/rcs2git/internal/storage"
)

func TestPrintRun_ReadsRecordedPlan(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "plan.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	planned, err := convert.NewOrchestrator(twoRevisions(), nil, nil, store, convert.DefaultOptions(), quietLogger()).
		Plan(ctx, "/src/project")
	require.NoError(t, err)
	id := planned.Run.ID

	var buf bytes.Buffer
	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	printRuns(&buf, runs)
	assert.Contains(t, buf.String(), id)
	assert.Contains(t, buf.String(), storage.RunPlanned)
	assert.Contains(t, buf.String(), "/src/project")

	buf.Reset()
	require.NoError(t, printRun(ctx, &buf, store, id, "a.c"))
	out := buf.String()
	assert.Contains(t, out, "Run "+id+" (planned)")
	assert.Contains(t, out, "1 files, 2 revisions, 2 commits, 1 branches, 0 tags")
	assert.Contains(t, out, "import")
	assert.Contains(t, out, "fix")
	assert.Contains(t, out, "Revisions of a.c:")
	assert.Contains(t, out, "1.2")
}

func TestPrintRun_UnknownRun(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "plan.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	err = printRun(context.Background(), &bytes.Buffer{}, store, "nope", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run nope not found")

	var buf bytes.Buffer
	printRuns(&buf, nil)
	assert.Equal(t, "No runs recorded\n", buf.String())
}
