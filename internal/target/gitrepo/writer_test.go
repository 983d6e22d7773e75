package gitrepo

import (
	"context"
	"testing"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/emit"
)

var when = time.Date(2020, time.February, 19, 10, 0, 0, 0, time.UTC)

func TestWriter_CommitsTreesAndRefs(t *testing.T) {
	w, err := NewInMemory("master", nil)
	require.NoError(t, err)
	ctx := context.Background()
	author := emit.Signature{Name: "Alice", Email: "alice@example.org", When: when}

	first, err := w.CreateCommit(ctx, &emit.CommitRequest{
		Branch:  "master",
		Author:  author,
		Message: "initial import",
		Changes: map[string]emit.Change{
			"README":     {Revision: "1.1", Content: []byte("hello\n")},
			"src/main.c": {Revision: "1.1", Content: []byte("int main;\n")},
		},
		Snapshot: map[string]catalog.RevID{"README": "1.1", "src/main.c": "1.1"},
	})
	require.NoError(t, err)

	author.When = when.Add(time.Hour)
	second, err := w.CreateCommit(ctx, &emit.CommitRequest{
		Parent:  first,
		Branch:  "master",
		Author:  author,
		Message: "drop readme",
		Changes: map[string]emit.Change{
			"README":     {Revision: "1.2", Deleted: true},
			"src/main.c": {Revision: "1.2", Content: []byte("int main(void);\n")},
		},
		Snapshot: map[string]catalog.RevID{"src/main.c": "1.2"},
	})
	require.NoError(t, err)

	require.NoError(t, w.CreateBranchRef(ctx, "master", second))
	require.NoError(t, w.CreateTag(ctx, "v1", first))

	repo := w.Repository()
	c2, err := repo.CommitObject(plumbing.NewHash(string(second)))
	require.NoError(t, err)
	assert.Equal(t, "drop readme\n", c2.Message)
	assert.Equal(t, "Alice", c2.Author.Name)
	assert.True(t, c2.Author.When.Equal(when.Add(time.Hour)))
	require.Len(t, c2.ParentHashes, 1)
	assert.Equal(t, string(first), c2.ParentHashes[0].String())

	f, err := c2.File("src/main.c")
	require.NoError(t, err)
	content, err := f.Contents()
	require.NoError(t, err)
	assert.Equal(t, "int main(void);\n", content)
	_, err = c2.File("README")
	assert.Error(t, err, "deleted file is gone")

	c1, err := repo.CommitObject(plumbing.NewHash(string(first)))
	require.NoError(t, err)
	assert.Empty(t, c1.ParentHashes)
	f, err = c1.File("README")
	require.NoError(t, err)
	content, _ = f.Contents()
	assert.Equal(t, "hello\n", content)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, plumbing.NewBranchReferenceName("master"), head.Name())
	assert.Equal(t, string(second), head.Hash().String())

	tag, err := repo.Tag("v1")
	require.NoError(t, err)
	assert.Equal(t, string(first), tag.Hash().String())
}

func TestWriter_CarriedFilesAndMissingBlob(t *testing.T) {
	w, err := NewInMemory("trunk", nil)
	require.NoError(t, err)
	ctx := context.Background()

	id, err := w.CreateCommit(ctx, &emit.CommitRequest{
		Branch:   "REL",
		Message:  "branch fix",
		Changes:  map[string]emit.Change{"b.c": {Revision: "1.1.2.1", Content: []byte("b")}},
		Carried:  map[string]emit.Change{"a.c": {Revision: "1.2", Content: []byte("a")}},
		Snapshot: map[string]catalog.RevID{"a.c": "1.2", "b.c": "1.1.2.1"},
	})
	require.NoError(t, err)
	c, err := w.Repository().CommitObject(plumbing.NewHash(string(id)))
	require.NoError(t, err)
	_, err = c.File("a.c")
	assert.NoError(t, err)

	_, err = w.CreateCommit(ctx, &emit.CommitRequest{
		Parent:   id,
		Snapshot: map[string]catalog.RevID{"never.c": "1.1"},
	})
	assert.Error(t, err)
}

func TestWriter_OpenBareOnDisk(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(dir, "master", nil)
	require.NoError(t, err)
	_, err = w.CreateCommit(context.Background(), &emit.CommitRequest{
		Message:  "x",
		Changes:  map[string]emit.Change{"x": {Revision: "1.1", Content: []byte("x")}},
		Snapshot: map[string]catalog.RevID{"x": "1.1"},
	})
	require.NoError(t, err)

	again, err := Open(dir, "master", nil)
	require.NoError(t, err)
	assert.NotNil(t, again.Repository())
}
