package gitrepo

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/catalog"
	"github.com/rohankatakam/rcs2git/internal/emit"
)

type blobKey struct {
	path string
	rev  catalog.RevID
}

// Writer writes the converted history straight into a git object store.
type Writer struct {
	repo   *git.Repository
	blobs  map[blobKey]plumbing.Hash
	logger *logrus.Logger
}

// Open creates a bare repository at path, or opens an existing one.
func Open(path, trunk string, logger *logrus.Logger) (*Writer, error) {
	repo, err := git.PlainInit(path, true)
	if stderrors.Is(err, git.ErrRepositoryAlreadyExists) {
		repo, err = git.PlainOpen(path)
	}
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", path, err)
	}
	return newWriter(repo, trunk, logger)
}

// NewInMemory creates a writer backed by in-memory storage.
func NewInMemory(trunk string, logger *logrus.Logger) (*Writer, error) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("init in-memory repository: %w", err)
	}
	return newWriter(repo, trunk, logger)
}

func newWriter(repo *git.Repository, trunk string, logger *logrus.Logger) (*Writer, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(trunk))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("point HEAD at %s: %w", trunk, err)
	}
	return &Writer{
		repo:   repo,
		blobs:  make(map[blobKey]plumbing.Hash),
		logger: logger,
	}, nil
}

// Repository exposes the underlying repository.
func (w *Writer) Repository() *git.Repository {
	return w.repo
}

// CreateCommit stores the blobs of the changed files, the full tree of the
// snapshot and the commit object.
func (w *Writer) CreateCommit(ctx context.Context, req *emit.CommitRequest) (emit.CommitID, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, changes := range []map[string]emit.Change{req.Carried, req.Changes} {
		for path, ch := range changes {
			if ch.Deleted {
				continue
			}
			if _, err := w.blob(path, ch.Revision, ch.Content); err != nil {
				return "", err
			}
		}
	}

	tree, err := w.tree(req.Snapshot)
	if err != nil {
		return "", err
	}

	sig := object.Signature{Name: req.Author.Name, Email: req.Author.Email, When: req.Author.When}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   commitMessage(req.Message),
		TreeHash:  tree,
	}
	if req.Parent != "" {
		commit.ParentHashes = []plumbing.Hash{plumbing.NewHash(string(req.Parent))}
	}

	obj := w.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return "", fmt.Errorf("encode commit: %w", err)
	}
	hash, err := w.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return "", fmt.Errorf("store commit: %w", err)
	}
	return emit.CommitID(hash.String()), nil
}

// CreateBranchRef points refs/heads/<name> at target.
func (w *Writer) CreateBranchRef(_ context.Context, name string, target emit.CommitID) error {
	ref := plumbing.NewHashReference(plumbing.NewBranchReferenceName(name), plumbing.NewHash(string(target)))
	if err := w.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set branch %s: %w", name, err)
	}
	w.logger.WithFields(logrus.Fields{"branch": name, "commit": target}).Debug("Branch ref written")
	return nil
}

// CreateTag points refs/tags/<name> at target. RCS tags carry no message,
// so they become lightweight tags.
func (w *Writer) CreateTag(_ context.Context, name string, target emit.CommitID) error {
	ref := plumbing.NewHashReference(plumbing.NewTagReferenceName(name), plumbing.NewHash(string(target)))
	if err := w.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("set tag %s: %w", name, err)
	}
	w.logger.WithFields(logrus.Fields{"tag": name, "commit": target}).Debug("Tag ref written")
	return nil
}

func (w *Writer) blob(path string, rev catalog.RevID, content []byte) (plumbing.Hash, error) {
	key := blobKey{path: path, rev: rev}
	if h, ok := w.blobs[key]; ok {
		return h, nil
	}
	obj := w.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(content)))
	wr, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, err
	}
	if _, err := wr.Write(content); err != nil {
		wr.Close()
		return plumbing.ZeroHash, err
	}
	if err := wr.Close(); err != nil {
		return plumbing.ZeroHash, err
	}
	h, err := w.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob for %s %s: %w", path, rev, err)
	}
	w.blobs[key] = h
	return h, nil
}

type dirNode struct {
	files map[string]plumbing.Hash
	dirs  map[string]*dirNode
}

func newDirNode() *dirNode {
	return &dirNode{files: map[string]plumbing.Hash{}, dirs: map[string]*dirNode{}}
}

func (w *Writer) tree(snapshot map[string]catalog.RevID) (plumbing.Hash, error) {
	root := newDirNode()
	for path, rev := range snapshot {
		h, ok := w.blobs[blobKey{path: path, rev: rev}]
		if !ok {
			return plumbing.ZeroHash, fmt.Errorf("no blob for %s %s", path, rev)
		}
		parts := strings.Split(path, "/")
		node := root
		for _, dir := range parts[:len(parts)-1] {
			next, ok := node.dirs[dir]
			if !ok {
				next = newDirNode()
				node.dirs[dir] = next
			}
			node = next
		}
		node.files[parts[len(parts)-1]] = h
	}
	return w.writeTree(root)
}

func (w *Writer) writeTree(node *dirNode) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(node.files)+len(node.dirs))
	for name, h := range node.files {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Regular, Hash: h})
	}
	for name, sub := range node.dirs {
		h, err := w.writeTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: h})
	}
	// git orders directories as if their names ended in a slash
	sortKey := func(e object.TreeEntry) string {
		if e.Mode == filemode.Dir {
			return e.Name + "/"
		}
		return e.Name
	}
	sort.Slice(entries, func(i, j int) bool { return sortKey(entries[i]) < sortKey(entries[j]) })

	obj := w.repo.Storer.NewEncodedObject()
	if err := (&object.Tree{Entries: entries}).Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	return w.repo.Storer.SetEncodedObject(obj)
}

func commitMessage(msg string) string {
	if msg == "" || strings.HasSuffix(msg, "\n") {
		return msg
	}
	return msg + "\n"
}

var _ emit.Writer = (*Writer)(nil)
