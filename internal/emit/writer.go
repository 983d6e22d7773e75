package emit

import (
	"context"
	"time"

	"github.com/rohankatakam/rcs2git/internal/catalog"
)

// CommitID identifies a commit in the target repository.
type CommitID string

// Signature is a commit author.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// Change is the new state of one path in a commit.
type Change struct {
	Revision catalog.RevID
	Content  []byte
	Deleted  bool
}

// CommitRequest carries everything a target needs to create one commit.
type CommitRequest struct {
	// Parent is empty only for the trunk's first commit.
	Parent  CommitID
	Branch  string
	Author  Signature
	Message string
	// Changes holds the revisions committed by this commit.
	Changes map[string]Change
	// Carried holds fork fixups on a branch's first commit: files whose
	// state at the branch point differs from the revision the branch
	// sprouted from.
	Carried map[string]Change
	// Snapshot is the full tree after the commit, path to revision, dead
	// files omitted. It is only valid for the duration of the call.
	Snapshot map[string]catalog.RevID
}

// Writer is the target repository. Commits arrive parents first; refs and
// tags for a branch arrive after all of its commits.
type Writer interface {
	CreateCommit(ctx context.Context, req *CommitRequest) (CommitID, error)
	CreateTag(ctx context.Context, name string, target CommitID) error
	CreateBranchRef(ctx context.Context, name string, target CommitID) error
}

// ContentSource yields the text of a file revision.
type ContentSource interface {
	Content(ctx context.Context, file string, rev catalog.RevID) ([]byte, error)
}

// AuthorMap turns an RCS login into a signature. When is filled by the
// emitter.
type AuthorMap interface {
	Resolve(login string) Signature
}

// AuthorFunc adapts a function to AuthorMap.
type AuthorFunc func(login string) Signature

func (f AuthorFunc) Resolve(login string) Signature {
	return f(login)
}

// LoginAuthors uses the login as both name and email.
var LoginAuthors = AuthorFunc(func(login string) Signature {
	return Signature{Name: login, Email: login}
})
