package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rohankatakam/rcs2git/internal/topology"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Run status values.
const (
	RunPlanned = "planned"
	RunEmitted = "emitted"
	RunFailed  = "failed"
)

// Run is one conversion of an RCS tree.
type Run struct {
	ID         string       `db:"id"`
	Root       string       `db:"root"`
	Status     string       `db:"status"`
	Files      int          `db:"file_count"`
	Revisions  int          `db:"revision_count"`
	Commits    int          `db:"commit_count"`
	Branches   int          `db:"branch_count"`
	Tags       int          `db:"tag_count"`
	StartedAt  time.Time    `db:"started_at"`
	FinishedAt sql.NullTime `db:"finished_at"`
	Error      string       `db:"error"`
}

// CommitRow is a planned commit.
type CommitRow struct {
	RunID       string        `db:"run_id"`
	Seq         int           `db:"seq"`
	Branch      string        `db:"branch"`
	ParentSeq   sql.NullInt64 `db:"parent_seq"`
	Author      string        `db:"author"`
	Message     string        `db:"message"`
	CommittedAt time.Time     `db:"committed_at"`
	FileCount   int           `db:"file_count"`
}

// RevisionRow maps a file revision to the commit that carries it.
type RevisionRow struct {
	RunID     string `db:"run_id"`
	CommitSeq int    `db:"commit_seq"`
	File      string `db:"file"`
	Revision  string `db:"revision"`
	State     string `db:"state"`
}

// TagRow is a placed tag.
type TagRow struct {
	RunID     string `db:"run_id"`
	Name      string `db:"name"`
	CommitSeq int    `db:"commit_seq"`
}

// ConflictRow is a reconciliation conflict of a run.
type ConflictRow struct {
	RunID      string `db:"run_id"`
	Kind       string `db:"kind"`
	Subject    string `db:"subject"`
	Detail     string `db:"detail"`
	Resolution string `db:"resolution"`
}

// Store records conversion runs and their plans.
type Store interface {
	// Run operations
	CreateRun(ctx context.Context, root string) (*Run, error)
	FinishRun(ctx context.Context, run *Run, runErr error) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// Plan operations
	SavePlan(ctx context.Context, run *Run, plan *topology.Plan) error
	GetCommits(ctx context.Context, runID string) ([]*CommitRow, error)
	GetRevisions(ctx context.Context, runID, file string) ([]*RevisionRow, error)
	GetTags(ctx context.Context, runID string) ([]*TagRow, error)
	GetConflicts(ctx context.Context, runID string) ([]*ConflictRow, error)

	// Close connection
	Close() error
}
