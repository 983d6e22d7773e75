package storage

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/rcs2git/internal/topology"
)

// SQLiteStore keeps conversion plans in a local SQLite database.
type SQLiteStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens (creating if needed) the plan database at path.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	db.Exec("PRAGMA foreign_keys = ON")
	db.Exec("PRAGMA journal_mode = WAL")

	if logger == nil {
		logger = logrus.StandardLogger()
	}
	store := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		root TEXT NOT NULL,
		status TEXT NOT NULL,
		file_count INTEGER NOT NULL DEFAULT 0,
		revision_count INTEGER NOT NULL DEFAULT 0,
		commit_count INTEGER NOT NULL DEFAULT 0,
		branch_count INTEGER NOT NULL DEFAULT 0,
		tag_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME NOT NULL,
		finished_at DATETIME,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS commits (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		branch TEXT NOT NULL,
		parent_seq INTEGER,
		author TEXT,
		message TEXT,
		committed_at DATETIME,
		file_count INTEGER,
		PRIMARY KEY (run_id, seq),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS revisions (
		run_id TEXT NOT NULL,
		commit_seq INTEGER NOT NULL,
		file TEXT NOT NULL,
		revision TEXT NOT NULL,
		state TEXT,
		PRIMARY KEY (run_id, file, revision),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		run_id TEXT NOT NULL,
		name TEXT NOT NULL,
		commit_seq INTEGER NOT NULL,
		PRIMARY KEY (run_id, name),
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS conflicts (
		run_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		subject TEXT NOT NULL,
		detail TEXT,
		resolution TEXT,
		FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_commits_branch ON commits(run_id, branch);
	CREATE INDEX IF NOT EXISTS idx_revisions_commit ON revisions(run_id, commit_seq);
	CREATE INDEX IF NOT EXISTS idx_conflicts_run ON conflicts(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Run operations
func (s *SQLiteStore) CreateRun(ctx context.Context, root string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Root:      root,
		Status:    RunPlanned,
		StartedAt: time.Now().UTC(),
	}
	query := `INSERT INTO runs (id, root, status, started_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, run.ID, run.Root, run.Status, run.StartedAt); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	return run, nil
}

// FinishRun marks the run emitted, or failed when runErr is set.
func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run, runErr error) error {
	run.Status = RunEmitted
	run.Error = ""
	if runErr != nil {
		run.Status = RunFailed
		run.Error = runErr.Error()
	}
	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}

	query := `UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, run.Status, run.Error, run.FinishedAt, run.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := `SELECT * FROM runs WHERE id = ?`

	err := s.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	var runs []*Run
	query := `SELECT * FROM runs ORDER BY started_at DESC LIMIT ?`

	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}
	return runs, nil
}

// SavePlan replaces the stored plan of a run and updates its counters.
func (s *SQLiteStore) SavePlan(ctx context.Context, run *Run, plan *topology.Plan) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"commits", "revisions", "tags", "conflicts"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE run_id = ?`, run.ID); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	commitQuery := `
		INSERT INTO commits
		(run_id, seq, branch, parent_seq, author, message, committed_at, file_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	revisionQuery := `
		INSERT INTO revisions (run_id, commit_seq, file, revision, state)
		VALUES (?, ?, ?, ?, ?)
	`
	files := make(map[string]bool)
	revisions := 0
	for _, c := range plan.Commits {
		var parent sql.NullInt64
		if c.Parent != nil {
			parent = sql.NullInt64{Int64: int64(c.Parent.Order), Valid: true}
		}
		cand := c.Candidate
		_, err := tx.ExecContext(ctx, commitQuery,
			run.ID, c.Order, c.Branch.Name, parent, cand.Author,
			cand.Message, c.When, len(cand.Records))
		if err != nil {
			return fmt.Errorf("save commit %d: %w", c.Order, err)
		}
		for _, r := range cand.Records {
			_, err := tx.ExecContext(ctx, revisionQuery,
				run.ID, c.Order, r.File, string(r.Revision), r.State)
			if err != nil {
				return fmt.Errorf("save revision %s: %w", r.Key(), err)
			}
			files[r.File] = true
			revisions++
		}
	}

	for _, t := range plan.Tags {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tags (run_id, name, commit_seq) VALUES (?, ?, ?)`,
			run.ID, t.Name, t.Target.Order)
		if err != nil {
			return fmt.Errorf("save tag %s: %w", t.Name, err)
		}
	}

	for _, c := range plan.Conflicts {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conflicts (run_id, kind, subject, detail, resolution) VALUES (?, ?, ?, ?, ?)`,
			run.ID, c.Kind, c.Subject, c.Detail, c.Resolution)
		if err != nil {
			return fmt.Errorf("save conflict %s: %w", c.Subject, err)
		}
	}

	run.Files = len(files)
	run.Revisions = revisions
	run.Commits = len(plan.Commits)
	run.Branches = len(plan.Branches)
	run.Tags = len(plan.Tags)
	_, err = tx.ExecContext(ctx, `
		UPDATE runs SET file_count = ?, revision_count = ?, commit_count = ?,
		branch_count = ?, tag_count = ? WHERE id = ?`,
		run.Files, run.Revisions, run.Commits, run.Branches, run.Tags, run.ID)
	if err != nil {
		return fmt.Errorf("update run counters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{
		"run":     run.ID,
		"commits": run.Commits,
		"tags":    run.Tags,
	}).Debug("Plan saved")
	return nil
}

func (s *SQLiteStore) GetCommits(ctx context.Context, runID string) ([]*CommitRow, error) {
	var commits []*CommitRow
	query := `SELECT * FROM commits WHERE run_id = ? ORDER BY seq`

	if err := s.db.SelectContext(ctx, &commits, query, runID); err != nil {
		return nil, err
	}
	return commits, nil
}

// GetRevisions lists the revisions of a run, of one file when file is set.
func (s *SQLiteStore) GetRevisions(ctx context.Context, runID, file string) ([]*RevisionRow, error) {
	var revs []*RevisionRow

	query := `SELECT * FROM revisions WHERE run_id = ?`
	args := []interface{}{runID}

	if file != "" {
		query += ` AND file = ?`
		args = append(args, file)
	}
	query += ` ORDER BY commit_seq, file`

	if err := s.db.SelectContext(ctx, &revs, query, args...); err != nil {
		return nil, err
	}
	return revs, nil
}

func (s *SQLiteStore) GetTags(ctx context.Context, runID string) ([]*TagRow, error) {
	var tags []*TagRow
	query := `SELECT * FROM tags WHERE run_id = ? ORDER BY name`

	if err := s.db.SelectContext(ctx, &tags, query, runID); err != nil {
		return nil, err
	}
	return tags, nil
}

func (s *SQLiteStore) GetConflicts(ctx context.Context, runID string) ([]*ConflictRow, error) {
	var conflicts []*ConflictRow
	query := `SELECT * FROM conflicts WHERE run_id = ? ORDER BY kind, subject`

	if err := s.db.SelectContext(ctx, &conflicts, query, runID); err != nil {
		return nil, err
	}
	return conflicts, nil
}

var _ Store = (*SQLiteStore)(nil)
