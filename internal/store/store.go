// Package store persists jobs and their artifacts (source image, BOM JSON and
// CSV, preview PNG) in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/maax3v3/brickify/internal/aggregation"
)

var (
	// ErrNotFound is returned for unknown jobs and artifacts.
	ErrNotFound = errors.New("not found")
	// ErrInvalidJobID is returned for ids outside [A-Za-z0-9_-]{1,64}.
	ErrInvalidJobID = errors.New("invalid job id")
)

var jobIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidJobID reports whether id may be used as a job key.
func ValidJobID(id string) bool {
	return jobIDPattern.MatchString(id)
}

// NewJobID returns a fresh random job id.
func NewJobID() string {
	return uuid.NewString()
}

// Job is one user flow and the totals of its last saved BOM.
type Job struct {
	ID          string
	CreatedAt   time.Time
	TotalPieces int
	TotalStuds  int
	UniqueItems int
}

// File is an artifact to be written.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Artifact is a stored file.
type Artifact struct {
	JobID       string
	Name        string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// ArtifactInfo describes a stored file without its contents.
type ArtifactInfo struct {
	Name        string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

const schema = `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id            TEXT PRIMARY KEY,
		created_at        INTEGER NOT NULL,
		total_pieces      INTEGER NOT NULL DEFAULT 0,
		total_studs       INTEGER NOT NULL DEFAULT 0,
		unique_items      INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS artifacts (
		job_id            TEXT NOT NULL,
		name              TEXT NOT NULL,
		content_type      TEXT NOT NULL,
		data              BLOB NOT NULL,
		created_at        INTEGER NOT NULL,
		PRIMARY KEY (job_id, name),
		FOREIGN KEY (job_id) REFERENCES jobs(job_id) ON DELETE CASCADE
	);
`

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) ensureJob(ctx context.Context, ex execer, id string) error {
	if !ValidJobID(id) {
		return fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	_, err := ex.ExecContext(ctx,
		`INSERT INTO jobs (job_id, created_at) VALUES (?, ?) ON CONFLICT(job_id) DO NOTHING`,
		id, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// CreateJob registers id, generating one when empty. Creating an existing
// job is a no-op.
func (s *Store) CreateJob(ctx context.Context, id string) (Job, error) {
	if id == "" {
		id = NewJobID()
	}
	if err := s.ensureJob(ctx, s.db, id); err != nil {
		return Job{}, err
	}
	return s.Job(ctx, id)
}

// Job returns the job with the given id.
func (s *Store) Job(ctx context.Context, id string) (Job, error) {
	var (
		j       Job
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, created_at, total_pieces, total_studs, unique_items FROM jobs WHERE job_id = ?`, id,
	).Scan(&j.ID, &created, &j.TotalPieces, &j.TotalStuds, &j.UniqueItems)
	if err == sql.ErrNoRows {
		return Job{}, fmt.Errorf("job %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to load job: %w", err)
	}
	j.CreatedAt = time.UnixMilli(created).UTC()
	return j, nil
}

const upsertArtifact = `
	INSERT INTO artifacts (job_id, name, content_type, data, created_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(job_id, name) DO UPDATE SET
		content_type = excluded.content_type,
		data = excluded.data,
		created_at = excluded.created_at
`

// SaveArtifact stores one file under jobID, replacing any file of the same
// name. The job is created when missing.
func (s *Store) SaveArtifact(ctx context.Context, jobID string, f File) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureJob(ctx, tx, jobID); err != nil {
			return err
		}
		return s.putFile(ctx, tx, jobID, f)
	})
}

// SaveBOM records the totals of r on the job and stores files in the same
// transaction.
func (s *Store) SaveBOM(ctx context.Context, jobID string, r *aggregation.Result, files ...File) error {
	if r == nil {
		return errors.New("nil result")
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if err := s.ensureJob(ctx, tx, jobID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE jobs SET total_pieces = ?, total_studs = ?, unique_items = ? WHERE job_id = ?`,
			r.TotalPieces, r.TotalStuds, r.UniqueItems, jobID)
		if err != nil {
			return fmt.Errorf("failed to update job totals: %w", err)
		}
		for _, f := range files {
			if err := s.putFile(ctx, tx, jobID, f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) putFile(ctx context.Context, tx *sql.Tx, jobID string, f File) error {
	if f.Name == "" {
		return errors.New("artifact name is required")
	}
	data := f.Data
	if data == nil {
		data = []byte{}
	}
	_, err := tx.ExecContext(ctx, upsertArtifact, jobID, f.Name, f.ContentType, data, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", f.Name, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			log.Printf("warning: failed to rollback transaction: %v", err)
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Artifact returns a stored file.
func (s *Store) Artifact(ctx context.Context, jobID, name string) (*Artifact, error) {
	a := Artifact{JobID: jobID, Name: name}
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT content_type, data, created_at FROM artifacts WHERE job_id = ? AND name = ?`, jobID, name,
	).Scan(&a.ContentType, &a.Data, &created)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("artifact %s/%s: %w", jobID, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact: %w", err)
	}
	a.CreatedAt = time.UnixMilli(created).UTC()
	return &a, nil
}

// List returns the files of a job ordered by name. Unknown jobs yield
// ErrNotFound; known jobs without files yield an empty list.
func (s *Store) List(ctx context.Context, jobID string) ([]ArtifactInfo, error) {
	if _, err := s.Job(ctx, jobID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, content_type, length(data), created_at FROM artifacts WHERE job_id = ? ORDER BY name`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	out := make([]ArtifactInfo, 0)
	for rows.Next() {
		var (
			info    ArtifactInfo
			created int64
		)
		if err := rows.Scan(&info.Name, &info.ContentType, &info.Size, &created); err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		info.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
