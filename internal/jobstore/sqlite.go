package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/recruitai/screening-agent/internal/models"
)

// SQLite is a durable store. The result payload is serialized as JSON; the
// lifecycle fields stay in columns so pollers are cheap.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed creates) the job database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening job database: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS jobs (
  id TEXT PRIMARY KEY,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  status TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  current_step TEXT NOT NULL DEFAULT '',
  result_json TEXT,
  error_message TEXT
);
`); err != nil {
		return nil, fmt.Errorf("creating jobs table: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Create(ctx context.Context, job models.Job) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, created_at, updated_at, status, progress, current_step)
         VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.CreatedAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
		string(job.Status),
		job.Progress,
		job.CurrentStep,
	)
	if err != nil {
		return fmt.Errorf("inserting job %s: %w", job.ID, err)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, status, progress, current_step, result_json, error_message
       FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Update performs a read-modify-write inside one transaction so concurrent
// progress updates for the same job serialize.
func (s *SQLite) Update(ctx context.Context, id string, mutate func(*models.Job)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning update: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, created_at, updated_at, status, progress, current_step, result_json, error_message
       FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if err != nil {
		return err
	}

	applyGuarded(&job, mutate)
	job.UpdatedAt = time.Now().UTC()

	var resultJSON sql.NullString
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("marshaling result for job %s: %w", id, err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE jobs SET updated_at = ?, status = ?, progress = ?, current_step = ?, result_json = ?, error_message = ?
       WHERE id = ?`,
		job.UpdatedAt.UnixMilli(),
		string(job.Status),
		job.Progress,
		job.CurrentStep,
		resultJSON,
		nullString(job.Error),
		id,
	); err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (models.Job, error) {
	var (
		id, statusStr, step  string
		createdMs, updatedMs int64
		progress             int
		resultJSON, errorMsg sql.NullString
	)
	if err := row.Scan(&id, &createdMs, &updatedMs, &statusStr, &progress, &step, &resultJSON, &errorMsg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, models.ErrNotFound
		}
		return models.Job{}, fmt.Errorf("scanning job row: %w", err)
	}

	job := models.Job{
		ID:          id,
		Status:      models.JobStatus(statusStr),
		Progress:    progress,
		CurrentStep: step,
		CreatedAt:   time.UnixMilli(createdMs).UTC(),
		UpdatedAt:   time.UnixMilli(updatedMs).UTC(),
	}
	if errorMsg.Valid {
		job.Error = errorMsg.String
	}
	if resultJSON.Valid {
		var res models.JobResult
		if err := json.Unmarshal([]byte(resultJSON.String), &res); err != nil {
			return models.Job{}, fmt.Errorf("unmarshaling result for job %s: %w", id, err)
		}
		job.Result = &res
	}
	return job, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
