package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"

	upscaler "github.com/CheapNud/CheapUpscaler-sub000"
	"github.com/CheapNud/CheapUpscaler-sub000/id"
	"github.com/CheapNud/CheapUpscaler-sub000/job"
)

// SQLite extended result codes for primary-key and unique violations.
const (
	codeConstraintPrimaryKey = 1555
	codeConstraintUnique     = 2067
)

// Add inserts a new job row.
func (s *Store) Add(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: add job: %w", err)
	}
	query := `INSERT INTO upscaler_jobs (` + jobColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, query, m.insertArgs()...); err != nil {
		if isDuplicateKey(err) {
			return upscaler.ErrJobAlreadyExists
		}
		return fmt.Errorf("upscaler/sqlite: add job: %w", err)
	}
	return nil
}

// Update rewrites every mutable column of an existing job row.
func (s *Store) Update(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: update job: %w", err)
	}
	query := `UPDATE upscaler_jobs SET
		source_path = ?, output_path = ?, kind = ?, settings = ?, status = ?,
		progress = ?, current_frame = ?, total_frames = ?, time_remaining_ms = ?,
		last_error = ?, error_detail = ?, retry_count = ?, max_retries = ?,
		owning_pid = ?, owning_hostname = ?,
		created_at = ?, queued_at = ?, started_at = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query,
		m.SourcePath, m.OutputPath, m.Kind, m.Settings, m.Status,
		m.Progress, m.CurrentFrame, m.TotalFrames, m.TimeRemainingMS,
		m.LastError, m.ErrorDetail, m.RetryCount, m.MaxRetries,
		m.OwningPID, m.OwningHostname,
		m.CreatedAt, m.QueuedAt, m.StartedAt, m.CompletedAt, m.UpdatedAt,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: update job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: update job: %w", err)
	}
	if affected == 0 {
		return upscaler.ErrJobNotFound
	}
	return nil
}

// Delete removes a job row by ID.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM upscaler_jobs WHERE id = ?`, jobID.String())
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: delete job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("upscaler/sqlite: delete job: %w", err)
	}
	if affected == 0 {
		return upscaler.ErrJobNotFound
	}
	return nil
}

// GetByID retrieves a single job row.
func (s *Store) GetByID(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upscaler_jobs WHERE id = ?`
	var m jobModel
	if err := s.db.QueryRowContext(ctx, query, jobID.String()).Scan(m.scanArgs()...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, upscaler.ErrJobNotFound
		}
		return nil, fmt.Errorf("upscaler/sqlite: get job: %w", err)
	}
	j, err := fromJobModel(&m)
	if err != nil {
		return nil, fmt.Errorf("upscaler/sqlite: get job: %w", err)
	}
	return j, nil
}

// GetByIDs retrieves the jobs for the given IDs. Missing IDs are skipped.
func (s *Store) GetByIDs(ctx context.Context, jobIDs []id.JobID) ([]*job.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(jobIDs)), ",")
	args := make([]any, len(jobIDs))
	for i, jobID := range jobIDs {
		args[i] = jobID.String()
	}
	query := `SELECT ` + jobColumns + ` FROM upscaler_jobs
		WHERE id IN (` + placeholders + `) ORDER BY created_at ASC, id ASC`
	return s.queryJobs(ctx, query, args...)
}

// GetAll returns every persisted job, oldest first.
func (s *Store) GetAll(ctx context.Context) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upscaler_jobs ORDER BY created_at ASC, id ASC`
	return s.queryJobs(ctx, query)
}

// ListByStatus returns jobs matching the given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status job.Status) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM upscaler_jobs
		WHERE status = ? ORDER BY created_at ASC, id ASC`
	return s.queryJobs(ctx, query, string(status))
}

// CountByStatus returns the number of jobs in the given status.
func (s *Store) CountByStatus(ctx context.Context, status job.Status) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM upscaler_jobs WHERE status = ?`, string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("upscaler/sqlite: count jobs: %w", err)
	}
	return count, nil
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upscaler/sqlite: query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		var m jobModel
		if err := rows.Scan(m.scanArgs()...); err != nil {
			return nil, fmt.Errorf("upscaler/sqlite: scan job: %w", err)
		}
		j, err := fromJobModel(&m)
		if err != nil {
			return nil, fmt.Errorf("upscaler/sqlite: scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upscaler/sqlite: query jobs: %w", err)
	}
	return jobs, nil
}

func isDuplicateKey(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == codeConstraintPrimaryKey || se.Code() == codeConstraintUnique
}
