package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/mail-responder/internal/model"
)

// CreateJob inserts a new bulk job in QUEUED state.
func (s *SQLiteStore) CreateJob(ctx context.Context, job model.BulkJob) error {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.Kind == "" {
		job.Kind = model.JobKindBulkSend
	}
	if job.Status == "" {
		job.Status = model.JobQueued
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_jobs (
			id, user_id, kind, total, processed, success, failed,
			status, last_error, created_at, updated_at
		) VALUES (?, ?, ?, ?, 0, 0, 0, ?, '', ?, ?)`,
		job.ID, job.UserID, job.Kind, job.Total, string(job.Status), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting bulk job: %w", err)
	}

	return nil
}

// GetJob retrieves a bulk job owned by the user.
func (s *SQLiteStore) GetJob(ctx context.Context, id, userID string) (*model.BulkJob, error) {
	var (
		job    model.BulkJob
		status string
	)

	err := s.db.QueryRowxContext(ctx, `
		SELECT id, user_id, kind, total, processed, success, failed,
		       status, last_error, created_at, updated_at
		FROM bulk_jobs
		WHERE id = ? AND user_id = ?`,
		id, userID,
	).Scan(
		&job.ID, &job.UserID, &job.Kind,
		&job.Total, &job.Processed, &job.Success, &job.Failed,
		&status, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting bulk job %s: %w", id, err)
	}

	job.Status = model.JobStatus(status)
	return &job, nil
}

// GetJobResults returns the per-item results of a job in input order.
func (s *SQLiteStore) GetJobResults(ctx context.Context, id string) ([]model.JobResult, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT message_id, ok, error
		FROM bulk_job_results
		WHERE job_id = ?
		ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("querying job results %s: %w", id, err)
	}
	defer rows.Close()

	var results []model.JobResult
	for rows.Next() {
		var (
			r  model.JobResult
			ok int
		)
		if err := rows.Scan(&r.MessageID, &ok, &r.Error); err != nil {
			return nil, fmt.Errorf("scanning job result: %w", err)
		}
		r.OK = ok != 0
		results = append(results, r)
	}

	return results, rows.Err()
}

// MarkJobRunning transitions the job to RUNNING.
func (s *SQLiteStore) MarkJobRunning(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, model.JobRunning, "")
}

// AppendJobResult records one processed item in a single transaction:
// the counters are bumped and the per-item result is appended
// together, so a concurrent poller always observes
// processed == success + failed.
func (s *SQLiteStore) AppendJobResult(
	ctx context.Context,
	id string,
	seq int,
	res model.JobResult,
) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning job result transaction: %w", err)
	}
	defer tx.Rollback()

	successDelta, failedDelta := 1, 0
	if !res.OK {
		successDelta, failedDelta = 0, 1
	}

	if res.OK {
		_, err = tx.ExecContext(ctx, `
			UPDATE bulk_jobs
			SET processed = processed + 1, success = success + ?, failed = failed + ?,
			    updated_at = ?
			WHERE id = ?`,
			successDelta, failedDelta, time.Now().UTC(), id,
		)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE bulk_jobs
			SET processed = processed + 1, success = success + ?, failed = failed + ?,
			    last_error = ?, updated_at = ?
			WHERE id = ?`,
			successDelta, failedDelta, res.Error, time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("updating job counters %s: %w", id, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bulk_job_results (job_id, seq, message_id, ok, error)
		VALUES (?, ?, ?, ?, ?)`,
		id, seq, res.MessageID, boolToInt(res.OK), res.Error,
	)
	if err != nil {
		return fmt.Errorf("appending job result %s[%d]: %w", id, seq, err)
	}

	return tx.Commit()
}

// MarkJobDone transitions the job to DONE. Partial failure is still
// DONE; the failed counter is the signal.
func (s *SQLiteStore) MarkJobDone(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, model.JobDone, "")
}

// MarkJobFailed transitions the job to FAILED with the given error.
// Reserved for unexpected engine-level failures, not item failures.
func (s *SQLiteStore) MarkJobFailed(ctx context.Context, id, jobErr string) error {
	return s.setJobStatus(ctx, id, model.JobFailed, jobErr)
}

func (s *SQLiteStore) setJobStatus(
	ctx context.Context,
	id string,
	status model.JobStatus,
	jobErr string,
) error {
	var err error
	if jobErr != "" {
		_, err = s.db.ExecContext(ctx, `
			UPDATE bulk_jobs SET status = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			string(status), jobErr, time.Now().UTC(), id,
		)
	} else {
		_, err = s.db.ExecContext(ctx, `
			UPDATE bulk_jobs SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), time.Now().UTC(), id,
		)
	}
	if err != nil {
		return fmt.Errorf("setting job %s status %s: %w", id, status, err)
	}
	return nil
}
