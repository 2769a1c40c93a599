package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/syncbox/internal/model"
)

// EnqueueJob inserts a job, or replaces the mutable fields when the id
// already exists. Re-enqueueing the same id is how retries persist
// their next attempt.
func (s *Store) EnqueueJob(ctx context.Context, job model.SyncJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.MaxAttempts < 1 {
		job.MaxAttempts = 5
	}
	if job.PayloadJSON == "" {
		job.PayloadJSON = "{}"
	}
	if job.Status == "" {
		job.Status = model.StatusQueued
	}

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.RunAfter.IsZero() {
		job.RunAfter = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_jobs (
			id, account_id, domain, status, payload,
			attempt_count, max_attempts, run_after, last_error,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			payload = excluded.payload,
			attempt_count = excluded.attempt_count,
			run_after = excluded.run_after,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at`,
		job.ID.String(), job.AccountID.String(), string(job.Domain),
		string(job.Status), job.PayloadJSON,
		job.AttemptCount, job.MaxAttempts, job.RunAfter.UTC(), job.LastError,
		job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueueing job %s: %w", job.ID, err)
	}
	return nil
}

// FetchDueJobs returns up to limit queued jobs whose run_after has
// passed, oldest deadline first.
func (s *Store) FetchDueJobs(ctx context.Context, limit int) ([]model.SyncJob, error) {
	if limit < 1 {
		limit = 40
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT * FROM sync_jobs
		WHERE status = ? AND run_after <= ?
		ORDER BY run_after ASC
		LIMIT ?`,
		string(model.StatusQueued), time.Now().UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying due jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.SyncJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// UpdateJobStatus transitions a job. attemptCount and lastError are
// optional; nil leaves the stored value in place.
func (s *Store) UpdateJobStatus(
	ctx context.Context,
	id uuid.UUID,
	status model.SyncStatus,
	attemptCount *int,
	lastError *string,
) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET
			status = ?,
			attempt_count = COALESCE(?, attempt_count),
			last_error = COALESCE(?, last_error),
			updated_at = ?
		WHERE id = ?`,
		string(status), attemptCount, lastError, time.Now().UTC(), id.String(),
	)
	if err != nil {
		return fmt.Errorf("updating job %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("job %s not found", id)
	}
	return nil
}

// HasActiveJob reports whether the account already has a queued or
// running job in the domain. The seeder uses this to avoid duplicates.
func (s *Store) HasActiveJob(
	ctx context.Context,
	accountID uuid.UUID,
	domain model.SyncDomain,
) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sync_jobs
		WHERE account_id = ? AND domain = ? AND status IN (?, ?)`,
		accountID.String(), string(domain),
		string(model.StatusQueued), string(model.StatusRunning),
	)
	if err != nil {
		return false, fmt.Errorf("checking active jobs: %w", err)
	}
	return count > 0, nil
}

// LastCompletedAt returns when the account's domain last completed a
// sync, or nil if it never has.
func (s *Store) LastCompletedAt(
	ctx context.Context,
	accountID uuid.UUID,
	domain model.SyncDomain,
) (*time.Time, error) {
	// Selecting the column keeps its declared type; an aggregate like
	// MAX() loses it and comes back from the driver as a bare string.
	var updatedAt time.Time
	err := s.db.GetContext(ctx, &updatedAt, `
		SELECT updated_at FROM sync_jobs
		WHERE account_id = ? AND domain = ? AND status = ?
		ORDER BY updated_at DESC
		LIMIT 1`,
		accountID.String(), string(domain), string(model.StatusCompleted),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading last completion: %w", err)
	}
	return &updatedAt, nil
}

// CountPendingJobs counts jobs still waiting to run or mid-flight.
func (s *Store) CountPendingJobs(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM sync_jobs
		WHERE status IN (?, ?)`,
		string(model.StatusQueued), string(model.StatusRunning),
	)
	if err != nil {
		return 0, fmt.Errorf("counting pending jobs: %w", err)
	}
	return count, nil
}

// RequeueStaleRunning flips Running jobs that have not been touched
// since the threshold back to Queued. Run at startup, it recovers jobs
// orphaned by a crash mid-flight.
func (s *Store) RequeueStaleRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE status = ? AND updated_at < ?`,
		string(model.StatusQueued), time.Now().UTC(),
		string(model.StatusRunning), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

// GetJobByID retrieves a single job.
func (s *Store) GetJobByID(ctx context.Context, id uuid.UUID) (*model.SyncJob, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM sync_jobs WHERE id = ?", id.String())
	if err != nil {
		return nil, fmt.Errorf("querying job %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("job %s not found", id)
	}
	job, err := scanJob(rows)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// scanJob scans a sync_jobs row from a sqlx.Rows result set.
func scanJob(rows *sqlx.Rows) (model.SyncJob, error) {
	var (
		job       model.SyncJob
		id        string
		accountID string
		domain    string
		status    string
	)

	err := rows.Scan(
		&id, &accountID, &domain, &status, &job.PayloadJSON,
		&job.AttemptCount, &job.MaxAttempts, &job.RunAfter, &job.LastError,
		&job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("scanning job row: %w", err)
	}

	job.ID, err = uuid.Parse(id)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("parsing job id %q: %w", id, err)
	}
	job.AccountID, err = uuid.Parse(accountID)
	if err != nil {
		return model.SyncJob{}, fmt.Errorf("parsing job account id %q: %w", accountID, err)
	}
	job.Domain = model.SyncDomain(domain)
	job.Status = model.SyncStatus(status)

	return job, nil
}
