package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/types"
)

// BackfillJobRepository handles backfill job persistence.
//
// The backfill_jobs table carries a partial unique index on business_id for
// rows in 'pending' or 'running' status, so inserting a second active job
// for the same business fails with a unique violation. That violation is
// surfaced as ErrJobConflict and mapped to a 409 upstream.
type BackfillJobRepository struct {
	db *PostgresDB
}

// NewBackfillJobRepository creates a new backfill job repository
func NewBackfillJobRepository(db *PostgresDB) *BackfillJobRepository {
	return &BackfillJobRepository{db: db}
}

const jobColumns = `
	job_id, merchant_id, business_id, status, start_date, end_date,
	max_customers, dry_run, total_considered, sent_count, skipped_count,
	unparseable_count, error_message, created_at, updated_at, completed_at
`

// Create inserts a new job record. Returns ErrJobConflict when an active
// job already exists for the business.
func (r *BackfillJobRepository) Create(ctx context.Context, job *models.BackfillJob) error {
	query := `
		INSERT INTO backfill_jobs (` + jobColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := r.db.Pool().Exec(ctx, query,
		job.JobID,
		job.MerchantID,
		job.BusinessID,
		job.Status,
		job.StartDate,
		job.EndDate,
		job.MaxCustomers,
		job.DryRun,
		job.TotalConsidered,
		job.SentCount,
		job.SkippedCount,
		job.UnparseableCount,
		job.ErrorMessage,
		job.CreatedAt,
		job.UpdatedAt,
		job.CompletedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrJobConflict
		}
		return fmt.Errorf("failed to create backfill job: %w", err)
	}

	return nil
}

// GetByID retrieves a backfill job by ID
func (r *BackfillJobRepository) GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	query := `SELECT ` + jobColumns + ` FROM backfill_jobs WHERE job_id = $1`

	var job models.BackfillJob
	err := r.db.Pool().QueryRow(ctx, query, jobID).Scan(
		&job.JobID,
		&job.MerchantID,
		&job.BusinessID,
		&job.Status,
		&job.StartDate,
		&job.EndDate,
		&job.MaxCustomers,
		&job.DryRun,
		&job.TotalConsidered,
		&job.SentCount,
		&job.SkippedCount,
		&job.UnparseableCount,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get backfill job: %w", err)
	}

	return &job, nil
}

// Update persists job status and counts. Terminal rows are never updated
// again; UpdateStatus guards the transition at the SQL level.
func (r *BackfillJobRepository) Update(ctx context.Context, job *models.BackfillJob) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2, total_considered = $3, sent_count = $4, skipped_count = $5,
			unparseable_count = $6, error_message = $7, updated_at = $8, completed_at = $9
		WHERE job_id = $1 AND status NOT IN ('completed', 'failed')
	`

	job.UpdatedAt = time.Now().UTC()

	result, err := r.db.Pool().Exec(ctx, query,
		job.JobID,
		job.Status,
		job.TotalConsidered,
		job.SentCount,
		job.SkippedCount,
		job.UnparseableCount,
		job.ErrorMessage,
		job.UpdatedAt,
		job.CompletedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to update backfill job: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

// UpdateStatus transitions a non-terminal job to a new status
func (r *BackfillJobRepository) UpdateStatus(ctx context.Context, jobID string, status types.JobStatus) error {
	query := `
		UPDATE backfill_jobs
		SET status = $2, updated_at = $3
		WHERE job_id = $1 AND status NOT IN ('completed', 'failed')
	`

	result, err := r.db.Pool().Exec(ctx, query, jobID, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update backfill job status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

// ListByBusiness retrieves recent jobs for a business, newest first
func (r *BackfillJobRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]*models.BackfillJob, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM backfill_jobs
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, businessID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list backfill jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.BackfillJob
	for rows.Next() {
		var job models.BackfillJob

		err := rows.Scan(
			&job.JobID,
			&job.MerchantID,
			&job.BusinessID,
			&job.Status,
			&job.StartDate,
			&job.EndDate,
			&job.MaxCustomers,
			&job.DryRun,
			&job.TotalConsidered,
			&job.SentCount,
			&job.SkippedCount,
			&job.UnparseableCount,
			&job.ErrorMessage,
			&job.CreatedAt,
			&job.UpdatedAt,
			&job.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan backfill job: %w", err)
		}

		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backfill jobs: %w", err)
	}

	return jobs, nil
}
