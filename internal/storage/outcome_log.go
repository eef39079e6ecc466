package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/review-backfill/internal/models"
)

// OutcomeLog appends per-customer dispatch outcomes to ClickHouse. The job
// row keeps only summary counts; this log keeps the full outcome list
// inspectable after the fact. A nil log is a no-op so the pipeline runs
// without ClickHouse configured.
type OutcomeLog struct {
	db *ClickHouseDB
}

// NewOutcomeLog creates a dispatch-outcome log
func NewOutcomeLog(db *ClickHouseDB) *OutcomeLog {
	return &OutcomeLog{db: db}
}

const createOutcomeTable = `
	CREATE TABLE IF NOT EXISTS dispatch_outcomes (
		job_id      String,
		business_id String,
		email       String,
		status      LowCardinality(String),
		reason      String,
		occurred_at DateTime64(3, 'UTC')
	)
	ENGINE = MergeTree()
	PARTITION BY toYYYYMM(occurred_at)
	ORDER BY (business_id, job_id, occurred_at)
`

// EnsureSchema creates the outcome table if it does not exist
func (l *OutcomeLog) EnsureSchema(ctx context.Context) error {
	if l == nil || l.db == nil {
		return nil
	}
	if err := l.db.Conn().Exec(ctx, createOutcomeTable); err != nil {
		return fmt.Errorf("failed to create dispatch_outcomes table: %w", err)
	}
	return nil
}

// Append batch-inserts one job's outcomes
func (l *OutcomeLog) Append(ctx context.Context, jobID, businessID string, outcomes []models.DispatchOutcome) error {
	if l == nil || l.db == nil || len(outcomes) == 0 {
		return nil
	}

	batch, err := l.db.Conn().PrepareBatch(ctx, `
		INSERT INTO dispatch_outcomes (job_id, business_id, email, status, reason, occurred_at)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare outcome batch: %w", err)
	}

	now := time.Now().UTC()
	for _, o := range outcomes {
		if err := batch.Append(jobID, businessID, o.Email, string(o.Status), o.Reason, now); err != nil {
			return fmt.Errorf("failed to append outcome: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send outcome batch: %w", err)
	}

	return nil
}
