package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// OutreachRepository persists when each customer was last sent a review
// request. The eligibility filter consults it to enforce the lookback
// window across runs.
type OutreachRepository struct {
	db *PostgresDB
}

// NewOutreachRepository creates a new outreach history repository
func NewOutreachRepository(db *PostgresDB) *OutreachRepository {
	return &OutreachRepository{db: db}
}

// LastContacted returns when the customer was last sent a review request,
// or nil if never contacted.
func (r *OutreachRepository) LastContacted(ctx context.Context, businessID, email string) (*time.Time, error) {
	query := `
		SELECT sent_at
		FROM review_requests
		WHERE business_id = $1 AND email = $2
		ORDER BY sent_at DESC
		LIMIT 1
	`

	var sentAt time.Time
	err := r.db.Pool().QueryRow(ctx, query, businessID, email).Scan(&sentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up outreach history: %w", err)
	}

	return &sentAt, nil
}

// RecordContacted appends an outreach record. Called only after a
// successful live send; dry runs never write here.
func (r *OutreachRepository) RecordContacted(ctx context.Context, businessID, email string, ts time.Time) error {
	query := `
		INSERT INTO review_requests (business_id, email, sent_at)
		VALUES ($1, $2, $3)
	`

	_, err := r.db.Pool().Exec(ctx, query, businessID, email, ts)
	if err != nil {
		return fmt.Errorf("failed to record outreach: %w", err)
	}

	return nil
}
