package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/review-backfill/internal/models"
)

// ConnectionRepository persists commerce platform connections, one row per
// merchant.
type ConnectionRepository struct {
	db *PostgresDB
}

// NewConnectionRepository creates a new connection repository
func NewConnectionRepository(db *PostgresDB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const connectionColumns = `
	merchant_id, business_id, business_name, access_token, refresh_token,
	token_expires_at, platform_merchant_id, default_location_id, environment,
	last_backfill_at, created_at, updated_at
`

// GetByMerchant retrieves a merchant's connection
func (r *ConnectionRepository) GetByMerchant(ctx context.Context, merchantID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE merchant_id = $1`

	var conn models.Connection
	err := r.db.Pool().QueryRow(ctx, query, merchantID).Scan(
		&conn.MerchantID,
		&conn.BusinessID,
		&conn.BusinessName,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.TokenExpiresAt,
		&conn.PlatformMerchantID,
		&conn.DefaultLocationID,
		&conn.Environment,
		&conn.LastBackfillAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}

// GetByBusiness retrieves the connection owning a business
func (r *ConnectionRepository) GetByBusiness(ctx context.Context, businessID string) (*models.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connections WHERE business_id = $1`

	var conn models.Connection
	err := r.db.Pool().QueryRow(ctx, query, businessID).Scan(
		&conn.MerchantID,
		&conn.BusinessID,
		&conn.BusinessName,
		&conn.AccessToken,
		&conn.RefreshToken,
		&conn.TokenExpiresAt,
		&conn.PlatformMerchantID,
		&conn.DefaultLocationID,
		&conn.Environment,
		&conn.LastBackfillAt,
		&conn.CreatedAt,
		&conn.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConnectionNotFound
		}
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}

// Create inserts a new connection. Created on OAuth completion, which is an
// external collaborator; kept here so disconnect/reconnect round-trips work.
func (r *ConnectionRepository) Create(ctx context.Context, conn *models.Connection) error {
	query := `
		INSERT INTO connections (` + connectionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	now := time.Now().UTC()
	if conn.CreatedAt.IsZero() {
		conn.CreatedAt = now
	}
	conn.UpdatedAt = now

	_, err := r.db.Pool().Exec(ctx, query,
		conn.MerchantID,
		conn.BusinessID,
		conn.BusinessName,
		conn.AccessToken,
		conn.RefreshToken,
		conn.TokenExpiresAt,
		conn.PlatformMerchantID,
		conn.DefaultLocationID,
		conn.Environment,
		conn.LastBackfillAt,
		conn.CreatedAt,
		conn.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create connection: %w", err)
	}

	return nil
}

// UpdateToken persists a refreshed access token and its expiry
func (r *ConnectionRepository) UpdateToken(ctx context.Context, merchantID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE connections
		SET access_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = $5
		WHERE merchant_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, merchantID, accessToken, refreshToken, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update connection token: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// TouchLastBackfill records when a live backfill last completed for the merchant
func (r *ConnectionRepository) TouchLastBackfill(ctx context.Context, merchantID string, ts time.Time) error {
	query := `
		UPDATE connections
		SET last_backfill_at = $2, updated_at = $3
		WHERE merchant_id = $1
	`

	result, err := r.db.Pool().Exec(ctx, query, merchantID, ts, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to touch last backfill: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}

	return nil
}

// Delete removes a connection on explicit disconnect
func (r *ConnectionRepository) Delete(ctx context.Context, merchantID string) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM connections WHERE merchant_id = $1`, merchantID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrConnectionNotFound
	}

	return nil
}
