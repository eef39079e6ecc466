// Package service implements the backfill pipeline: job orchestration,
// customer import, eligibility filtering, and review-request dispatch.
package service

import (
	"context"
	"time"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/types"
)

// Collaborator interfaces consumed by the pipeline. Production
// implementations live in internal/storage, internal/adapter, and
// internal/email; tests substitute fakes.

// ConnectionStore persists commerce platform connections
type ConnectionStore interface {
	GetByBusiness(ctx context.Context, businessID string) (*models.Connection, error)
	UpdateToken(ctx context.Context, merchantID, accessToken, refreshToken string, expiresAt time.Time) error
	TouchLastBackfill(ctx context.Context, merchantID string, ts time.Time) error
}

// JobStore persists backfill job records
type JobStore interface {
	Create(ctx context.Context, job *models.BackfillJob) error
	GetByID(ctx context.Context, jobID string) (*models.BackfillJob, error)
	Update(ctx context.Context, job *models.BackfillJob) error
	UpdateStatus(ctx context.Context, jobID string, status types.JobStatus) error
}

// CustomerDirectory is the external platform's customer-listing and token
// refresh API
type CustomerDirectory interface {
	ListCustomers(ctx context.Context, conn *models.Connection, q adapter.CustomerQuery) (*adapter.CustomerPage, error)
	RefreshToken(ctx context.Context, conn *models.Connection) (accessToken, refreshToken string, expiresAt time.Time, err error)
}

// OutreachStore records when customers were last sent a review request
type OutreachStore interface {
	LastContacted(ctx context.Context, businessID, email string) (*time.Time, error)
	RecordContacted(ctx context.Context, businessID, email string, ts time.Time) error
}

// JobLock is the per-business admission check preventing concurrent jobs
type JobLock interface {
	Acquire(ctx context.Context, businessID, jobID string) (bool, error)
	Release(ctx context.Context, businessID, jobID string) error
}

// OutcomeSink receives the full per-customer outcome list for diagnostics
type OutcomeSink interface {
	Append(ctx context.Context, jobID, businessID string, outcomes []models.DispatchOutcome) error
}

// EntitlementChecker gates the backfill feature by billing plan. Consulted
// by the API layer before a job is created.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, merchantID string) (bool, error)
}

// AllowAllEntitlements entitles every merchant. Stands in until the billing
// collaborator is wired.
type AllowAllEntitlements struct{}

// IsEntitled always returns true
func (AllowAllEntitlements) IsEntitled(ctx context.Context, merchantID string) (bool, error) {
	return true, nil
}
