package models

import (
	"time"

	"github.com/review-backfill/internal/types"
)

// BackfillJob represents one execution of the import/filter/dispatch
// pipeline for a business. Rows are immutable once the status is terminal.
type BackfillJob struct {
	JobID            string          `json:"jobId" db:"job_id"`
	MerchantID       string          `json:"merchantId" db:"merchant_id"`
	BusinessID       string          `json:"businessId" db:"business_id"`
	Status           types.JobStatus `json:"status" db:"status"`
	StartDate        *time.Time      `json:"startDate,omitempty" db:"start_date"`
	EndDate          *time.Time      `json:"endDate,omitempty" db:"end_date"`
	MaxCustomers     int             `json:"maxCustomers" db:"max_customers"`
	DryRun           bool            `json:"dryRun" db:"dry_run"`
	TotalConsidered  int             `json:"totalConsidered" db:"total_considered"`
	SentCount        int             `json:"sentCount" db:"sent_count"`
	SkippedCount     int             `json:"skippedCount" db:"skipped_count"`
	UnparseableCount int             `json:"unparseableCount" db:"unparseable_count"`
	ErrorMessage     *string         `json:"errorMessage,omitempty" db:"error_message"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty" db:"completed_at"`
}
