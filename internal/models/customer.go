package models

import (
	"time"

	"github.com/review-backfill/internal/types"
)

// CustomerRecord is the normalized shape of one imported customer.
// It exists only within a single job's execution and is never persisted.
// LastContacted comes from prior review-request history, not from the
// commerce platform.
type CustomerRecord struct {
	ExternalID    string
	Name          string
	Email         *string
	Phone         *string
	LastContacted *time.Time
}

// HasEmail reports whether the record carries a usable email address.
func (c *CustomerRecord) HasEmail() bool {
	return c.Email != nil && *c.Email != ""
}

// DispatchOutcome is the per-customer result of one backfill run.
type DispatchOutcome struct {
	Email  string               `json:"email"`
	Status types.DispatchStatus `json:"status"`
	Reason string               `json:"reason,omitempty"`
}

// BackfillResult aggregates a job's outcomes into the response contract.
// TotalConsidered counts every customer the importer yielded, including
// skipped ones; would_send outcomes count toward neither Sent nor Skipped.
type BackfillResult struct {
	JobID           string            `json:"jobId"`
	TotalConsidered int               `json:"totalConsidered"`
	Sent            int               `json:"sent"`
	Skipped         int               `json:"skipped"`
	DryRun          bool              `json:"dryRun"`
	Results         []DispatchOutcome `json:"results"`
}
