// Package types provides common type definitions for the review-request backfill system.
package types

// JobStatus represents the lifecycle state of a backfill job
type JobStatus string

const (
	// JobStatusPending represents a job row created before any work started
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning represents a job currently importing or dispatching
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted represents a job that produced an outcome for every customer
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed represents a job aborted by a setup or import failure
	JobStatusFailed JobStatus = "failed"
)

// IsTerminal reports whether no further status transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// DispatchStatus represents the per-customer outcome of a backfill run
type DispatchStatus string

const (
	// DispatchSent represents a review request delivered to the email provider
	DispatchSent DispatchStatus = "sent"
	// DispatchSkipped represents a customer excluded by eligibility or a send failure
	DispatchSkipped DispatchStatus = "skipped"
	// DispatchWouldSend represents an eligible customer in a dry run
	DispatchWouldSend DispatchStatus = "would_send"
)

// DispatchMode selects between simulating and performing outreach.
// Modeled as a variant rather than a bool so the dry and live paths
// cannot accidentally share state.
type DispatchMode string

const (
	// ModeDryRun computes outcomes without sending or recording outreach
	ModeDryRun DispatchMode = "dry_run"
	// ModeLive sends review requests and records outreach history
	ModeLive DispatchMode = "live"
)

// Environment represents the commerce platform environment a connection targets
type Environment string

const (
	// EnvProduction targets the live commerce platform
	EnvProduction Environment = "production"
	// EnvSandbox targets the platform's sandbox
	EnvSandbox Environment = "sandbox"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Common service error codes
const (
	ErrCodeConnectionNotFound = "CONNECTION_NOT_FOUND"
	ErrCodeJobNotFound        = "JOB_NOT_FOUND"
	ErrCodeJobAlreadyRunning  = "JOB_ALREADY_RUNNING"
	ErrCodeNotEntitled        = "NOT_ENTITLED"
	ErrCodePlatformError      = "PLATFORM_UNAVAILABLE"
)
