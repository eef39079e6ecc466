package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/metrics"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/storage"
	"github.com/review-backfill/internal/types"
)

// BackfillService owns the job lifecycle: it admits, creates, and drives a
// backfill job through pending → running → completed/failed, and reduces
// per-customer outcomes into the response contract.
type BackfillService struct {
	jobs        JobStore
	connections ConnectionStore
	importer    *Importer
	dispatcher  *Dispatcher
	lock        JobLock
	outcomes    OutcomeSink

	lookbackWindow time.Duration
	jobTimeout     time.Duration
	reviewLinkBase string

	now func() time.Time
}

// BackfillServiceConfig wires the orchestrator's collaborators and tunables
type BackfillServiceConfig struct {
	Jobs           JobStore
	Connections    ConnectionStore
	Importer       *Importer
	Dispatcher     *Dispatcher
	Lock           JobLock
	Outcomes       OutcomeSink // optional
	LookbackWindow time.Duration
	JobTimeout     time.Duration
	ReviewLinkBase string
	Now            func() time.Time // optional, defaults to time.Now
}

// NewBackfillService creates the job orchestrator
func NewBackfillService(cfg *BackfillServiceConfig) *BackfillService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &BackfillService{
		jobs:           cfg.Jobs,
		connections:    cfg.Connections,
		importer:       cfg.Importer,
		dispatcher:     cfg.Dispatcher,
		lock:           cfg.Lock,
		outcomes:       cfg.Outcomes,
		lookbackWindow: cfg.LookbackWindow,
		jobTimeout:     cfg.JobTimeout,
		reviewLinkBase: cfg.ReviewLinkBase,
		now:            now,
	}
}

// RunRequest is a validated backfill invocation. Validation happens at the
// API boundary; by the time a request reaches Run the caps and date order
// hold.
type RunRequest struct {
	MerchantID   string
	BusinessID   string
	StartDate    *time.Time
	EndDate      *time.Time
	DryRun       bool
	MaxCustomers int
}

// Run executes one backfill job synchronously and returns the full result.
func (s *BackfillService) Run(ctx context.Context, req *RunRequest) (*models.BackfillResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"businessId": req.BusinessID,
		"dryRun":     req.DryRun,
	})
	ctx = logging.WithLogger(ctx, logger)

	jobID := uuid.New().String()
	job := &models.BackfillJob{
		JobID:        jobID,
		MerchantID:   req.MerchantID,
		BusinessID:   req.BusinessID,
		Status:       types.JobStatusPending,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		MaxCustomers: req.MaxCustomers,
		DryRun:       req.DryRun,
	}

	conn, err := s.connections.GetByBusiness(ctx, req.BusinessID)
	if err != nil {
		if errors.Is(err, storage.ErrConnectionNotFound) {
			// Setup failure: the job record exists for auditability but is
			// born failed. No lock was taken, no work starts.
			msg := "no platform connection for business"
			job.Status = types.JobStatusFailed
			job.ErrorMessage = &msg
			job.CompletedAt = timePtr(s.now())
			if cerr := s.jobs.Create(ctx, job); cerr != nil && !errors.Is(cerr, storage.ErrJobConflict) {
				logger.WithError(cerr).Error("Failed to record setup failure")
			}
			return nil, &types.ServiceError{Code: types.ErrCodeConnectionNotFound, Message: msg}
		}
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	job.MerchantID = conn.MerchantID

	acquired, err := s.lock.Acquire(ctx, req.BusinessID, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for active jobs: %w", err)
	}
	if !acquired {
		return nil, &types.ServiceError{
			Code:    types.ErrCodeJobAlreadyRunning,
			Message: "a backfill job is already running for this business",
		}
	}
	defer func() {
		// Release with a fresh context so a timed-out job still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if rerr := s.lock.Release(releaseCtx, req.BusinessID, jobID); rerr != nil {
			logger.WithError(rerr).Warn("Failed to release job lock")
		}
	}()

	if err := s.jobs.Create(ctx, job); err != nil {
		if errors.Is(err, storage.ErrJobConflict) {
			return nil, &types.ServiceError{
				Code:    types.ErrCodeJobAlreadyRunning,
				Message: "a backfill job is already running for this business",
			}
		}
		return nil, fmt.Errorf("failed to create job record: %w", err)
	}

	// The whole job runs under one deadline so a stuck upstream call cannot
	// leave it running forever.
	runCtx, cancel := context.WithTimeout(ctx, s.jobTimeout)
	defer cancel()

	result, runErr := s.execute(runCtx, job, conn, req)
	if runErr != nil {
		s.fail(ctx, job, runErr)
		return nil, runErr
	}

	return result, nil
}

// execute drives import → filter → dispatch under the job deadline. The
// job passed in is mutated with final counts.
func (s *BackfillService) execute(ctx context.Context, job *models.BackfillJob, conn *models.Connection, req *RunRequest) (*models.BackfillResult, error) {
	logger := logging.FromContext(ctx)

	if err := s.jobs.UpdateStatus(ctx, job.JobID, types.JobStatusRunning); err != nil {
		return nil, fmt.Errorf("failed to start job: %w", err)
	}
	job.Status = types.JobStatusRunning
	metrics.JobsStarted.Inc()

	now := s.now()
	mode := types.ModeLive
	if req.DryRun {
		mode = types.ModeDryRun
	}
	reviewLink := fmt.Sprintf("%s/%s", s.reviewLinkBase, conn.BusinessID)

	var outcomes []models.DispatchOutcome

	unparseable, err := s.importer.Each(ctx, conn, req.StartDate, req.EndDate, req.MaxCustomers, func(record models.CustomerRecord) error {
		job.TotalConsidered++

		// Outreach recency comes from our own history, never from the
		// platform record.
		if record.HasEmail() {
			last, lerr := s.dispatcher.outreach.LastContacted(ctx, conn.BusinessID, *record.Email)
			if lerr != nil {
				return lerr
			}
			record.LastContacted = last
		}

		outcome := s.handleCustomer(ctx, mode, conn, reviewLink, record, now)
		outcomes = append(outcomes, outcome)

		switch outcome.Status {
		case types.DispatchSent:
			job.SentCount++
		case types.DispatchSkipped:
			job.SkippedCount++
		}
		metrics.Dispatches.WithLabelValues(string(outcome.Status)).Inc()

		return nil
	})
	job.UnparseableCount = unparseable
	if err != nil {
		return nil, err
	}

	job.Status = types.JobStatusCompleted
	job.CompletedAt = timePtr(s.now())
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to complete job: %w", err)
	}
	metrics.JobsCompleted.Inc()

	if !req.DryRun {
		if err := s.connections.TouchLastBackfill(ctx, conn.MerchantID, s.now()); err != nil {
			logger.WithError(err).Warn("Failed to update last-backfill timestamp")
		}
	}

	if s.outcomes != nil {
		if err := s.outcomes.Append(ctx, job.JobID, conn.BusinessID, outcomes); err != nil {
			logger.WithError(err).Warn("Failed to append dispatch outcomes to diagnostics log")
		}
	}

	logger.WithFields(map[string]interface{}{
		"jobId":           job.JobID,
		"totalConsidered": job.TotalConsidered,
		"sent":            job.SentCount,
		"skipped":         job.SkippedCount,
	}).Info("Backfill job completed")

	return &models.BackfillResult{
		JobID:           job.JobID,
		TotalConsidered: job.TotalConsidered,
		Sent:            job.SentCount,
		Skipped:         job.SkippedCount,
		DryRun:          req.DryRun,
		Results:         outcomes,
	}, nil
}

// handleCustomer classifies one record and dispatches if eligible
func (s *BackfillService) handleCustomer(
	ctx context.Context,
	mode types.DispatchMode,
	conn *models.Connection,
	reviewLink string,
	record models.CustomerRecord,
	now time.Time,
) models.DispatchOutcome {
	cls := Classify(record, now, s.lookbackWindow)
	if !cls.Eligible {
		addr := ""
		if record.Email != nil {
			addr = *record.Email
		}
		return models.DispatchOutcome{Email: addr, Status: types.DispatchSkipped, Reason: cls.Reason}
	}

	return s.dispatcher.Dispatch(ctx, mode, conn, reviewLink, record, now)
}

// fail transitions the job to failed, preserving any partial counts for
// diagnostics. Uses the caller's context, not the expired run context.
func (s *BackfillService) fail(ctx context.Context, job *models.BackfillJob, cause error) {
	msg := cause.Error()
	if errors.Is(cause, context.DeadlineExceeded) {
		msg = "timeout"
	}

	job.Status = types.JobStatusFailed
	job.ErrorMessage = &msg
	job.CompletedAt = timePtr(s.now())

	failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.jobs.Update(failCtx, job); err != nil {
		logging.FromContext(ctx).WithError(err).Error("Failed to record job failure")
	}
	metrics.JobsFailed.Inc()

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"jobId": job.JobID,
		"error": msg,
	}).Error("Backfill job failed")
}

// GetJob returns a job record for inspection
func (s *BackfillService) GetJob(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// IsPlatformError reports whether err stems from the commerce platform
// being unreachable or rejecting credentials, which maps to a 502.
func IsPlatformError(err error) bool {
	return errors.Is(err, adapter.ErrPlatformUnavailable) ||
		errors.Is(err, adapter.ErrRateLimited) ||
		errors.Is(err, adapter.ErrUnauthorized)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
