package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/service"
)

const dateLayout = "2006-01-02"

// backfillRequest is the POST /backfill body
type backfillRequest struct {
	BusinessID   string `json:"businessId"`
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	DryRun       bool   `json:"dryRun,omitempty"`
	MaxCustomers *int   `json:"maxCustomers,omitempty"`
}

// handleRunBackfill handles POST /backfill - run a backfill job synchronously
func (s *Server) handleRunBackfill(w http.ResponseWriter, r *http.Request) {
	var req backfillRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}

	merchantID := r.Header.Get("X-Merchant-ID")
	if merchantID == "" {
		respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Merchant ID required", nil)
		return
	}

	if req.BusinessID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "businessId is required", nil)
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "startDate must be formatted as YYYY-MM-DD", nil)
		return
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "endDate must be formatted as YYYY-MM-DD", nil)
		return
	}
	if startDate != nil && endDate != nil && endDate.Before(*startDate) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "endDate must not be before startDate", nil)
		return
	}

	maxCustomers := s.config.DefaultMaxCustomers
	if req.MaxCustomers != nil {
		maxCustomers = *req.MaxCustomers
	}
	if maxCustomers < 1 || maxCustomers > s.config.MaxCustomersCap {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput,
			fmt.Sprintf("maxCustomers must be between 1 and %d", s.config.MaxCustomersCap), nil)
		return
	}

	entitled, err := s.entitlements.IsEntitled(r.Context(), merchantID)
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Error("Entitlement check failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
		return
	}
	if !entitled {
		respondError(w, http.StatusForbidden, ErrCodeForbidden, "Plan does not include review request backfill", nil)
		return
	}

	result, err := s.backfill.Run(r.Context(), &service.RunRequest{
		MerchantID:   merchantID,
		BusinessID:   req.BusinessID,
		StartDate:    startDate,
		EndDate:      endDate,
		DryRun:       req.DryRun,
		MaxCustomers: maxCustomers,
	})
	if err != nil {
		logging.FromContext(r.Context()).WithError(err).Warn("Backfill run failed")
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleGetJob handles GET /backfill/jobs/:id - inspect a job record
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]
	if jobID == "" {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Job ID required", nil)
		return
	}

	job, err := s.backfill.GetJob(r.Context(), jobID)
	if err != nil {
		statusCode, code, message := mapServiceError(err)
		respondError(w, statusCode, code, message, nil)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// parseDate parses an optional YYYY-MM-DD value. Empty means unset.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
