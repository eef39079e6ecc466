package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/service"
	"github.com/review-backfill/internal/storage"
	"github.com/review-backfill/internal/types"
)

// fakeBackfillService records the last request and returns a canned
// result or error.
type fakeBackfillService struct {
	lastRun *service.RunRequest
	result  *models.BackfillResult
	runErr  error
	job     *models.BackfillJob
}

func (f *fakeBackfillService) Run(ctx context.Context, req *service.RunRequest) (*models.BackfillResult, error) {
	f.lastRun = req
	if f.runErr != nil {
		return nil, f.runErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &models.BackfillResult{JobID: "job-1", DryRun: req.DryRun}, nil
}

func (f *fakeBackfillService) GetJob(ctx context.Context, jobID string) (*models.BackfillJob, error) {
	if f.job != nil && f.job.JobID == jobID {
		return f.job, nil
	}
	return nil, storage.ErrJobNotFound
}

type denyEntitlements struct{}

func (denyEntitlements) IsEntitled(ctx context.Context, merchantID string) (bool, error) {
	return false, nil
}

func createTestServer(backfill BackfillServiceInterface, entitlements service.EntitlementChecker) *Server {
	if entitlements == nil {
		entitlements = service.AllowAllEntitlements{}
	}
	return NewServer(&ServerConfig{
		Host:                "localhost",
		Port:                "0",
		ReadTimeout:         time.Second,
		WriteTimeout:        time.Second,
		IdleTimeout:         time.Second,
		RequestsPerSec:      1000,
		Burst:               1000,
		DefaultMaxCustomers: 200,
		MaxCustomersCap:     500,
	}, backfill, entitlements)
}

func postBackfill(server *Server, merchantID string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest("POST", "/backfill", reader)
	req.Header.Set("Content-Type", "application/json")
	if merchantID != "" {
		req.Header.Set("X-Merchant-ID", merchantID)
	}

	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)
	return w
}

func TestRunBackfill_InvalidJSON(t *testing.T) {
	server := createTestServer(&fakeBackfillService{}, nil)

	w := postBackfill(server, "merch-1", "not json")
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRunBackfill_MissingMerchantHeader(t *testing.T) {
	server := createTestServer(&fakeBackfillService{}, nil)

	w := postBackfill(server, "", map[string]string{"businessId": "biz-1"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestRunBackfill_MissingBusinessID(t *testing.T) {
	server := createTestServer(&fakeBackfillService{}, nil)

	w := postBackfill(server, "merch-1", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRunBackfill_DateValidation(t *testing.T) {
	tests := []struct {
		name     string
		body     map[string]interface{}
		expected int
	}{
		{
			name:     "malformed start date",
			body:     map[string]interface{}{"businessId": "biz-1", "startDate": "01/02/2025"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "malformed end date",
			body:     map[string]interface{}{"businessId": "biz-1", "endDate": "yesterday"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "end before start",
			body:     map[string]interface{}{"businessId": "biz-1", "startDate": "2025-06-01", "endDate": "2025-01-01"},
			expected: http.StatusBadRequest,
		},
		{
			name:     "valid range",
			body:     map[string]interface{}{"businessId": "biz-1", "startDate": "2025-01-01", "endDate": "2025-06-01"},
			expected: http.StatusOK,
		},
		{
			name:     "equal dates",
			body:     map[string]interface{}{"businessId": "biz-1", "startDate": "2025-01-01", "endDate": "2025-01-01"},
			expected: http.StatusOK,
		},
		{
			name:     "no dates",
			body:     map[string]interface{}{"businessId": "biz-1"},
			expected: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createTestServer(&fakeBackfillService{}, nil)
			w := postBackfill(server, "merch-1", tt.body)
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestRunBackfill_MaxCustomers(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected int
		want     int // forwarded value when accepted
	}{
		{name: "default applied", value: nil, expected: http.StatusOK, want: 200},
		{name: "explicit value", value: 50, expected: http.StatusOK, want: 50},
		{name: "at cap", value: 500, expected: http.StatusOK, want: 500},
		{name: "above cap", value: 501, expected: http.StatusBadRequest},
		{name: "zero", value: 0, expected: http.StatusBadRequest},
		{name: "negative", value: -5, expected: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeBackfillService{}
			server := createTestServer(fake, nil)

			body := map[string]interface{}{"businessId": "biz-1"}
			if tt.value != nil {
				body["maxCustomers"] = tt.value
			}

			w := postBackfill(server, "merch-1", body)
			if w.Code != tt.expected {
				t.Fatalf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
			if tt.expected == http.StatusOK && fake.lastRun.MaxCustomers != tt.want {
				t.Errorf("forwarded MaxCustomers = %d, want %d", fake.lastRun.MaxCustomers, tt.want)
			}
		})
	}
}

func TestRunBackfill_ForwardsRequest(t *testing.T) {
	fake := &fakeBackfillService{}
	server := createTestServer(fake, nil)

	w := postBackfill(server, "merch-1", map[string]interface{}{
		"businessId": "biz-1",
		"startDate":  "2025-01-01",
		"dryRun":     true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	if fake.lastRun.MerchantID != "merch-1" || fake.lastRun.BusinessID != "biz-1" {
		t.Errorf("forwarded identity = %s/%s", fake.lastRun.MerchantID, fake.lastRun.BusinessID)
	}
	if !fake.lastRun.DryRun {
		t.Error("dryRun flag not forwarded")
	}
	if fake.lastRun.StartDate == nil || !fake.lastRun.StartDate.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("startDate = %v", fake.lastRun.StartDate)
	}
	if fake.lastRun.EndDate != nil {
		t.Errorf("endDate = %v, want nil", fake.lastRun.EndDate)
	}
}

func TestRunBackfill_NotEntitled(t *testing.T) {
	fake := &fakeBackfillService{}
	server := createTestServer(fake, denyEntitlements{})

	w := postBackfill(server, "merch-1", map[string]string{"businessId": "biz-1"})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
	if fake.lastRun != nil {
		t.Error("unentitled request reached the service")
	}
}

func TestRunBackfill_ServiceErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{
			name:     "already running",
			err:      &types.ServiceError{Code: types.ErrCodeJobAlreadyRunning, Message: "busy"},
			expected: http.StatusConflict,
		},
		{
			name:     "connection not found",
			err:      &types.ServiceError{Code: types.ErrCodeConnectionNotFound, Message: "missing"},
			expected: http.StatusNotFound,
		},
		{
			name:     "platform down",
			err:      fmt.Errorf("customer import failed: %w", adapter.ErrPlatformUnavailable),
			expected: http.StatusBadGateway,
		},
		{
			name:     "unknown error",
			err:      fmt.Errorf("pool exhausted"),
			expected: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := createTestServer(&fakeBackfillService{runErr: tt.err}, nil)
			w := postBackfill(server, "merch-1", map[string]string{"businessId": "biz-1"})
			if w.Code != tt.expected {
				t.Errorf("Expected status %d, got %d: %s", tt.expected, w.Code, w.Body.String())
			}
		})
	}
}

func TestRunBackfill_ResultPassthrough(t *testing.T) {
	fake := &fakeBackfillService{result: &models.BackfillResult{
		JobID:           "job-9",
		TotalConsidered: 5,
		Sent:            3,
		Skipped:         2,
		Results: []models.DispatchOutcome{
			{Email: "a@shop.test", Status: types.DispatchSent},
		},
	}}
	server := createTestServer(fake, nil)

	w := postBackfill(server, "merch-1", map[string]string{"businessId": "biz-1"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var result models.BackfillResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if result.JobID != "job-9" || result.TotalConsidered != 5 || result.Sent != 3 || result.Skipped != 2 {
		t.Errorf("result = %+v", result)
	}
}

func TestGetJob(t *testing.T) {
	fake := &fakeBackfillService{job: &models.BackfillJob{
		JobID:  "job-1",
		Status: types.JobStatusCompleted,
	}}
	server := createTestServer(fake, nil)

	req := httptest.NewRequest("GET", "/backfill/jobs/job-1", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var job models.BackfillJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if job.JobID != "job-1" || job.Status != types.JobStatusCompleted {
		t.Errorf("job = %+v", job)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	server := createTestServer(&fakeBackfillService{}, nil)

	req := httptest.NewRequest("GET", "/backfill/jobs/missing", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer(&fakeBackfillService{}, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	server.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
