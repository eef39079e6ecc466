package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/review-backfill/internal/config"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/types"
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testDB connects to the local development database. Integration tests are
// skipped in short mode and when Postgres is unavailable.
func testDB(t *testing.T) *PostgresDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "review_backfill",
		User:           "backfill",
		Password:       "backfill_dev_password",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	return db
}

func testConnection(businessID string) *models.Connection {
	return &models.Connection{
		MerchantID:         uuid.New().String(),
		BusinessID:         businessID,
		BusinessName:       "Test Shop",
		AccessToken:        "access",
		RefreshToken:       "refresh",
		TokenExpiresAt:     time.Now().UTC().Add(time.Hour),
		PlatformMerchantID: "pm-1",
		DefaultLocationID:  "loc-1",
		Environment:        types.EnvSandbox,
	}
}

func TestNewPostgresDB(t *testing.T) {
	db := testDB(t)

	if err := db.Ping(testContext(t)); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestConnectionRepository_RoundTrip(t *testing.T) {
	db := testDB(t)
	repo := NewConnectionRepository(db)
	ctx := testContext(t)

	businessID := uuid.New().String()
	conn := testConnection(businessID)

	if err := repo.Create(ctx, conn); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer repo.Delete(ctx, conn.MerchantID) // nolint:errcheck // test cleanup

	got, err := repo.GetByBusiness(ctx, businessID)
	if err != nil {
		t.Fatalf("GetByBusiness() error = %v", err)
	}
	if got.MerchantID != conn.MerchantID || got.BusinessName != "Test Shop" {
		t.Errorf("GetByBusiness() = %+v", got)
	}
	if got.LastBackfillAt != nil {
		t.Error("new connection should have no last backfill timestamp")
	}

	if err := repo.UpdateToken(ctx, conn.MerchantID, "new-access", "new-refresh", time.Now().UTC().Add(2*time.Hour)); err != nil {
		t.Fatalf("UpdateToken() error = %v", err)
	}

	ts := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.TouchLastBackfill(ctx, conn.MerchantID, ts); err != nil {
		t.Fatalf("TouchLastBackfill() error = %v", err)
	}

	got, err = repo.GetByMerchant(ctx, conn.MerchantID)
	if err != nil {
		t.Fatalf("GetByMerchant() error = %v", err)
	}
	if got.AccessToken != "new-access" {
		t.Errorf("AccessToken = %q", got.AccessToken)
	}
	if got.LastBackfillAt == nil || !got.LastBackfillAt.Equal(ts) {
		t.Errorf("LastBackfillAt = %v, want %v", got.LastBackfillAt, ts)
	}
}

func TestConnectionRepository_NotFound(t *testing.T) {
	db := testDB(t)
	repo := NewConnectionRepository(db)
	ctx := testContext(t)

	if _, err := repo.GetByBusiness(ctx, uuid.New().String()); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("GetByBusiness() error = %v, want ErrConnectionNotFound", err)
	}
	if err := repo.UpdateToken(ctx, uuid.New().String(), "a", "r", time.Now()); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("UpdateToken() error = %v, want ErrConnectionNotFound", err)
	}
}

func TestBackfillJobRepository_Lifecycle(t *testing.T) {
	db := testDB(t)
	repo := NewBackfillJobRepository(db)
	ctx := testContext(t)

	businessID := uuid.New().String()
	job := &models.BackfillJob{
		JobID:        uuid.New().String(),
		MerchantID:   uuid.New().String(),
		BusinessID:   businessID,
		Status:       types.JobStatusPending,
		MaxCustomers: 200,
		DryRun:       true,
	}

	if err := repo.Create(ctx, job); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A second active job for the same business violates the partial
	// unique index.
	dup := &models.BackfillJob{
		JobID:        uuid.New().String(),
		MerchantID:   job.MerchantID,
		BusinessID:   businessID,
		Status:       types.JobStatusPending,
		MaxCustomers: 200,
	}
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrJobConflict) {
		t.Fatalf("Create() duplicate error = %v, want ErrJobConflict", err)
	}

	if err := repo.UpdateStatus(ctx, job.JobID, types.JobStatusRunning); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}

	job.Status = types.JobStatusCompleted
	job.TotalConsidered = 10
	job.SentCount = 7
	job.SkippedCount = 3
	completed := time.Now().UTC().Truncate(time.Microsecond)
	job.CompletedAt = &completed

	if err := repo.Update(ctx, job); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := repo.GetByID(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != types.JobStatusCompleted || got.SentCount != 7 {
		t.Errorf("GetByID() = %+v", got)
	}

	// Terminal rows are immutable.
	if err := repo.UpdateStatus(ctx, job.JobID, types.JobStatusRunning); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("UpdateStatus() on terminal job error = %v, want ErrJobNotFound", err)
	}

	// With the first job terminal, a new job is admitted.
	if err := repo.Create(ctx, dup); err != nil {
		t.Errorf("Create() after completion error = %v", err)
	}

	jobs, err := repo.ListByBusiness(ctx, businessID, 10)
	if err != nil {
		t.Fatalf("ListByBusiness() error = %v", err)
	}
	if len(jobs) != 2 {
		t.Errorf("ListByBusiness() returned %d jobs, want 2", len(jobs))
	}
}

func TestOutreachRepository_Recency(t *testing.T) {
	db := testDB(t)
	repo := NewOutreachRepository(db)
	ctx := testContext(t)

	businessID := uuid.New().String()
	email := uuid.New().String() + "@shop.test"

	last, err := repo.LastContacted(ctx, businessID, email)
	if err != nil {
		t.Fatalf("LastContacted() error = %v", err)
	}
	if last != nil {
		t.Errorf("LastContacted() = %v, want nil for uncontacted customer", last)
	}

	first := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)
	if err := repo.RecordContacted(ctx, businessID, email, first); err != nil {
		t.Fatalf("RecordContacted() error = %v", err)
	}

	second := time.Now().UTC().Truncate(time.Microsecond)
	if err := repo.RecordContacted(ctx, businessID, email, second); err != nil {
		t.Fatalf("RecordContacted() error = %v", err)
	}

	last, err = repo.LastContacted(ctx, businessID, email)
	if err != nil {
		t.Fatalf("LastContacted() error = %v", err)
	}
	if last == nil || !last.Equal(second) {
		t.Errorf("LastContacted() = %v, want most recent %v", last, second)
	}
}
