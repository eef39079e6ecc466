package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/retry"
)

// authDirectory rejects list calls until the connection carries the token
// produced by a refresh.
type authDirectory struct {
	customers    []models.CustomerRecord
	validToken   string
	alwaysReject bool
	listCalls    int
	refreshCalls int
}

func (d *authDirectory) ListCustomers(ctx context.Context, conn *models.Connection, q adapter.CustomerQuery) (*adapter.CustomerPage, error) {
	d.listCalls++
	if d.alwaysReject || conn.AccessToken != d.validToken {
		return nil, adapter.ErrUnauthorized
	}
	return &adapter.CustomerPage{Customers: d.customers}, nil
}

func (d *authDirectory) RefreshToken(ctx context.Context, conn *models.Connection) (string, string, time.Time, error) {
	d.refreshCalls++
	return d.validToken, "refresh", time.Now().Add(time.Hour), nil
}

func fastRetry() *retry.Config {
	return &retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestImporter_RefreshesTokenOn401(t *testing.T) {
	dir := &authDirectory{
		customers:  []models.CustomerRecord{{ExternalID: "a", Email: strPtr("a@shop.test")}},
		validToken: "fresh",
	}
	conns := &fakeConnections{conns: map[string]*models.Connection{}}
	im := NewImporter(dir, NewTokenSource(conns, dir), fastRetry(), 10)

	conn := &models.Connection{MerchantID: "merch-1", AccessToken: "stale"}

	var yielded int
	_, err := im.Each(context.Background(), conn, nil, nil, 10, func(models.CustomerRecord) error {
		yielded++
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}

	if yielded != 1 {
		t.Errorf("yielded = %d, want 1", yielded)
	}
	if dir.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", dir.refreshCalls)
	}
	if conn.AccessToken != "fresh" {
		t.Errorf("connection token = %q, want fresh", conn.AccessToken)
	}
}

func TestImporter_SecondAuthFailureIsFatal(t *testing.T) {
	dir := &authDirectory{alwaysReject: true, validToken: "fresh"}
	conns := &fakeConnections{conns: map[string]*models.Connection{}}
	im := NewImporter(dir, NewTokenSource(conns, dir), fastRetry(), 10)

	conn := &models.Connection{MerchantID: "merch-1", AccessToken: "stale"}

	_, err := im.Each(context.Background(), conn, nil, nil, 10, func(models.CustomerRecord) error {
		return nil
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "authentication failed after token refresh") {
		t.Errorf("error = %v", err)
	}

	// Exactly one refresh: the importer must not loop on a dead connection.
	if dir.refreshCalls != 1 {
		t.Errorf("refresh calls = %d, want 1", dir.refreshCalls)
	}
	if dir.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", dir.listCalls)
	}
}

func TestImporter_ShrinksFinalPageToCap(t *testing.T) {
	var customers []models.CustomerRecord
	for i := 0; i < 10; i++ {
		customers = append(customers, models.CustomerRecord{ExternalID: strings.Repeat("x", i+1)})
	}

	dir := &fakeDirectory{customers: customers}
	conns := &fakeConnections{conns: map[string]*models.Connection{}}
	im := NewImporter(dir, NewTokenSource(conns, dir), fastRetry(), 4)

	var yielded int
	_, err := im.Each(context.Background(), &models.Connection{}, nil, nil, 6, func(models.CustomerRecord) error {
		yielded++
		return nil
	})
	if err != nil {
		t.Fatalf("Each failed: %v", err)
	}

	if yielded != 6 {
		t.Errorf("yielded = %d, want 6", yielded)
	}
	// Page sizes 4 then 2: the cap bounds the second request.
	if dir.maxServed != 6 {
		t.Errorf("directory served %d customers, want 6", dir.maxServed)
	}
	if dir.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", dir.listCalls)
	}
}

func TestImporter_YieldErrorStopsPagination(t *testing.T) {
	dir := &fakeDirectory{customers: []models.CustomerRecord{
		{ExternalID: "a"}, {ExternalID: "b"}, {ExternalID: "c"},
	}}
	conns := &fakeConnections{conns: map[string]*models.Connection{}}
	im := NewImporter(dir, NewTokenSource(conns, dir), fastRetry(), 1)

	wantErr := context.Canceled
	var yielded int
	_, err := im.Each(context.Background(), &models.Connection{}, nil, nil, 10, func(models.CustomerRecord) error {
		yielded++
		if yielded == 2 {
			return wantErr
		}
		return nil
	})

	if err != wantErr {
		t.Fatalf("error = %v, want %v", err, wantErr)
	}
	if dir.listCalls != 2 {
		t.Errorf("list calls = %d, want 2", dir.listCalls)
	}
}
