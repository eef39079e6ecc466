package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/models"
)

// TokenSource refreshes platform access tokens, guaranteeing at most one
// in-flight refresh per merchant. A second caller observing a refresh in
// progress waits for it and reuses the result instead of issuing another
// refresh request, which could invalidate the first token.
type TokenSource struct {
	connections ConnectionStore
	directory   CustomerDirectory

	mu       sync.Mutex
	inflight map[string]*refreshCall
}

type refreshCall struct {
	done  chan struct{}
	token string
	err   error
}

// NewTokenSource creates a token source
func NewTokenSource(connections ConnectionStore, directory CustomerDirectory) *TokenSource {
	return &TokenSource{
		connections: connections,
		directory:   directory,
		inflight:    make(map[string]*refreshCall),
	}
}

// Refresh obtains a fresh access token for the connection's merchant and
// persists it. Concurrent callers for the same merchant share one refresh.
func (ts *TokenSource) Refresh(ctx context.Context, conn *models.Connection) (string, error) {
	ts.mu.Lock()
	if call, ok := ts.inflight[conn.MerchantID]; ok {
		ts.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	ts.inflight[conn.MerchantID] = call
	ts.mu.Unlock()

	call.token, call.err = ts.refresh(ctx, conn)

	ts.mu.Lock()
	delete(ts.inflight, conn.MerchantID)
	ts.mu.Unlock()
	close(call.done)

	return call.token, call.err
}

func (ts *TokenSource) refresh(ctx context.Context, conn *models.Connection) (string, error) {
	accessToken, refreshToken, expiresAt, err := ts.directory.RefreshToken(ctx, conn)
	if err != nil {
		return "", fmt.Errorf("token refresh failed: %w", err)
	}

	if err := ts.connections.UpdateToken(ctx, conn.MerchantID, accessToken, refreshToken, expiresAt); err != nil {
		return "", fmt.Errorf("failed to persist refreshed token: %w", err)
	}

	logging.FromContext(ctx).WithField("merchantId", conn.MerchantID).Info("Platform access token refreshed")

	return accessToken, nil
}
