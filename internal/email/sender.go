// Package email provides the outbound review-request sender.
package email

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SendRequest contains the data needed to send one review request.
type SendRequest struct {
	To           string // customer email address
	CustomerName string
	BusinessName string
	ReviewLink   string
}

// Sender delivers review-request emails via an external provider.
type Sender interface {
	Send(ctx context.Context, req SendRequest) error
}

// SendWithRetry retries transient provider failures with exponential
// backoff. The retries budget is in seconds of total elapsed time.
func SendWithRetry(ctx context.Context, sender Sender, req SendRequest, retries int) error {
	operation := func() error {
		return sender.Send(ctx, req)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxElapsedTime = time.Duration(retries) * time.Second

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}
