package email

import (
	"context"

	"github.com/review-backfill/internal/logging"
)

// NoopSender logs sends without delivering. Used in development when no
// provider key is configured.
type NoopSender struct{}

// NewNoopSender creates a new NoopSender
func NewNoopSender() *NoopSender {
	return &NoopSender{}
}

// Send logs the email but does not deliver it
func (s *NoopSender) Send(ctx context.Context, req SendRequest) error {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"to":     req.To,
		"review": req.ReviewLink,
	}).Info("noop email send")
	return nil
}
