package service

import (
	"context"
	"time"

	"github.com/review-backfill/internal/email"
	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/types"
)

// Dispatcher produces the outcome for one eligible customer. The mode
// variant keeps the dry and live paths apart: a dry run never touches the
// sender or outreach history.
type Dispatcher struct {
	sender      email.Sender
	outreach    OutreachStore
	sendRetries int
}

// NewDispatcher creates a dispatcher
func NewDispatcher(sender email.Sender, outreach OutreachStore, sendRetries int) *Dispatcher {
	return &Dispatcher{
		sender:      sender,
		outreach:    outreach,
		sendRetries: sendRetries,
	}
}

// Dispatch handles one eligible customer. In live mode a successful send
// also records outreach history, which is what makes the customer skippable
// on the next run. A failed send records nothing, so a retried job can
// attempt the customer again.
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	mode types.DispatchMode,
	conn *models.Connection,
	reviewLink string,
	record models.CustomerRecord,
	now time.Time,
) models.DispatchOutcome {
	addr := *record.Email

	if mode == types.ModeDryRun {
		return models.DispatchOutcome{Email: addr, Status: types.DispatchWouldSend}
	}

	req := email.SendRequest{
		To:           addr,
		CustomerName: record.Name,
		BusinessName: conn.BusinessName,
		ReviewLink:   reviewLink,
	}

	if err := email.SendWithRetry(ctx, d.sender, req, d.sendRetries); err != nil {
		logging.FromContext(ctx).WithError(err).WithField("email", addr).Warn("Review request send failed")
		return models.DispatchOutcome{
			Email:  addr,
			Status: types.DispatchSkipped,
			Reason: "Send failed: " + err.Error(),
		}
	}

	if err := d.outreach.RecordContacted(ctx, conn.BusinessID, addr, now); err != nil {
		// The email already went out; the send cannot be rolled back. Log
		// loudly so the missing history record is visible.
		logging.FromContext(ctx).WithError(err).WithField("email", addr).
			Error("Sent review request but failed to record outreach history")
	}

	return models.DispatchOutcome{Email: addr, Status: types.DispatchSent}
}
