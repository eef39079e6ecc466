package service

import (
	"fmt"
	"time"

	"github.com/review-backfill/internal/models"
)

// Classification is the eligibility verdict for one customer.
type Classification struct {
	Eligible bool
	Reason   string // set only when not eligible
}

// Skip reasons. The recency reason embeds the window in days so the
// response explains which rule applied.
const reasonMissingEmail = "Missing email"

func reasonRecentContact(window time.Duration) string {
	return fmt.Sprintf("Contacted in last %d days", int(window.Hours()/24))
}

// Classify decides whether a customer may receive a review request.
// Pure: given the same record, now, and window it always returns the same
// verdict, which is what keeps dry runs and live runs in agreement.
func Classify(record models.CustomerRecord, now time.Time, window time.Duration) Classification {
	if !record.HasEmail() {
		return Classification{Eligible: false, Reason: reasonMissingEmail}
	}

	if record.LastContacted != nil && now.Sub(*record.LastContacted) < window {
		return Classification{Eligible: false, Reason: reasonRecentContact(window)}
	}

	return Classification{Eligible: true}
}
