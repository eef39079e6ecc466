package models

import (
	"time"

	"github.com/review-backfill/internal/types"
)

// Connection represents a merchant's link to the commerce platform.
// At most one connection exists per merchant; it is created on OAuth
// completion and removed only on explicit disconnect.
type Connection struct {
	MerchantID         string            `json:"merchantId" db:"merchant_id"`
	BusinessID         string            `json:"businessId" db:"business_id"`
	BusinessName       string            `json:"businessName" db:"business_name"`
	AccessToken        string            `json:"-" db:"access_token"`
	RefreshToken       string            `json:"-" db:"refresh_token"`
	TokenExpiresAt     time.Time         `json:"tokenExpiresAt" db:"token_expires_at"`
	PlatformMerchantID string            `json:"platformMerchantId" db:"platform_merchant_id"`
	DefaultLocationID  string            `json:"defaultLocationId" db:"default_location_id"`
	Environment        types.Environment `json:"environment" db:"environment"`
	LastBackfillAt     *time.Time        `json:"lastBackfillAt,omitempty" db:"last_backfill_at"`
	CreatedAt          time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt          time.Time         `json:"updatedAt" db:"updated_at"`
}
