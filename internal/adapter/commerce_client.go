// Package adapter provides the HTTP client for the external commerce
// platform: paginated customer listing and OAuth token refresh.
package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/types"
)

// Errors used by callers to classify platform failures.
var (
	// ErrUnauthorized means the access token was rejected; the caller should
	// refresh once and retry.
	ErrUnauthorized = errors.New("platform rejected access token")
	// ErrRateLimited means the platform throttled the request; retryable.
	ErrRateLimited = errors.New("platform rate limit exceeded")
	// ErrPlatformUnavailable means a network fault or 5xx; retryable, and
	// surfaced as a 502 once retries are exhausted.
	ErrPlatformUnavailable = errors.New("platform unreachable")
)

// CommerceClient talks to the commerce platform's REST API. One client is
// shared across jobs; a token-bucket limiter paces all outbound calls.
type CommerceClient struct {
	productionURL string
	sandboxURL    string
	client        *http.Client
	limiter       *rate.Limiter
}

// NewCommerceClient creates a commerce platform client
func NewCommerceClient(productionURL, sandboxURL string, requestsPerSec float64, timeout time.Duration) *CommerceClient {
	return &CommerceClient{
		productionURL: strings.TrimRight(productionURL, "/"),
		sandboxURL:    strings.TrimRight(sandboxURL, "/"),
		client:        &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(rate.Limit(requestsPerSec), int(requestsPerSec)+1),
	}
}

func (c *CommerceClient) baseURL(env types.Environment) string {
	if env == types.EnvSandbox {
		return c.sandboxURL
	}
	return c.productionURL
}

// platformCustomer is one customer record as the platform returns it
type platformCustomer struct {
	ID           string `json:"id"`
	GivenName    string `json:"given_name"`
	FamilyName   string `json:"family_name"`
	EmailAddress string `json:"email_address"`
	PhoneNumber  string `json:"phone_number"`
	CreatedAt    string `json:"created_at"`
}

type searchCustomersRequest struct {
	Cursor string      `json:"cursor,omitempty"`
	Limit  int         `json:"limit"`
	Query  searchQuery `json:"query"`
}

type searchQuery struct {
	Filter searchFilter `json:"filter"`
	Sort   searchSort   `json:"sort"`
}

type searchFilter struct {
	CreatedAt *timeRange `json:"created_at,omitempty"`
}

type timeRange struct {
	StartAt string `json:"start_at,omitempty"`
	EndAt   string `json:"end_at,omitempty"`
}

type searchSort struct {
	Field string `json:"field"`
	Order string `json:"order"`
}

type searchCustomersResponse struct {
	Customers []json.RawMessage `json:"customers"`
	Cursor    string            `json:"cursor"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    string `json:"expires_at"`
}

// CustomerQuery bounds one page request
type CustomerQuery struct {
	StartDate *time.Time
	EndDate   *time.Time
	Cursor    string
	Limit     int
}

// CustomerPage is one page of normalized customers. Unparseable counts
// records the platform returned that could not be normalized; they are
// dropped, not fatal.
type CustomerPage struct {
	Customers   []models.CustomerRecord
	NextCursor  string
	Unparseable int
}

// ListCustomers fetches one page of customers ordered by creation time.
func (c *CommerceClient) ListCustomers(ctx context.Context, conn *models.Connection, q CustomerQuery) (*CustomerPage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body := searchCustomersRequest{
		Cursor: q.Cursor,
		Limit:  q.Limit,
		Query: searchQuery{
			Sort: searchSort{Field: "CREATED_AT", Order: "ASC"},
		},
	}
	if q.StartDate != nil || q.EndDate != nil {
		tr := &timeRange{}
		if q.StartDate != nil {
			tr.StartAt = q.StartDate.UTC().Format(time.RFC3339)
		}
		if q.EndDate != nil {
			tr.EndAt = q.EndDate.UTC().Format(time.RFC3339)
		}
		body.Query.Filter.CreatedAt = tr
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode customer search: %w", err)
	}

	url := c.baseURL(conn.Environment) + "/v2/customers/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build customer search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck // drain for keep-alive
		return nil, err
	}

	var parsed searchCustomersResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode customer search response: %w", err)
	}

	page := &CustomerPage{NextCursor: parsed.Cursor}
	for _, raw := range parsed.Customers {
		record, ok := normalizeCustomer(raw)
		if !ok {
			page.Unparseable++
			logging.FromContext(ctx).WithField("merchantId", conn.MerchantID).
				Warn("Dropping unparseable customer record")
			continue
		}
		page.Customers = append(page.Customers, record)
	}

	return page, nil
}

// RefreshToken exchanges the connection's refresh credential for a new
// access token.
func (c *CommerceClient) RefreshToken(ctx context.Context, conn *models.Connection) (accessToken, refreshToken string, expiresAt time.Time, err error) {
	if err = c.limiter.Wait(ctx); err != nil {
		return "", "", time.Time{}, err
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": conn.RefreshToken,
	})
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to encode refresh request: %w", err)
	}

	url := c.baseURL(conn.Environment) + "/oauth2/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to build refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("%w: %v", ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		io.Copy(io.Discard, resp.Body) // nolint:errcheck // drain for keep-alive
		return "", "", time.Time{}, err
	}

	var parsed tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", "", time.Time{}, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	if parsed.AccessToken == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: refresh returned empty access token", ErrUnauthorized)
	}

	expiry, err := time.Parse(time.RFC3339, parsed.ExpiresAt)
	if err != nil {
		// Tokens without a parseable expiry still work; assume a short one.
		expiry = time.Now().UTC().Add(1 * time.Hour)
	}

	// Some platforms rotate the refresh token, some echo the old one back.
	if parsed.RefreshToken == "" {
		parsed.RefreshToken = conn.RefreshToken
	}

	return parsed.AccessToken, parsed.RefreshToken, expiry, nil
}

// classifyStatus maps platform HTTP statuses onto the error taxonomy
func classifyStatus(status int) error {
	switch {
	case status == http.StatusOK:
		return nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrPlatformUnavailable, status)
	default:
		return fmt.Errorf("platform returned unexpected status %d", status)
	}
}

// normalizeCustomer converts a raw platform record to the common shape.
// Records without an id are unparseable; a missing email is legal and
// handled by the eligibility filter, not here.
func normalizeCustomer(raw json.RawMessage) (models.CustomerRecord, bool) {
	var pc platformCustomer
	if err := json.Unmarshal(raw, &pc); err != nil {
		return models.CustomerRecord{}, false
	}

	if pc.ID == "" {
		return models.CustomerRecord{}, false
	}

	record := models.CustomerRecord{
		ExternalID: pc.ID,
		Name:       strings.TrimSpace(strings.TrimSpace(pc.GivenName) + " " + strings.TrimSpace(pc.FamilyName)),
	}
	if pc.EmailAddress != "" {
		email := pc.EmailAddress
		record.Email = &email
	}
	if pc.PhoneNumber != "" {
		phone := pc.PhoneNumber
		record.Phone = &phone
	}

	return record, true
}
