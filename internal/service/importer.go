package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/review-backfill/internal/adapter"
	"github.com/review-backfill/internal/logging"
	"github.com/review-backfill/internal/metrics"
	"github.com/review-backfill/internal/models"
	"github.com/review-backfill/internal/retry"
)

// Importer paginates the platform's customer listing and yields normalized
// records. The max-customers cap is enforced while paginating: page sizes
// shrink to the remaining budget and pagination stops at the cap, so a
// merchant with a huge customer base never triggers a full fetch.
type Importer struct {
	directory CustomerDirectory
	tokens    *TokenSource
	retryCfg  *retry.Config
	pageSize  int
}

// NewImporter creates a customer importer
func NewImporter(directory CustomerDirectory, tokens *TokenSource, retryCfg *retry.Config, pageSize int) *Importer {
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	return &Importer{
		directory: directory,
		tokens:    tokens,
		retryCfg:  retryCfg,
		pageSize:  pageSize,
	}
}

// Each yields up to max customers in platform order, stopping early when
// yield returns an error. It reports how many platform records were
// dropped as unparseable.
func (im *Importer) Each(
	ctx context.Context,
	conn *models.Connection,
	startDate, endDate *time.Time,
	max int,
	yield func(models.CustomerRecord) error,
) (unparseable int, err error) {
	logger := logging.FromContext(ctx)

	cursor := ""
	yielded := 0

	for yielded < max {
		limit := im.pageSize
		if remaining := max - yielded; remaining < limit {
			limit = remaining
		}

		page, err := im.fetchPage(ctx, conn, adapter.CustomerQuery{
			StartDate: startDate,
			EndDate:   endDate,
			Cursor:    cursor,
			Limit:     limit,
		})
		if err != nil {
			return unparseable, err
		}

		unparseable += page.Unparseable

		for _, record := range page.Customers {
			if err := yield(record); err != nil {
				return unparseable, err
			}
			yielded++
			if yielded >= max {
				break
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	logger.WithFields(map[string]interface{}{
		"yielded":     yielded,
		"unparseable": unparseable,
	}).Info("Customer import finished")

	return unparseable, nil
}

// fetchPage fetches one page with bounded retries. A 401 triggers a single
// token refresh; a second auth failure after refresh is fatal rather than
// retried, so an invalid connection cannot loop.
func (im *Importer) fetchPage(ctx context.Context, conn *models.Connection, q adapter.CustomerQuery) (*adapter.CustomerPage, error) {
	var page *adapter.CustomerPage
	refreshed := false

	err := retry.WithBackoff(ctx, im.retryCfg, func(ctx context.Context, attempt int) error {
		p, err := im.directory.ListCustomers(ctx, conn, q)
		if err == nil {
			page = p
			return nil
		}

		if errors.Is(err, adapter.ErrUnauthorized) {
			if refreshed {
				return retry.NonRetryable(fmt.Errorf("authentication failed after token refresh: %w", err))
			}
			refreshed = true

			token, rerr := im.tokens.Refresh(ctx, conn)
			if rerr != nil {
				return retry.NonRetryable(rerr)
			}
			conn.AccessToken = token
			return err
		}

		metrics.PlatformRetries.Inc()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("customer import failed: %w", err)
	}

	return page, nil
}
