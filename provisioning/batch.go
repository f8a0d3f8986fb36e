package provisioning

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/db/queries"
	"github.com/velohost/velohub/logger"
)

// BatchRunner sweeps the order store for confirmed orders that still
// need (re)provisioning and drives bounded retries for each. It is
// triggered externally on a schedule; overlapping runs are tolerated
// because every attempt goes through the orchestrator's claim.
type BatchRunner struct {
	db           *gorm.DB
	orchestrator *Orchestrator
}

type BatchSummary struct {
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
	Retries    int `json:"retries"`
	Skipped    int `json:"skipped"`
}

func NewBatchRunner(gormDB *gorm.DB, orchestrator *Orchestrator) *BatchRunner {
	return &BatchRunner{
		db:           gormDB,
		orchestrator: orchestrator,
	}
}

// Run processes one bounded batch under a wall-clock budget. The
// config is passed per invocation so overlapping runs never share
// mutable settings.
func (runner *BatchRunner) Run(ctx context.Context, cfg config.BatchConfig) (*BatchSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.TimeBudget)
	defer cancel()

	orders, err := queries.GetProvisionableOrders(runner.db, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Int("candidates", len(orders)).
		Msg("Batch provisioning run started")

	summary := &BatchSummary{}

	// pace provider calls to respect upstream rate limits
	limiter := rate.NewLimiter(rate.Every(cfg.InterOrderDelay), 1)

	for _, order := range orders {
		if err := limiter.Wait(ctx); err != nil {
			// budget exhausted, remaining orders wait for the next run
			summary.Skipped += 1
			continue
		}
		runner.processOrder(ctx, order, cfg, summary)
	}

	logger.Logger.Info().
		Int("successful", summary.Successful).
		Int("failed", summary.Failed).
		Int("retries", summary.Retries).
		Int("skipped", summary.Skipped).
		Msg("Batch provisioning run finished")

	return summary, nil
}

func (runner *BatchRunner) processOrder(ctx context.Context, order db.Order, cfg config.BatchConfig, summary *BatchSummary) {
	// an order that already failed non-retryably keeps its stored
	// error until an operator intervenes; re-dialing the provider on
	// every sweep would only repeat the same rejection
	if order.ProvisioningStatus == constants.PROVISIONING_STATUS_FAILED &&
		order.ProvisioningError != "" &&
		!IsRetryable(errors.New(order.ProvisioningError), cfg.RetryableMatches) {
		logger.Logger.Info().
			Str("order_id", order.ID).
			Str("provisioning_error", order.ProvisioningError).
			Msg("Skipping order with non-retryable stored error")
		summary.Skipped += 1
		return
	}

	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			summary.Retries += 1
			// the failed attempt parked the order in failed; move it
			// back so the claim can be taken again
			if err := queries.ResetProvisioning(runner.db, order.ID); err != nil {
				logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to reset order for retry")
				summary.Failed += 1
				return
			}
			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				summary.Skipped += 1
				return
			}
		}

		outcome, err := runner.orchestrator.Provision(ctx, order.ID)
		if err != nil {
			logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("Provisioning attempt could not run")
			summary.Failed += 1
			return
		}
		if outcome.Skipped || outcome.Manual {
			summary.Skipped += 1
			return
		}
		if outcome.Success {
			summary.Successful += 1
			return
		}

		lastErr = outcome.Err
		if !IsRetryable(lastErr, cfg.RetryableMatches) {
			logger.Logger.Warn().
				Err(lastErr).
				Str("order_id", order.ID).
				Msg("Non-retryable provisioning error, giving up immediately")
			summary.Failed += 1
			return
		}

		logger.Logger.Warn().
			Err(lastErr).
			Str("order_id", order.ID).
			Int("attempt", attempt+1).
			Msg("Retryable provisioning error")
	}

	// retries exhausted: flag for manual review, vendor message kept
	// verbatim after the prefix
	err := runner.db.Model(&db.Order{}).
		Where("id = ?", order.ID).
		Update("provisioning_error", constants.MANUAL_REVIEW_ERROR_PREFIX+lastErr.Error()).Error
	if err != nil {
		logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to flag order for manual review")
	}
	summary.Failed += 1
}
