package renewal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/provider"
)

type renewalService struct {
	db             *gorm.DB
	pool           *provider.Pool
	eventPublisher events.EventPublisher
}

type RenewalService interface {
	StartRenewal(ctx context.Context, orderID string, renewalTxnID string, gatewayName string, amount int64) error
	ConfirmRenewal(ctx context.Context, orderID string, notice *RenewalNotice) (*db.RenewalPayment, error)
	ClearPendingRenewal(ctx context.Context, orderID string) error
}

// RenewalNotice is a verified renewal payment, either from a webhook
// or recovered by the reconciliation probe.
type RenewalNotice struct {
	RenewalTxnID string
	Gateway      string
	PaymentID    string
	Amount       int64
	Recovered    bool
}

var ErrRenewalAlreadyPending = errors.New("order already has a pending renewal")

func NewRenewalService(gormDB *gorm.DB, pool *provider.Pool, eventPublisher events.EventPublisher) *renewalService {
	return &renewalService{
		db:             gormDB,
		pool:           pool,
		eventPublisher: eventPublisher,
	}
}

// StartRenewal records the transient pending-renewal marker. At most
// one may be live per order; it is cleared on completion or by the
// stale cleanup job, never mutated in place.
func (svc *renewalService) StartRenewal(ctx context.Context, orderID string, renewalTxnID string, gatewayName string, amount int64) error {
	now := time.Now()
	result := svc.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("pending_renewal_txn_id IS NULL").
		Updates(map[string]interface{}{
			"pending_renewal_txn_id":       renewalTxnID,
			"pending_renewal_gateway":      gatewayName,
			"pending_renewal_amount":       amount,
			"pending_renewal_initiated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRenewalAlreadyPending
	}
	return nil
}

// ConfirmRenewal applies a captured renewal payment. Idempotent on
// (orderID, renewalTxnID): a webhook replay or a recovery probe racing
// the webhook inserts the ledger entry exactly once. The expiry
// extension is anchored to the later of the current expiry and now, so
// renewing an expired order never compounds negative time, and a
// provider renew failure is flagged but never rolls the extension back
// because the money was already captured.
func (svc *renewalService) ConfirmRenewal(ctx context.Context, orderID string, notice *RenewalNotice) (*db.RenewalPayment, error) {
	var existing db.RenewalPayment
	err := svc.db.First(&existing, "order_id = ? AND renewal_txn_id = ?", orderID, notice.RenewalTxnID).Error
	if err == nil {
		logger.Logger.Info().
			Str("order_id", orderID).
			Str("renewal_txn_id", notice.RenewalTxnID).
			Msg("Renewal already applied, skipping")
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var order db.Order
	if err := svc.db.First(&order, "id = ?", orderID).Error; err != nil {
		return nil, err
	}

	now := time.Now()
	anchor := now
	if order.ExpiresAt != nil && order.ExpiresAt.After(now) {
		anchor = *order.ExpiresAt
	}
	newExpiry := anchor.Add(constants.RENEWAL_PERIOD)

	payment := &db.RenewalPayment{
		OrderID:        orderID,
		PaymentID:      notice.PaymentID,
		Amount:         notice.Amount,
		PreviousExpiry: order.ExpiresAt,
		NewExpiry:      newExpiry,
		RenewalTxnID:   notice.RenewalTxnID,
		Provider:       order.Provider,
	}
	if notice.Recovered {
		payment.RecoveredAt = &now
	}

	err = svc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		return tx.Model(&db.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"expires_at":                   newExpiry,
				"pending_renewal_txn_id":       nil,
				"pending_renewal_gateway":      "",
				"pending_renewal_amount":       0,
				"pending_renewal_initiated_at": nil,
			}).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent confirmation won the insert
			logger.Logger.Info().
				Str("order_id", orderID).
				Str("renewal_txn_id", notice.RenewalTxnID).
				Msg("Concurrent renewal confirmation already applied")
			err = svc.db.First(&existing, "order_id = ? AND renewal_txn_id = ?", orderID, notice.RenewalTxnID).Error
			if err != nil {
				return nil, err
			}
			return &existing, nil
		}
		return nil, err
	}

	// the provider renew runs only after this confirmation won the
	// ledger insert, so racing duplicates never double-dial the
	// backend. It stays best effort: a failure here is recorded for
	// later manual retry, the paid-for extension stands either way.
	payment.ProviderRenewalSuccess = svc.renewWithProvider(ctx, &order)
	if updErr := svc.db.Model(&db.RenewalPayment{}).
		Where("id = ?", payment.ID).
		Update("provider_renewal_success", payment.ProviderRenewalSuccess).Error; updErr != nil {
		logger.Logger.Error().
			Err(updErr).
			Str("order_id", orderID).
			Str("renewal_txn_id", notice.RenewalTxnID).
			Msg("Failed to record provider renewal outcome")
	}

	event := constants.EVENT_ORDER_RENEWED
	if notice.Recovered {
		event = constants.EVENT_ORDER_RENEWAL_RECOVERED
	}
	svc.eventPublisher.Publish(&events.Event{
		Event: event,
		Properties: map[string]interface{}{
			"order_id":        orderID,
			"renewal_txn_id":  notice.RenewalTxnID,
			"new_expiry":      newExpiry.Format(time.RFC3339),
			"provider_renews": payment.ProviderRenewalSuccess,
		},
	})

	logger.Logger.Info().
		Str("order_id", orderID).
		Str("renewal_txn_id", notice.RenewalTxnID).
		Time("new_expiry", newExpiry).
		Bool("provider_renewal_success", payment.ProviderRenewalSuccess).
		Msg("Renewal applied")

	return payment, nil
}

func (svc *renewalService) renewWithProvider(ctx context.Context, order *db.Order) bool {
	if order.Provider == "" || order.Provider == constants.PROVIDER_MANUAL || order.ServiceID == "" {
		// nothing to call; operators renew manual stock themselves
		return false
	}
	client, err := svc.pool.Get(order.Provider)
	if err != nil {
		logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("No provider client for renewal")
		return false
	}
	if _, err := client.Renew(ctx, order.ServiceID); err != nil {
		logger.Logger.Error().
			Err(err).
			Str("order_id", order.ID).
			Str("provider", order.Provider).
			Msg("Provider renew call failed, expiry extension kept")
		return false
	}
	return true
}

// ClearPendingRenewal drops the transient marker without touching the
// ledger. Callers must re-verify payment immediately before calling.
func (svc *renewalService) ClearPendingRenewal(ctx context.Context, orderID string) error {
	result := svc.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("pending_renewal_txn_id IS NOT NULL").
		Updates(map[string]interface{}{
			"pending_renewal_txn_id":       nil,
			"pending_renewal_gateway":      "",
			"pending_renewal_amount":       0,
			"pending_renewal_initiated_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("order %s has no pending renewal", orderID)
	}
	return nil
}
