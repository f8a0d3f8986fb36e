package reconcile

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/db/queries"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/renewal"
)

// Service repairs drift between the gateways, the providers and the
// order store: renewals whose webhook never arrived, pending-renewal
// markers that went stale, and slow backends that surface credentials
// long after the create call.
type Service struct {
	db         *gorm.DB
	chain      *gateway.Chain
	pool       *provider.Pool
	renewalSvc renewal.RenewalService
}

func NewService(gormDB *gorm.DB, chain *gateway.Chain, pool *provider.Pool, renewalSvc renewal.RenewalService) *Service {
	return &Service{
		db:         gormDB,
		chain:      chain,
		pool:       pool,
		renewalSvc: renewalSvc,
	}
}

type RecoverySummary struct {
	Probed    int `json:"probed"`
	Recovered int `json:"recovered"`
	Cleared   int `json:"cleared"`
	Errors    int `json:"errors"`
}

// probePayment asks every gateway about a renewal transaction,
// starting with the one that initiated it.
func (svc *Service) probePayment(ctx context.Context, order *db.Order) (*gateway.PaymentStatus, string) {
	gateways := svc.chain.Gateways()
	if order.PendingRenewalGateway != "" {
		if preferred, err := svc.chain.Get(order.PendingRenewalGateway); err == nil {
			reordered := []gateway.Gateway{preferred}
			for _, gw := range gateways {
				if gw.GetGatewayName() != order.PendingRenewalGateway {
					reordered = append(reordered, gw)
				}
			}
			gateways = reordered
		}
	}

	for _, gw := range gateways {
		status, err := gw.FetchPaymentStatus(ctx, *order.PendingRenewalTxnID)
		if err != nil {
			logger.Logger.Warn().
				Err(err).
				Str("gateway", gw.GetGatewayName()).
				Str("order_id", order.ID).
				Msg("Payment status probe failed")
			continue
		}
		if status.Paid {
			return status, gw.GetGatewayName()
		}
	}
	return nil, ""
}

// RecoverPendingRenewals probes the gateways for every live pending
// renewal and applies the ones that were actually paid. Idempotent:
// the renewal service dedupes on renewalTxnId.
func (svc *Service) RecoverPendingRenewals(ctx context.Context) (*RecoverySummary, error) {
	orders, err := queries.GetPendingRenewalOrders(svc.db)
	if err != nil {
		return nil, err
	}

	summary := &RecoverySummary{}
	for i := range orders {
		order := &orders[i]
		summary.Probed += 1

		status, gatewayName := svc.probePayment(ctx, order)
		if status == nil {
			continue
		}

		logger.Logger.Info().
			Str("order_id", order.ID).
			Str("gateway", gatewayName).
			Str("renewal_txn_id", *order.PendingRenewalTxnID).
			Msg("Recovered renewal payment missed by webhook")

		_, err := svc.renewalSvc.ConfirmRenewal(ctx, order.ID, &renewal.RenewalNotice{
			RenewalTxnID: *order.PendingRenewalTxnID,
			Gateway:      gatewayName,
			PaymentID:    status.PaymentID,
			Amount:       status.Amount,
			Recovered:    true,
		})
		if err != nil {
			logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to apply recovered renewal")
			summary.Errors += 1
			continue
		}
		summary.Recovered += 1
	}
	return summary, nil
}

// ClearStalePendingRenewals drops pending-renewal markers older than
// the configured age. Payment is re-checked immediately before every
// deletion; a marker that turns out to be paid is recovered instead.
func (svc *Service) ClearStalePendingRenewals(ctx context.Context, cfg config.RecoveryConfig) (*RecoverySummary, error) {
	orders, err := queries.GetPendingRenewalOrders(svc.db)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-cfg.StaleAfter)
	summary := &RecoverySummary{}
	for i := range orders {
		order := &orders[i]
		if order.PendingRenewalInitiatedAt == nil || order.PendingRenewalInitiatedAt.After(cutoff) {
			continue
		}
		summary.Probed += 1

		// never delete speculatively
		status, gatewayName := svc.probePayment(ctx, order)
		if status != nil {
			_, err := svc.renewalSvc.ConfirmRenewal(ctx, order.ID, &renewal.RenewalNotice{
				RenewalTxnID: *order.PendingRenewalTxnID,
				Gateway:      gatewayName,
				PaymentID:    status.PaymentID,
				Amount:       status.Amount,
				Recovered:    true,
			})
			if err != nil {
				summary.Errors += 1
				continue
			}
			summary.Recovered += 1
			continue
		}

		if err := svc.renewalSvc.ClearPendingRenewal(ctx, order.ID); err != nil {
			logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("Failed to clear stale pending renewal")
			summary.Errors += 1
			continue
		}
		logger.Logger.Info().
			Str("order_id", order.ID).
			Str("renewal_txn_id", *order.PendingRenewalTxnID).
			Msg("Cleared stale pending renewal, no payment found")
		summary.Cleared += 1
	}
	return summary, nil
}

type SyncSummary struct {
	Checked   int `json:"checked"`
	Activated int `json:"activated"`
	Errors    int `json:"errors"`
}

// SyncProvisioningStatus polls slow backends for orders that were
// accepted without credentials. Once the backend reports an address
// and login, the order is committed active; unrecognized status
// tokens change nothing.
func (svc *Service) SyncProvisioningStatus(ctx context.Context, cfg config.SyncConfig) (*SyncSummary, error) {
	orders, err := queries.GetSyncableOrders(svc.db, cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	summary := &SyncSummary{}
	for i := range orders {
		order := &orders[i]
		summary.Checked += 1

		client, err := svc.pool.Get(order.Provider)
		if err != nil {
			summary.Errors += 1
			continue
		}

		status, err := client.GetStatus(ctx, order.ServiceID)
		if err != nil {
			logger.Logger.Warn().
				Err(err).
				Str("order_id", order.ID).
				Str("provider", order.Provider).
				Msg("Status sync poll failed")
			summary.Errors += 1
			continue
		}

		if status.MachineStatus != constants.PROVISIONING_STATUS_ACTIVE {
			continue
		}
		if status.IPAddress == "" || status.Username == "" || status.Password == "" {
			continue
		}

		err = svc.db.Model(&db.Order{}).
			Where("id = ?", order.ID).
			Updates(map[string]interface{}{
				"ip_address":          status.IPAddress,
				"username":            status.Username,
				"password":            status.Password,
				"provisioning_status": constants.PROVISIONING_STATUS_ACTIVE,
				"provisioning_error":  "",
				"status":              constants.ORDER_STATUS_ACTIVE,
			}).Error
		if err != nil {
			summary.Errors += 1
			continue
		}

		logger.Logger.Info().
			Str("order_id", order.ID).
			Str("ip", status.IPAddress).
			Msg("Slow backend surfaced credentials, order activated")
		summary.Activated += 1
	}
	return summary, nil
}

type PendingRenewalReport struct {
	PaidUnprocessed []ReportEntry `json:"paid_unprocessed"`
	StillPending    []ReportEntry `json:"still_pending"`
	Stale           []ReportEntry `json:"stale"`
}

type ReportEntry struct {
	OrderID      string    `json:"order_id"`
	RenewalTxnID string    `json:"renewal_txn_id"`
	Gateway      string    `json:"gateway"`
	Amount       int64     `json:"amount"`
	InitiatedAt  time.Time `json:"initiated_at"`
}

// Report categorizes every live pending renewal without mutating
// anything; it is the read-only reconciliation view for operators.
func (svc *Service) Report(ctx context.Context, cfg config.RecoveryConfig) (*PendingRenewalReport, error) {
	orders, err := queries.GetPendingRenewalOrders(svc.db)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-cfg.StaleAfter)
	report := &PendingRenewalReport{
		PaidUnprocessed: []ReportEntry{},
		StillPending:    []ReportEntry{},
		Stale:           []ReportEntry{},
	}

	for i := range orders {
		order := &orders[i]
		entry := ReportEntry{
			OrderID:      order.ID,
			RenewalTxnID: *order.PendingRenewalTxnID,
			Gateway:      order.PendingRenewalGateway,
			Amount:       order.PendingRenewalAmount,
		}
		if order.PendingRenewalInitiatedAt != nil {
			entry.InitiatedAt = *order.PendingRenewalInitiatedAt
		}

		if status, _ := svc.probePayment(ctx, order); status != nil {
			report.PaidUnprocessed = append(report.PaidUnprocessed, entry)
			continue
		}
		if order.PendingRenewalInitiatedAt != nil && order.PendingRenewalInitiatedAt.Before(cutoff) {
			report.Stale = append(report.Stale, entry)
			continue
		}
		report.StillPending = append(report.StillPending, entry)
	}
	return report, nil
}
