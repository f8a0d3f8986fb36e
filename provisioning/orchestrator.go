package provisioning

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/db/queries"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/orders"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/utils"
)

// Orchestrator turns a confirmed order into a running server. It is
// invoked asynchronously from the webhook path and synchronously from
// the batch runner; the claim in queries.ClaimProvisioning makes the
// two safe against each other.
type Orchestrator struct {
	db             *gorm.DB
	pool           *provider.Pool
	ordersSvc      orders.OrdersService
	eventPublisher events.EventPublisher
}

// Outcome is the observable result of one provisioning attempt.
type Outcome struct {
	OrderID string
	// Skipped means the claim guard found the order already
	// provisioning or active and nothing was done.
	Skipped bool
	// Manual means the order was handed to manual fulfillment.
	Manual  bool
	Success bool
	Err     error
}

func NewOrchestrator(gormDB *gorm.DB, pool *provider.Pool, ordersSvc orders.OrdersService, eventPublisher events.EventPublisher) *Orchestrator {
	return &Orchestrator{
		db:             gormDB,
		pool:           pool,
		ordersSvc:      ordersSvc,
		eventPublisher: eventPublisher,
	}
}

// ProvisionAsync dispatches a provisioning attempt on its own
// goroutine. The returned channel delivers exactly one Outcome, so
// completion stays observable even though the caller does not block.
func (orch *Orchestrator) ProvisionAsync(orderID string) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		outcome, err := orch.Provision(context.Background(), orderID)
		if err != nil {
			outcome = &Outcome{OrderID: orderID, Err: err}
		}
		done <- *outcome
		close(done)
	}()
	return done
}

// Provision performs one guarded provisioning attempt. Persistence
// failures surface as the returned error; provider failures are
// committed to the order and reported inside the Outcome.
func (orch *Orchestrator) Provision(ctx context.Context, orderID string) (*Outcome, error) {
	order, err := orch.ordersSvc.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != constants.ORDER_STATUS_CONFIRMED && order.Status != constants.ORDER_STATUS_ACTIVE {
		return nil, fmt.Errorf("order %s is not paid (status %q)", orderID, order.Status)
	}

	// re-check immediately before acting: this claim is the only
	// protection against double-provisioning
	err = queries.ClaimProvisioning(orch.db, orderID)
	if errors.Is(err, queries.ErrAlreadyClaimed) {
		logger.Logger.Info().
			Str("order_id", orderID).
			Msg("Order already provisioning or active, skipping")
		return &Outcome{OrderID: orderID, Skipped: true}, nil
	}
	if err != nil {
		return nil, err
	}

	os := orch.ordersSvc.InferOS(order)
	providerName := orch.ordersSvc.SelectProvider(ctx, order)

	err = orch.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"os":       os,
			"provider": providerName,
		}).Error
	if err != nil {
		return nil, err
	}

	client, err := orch.pool.Get(providerName)
	if err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("order_id", orderID).
		Str("provider", providerName).
		Str("os", os).
		Msg("Provisioning order")

	result, provisionErr := client.Provision(ctx, &provider.ProvisionRequest{
		OrderID:  orderID,
		Hostname: "vps-" + shortOrderID(orderID),
		MemoryMB: order.MemoryMB,
		OS:       os,
		Password: utils.GeneratePassword(16),
	})

	var manualErr *provider.ErrManualFulfillment
	if errors.As(provisionErr, &manualErr) {
		return orch.commitManual(orderID)
	}
	if provisionErr != nil {
		return orch.commitFailure(orderID, provisionErr)
	}
	return orch.commitSuccess(orderID, order.UserID, result)
}

func (orch *Orchestrator) commitSuccess(orderID string, userID string, result *provider.ProvisionResult) (*Outcome, error) {
	// slow backends acknowledge the create without credentials; leave
	// the order provisioning and let status sync surface the rest
	if result.IPAddress == "" || result.Username == "" || result.Password == "" {
		err := orch.db.Model(&db.Order{}).
			Where("id = ?", orderID).
			Updates(map[string]interface{}{
				"service_id":         result.ServiceID,
				"auto_provisioned":   true,
				"provisioning_error": "",
			}).Error
		if err != nil {
			return nil, err
		}
		logger.Logger.Info().
			Str("order_id", orderID).
			Str("service_id", result.ServiceID).
			Msg("Backend accepted order without credentials, awaiting status sync")
		return &Outcome{OrderID: orderID, Success: true}, nil
	}

	err := orch.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"service_id":          result.ServiceID,
			"ip_address":          result.IPAddress,
			"username":            result.Username,
			"password":            result.Password,
			"provisioning_status": constants.PROVISIONING_STATUS_ACTIVE,
			"provisioning_error":  "",
			"auto_provisioned":    true,
			"status":              constants.ORDER_STATUS_ACTIVE,
		}).Error
	if err != nil {
		return nil, err
	}

	orch.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ORDER_PROVISIONED,
		Properties: map[string]interface{}{
			"order_id":   orderID,
			"user_id":    userID,
			"service_id": result.ServiceID,
			"ip_address": result.IPAddress,
		},
	})

	return &Outcome{OrderID: orderID, Success: true}, nil
}

func (orch *Orchestrator) commitFailure(orderID string, provisionErr error) (*Outcome, error) {
	err := orch.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"provisioning_status": constants.PROVISIONING_STATUS_FAILED,
			"provisioning_error":  provisionErr.Error(),
			"auto_provisioned":    true,
		}).Error
	if err != nil {
		return nil, err
	}

	logger.Logger.Error().
		Err(provisionErr).
		Str("order_id", orderID).
		Msg("Provisioning failed")

	orch.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ORDER_PROVISION_FAILED,
		Properties: map[string]interface{}{
			"order_id": orderID,
			"error":    provisionErr.Error(),
		},
	})

	return &Outcome{OrderID: orderID, Err: provisionErr}, nil
}

func (orch *Orchestrator) commitManual(orderID string) (*Outcome, error) {
	// hand back to pending so operators find it; not an error state
	err := orch.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"provisioning_status": constants.PROVISIONING_STATUS_PENDING,
			"auto_provisioned":    false,
			"provisioning_error":  "",
		}).Error
	if err != nil {
		return nil, err
	}
	return &Outcome{OrderID: orderID, Manual: true}, nil
}

// shortOrderID keeps hostnames readable for uuid ids without choking
// on shorter ids from older rows.
func shortOrderID(orderID string) string {
	if len(orderID) > 8 {
		return orderID[:8]
	}
	return orderID
}
