package actions

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
)

// actionsService queues server actions for orders whose provider has
// no direct control API, so an operator can perform them by hand.
type actionsService struct {
	db             *gorm.DB
	eventPublisher events.EventPublisher
}

type ActionsService interface {
	SubmitRequest(ctx context.Context, params *SubmitParams) (*db.ServerActionRequest, error)
	GetLatestPendingRequest(ctx context.Context, orderID string, userID string) (*db.ServerActionRequest, error)
	ProcessRequest(ctx context.Context, requestID string, approve bool) (*db.ServerActionRequest, error)
}

type SubmitParams struct {
	OrderID string `validate:"required"`
	UserID  string `validate:"required"`
	Action  string `validate:"required"`
	Payload map[string]interface{}
}

var (
	ErrUnknownAction        = errors.New("unknown server action")
	ErrOrderAutoProvisioned = errors.New("order has a direct provider API, use it instead")
	ErrDuplicatePending     = errors.New("a pending request for this action already exists")
	ErrRequestProcessed     = errors.New("request was already processed")
)

func NewActionsService(gormDB *gorm.DB, eventPublisher events.EventPublisher) *actionsService {
	return &actionsService{
		db:             gormDB,
		eventPublisher: eventPublisher,
	}
}

func (svc *actionsService) SubmitRequest(ctx context.Context, params *SubmitParams) (*db.ServerActionRequest, error) {
	if !slices.Contains(constants.GetServerActions(), params.Action) {
		return nil, ErrUnknownAction
	}

	var order db.Order
	err := svc.db.First(&order, "id = ? AND user_id = ?", params.OrderID, params.UserID).Error
	if err != nil {
		return nil, err
	}
	if order.AutoProvisioned {
		return nil, ErrOrderAutoProvisioned
	}

	var pendingCount int64
	err = svc.db.Model(&db.ServerActionRequest{}).
		Where("order_id = ? AND action = ? AND status = ?",
			params.OrderID, params.Action, constants.ACTION_REQUEST_STATE_PENDING).
		Count(&pendingCount).Error
	if err != nil {
		return nil, err
	}
	if pendingCount > 0 {
		return nil, ErrDuplicatePending
	}

	// copy what the operator needs, as the order stood at request time
	snapshot, err := json.Marshal(map[string]interface{}{
		"product":  order.ProductName,
		"ip":       order.IPAddress,
		"os":       order.OS,
		"customer": order.UserID,
	})
	if err != nil {
		return nil, err
	}

	var payload []byte
	if params.Payload != nil {
		payload, err = json.Marshal(params.Payload)
		if err != nil {
			return nil, err
		}
	}

	request := &db.ServerActionRequest{
		ID:          uuid.NewString(),
		OrderID:     params.OrderID,
		UserID:      params.UserID,
		Action:      params.Action,
		Status:      constants.ACTION_REQUEST_STATE_PENDING,
		Payload:     datatypes.JSON(payload),
		Snapshot:    datatypes.JSON(snapshot),
		RequestedAt: time.Now(),
	}
	if err := svc.db.Create(request).Error; err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("order_id", params.OrderID).
		Str("action", params.Action).
		Msg("Server action queued for manual processing")

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ACTION_REQUESTED,
		Properties: map[string]interface{}{
			"request_id": request.ID,
			"order_id":   params.OrderID,
			"action":     params.Action,
		},
	})

	return request, nil
}

// GetLatestPendingRequest returns the newest pending request for the
// order, or nil when the queue is empty.
func (svc *actionsService) GetLatestPendingRequest(ctx context.Context, orderID string, userID string) (*db.ServerActionRequest, error) {
	var request db.ServerActionRequest
	err := svc.db.
		Where("order_id = ? AND user_id = ? AND status = ?",
			orderID, userID, constants.ACTION_REQUEST_STATE_PENDING).
		Order("requested_at desc").
		First(&request).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ProcessRequest resolves a pending request. Terminal: approving or
// rejecting twice fails.
func (svc *actionsService) ProcessRequest(ctx context.Context, requestID string, approve bool) (*db.ServerActionRequest, error) {
	newStatus := constants.ACTION_REQUEST_STATE_REJECTED
	if approve {
		newStatus = constants.ACTION_REQUEST_STATE_APPROVED
	}

	now := time.Now()
	result := svc.db.Model(&db.ServerActionRequest{}).
		Where("id = ?", requestID).
		Where("status = ?", constants.ACTION_REQUEST_STATE_PENDING).
		Updates(map[string]interface{}{
			"status":       newStatus,
			"processed_at": now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRequestProcessed
	}

	var request db.ServerActionRequest
	if err := svc.db.First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ACTION_PROCESSED,
		Properties: map[string]interface{}{
			"request_id": request.ID,
			"order_id":   request.OrderID,
			"action":     request.Action,
			"status":     request.Status,
		},
	})

	return &request, nil
}
