package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velohost/velohub/catalog"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
)

type ordersService struct {
	db             *gorm.DB
	eventPublisher events.EventPublisher
	catalogSvc     catalog.Service
}

type OrdersService interface {
	CreateOrder(ctx context.Context, params *CreateOrderParams) (*db.Order, error)
	GetOrder(ctx context.Context, orderID string) (*db.Order, error)
	GetOrderByClientTxnID(ctx context.Context, clientTxnID string) (*db.Order, error)
	ConfirmPayment(ctx context.Context, orderID string, gateway string, transactionID string) error
	FailPayment(ctx context.Context, orderID string) error
	SelectProvider(ctx context.Context, order *db.Order) string
	InferOS(order *db.Order) string
}

type CreateOrderParams struct {
	UserID        string `validate:"required"`
	ResellerID    *string
	ProductID     string `validate:"required"`
	ProductName   string
	MemoryMB      int
	Price         int64 `validate:"gt=0"`
	PromoCode     *string
	ExpiresInDays int
}

var ErrOrderNotFound = errors.New("order not found")

func NewOrdersService(gormDB *gorm.DB, eventPublisher events.EventPublisher, catalogSvc catalog.Service) *ordersService {
	return &ordersService{
		db:             gormDB,
		eventPublisher: eventPublisher,
		catalogSvc:     catalogSvc,
	}
}

func (svc *ordersService) CreateOrder(ctx context.Context, params *CreateOrderParams) (*db.Order, error) {
	productName := params.ProductName
	memoryMB := params.MemoryMB
	if svc.catalogSvc != nil && params.ProductID != "" {
		item, err := svc.catalogSvc.GetItem(ctx, params.ProductID)
		if err != nil {
			logger.Logger.Warn().Err(err).Str("product_id", params.ProductID).Msg("Catalog lookup failed, using caller-provided descriptor")
		} else {
			productName = item.Name
			memoryMB = item.MemoryMB
		}
	}

	expiresInDays := params.ExpiresInDays
	if expiresInDays <= 0 {
		expiresInDays = 30
	}
	expiresAt := time.Now().Add(time.Duration(expiresInDays) * 24 * time.Hour)

	order := &db.Order{
		ID:                 uuid.NewString(),
		UserID:             params.UserID,
		ResellerID:         params.ResellerID,
		ProductName:        productName,
		MemoryMB:           memoryMB,
		Price:              params.Price,
		PromoCode:          params.PromoCode,
		ClientTxnID:        uuid.NewString(),
		Status:             constants.ORDER_STATUS_PENDING,
		ProvisioningStatus: constants.PROVISIONING_STATUS_UNSET,
		ExpiresAt:          &expiresAt,
	}

	if err := svc.db.Create(order).Error; err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to create order")
		return nil, err
	}

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ORDER_CREATED,
		Properties: map[string]interface{}{
			"order_id": order.ID,
			"user_id":  order.UserID,
			"product":  order.ProductName,
		},
	})

	return order, nil
}

func (svc *ordersService) GetOrder(ctx context.Context, orderID string) (*db.Order, error) {
	var order db.Order
	err := svc.db.First(&order, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (svc *ordersService) GetOrderByClientTxnID(ctx context.Context, clientTxnID string) (*db.Order, error) {
	var order db.Order
	err := svc.db.First(&order, "client_txn_id = ?", clientTxnID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ConfirmPayment marks the order paid. Targeted field updates only, to
// stay safe under last-write-wins with a concurrently running sweep.
func (svc *ordersService) ConfirmPayment(ctx context.Context, orderID string, gatewayName string, transactionID string) error {
	result := svc.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("status IN ?", []string{constants.ORDER_STATUS_PENDING, constants.ORDER_STATUS_FAILED}).
		Updates(map[string]interface{}{
			"status":         constants.ORDER_STATUS_CONFIRMED,
			"gateway":        gatewayName,
			"transaction_id": transactionID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		// already confirmed by an earlier delivery of the same webhook
		logger.Logger.Debug().Str("order_id", orderID).Msg("Payment confirmation was a no-op")
		return nil
	}

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ORDER_CONFIRMED,
		Properties: map[string]interface{}{
			"order_id":       orderID,
			"gateway":        gatewayName,
			"transaction_id": transactionID,
		},
	})
	return nil
}

func (svc *ordersService) FailPayment(ctx context.Context, orderID string) error {
	err := svc.db.Model(&db.Order{}).
		Where("id = ?", orderID).
		Where("status = ?", constants.ORDER_STATUS_PENDING).
		Update("status", constants.ORDER_STATUS_FAILED).Error
	if err != nil {
		return err
	}

	svc.eventPublisher.Publish(&events.Event{
		Event: constants.EVENT_ORDER_PAYMENT_FAILED,
		Properties: map[string]interface{}{
			"order_id": orderID,
		},
	})
	return nil
}
