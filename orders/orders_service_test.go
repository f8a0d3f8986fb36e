package orders

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velohost/velohub/catalog"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/tests"
)

func TestCreateOrder_EnrichesFromCatalog(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, &catalog.StaticCatalog{
		Items: map[string]*catalog.Item{
			"p-4gb": {ID: "p-4gb", Name: "SkyVirt 4GB NVMe", MemoryMB: 4096},
		},
	})

	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:    "user-1",
		ProductID: "p-4gb",
		Price:     49900,
	})
	require.NoError(t, err)

	assert.Equal(t, "SkyVirt 4GB NVMe", order.ProductName)
	assert.Equal(t, 4096, order.MemoryMB)
	assert.Equal(t, constants.ORDER_STATUS_PENDING, order.Status)
	assert.NotEmpty(t, order.ClientTxnID)
	assert.NotNil(t, order.ExpiresAt)
}

func TestCreateOrder_CatalogMissUsesCallerDescriptor(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, &catalog.StaticCatalog{Items: map[string]*catalog.Item{}})

	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:      "user-1",
		ProductID:   "gone",
		ProductName: "Legacy 2GB",
		MemoryMB:    2048,
		Price:       19900,
	})
	require.NoError(t, err)
	assert.Equal(t, "Legacy 2GB", order.ProductName)
	assert.Equal(t, 2048, order.MemoryMB)
}

func TestConfirmPayment_IsIdempotent(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)
	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:      "user-1",
		ProductID:   "p1",
		ProductName: "VPS 4GB",
		Price:       49900,
	})
	require.NoError(t, err)

	require.NoError(t, ordersSvc.ConfirmPayment(ctx, order.ID, constants.GATEWAY_FLASHPAY, "pay-1"))

	// replayed webhook must not clobber anything
	require.NoError(t, ordersSvc.ConfirmPayment(ctx, order.ID, constants.GATEWAY_PAYMINT, "pay-other"))

	var reloaded db.Order
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, constants.ORDER_STATUS_CONFIRMED, reloaded.Status)
	assert.Equal(t, constants.GATEWAY_FLASHPAY, reloaded.Gateway)
	assert.Equal(t, "pay-1", reloaded.TransactionID)
}

func TestConfirmPayment_RecoversFailedOrder(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)
	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:      "user-1",
		ProductID:   "p1",
		ProductName: "VPS 4GB",
		Price:       49900,
	})
	require.NoError(t, err)

	// user retried after an initial failure notification
	require.NoError(t, ordersSvc.FailPayment(ctx, order.ID))
	require.NoError(t, ordersSvc.ConfirmPayment(ctx, order.ID, constants.GATEWAY_UPILINK, "pay-2"))

	var reloaded db.Order
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, constants.ORDER_STATUS_CONFIRMED, reloaded.Status)
}

func TestFailPayment_OnlyDowngradesPendingOrders(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)
	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:      "user-1",
		ProductID:   "p1",
		ProductName: "VPS 4GB",
		Price:       49900,
	})
	require.NoError(t, err)

	require.NoError(t, ordersSvc.ConfirmPayment(ctx, order.ID, constants.GATEWAY_FLASHPAY, "pay-3"))

	// a late failure webhook for an already captured payment changes
	// nothing
	require.NoError(t, ordersSvc.FailPayment(ctx, order.ID))

	var reloaded db.Order
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, constants.ORDER_STATUS_CONFIRMED, reloaded.Status)
}

func TestGetOrderByClientTxnID(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	ordersSvc := NewOrdersService(svc.DB, svc.EventPublisher, nil)
	order, err := ordersSvc.CreateOrder(ctx, &CreateOrderParams{
		UserID:      "user-1",
		ProductID:   "p1",
		ProductName: "VPS 4GB",
		Price:       49900,
	})
	require.NoError(t, err)

	found, err := ordersSvc.GetOrderByClientTxnID(ctx, order.ClientTxnID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = ordersSvc.GetOrderByClientTxnID(ctx, "nope")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}
