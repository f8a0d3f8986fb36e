package renewal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/tests"
	"github.com/velohost/velohub/tests/mocks"
)

func createActiveOrder(t *testing.T, svc *tests.TestService, id string, expiresAt time.Time) *db.Order {
	t.Helper()
	order := &db.Order{
		ID:          id,
		UserID:      "user-1",
		ProductName: "VPS 4GB",
		Price:       49900,
		ClientTxnID: "txn-" + id,
		Status:      constants.ORDER_STATUS_ACTIVE,
		Provider:    constants.PROVIDER_SKYVIRT,
		ServiceID:   "srv-" + id,
		ExpiresAt:   &expiresAt,
	}
	require.NoError(t, svc.DB.Create(order).Error)
	return order
}

func TestConfirmRenewal_ExtendsFromCurrentExpiry(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	// ten days of paid time left; renewing must stack on top of it
	currentExpiry := time.Now().Add(10 * 24 * time.Hour)
	createActiveOrder(t, svc, "order-early", currentExpiry)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, "srv-order-early").Return(&provider.RenewResult{}, nil)

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	payment, err := renewalSvc.ConfirmRenewal(ctx, "order-early", &RenewalNotice{
		RenewalTxnID: "renew-1",
		Gateway:      constants.GATEWAY_FLASHPAY,
		PaymentID:    "pay-1",
		Amount:       49900,
	})
	require.NoError(t, err)

	assert.WithinDuration(t, currentExpiry.Add(constants.RENEWAL_PERIOD), payment.NewExpiry, time.Second)
	assert.True(t, payment.ProviderRenewalSuccess)

	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-early").Error)
	assert.WithinDuration(t, currentExpiry.Add(constants.RENEWAL_PERIOD), *order.ExpiresAt, time.Second)
	assert.Nil(t, order.PendingRenewalTxnID)
}

func TestConfirmRenewal_ExpiredOrderAnchorsOnNow(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	// lapsed five days ago; the customer gets a full period from today,
	// not from the lapsed date
	createActiveOrder(t, svc, "order-lapsed", time.Now().Add(-5*24*time.Hour))

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).Return(&provider.RenewResult{}, nil)

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	payment, err := renewalSvc.ConfirmRenewal(ctx, "order-lapsed", &RenewalNotice{
		RenewalTxnID: "renew-2",
		PaymentID:    "pay-2",
		Amount:       49900,
	})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(constants.RENEWAL_PERIOD), payment.NewExpiry, 5*time.Second)
}

func TestConfirmRenewal_ReplayedWebhookAppliesOnce(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createActiveOrder(t, svc, "order-replay", time.Now().Add(24*time.Hour))

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).Return(&provider.RenewResult{}, nil)

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	notice := &RenewalNotice{RenewalTxnID: "renew-3", PaymentID: "pay-3", Amount: 49900}
	first, err := renewalSvc.ConfirmRenewal(ctx, "order-replay", notice)
	require.NoError(t, err)
	second, err := renewalSvc.ConfirmRenewal(ctx, "order-replay", notice)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, svc.DB.Model(&db.RenewalPayment{}).
		Where("order_id = ?", "order-replay").Count(&count).Error)
	assert.EqualValues(t, 1, count)

	// expiry moved exactly one period, not two
	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-replay").Error)
	assert.WithinDuration(t, first.NewExpiry, *order.ExpiresAt, time.Second)

	mockClient.AssertNumberOfCalls(t, "Renew", 1)
}

func TestConfirmRenewal_ProviderFailureKeepsExtension(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	currentExpiry := time.Now().Add(24 * time.Hour)
	createActiveOrder(t, svc, "order-provfail", currentExpiry)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).
		Return(nil, errors.New("vendor API down"))

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	payment, err := renewalSvc.ConfirmRenewal(ctx, "order-provfail", &RenewalNotice{
		RenewalTxnID: "renew-4",
		PaymentID:    "pay-4",
		Amount:       49900,
	})
	require.NoError(t, err)

	// money was captured, so the extension stands and the failed
	// provider call is only flagged
	assert.False(t, payment.ProviderRenewalSuccess)

	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-provfail").Error)
	assert.WithinDuration(t, currentExpiry.Add(constants.RENEWAL_PERIOD), *order.ExpiresAt, time.Second)
}

func TestConfirmRenewal_RecoveredNoticeIsMarked(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createActiveOrder(t, svc, "order-recovered", time.Now().Add(24*time.Hour))

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).Return(&provider.RenewResult{}, nil)

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	payment, err := renewalSvc.ConfirmRenewal(ctx, "order-recovered", &RenewalNotice{
		RenewalTxnID: "renew-5",
		PaymentID:    "pay-5",
		Amount:       49900,
		Recovered:    true,
	})
	require.NoError(t, err)
	assert.NotNil(t, payment.RecoveredAt)
}

func TestStartRenewal_RejectsSecondPendingRenewal(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createActiveOrder(t, svc, "order-dup", time.Now().Add(24*time.Hour))

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(), svc.EventPublisher)

	require.NoError(t, renewalSvc.StartRenewal(ctx, "order-dup", "renew-6", constants.GATEWAY_PAYMINT, 49900))

	err = renewalSvc.StartRenewal(ctx, "order-dup", "renew-7", constants.GATEWAY_PAYMINT, 49900)
	assert.ErrorIs(t, err, ErrRenewalAlreadyPending)

	// first marker untouched
	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-dup").Error)
	require.NotNil(t, order.PendingRenewalTxnID)
	assert.Equal(t, "renew-6", *order.PendingRenewalTxnID)
}

func TestClearPendingRenewal(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createActiveOrder(t, svc, "order-clear", time.Now().Add(24*time.Hour))

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(), svc.EventPublisher)
	require.NoError(t, renewalSvc.StartRenewal(ctx, "order-clear", "renew-8", constants.GATEWAY_UPILINK, 49900))
	require.NoError(t, renewalSvc.ClearPendingRenewal(ctx, "order-clear"))

	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-clear").Error)
	assert.Nil(t, order.PendingRenewalTxnID)

	assert.Error(t, renewalSvc.ClearPendingRenewal(ctx, "order-clear"))
}

func TestConfirmRenewal_LedgerRowCommitsBeforeProviderRenew(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createActiveOrder(t, svc, "order-seq", time.Now().Add(24*time.Hour))

	var rowsAtRenew int64
	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, "srv-order-seq").
		Run(func(args mock.Arguments) {
			require.NoError(t, svc.DB.Model(&db.RenewalPayment{}).
				Where("order_id = ? AND renewal_txn_id = ?", "order-seq", "renew-seq").
				Count(&rowsAtRenew).Error)
		}).
		Return(&provider.RenewResult{}, nil)

	renewalSvc := NewRenewalService(svc.DB, provider.NewPool(mockClient), svc.EventPublisher)

	payment, err := renewalSvc.ConfirmRenewal(ctx, "order-seq", &RenewalNotice{
		RenewalTxnID: "renew-seq",
		Gateway:      constants.GATEWAY_FLASHPAY,
		PaymentID:    "pay-seq",
		Amount:       49900,
	})
	require.NoError(t, err)

	// the dedup insert had already won before the backend was dialed,
	// so a racing duplicate confirmation can never double-dial it
	assert.EqualValues(t, 1, rowsAtRenew)
	assert.True(t, payment.ProviderRenewalSuccess)

	// the outcome flag lands on the stored row too
	var stored db.RenewalPayment
	require.NoError(t, svc.DB.First(&stored, "order_id = ? AND renewal_txn_id = ?", "order-seq", "renew-seq").Error)
	assert.True(t, stored.ProviderRenewalSuccess)
}
