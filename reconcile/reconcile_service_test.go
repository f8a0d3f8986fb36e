package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/renewal"
	"github.com/velohost/velohub/tests"
	"github.com/velohost/velohub/tests/mocks"
)

func createPendingRenewalOrder(t *testing.T, svc *tests.TestService, id string, renewalTxnID string, initiatedAt time.Time) *db.Order {
	t.Helper()
	expiresAt := time.Now().Add(3 * 24 * time.Hour)
	order := &db.Order{
		ID:                        id,
		UserID:                    "user-1",
		ProductName:               "VPS 4GB",
		Price:                     49900,
		ClientTxnID:               "txn-" + id,
		Status:                    constants.ORDER_STATUS_ACTIVE,
		Provider:                  constants.PROVIDER_SKYVIRT,
		ServiceID:                 "srv-" + id,
		ExpiresAt:                 &expiresAt,
		PendingRenewalTxnID:       &renewalTxnID,
		PendingRenewalGateway:     constants.GATEWAY_FLASHPAY,
		PendingRenewalAmount:      49900,
		PendingRenewalInitiatedAt: &initiatedAt,
	}
	require.NoError(t, svc.DB.Create(order).Error)
	return order
}

func recoveryConfigWithCutoff(age time.Duration) config.RecoveryConfig {
	return config.RecoveryConfig{StaleAfter: age}
}

func syncConfigWithBatch(size int) config.SyncConfig {
	return config.SyncConfig{BatchSize: size}
}

func newReconcileService(svc *tests.TestService, gw gateway.Gateway, hostClient provider.HostClient) *Service {
	pool := provider.NewPool()
	if hostClient != nil {
		pool = provider.NewPool(hostClient)
	}
	chain := gateway.NewChain(gw)
	renewalSvc := renewal.NewRenewalService(svc.DB, pool, svc.EventPublisher)
	return NewService(svc.DB, chain, pool, renewalSvc)
}

func TestRecoverPendingRenewals_AppliesMissedWebhook(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	order := createPendingRenewalOrder(t, svc, "order-miss", "renew-miss", time.Now().Add(-time.Hour))
	previousExpiry := *order.ExpiresAt

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	mockGateway.On("FetchPaymentStatus", mock.Anything, "renew-miss").
		Return(&gateway.PaymentStatus{PaymentID: "pay-miss", Amount: 49900, Paid: true}, nil)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).Return(&provider.RenewResult{}, nil)

	summary, err := newReconcileService(svc, mockGateway, mockClient).RecoverPendingRenewals(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Probed)
	assert.Equal(t, 1, summary.Recovered)
	assert.Zero(t, summary.Errors)

	var reloaded db.Order
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", "order-miss").Error)
	assert.Nil(t, reloaded.PendingRenewalTxnID)
	assert.WithinDuration(t, previousExpiry.Add(constants.RENEWAL_PERIOD), *reloaded.ExpiresAt, time.Second)

	var payment db.RenewalPayment
	require.NoError(t, svc.DB.First(&payment, "order_id = ?", "order-miss").Error)
	assert.NotNil(t, payment.RecoveredAt)
}

func TestRecoverPendingRenewals_LeavesUnpaidMarkersAlone(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createPendingRenewalOrder(t, svc, "order-unpaid", "renew-unpaid", time.Now().Add(-time.Hour))

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	mockGateway.On("FetchPaymentStatus", mock.Anything, "renew-unpaid").
		Return(&gateway.PaymentStatus{Pending: true}, nil)

	summary, err := newReconcileService(svc, mockGateway, nil).RecoverPendingRenewals(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Probed)
	assert.Zero(t, summary.Recovered)

	var reloaded db.Order
	require.NoError(t, svc.DB.First(&reloaded, "id = ?", "order-unpaid").Error)
	assert.NotNil(t, reloaded.PendingRenewalTxnID)
}

func TestClearStalePendingRenewals_ReVerifiesBeforeDeleting(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	staleAge := time.Now().Add(-72 * time.Hour)
	createPendingRenewalOrder(t, svc, "order-stale-paid", "renew-stale-paid", staleAge)
	createPendingRenewalOrder(t, svc, "order-stale-unpaid", "renew-stale-unpaid", staleAge)
	createPendingRenewalOrder(t, svc, "order-fresh", "renew-fresh", time.Now().Add(-time.Hour))

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	// the stale marker that actually got paid must be recovered, not
	// deleted
	mockGateway.On("FetchPaymentStatus", mock.Anything, "renew-stale-paid").
		Return(&gateway.PaymentStatus{PaymentID: "pay-late", Amount: 49900, Paid: true}, nil)
	mockGateway.On("FetchPaymentStatus", mock.Anything, "renew-stale-unpaid").
		Return(nil, errors.New("transaction not found"))

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Renew", mock.Anything, mock.Anything).Return(&provider.RenewResult{}, nil)

	reconcileSvc := newReconcileService(svc, mockGateway, mockClient)
	summary, err := reconcileSvc.ClearStalePendingRenewals(ctx, recoveryConfigWithCutoff(48*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Probed)
	assert.Equal(t, 1, summary.Recovered)
	assert.Equal(t, 1, summary.Cleared)

	var paid db.Order
	require.NoError(t, svc.DB.First(&paid, "id = ?", "order-stale-paid").Error)
	assert.Nil(t, paid.PendingRenewalTxnID)
	var payment db.RenewalPayment
	assert.NoError(t, svc.DB.First(&payment, "order_id = ?", "order-stale-paid").Error)

	var cleared db.Order
	require.NoError(t, svc.DB.First(&cleared, "id = ?", "order-stale-unpaid").Error)
	assert.Nil(t, cleared.PendingRenewalTxnID)

	// fresh marker untouched
	var fresh db.Order
	require.NoError(t, svc.DB.First(&fresh, "id = ?", "order-fresh").Error)
	assert.NotNil(t, fresh.PendingRenewalTxnID)

	mockGateway.AssertNotCalled(t, "FetchPaymentStatus", mock.Anything, "renew-fresh")
}

func TestSyncProvisioningStatus_ActivatesWhenCredentialsAppear(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	require.NoError(t, svc.DB.Create(&db.Order{
		ID:                 "order-slow",
		UserID:             "user-1",
		ClientTxnID:        "txn-slow",
		Status:             constants.ORDER_STATUS_CONFIRMED,
		Provider:           constants.PROVIDER_RACKVM,
		ServiceID:          "vs-900",
		ProvisioningStatus: constants.PROVISIONING_STATUS_PROVISIONING,
		AutoProvisioned:    true,
	}).Error)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_RACKVM)
	mockClient.On("GetStatus", mock.Anything, "vs-900").Return(&provider.ServerStatus{
		IPAddress:     "45.129.2.7",
		Username:      "root",
		Password:      "hunter2hunter2",
		MachineStatus: constants.PROVISIONING_STATUS_ACTIVE,
	}, nil)

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	summary, err := newReconcileService(svc, mockGateway, mockClient).SyncProvisioningStatus(ctx, syncConfigWithBatch(25))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Activated)

	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-slow").Error)
	assert.Equal(t, constants.ORDER_STATUS_ACTIVE, order.Status)
	assert.Equal(t, constants.PROVISIONING_STATUS_ACTIVE, order.ProvisioningStatus)
	assert.Equal(t, "45.129.2.7", order.IPAddress)
}

func TestSyncProvisioningStatus_WaitsForFullCredentials(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	require.NoError(t, svc.DB.Create(&db.Order{
		ID:                 "order-partial",
		UserID:             "user-1",
		ClientTxnID:        "txn-partial",
		Status:             constants.ORDER_STATUS_CONFIRMED,
		Provider:           constants.PROVIDER_RACKVM,
		ServiceID:          "vs-901",
		ProvisioningStatus: constants.PROVISIONING_STATUS_PROVISIONING,
		AutoProvisioned:    true,
	}).Error)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_RACKVM)
	mockClient.On("GetStatus", mock.Anything, "vs-901").Return(&provider.ServerStatus{
		IPAddress:     "45.129.2.8",
		MachineStatus: constants.PROVISIONING_STATUS_ACTIVE,
	}, nil)

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	summary, err := newReconcileService(svc, mockGateway, mockClient).SyncProvisioningStatus(ctx, syncConfigWithBatch(25))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Checked)
	assert.Zero(t, summary.Activated)

	var order db.Order
	require.NoError(t, svc.DB.First(&order, "id = ?", "order-partial").Error)
	assert.Equal(t, constants.ORDER_STATUS_CONFIRMED, order.Status)
}

func TestReport_CategorizesPendingRenewals(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createPendingRenewalOrder(t, svc, "order-r-paid", "renew-r-paid", time.Now().Add(-time.Hour))
	createPendingRenewalOrder(t, svc, "order-r-stale", "renew-r-stale", time.Now().Add(-72*time.Hour))
	createPendingRenewalOrder(t, svc, "order-r-waiting", "renew-r-waiting", time.Now().Add(-time.Hour))

	mockGateway := mocks.NewMockGateway(constants.GATEWAY_FLASHPAY)
	mockGateway.On("FetchPaymentStatus", mock.Anything, "renew-r-paid").
		Return(&gateway.PaymentStatus{PaymentID: "pay-r", Amount: 49900, Paid: true}, nil)
	mockGateway.On("FetchPaymentStatus", mock.Anything, mock.Anything).
		Return(&gateway.PaymentStatus{Pending: true}, nil)

	report, err := newReconcileService(svc, mockGateway, nil).Report(ctx, recoveryConfigWithCutoff(48*time.Hour))
	require.NoError(t, err)

	require.Len(t, report.PaidUnprocessed, 1)
	assert.Equal(t, "order-r-paid", report.PaidUnprocessed[0].OrderID)
	require.Len(t, report.Stale, 1)
	assert.Equal(t, "order-r-stale", report.Stale[0].OrderID)
	require.Len(t, report.StillPending, 1)
	assert.Equal(t, "order-r-waiting", report.StillPending[0].OrderID)
}
