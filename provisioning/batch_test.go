package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db/queries"
	"github.com/velohost/velohub/orders"
	"github.com/velohost/velohub/provider"
	"github.com/velohost/velohub/tests"
	"github.com/velohost/velohub/tests/mocks"
)

func fastBatchConfig() config.BatchConfig {
	cfg := config.DefaultBatchConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.InterOrderDelay = time.Millisecond
	cfg.TimeBudget = time.Minute
	return cfg
}

func newBatchRunner(svc *tests.TestService, mockClient *mocks.MockHostClient) *BatchRunner {
	ordersSvc := orders.NewOrdersService(svc.DB, svc.EventPublisher, nil)
	orchestrator := NewOrchestrator(svc.DB, provider.NewPool(mockClient), ordersSvc, svc.EventPublisher)
	return NewBatchRunner(svc.DB, orchestrator)
}

func TestBatchRun_RetriesUntilSuccess(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createConfirmedOrder(t, svc, "aaaa1111-0001", constants.PROVIDER_SKYVIRT)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Provision", mock.Anything, mock.Anything).
		Return(nil, provider.NewAdapterError(constants.ADAPTER_ERROR_RATE_LIMITED, "Rate limit exceeded, retry later")).Twice()
	mockClient.On("Provision", mock.Anything, mock.Anything).
		Return(&provider.ProvisionResult{
			ServiceID: "srv-1",
			IPAddress: "103.15.9.1",
			Username:  "root",
			Password:  "hunter2hunter2",
		}, nil).Once()

	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 2, summary.Retries)
	assert.Equal(t, 0, summary.Failed)

	order := reloadOrder(t, svc, "aaaa1111-0001")
	assert.Equal(t, constants.ORDER_STATUS_ACTIVE, order.Status)
}

func TestBatchRun_ExhaustionFlagsManualReview(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createConfirmedOrder(t, svc, "aaaa1111-0002", constants.PROVIDER_SKYVIRT)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Provision", mock.Anything, mock.Anything).
		Return(nil, provider.NewAdapterError(constants.ADAPTER_ERROR_RATE_LIMITED, "Rate limit exceeded, retry later"))

	cfg := fastBatchConfig()
	summary, err := newBatchRunner(svc, mockClient).Run(ctx, cfg)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, cfg.MaxRetries, summary.Retries)

	// vendor message survives verbatim behind the review prefix
	order := reloadOrder(t, svc, "aaaa1111-0002")
	assert.Equal(t, constants.MANUAL_REVIEW_ERROR_PREFIX+"Rate limit exceeded, retry later", order.ProvisioningError)
	assert.Equal(t, constants.PROVISIONING_STATUS_FAILED, order.ProvisioningStatus)
}

func TestBatchRun_NonRetryableFailsImmediately(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	createConfirmedOrder(t, svc, "aaaa1111-0003", constants.PROVIDER_SKYVIRT)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Provision", mock.Anything, mock.Anything).
		Return(nil, provider.NewAdapterError(constants.ADAPTER_ERROR_AUTH, "Invalid API credentials"))

	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Retries)

	order := reloadOrder(t, svc, "aaaa1111-0003")
	assert.Equal(t, "Invalid API credentials", order.ProvisioningError)
	mockClient.AssertNumberOfCalls(t, "Provision", 1)
}

func TestBatchRun_ExcludesOrdersNotNeedingWork(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	active := createConfirmedOrder(t, svc, "aaaa1111-0004", constants.PROVIDER_SKYVIRT)
	require.NoError(t, svc.DB.Model(active).
		Update("provisioning_status", constants.PROVISIONING_STATUS_ACTIVE).Error)
	createConfirmedOrder(t, svc, "aaaa1111-0005", constants.PROVIDER_MANUAL)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)

	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Zero(t, summary.Successful)
	assert.Zero(t, summary.Failed)
	mockClient.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)
}

func TestBatchRun_ManualReviewOrdersStayParked(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	order := createConfirmedOrder(t, svc, "aaaa1111-0006", constants.PROVIDER_SKYVIRT)
	require.NoError(t, svc.DB.Model(order).Updates(map[string]interface{}{
		"provisioning_status": constants.PROVISIONING_STATUS_FAILED,
		"provisioning_error":  constants.MANUAL_REVIEW_ERROR_PREFIX + "Invalid API credentials",
		"auto_provisioned":    true,
	}).Error)

	picked, err := queries.GetProvisionableOrders(svc.DB, 10)
	require.NoError(t, err)
	assert.Empty(t, picked)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Zero(t, summary.Failed)
	mockClient.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)

	// the review flag survives later sweeps untouched
	reloaded := reloadOrder(t, svc, "aaaa1111-0006")
	assert.Equal(t, constants.MANUAL_REVIEW_ERROR_PREFIX+"Invalid API credentials", reloaded.ProvisioningError)
}

func TestBatchRun_SkipsStoredNonRetryableError(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	order := createConfirmedOrder(t, svc, "aaaa1111-0007", constants.PROVIDER_SKYVIRT)
	require.NoError(t, svc.DB.Model(order).Updates(map[string]interface{}{
		"provisioning_status": constants.PROVISIONING_STATUS_FAILED,
		"provisioning_error":  "Invalid API credentials",
		"auto_provisioned":    true,
	}).Error)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	mockClient.AssertNotCalled(t, "Provision", mock.Anything, mock.Anything)

	reloaded := reloadOrder(t, svc, "aaaa1111-0007")
	assert.Equal(t, "Invalid API credentials", reloaded.ProvisioningError)
}

func TestBatchRun_RepicksStoredRetryableError(t *testing.T) {
	ctx := context.TODO()

	svc, err := tests.CreateTestService(t)
	require.NoError(t, err)
	defer svc.Remove()

	order := createConfirmedOrder(t, svc, "aaaa1111-0008", constants.PROVIDER_SKYVIRT)
	require.NoError(t, svc.DB.Model(order).Updates(map[string]interface{}{
		"provisioning_status": constants.PROVISIONING_STATUS_FAILED,
		"provisioning_error":  "Rate limit exceeded, retry later",
		"auto_provisioned":    true,
	}).Error)

	mockClient := mocks.NewMockHostClient(constants.PROVIDER_SKYVIRT)
	mockClient.On("Provision", mock.Anything, mock.Anything).
		Return(&provider.ProvisionResult{
			ServiceID: "srv-8",
			IPAddress: "103.15.9.8",
			Username:  "root",
			Password:  "hunter2hunter2",
		}, nil).Once()

	summary, err := newBatchRunner(svc, mockClient).Run(ctx, fastBatchConfig())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, constants.ORDER_STATUS_ACTIVE, reloadOrder(t, svc, "aaaa1111-0008").Status)
}
