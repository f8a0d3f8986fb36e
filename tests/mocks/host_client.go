package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/velohost/velohub/provider"
)

// MockHostClient is a testify mock for the type provider.HostClient
type MockHostClient struct {
	mock.Mock
	Name string
}

func NewMockHostClient(name string) *MockHostClient {
	return &MockHostClient{Name: name}
}

func (_mock *MockHostClient) Provision(ctx context.Context, req *provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	ret := _mock.Called(ctx, req)

	var r0 *provider.ProvisionResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*provider.ProvisionResult)
	}
	return r0, ret.Error(1)
}

func (_mock *MockHostClient) Renew(ctx context.Context, serviceID string) (*provider.RenewResult, error) {
	ret := _mock.Called(ctx, serviceID)

	var r0 *provider.RenewResult
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*provider.RenewResult)
	}
	return r0, ret.Error(1)
}

func (_mock *MockHostClient) Start(ctx context.Context, serviceID string) error {
	return _mock.Called(ctx, serviceID).Error(0)
}

func (_mock *MockHostClient) Stop(ctx context.Context, serviceID string) error {
	return _mock.Called(ctx, serviceID).Error(0)
}

func (_mock *MockHostClient) Reboot(ctx context.Context, serviceID string) error {
	return _mock.Called(ctx, serviceID).Error(0)
}

func (_mock *MockHostClient) Format(ctx context.Context, serviceID string) error {
	return _mock.Called(ctx, serviceID).Error(0)
}

func (_mock *MockHostClient) ChangePassword(ctx context.Context, serviceID string, newPassword string) error {
	return _mock.Called(ctx, serviceID, newPassword).Error(0)
}

func (_mock *MockHostClient) GetStatus(ctx context.Context, serviceID string) (*provider.ServerStatus, error) {
	ret := _mock.Called(ctx, serviceID)

	var r0 *provider.ServerStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*provider.ServerStatus)
	}
	return r0, ret.Error(1)
}

func (_mock *MockHostClient) GetProviderName() string {
	return _mock.Name
}
