package mocks

import (
	"context"
	"net/http"

	"github.com/stretchr/testify/mock"

	"github.com/velohost/velohub/gateway"
)

// MockGateway is a testify mock for the type gateway.Gateway
type MockGateway struct {
	mock.Mock
	Name string
}

func NewMockGateway(name string) *MockGateway {
	return &MockGateway{Name: name}
}

func (_mock *MockGateway) GetGatewayName() string {
	return _mock.Name
}

func (_mock *MockGateway) CreateOrder(ctx context.Context, params *gateway.CreateOrderParams) (*gateway.GatewayOrder, error) {
	ret := _mock.Called(ctx, params)

	var r0 *gateway.GatewayOrder
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gateway.GatewayOrder)
	}
	return r0, ret.Error(1)
}

func (_mock *MockGateway) VerifyWebhook(body []byte, headers http.Header) (*gateway.PaymentNotification, error) {
	ret := _mock.Called(body, headers)

	var r0 *gateway.PaymentNotification
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gateway.PaymentNotification)
	}
	return r0, ret.Error(1)
}

func (_mock *MockGateway) FetchPaymentStatus(ctx context.Context, clientTxnID string) (*gateway.PaymentStatus, error) {
	ret := _mock.Called(ctx, clientTxnID)

	var r0 *gateway.PaymentStatus
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*gateway.PaymentStatus)
	}
	return r0, ret.Error(1)
}
