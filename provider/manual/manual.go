package manual

import (
	"context"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/provider"
)

// ManualClient is the human-fulfilled backend. It has no control API:
// provisioning and every server action fail with ErrManualFulfillment
// so the caller records the work for an operator instead.
type ManualClient struct{}

func NewManualClient() *ManualClient {
	return &ManualClient{}
}

func (svc *ManualClient) GetProviderName() string {
	return constants.PROVIDER_MANUAL
}

func (svc *ManualClient) Provision(ctx context.Context, req *provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	logger.Logger.Info().
		Str("order_id", req.OrderID).
		Msg("Order assigned to manual fulfillment")
	return nil, &provider.ErrManualFulfillment{Operation: "provision"}
}

func (svc *ManualClient) Renew(ctx context.Context, serviceID string) (*provider.RenewResult, error) {
	return nil, &provider.ErrManualFulfillment{Operation: "renew"}
}

func (svc *ManualClient) Start(ctx context.Context, serviceID string) error {
	return &provider.ErrManualFulfillment{Operation: "start"}
}

func (svc *ManualClient) Stop(ctx context.Context, serviceID string) error {
	return &provider.ErrManualFulfillment{Operation: "stop"}
}

func (svc *ManualClient) Reboot(ctx context.Context, serviceID string) error {
	return &provider.ErrManualFulfillment{Operation: "reboot"}
}

func (svc *ManualClient) Format(ctx context.Context, serviceID string) error {
	return &provider.ErrManualFulfillment{Operation: "format"}
}

func (svc *ManualClient) ChangePassword(ctx context.Context, serviceID string, newPassword string) error {
	return &provider.ErrManualFulfillment{Operation: "changepassword"}
}

func (svc *ManualClient) GetStatus(ctx context.Context, serviceID string) (*provider.ServerStatus, error) {
	return nil, &provider.ErrManualFulfillment{Operation: "getstatus"}
}
