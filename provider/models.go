package provider

import (
	"context"
	"fmt"
)

// HostClient is the uniform interface over hosting backends. Each
// backend hides its own request/response shapes, status vocabulary and
// error formats behind this contract so callers never branch on
// provider identity except to pick the client instance.
type HostClient interface {
	Provision(ctx context.Context, req *ProvisionRequest) (*ProvisionResult, error)
	Renew(ctx context.Context, serviceID string) (*RenewResult, error)
	Start(ctx context.Context, serviceID string) error
	Stop(ctx context.Context, serviceID string) error
	Reboot(ctx context.Context, serviceID string) error
	Format(ctx context.Context, serviceID string) error
	ChangePassword(ctx context.Context, serviceID string, newPassword string) error
	GetStatus(ctx context.Context, serviceID string) (*ServerStatus, error)
	GetProviderName() string
}

type ProvisionRequest struct {
	OrderID  string
	Hostname string
	MemoryMB int
	OS       string
	Password string
}

type ProvisionResult struct {
	ServiceID string
	IPAddress string
	Username  string
	Password  string
}

// RenewResult carries whatever the backend reports back; shapes differ
// wildly so only the fields callers act on are normalized.
type RenewResult struct {
	NewExpiry string
	Raw       map[string]interface{}
}

type ServerStatus struct {
	IPAddress     string
	Username      string
	Password      string
	MachineStatus string // normalized, see status.go
	PowerStatus   string
}

// AdapterError is a provider failure with a structured code. The code,
// not the vendor message, decides retryability; Message preserves the
// vendor prose verbatim for the order record.
type AdapterError struct {
	Code    string
	Message string
}

func (e *AdapterError) Error() string {
	return e.Message
}

func NewAdapterError(code string, format string, args ...interface{}) *AdapterError {
	return &AdapterError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// ErrManualFulfillment is returned by the manual backend for every
// direct control call; callers route these through the action queue.
type ErrManualFulfillment struct {
	Operation string
}

func (e *ErrManualFulfillment) Error() string {
	return fmt.Sprintf("operation %q requires manual fulfillment", e.Operation)
}
