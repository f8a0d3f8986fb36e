package constants

import "time"

// shared constants used by multiple packages

const (
	ORDER_STATUS_PENDING    = "pending"
	ORDER_STATUS_CONFIRMED  = "confirmed"
	ORDER_STATUS_ACTIVE     = "active"
	ORDER_STATUS_FAILED     = "failed"
	ORDER_STATUS_TERMINATED = "terminated"
)

// Provisioning lifecycle. The empty string is the unset state of an
// order that has not reached the orchestrator yet.
const (
	PROVISIONING_STATUS_UNSET        = ""
	PROVISIONING_STATUS_PENDING      = "pending"
	PROVISIONING_STATUS_PROVISIONING = "provisioning"
	PROVISIONING_STATUS_ACTIVE       = "active"
	PROVISIONING_STATUS_FAILED       = "failed"
	PROVISIONING_STATUS_SUSPENDED    = "suspended"
	PROVISIONING_STATUS_TERMINATED   = "terminated"
)

const (
	PROVIDER_SKYVIRT = "skyvirt"
	PROVIDER_RACKVM  = "rackvm"
	PROVIDER_MANUAL  = "manual"
)

func GetProviders() []string {
	return []string{
		PROVIDER_SKYVIRT,
		PROVIDER_RACKVM,
		PROVIDER_MANUAL,
	}
}

const (
	GATEWAY_FLASHPAY = "flashpay"
	GATEWAY_PAYMINT  = "paymint"
	GATEWAY_UPILINK  = "upilink"
)

const (
	SERVER_ACTION_START          = "start"
	SERVER_ACTION_STOP           = "stop"
	SERVER_ACTION_RESTART        = "restart"
	SERVER_ACTION_FORMAT         = "format"
	SERVER_ACTION_CHANGEPASSWORD = "changepassword"
	SERVER_ACTION_REINSTALL      = "reinstall"
)

func GetServerActions() []string {
	return []string{
		SERVER_ACTION_START,
		SERVER_ACTION_STOP,
		SERVER_ACTION_RESTART,
		SERVER_ACTION_FORMAT,
		SERVER_ACTION_CHANGEPASSWORD,
		SERVER_ACTION_REINSTALL,
	}
}

const (
	ACTION_REQUEST_STATE_PENDING  = "pending"
	ACTION_REQUEST_STATE_APPROVED = "approved"
	ACTION_REQUEST_STATE_REJECTED = "rejected"
)

// structured adapter error codes, mapped once to a retry policy
// instead of pattern-matching vendor prose
const (
	ADAPTER_ERROR_RATE_LIMITED  = "rate_limited"
	ADAPTER_ERROR_CONFLICT      = "conflict"
	ADAPTER_ERROR_INVALID_INPUT = "invalid_input"
	ADAPTER_ERROR_TIMEOUT       = "timeout"
	ADAPTER_ERROR_AUTH          = "auth"
	ADAPTER_ERROR_UNKNOWN       = "unknown"
)

// provisioningError prefix for orders that exhausted their retries
const MANUAL_REVIEW_ERROR_PREFIX = "manual review: "

// Internal event names
const (
	EVENT_ORDER_CREATED           = "order.created"
	EVENT_ORDER_CONFIRMED         = "order.confirmed"
	EVENT_ORDER_PAYMENT_FAILED    = "order.payment_failed"
	EVENT_ORDER_PROVISIONED       = "order.provisioned"
	EVENT_ORDER_PROVISION_FAILED  = "order.provision_failed"
	EVENT_ORDER_RENEWED           = "order.renewed"
	EVENT_ORDER_RENEWAL_RECOVERED = "order.renewal_recovered"
	EVENT_ACTION_REQUESTED        = "action.requested"
	EVENT_ACTION_PROCESSED        = "action.processed"
)

const RENEWAL_PERIOD = 30 * 24 * time.Hour

const APP_IDENTIFIER = "velohub"
