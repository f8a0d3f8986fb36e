package db

import (
	"time"

	"gorm.io/datatypes"
)

// Order is one purchased hosting instance and its full lifecycle
// record. It is the single source of truth for the orchestration core;
// all mutation happens via targeted field updates keyed by ID, so
// writers must stay safe under last-write-wins.
type Order struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index" validate:"required"`
	ResellerID *string

	// commercial snapshot at purchase time
	ProductName string `validate:"required"`
	MemoryMB    int
	Price       int64 // smallest currency unit
	PromoCode   *string
	PromoMeta   datatypes.JSON

	// payment
	ClientTxnID    string `gorm:"unique;not null" validate:"required"`
	GatewayOrderID string
	Gateway        string
	TransactionID  string
	Status         string `gorm:"index"`

	// provisioning
	Provider           string
	ServiceID          string
	IPAddress          string
	Username           string
	Password           string
	OS                 string
	ProvisioningStatus string `gorm:"index"`
	ProvisioningError  string
	AutoProvisioned    bool
	ExpiresAt          *time.Time

	// at most one transient pending renewal, cleared on completion or
	// stale cleanup, never mutated in place
	PendingRenewalTxnID       *string `gorm:"uniqueIndex"`
	PendingRenewalGateway     string
	PendingRenewalAmount      int64
	PendingRenewalInitiatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RenewalPayment is an append-only ledger entry. Rows are inserted
// once and never updated or deleted; (OrderID, RenewalTxnID) is the
// idempotency key for webhook replays and recovery probes.
type RenewalPayment struct {
	ID                     uint
	OrderID                string `gorm:"index;uniqueIndex:idx_order_renewal_txn" validate:"required"`
	PaymentID              string
	Amount                 int64
	PreviousExpiry         *time.Time
	NewExpiry              time.Time
	RenewalTxnID           string `gorm:"uniqueIndex:idx_order_renewal_txn" validate:"required"`
	Provider               string
	ProviderRenewalSuccess bool
	RecoveredAt            *time.Time
	CreatedAt              time.Time
}

// ServerActionRequest queues a server action for human fulfillment
// when the order's provider has no direct control API. Terminal once
// approved or rejected; at most one pending row per (OrderID, Action).
type ServerActionRequest struct {
	ID          string `gorm:"primaryKey"`
	OrderID     string `gorm:"index" validate:"required"`
	UserID      string `validate:"required"`
	Action      string `validate:"required"`
	Status      string `gorm:"index"`
	Payload     datatypes.JSON
	Snapshot    datatypes.JSON
	RequestedAt time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
