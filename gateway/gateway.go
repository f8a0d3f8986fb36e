package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/velohost/velohub/logger"
)

var ErrInvalidSignature = errors.New("webhook signature verification failed")
var ErrWebhookNotSupported = errors.New("gateway does not deliver webhooks")

// Gateway is the uniform interface over payment backends. Each gateway
// has its own order-creation call, callback signature scheme and
// status-polling call; nothing outside this package knows those shapes.
type Gateway interface {
	GetGatewayName() string
	CreateOrder(ctx context.Context, params *CreateOrderParams) (*GatewayOrder, error)
	// VerifyWebhook authenticates a callback before any field of it is
	// trusted. Gateways without webhooks return ErrWebhookNotSupported;
	// their callbacks are verified with FetchPaymentStatus instead.
	VerifyWebhook(body []byte, headers http.Header) (*PaymentNotification, error)
	FetchPaymentStatus(ctx context.Context, clientTxnID string) (*PaymentStatus, error)
}

type CreateOrderParams struct {
	Amount        int64 // smallest currency unit
	Currency      string
	ClientTxnID   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
}

type GatewayOrder struct {
	Gateway        string
	GatewayOrderID string
	PaymentURL     string
}

type PaymentNotification struct {
	ClientTxnID    string
	GatewayOrderID string
	PaymentID      string
	Amount         int64
	Success        bool
}

type PaymentStatus struct {
	PaymentID string
	Amount    int64
	Paid      bool
	Pending   bool
}

// Chain tries each gateway's order creation in order and reports which
// one actually served, so the confirmation path can later query the
// right backend.
type Chain struct {
	gateways []Gateway
}

func NewChain(gateways ...Gateway) *Chain {
	return &Chain{gateways: gateways}
}

func (c *Chain) Gateways() []Gateway {
	return c.gateways
}

func (c *Chain) Get(name string) (Gateway, error) {
	for _, gw := range c.gateways {
		if gw.GetGatewayName() == name {
			return gw, nil
		}
	}
	return nil, errors.New("unknown gateway: " + name)
}

func (c *Chain) CreateOrder(ctx context.Context, params *CreateOrderParams) (*GatewayOrder, error) {
	var lastErr error
	for _, gw := range c.gateways {
		order, err := gw.CreateOrder(ctx, params)
		if err == nil {
			return order, nil
		}
		lastErr = err
		logger.Logger.Warn().
			Err(err).
			Str("gateway", gw.GetGatewayName()).
			Str("client_txn_id", params.ClientTxnID).
			Msg("Gateway order creation failed, falling back")
	}
	if lastErr == nil {
		lastErr = errors.New("no gateways configured")
	}
	return nil, lastErr
}

// verifyHmacSHA256 compares an HMAC-SHA256 over message against a
// hex-encoded signature in constant time.
func verifyHmacSHA256(secret string, message []byte, signatureHex string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	expected := mac.Sum(nil)

	received, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, received)
}

func signHmacSHA256(secret string, message []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}
