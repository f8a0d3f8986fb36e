package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/logger"
)

const flashpayApiURL = "https://api.flashpay.in/v2"

// FlashpayGateway is a card/UPI gateway. Webhooks carry a hex HMAC of
// the raw body in the X-Flashpay-Signature header.
type FlashpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	apiURL        string
	httpClient    *http.Client
}

func NewFlashpayGateway(keyID, keySecret, webhookSecret string) *FlashpayGateway {
	return &FlashpayGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		apiURL:        flashpayApiURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (gw *FlashpayGateway) GetGatewayName() string {
	return constants.GATEWAY_FLASHPAY
}

type flashpayOrderResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
	Error      string `json:"error_description"`
}

func (gw *FlashpayGateway) CreateOrder(ctx context.Context, params *CreateOrderParams) (*GatewayOrder, error) {
	payload := map[string]interface{}{
		"amount":      params.Amount,
		"currency":    params.Currency,
		"receipt":     params.ClientTxnID,
		"return_url":  params.ReturnURL,
		"customer": map[string]string{
			"name":  params.CustomerName,
			"email": params.CustomerEmail,
			"phone": params.CustomerPhone,
		},
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.apiURL+"/orders", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(gw.keyID, gw.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}

	var parsed flashpayOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 || parsed.OrderID == "" {
		return nil, fmt.Errorf("flashpay order creation failed: %s", parsed.Error)
	}

	return &GatewayOrder{
		Gateway:        gw.GetGatewayName(),
		GatewayOrderID: parsed.OrderID,
		PaymentURL:     parsed.PaymentURL,
	}, nil
}

type flashpayWebhookPayload struct {
	Event   string `json:"event"` // payment.captured / payment.failed
	Payload struct {
		Payment struct {
			ID      string `json:"id"`
			OrderID string `json:"order_id"`
			Receipt string `json:"receipt"`
			Amount  int64  `json:"amount"`
			Status  string `json:"status"`
		} `json:"payment"`
	} `json:"payload"`
}

func (gw *FlashpayGateway) VerifyWebhook(body []byte, headers http.Header) (*PaymentNotification, error) {
	signature := headers.Get("X-Flashpay-Signature")
	if signature == "" || !verifyHmacSHA256(gw.webhookSecret, body, signature) {
		return nil, ErrInvalidSignature
	}

	var payload flashpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	logger.Logger.Debug().
		Str("event", payload.Event).
		Str("payment_id", payload.Payload.Payment.ID).
		Msg("Verified flashpay webhook")

	return &PaymentNotification{
		ClientTxnID:    payload.Payload.Payment.Receipt,
		GatewayOrderID: payload.Payload.Payment.OrderID,
		PaymentID:      payload.Payload.Payment.ID,
		Amount:         payload.Payload.Payment.Amount,
		Success:        payload.Event == "payment.captured",
	}, nil
}

type flashpayStatusResponse struct {
	Payments []struct {
		ID     string `json:"id"`
		Amount int64  `json:"amount"`
		Status string `json:"status"` // created/authorized/captured/failed
	} `json:"payments"`
}

func (gw *FlashpayGateway) FetchPaymentStatus(ctx context.Context, clientTxnID string) (*PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gw.apiURL+"/orders/receipt/"+clientTxnID+"/payments", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(gw.keyID, gw.keySecret)

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &PaymentStatus{}, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("flashpay status fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	var parsed flashpayStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	status := &PaymentStatus{}
	for _, payment := range parsed.Payments {
		switch payment.Status {
		case "captured":
			status.Paid = true
			status.PaymentID = payment.ID
			status.Amount = payment.Amount
			return status, nil
		case "created", "authorized":
			status.Pending = true
		}
	}
	return status, nil
}
