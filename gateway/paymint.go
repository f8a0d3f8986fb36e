package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/velohost/velohub/constants"
)

const paymintApiURL = "https://api.paymint.io/v1"

// PaymintGateway is the second card/UPI gateway. Webhooks are signed
// with a base64 HMAC over "<timestamp>.<body>" so replayed bodies with
// a different timestamp fail verification.
type PaymintGateway struct {
	appID      string
	secretKey  string
	apiURL     string
	httpClient *http.Client
}

func NewPaymintGateway(appID, secretKey string) *PaymintGateway {
	return &PaymintGateway{
		appID:      appID,
		secretKey:  secretKey,
		apiURL:     paymintApiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (gw *PaymintGateway) GetGatewayName() string {
	return constants.GATEWAY_PAYMINT
}

type paymintOrderResponse struct {
	Status      string `json:"status"`
	OrderToken  string `json:"order_token"`
	CheckoutURL string `json:"checkout_url"`
	Message     string `json:"message"`
}

func (gw *PaymintGateway) CreateOrder(ctx context.Context, params *CreateOrderParams) (*GatewayOrder, error) {
	payload := map[string]interface{}{
		"order_id":       params.ClientTxnID,
		"order_amount":   params.Amount,
		"order_currency": params.Currency,
		"return_url":     params.ReturnURL,
		"customer_details": map[string]string{
			"customer_name":  params.CustomerName,
			"customer_email": params.CustomerEmail,
			"customer_phone": params.CustomerPhone,
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
	req.Header.Set("x-client-id", gw.appID)
	req.Header.Set("x-client-secret", gw.secretKey)
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
	var parsed paymintOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 || parsed.Status != "OK" {
		return nil, fmt.Errorf("paymint order creation failed: %s", parsed.Message)
	}

	return &GatewayOrder{
		Gateway:        gw.GetGatewayName(),
		GatewayOrderID: parsed.OrderToken,
		PaymentURL:     parsed.CheckoutURL,
	}, nil
}

type paymintWebhookPayload struct {
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
			Token   string `json:"order_token"`
			Amount  int64  `json:"order_amount"`
		} `json:"order"`
		Payment struct {
			ReferenceID string `json:"cf_payment_id"`
			Status      string `json:"payment_status"` // SUCCESS / FAILED / USER_DROPPED
		} `json:"payment"`
	} `json:"data"`
}

func (gw *PaymintGateway) VerifyWebhook(body []byte, headers http.Header) (*PaymentNotification, error) {
	timestamp := headers.Get("x-webhook-timestamp")
	signature := headers.Get("x-webhook-signature")
	if timestamp == "" || signature == "" {
		return nil, ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(gw.secretKey))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var payload paymintWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	return &PaymentNotification{
		ClientTxnID:    payload.Data.Order.OrderID,
		GatewayOrderID: payload.Data.Order.Token,
		PaymentID:      payload.Data.Payment.ReferenceID,
		Amount:         payload.Data.Order.Amount,
		Success:        payload.Data.Payment.Status == "SUCCESS",
	}, nil
}

type paymintStatusResponse struct {
	OrderStatus string `json:"order_status"` // PAID / ACTIVE / EXPIRED
	Payment     struct {
		ReferenceID string `json:"cf_payment_id"`
		Amount      int64  `json:"payment_amount"`
	} `json:"payment"`
}

func (gw *PaymintGateway) FetchPaymentStatus(ctx context.Context, clientTxnID string) (*PaymentStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gw.apiURL+"/orders/"+clientTxnID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-client-id", gw.appID)
	req.Header.Set("x-client-secret", gw.secretKey)

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &PaymentStatus{}, nil
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("paymint status fetch failed: %s", resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	var parsed paymintStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}

	return &PaymentStatus{
		PaymentID: parsed.Payment.ReferenceID,
		Amount:    parsed.Payment.Amount,
		Paid:      parsed.OrderStatus == "PAID",
		Pending:   parsed.OrderStatus == "ACTIVE",
	}, nil
}
