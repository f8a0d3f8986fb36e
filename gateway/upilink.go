package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/velohost/velohub/constants"
)

const upilinkApiURL = "https://merchant.upilink.in/api"

// UpilinkGateway is the UPI-only gateway. It delivers unsigned
// callbacks, so nothing in the callback payload is ever trusted:
// confirmation always goes through FetchPaymentStatus against the
// platform before state changes.
type UpilinkGateway struct {
	merchantID string
	apiToken   string
	apiURL     string
	httpClient *http.Client
}

func NewUpilinkGateway(merchantID, apiToken string) *UpilinkGateway {
	return &UpilinkGateway{
		merchantID: merchantID,
		apiToken:   apiToken,
		apiURL:     upilinkApiURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (gw *UpilinkGateway) GetGatewayName() string {
	return constants.GATEWAY_UPILINK
}

type upilinkOrderResponse struct {
	Status     bool   `json:"status"`
	Message    string `json:"message"`
	PaymentURL string `json:"payment_url"`
	UpiTxnID   string `json:"upi_txn_id"`
}

func (gw *UpilinkGateway) CreateOrder(ctx context.Context, params *CreateOrderParams) (*GatewayOrder, error) {
	form := url.Values{}
	form.Set("token", gw.apiToken)
	form.Set("merchant_id", gw.merchantID)
	form.Set("client_txn_id", params.ClientTxnID)
	form.Set("amount", fmt.Sprintf("%.2f", float64(params.Amount)/100))
	form.Set("customer_name", params.CustomerName)
	form.Set("customer_email", params.CustomerEmail)
	form.Set("customer_mobile", params.CustomerPhone)
	form.Set("redirect_url", params.ReturnURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.apiURL+"/create-order", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	var parsed upilinkOrderResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 || !parsed.Status {
		return nil, fmt.Errorf("upilink order creation failed: %s", parsed.Message)
	}

	return &GatewayOrder{
		Gateway:        gw.GetGatewayName(),
		GatewayOrderID: parsed.UpiTxnID,
		PaymentURL:     parsed.PaymentURL,
	}, nil
}

func (gw *UpilinkGateway) VerifyWebhook(body []byte, headers http.Header) (*PaymentNotification, error) {
	return nil, ErrWebhookNotSupported
}

type upilinkStatusResponse struct {
	Status bool `json:"status"`
	Data   struct {
		Status       string `json:"status"` // created / scanning / success / failure
		UpiTxnID     string `json:"upi_txn_id"`
		CustomerVpa  string `json:"customer_vpa"`
		AmountString string `json:"amount"`
	} `json:"data"`
}

func (gw *UpilinkGateway) FetchPaymentStatus(ctx context.Context, clientTxnID string) (*PaymentStatus, error) {
	form := url.Values{}
	form.Set("token", gw.apiToken)
	form.Set("client_txn_id", clientTxnID)
	form.Set("txn_date", time.Now().Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, gw.apiURL+"/check-order-status", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := gw.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, err
	}
	var parsed upilinkStatusResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, err
	}
	if !parsed.Status {
		return &PaymentStatus{}, nil
	}

	amount := int64(0)
	if parsed.Data.AmountString != "" {
		var rupees float64
		if _, err := fmt.Sscanf(parsed.Data.AmountString, "%f", &rupees); err == nil {
			amount = int64(rupees * 100)
		}
	}

	return &PaymentStatus{
		PaymentID: parsed.Data.UpiTxnID,
		Amount:    amount,
		Paid:      parsed.Data.Status == "success",
		Pending:   parsed.Data.Status == "created" || parsed.Data.Status == "scanning",
	}, nil
}
