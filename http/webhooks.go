package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/renewal"
)

func (httpSvc *HttpService) flashpayWebhookHandler(c echo.Context) error {
	return httpSvc.signedWebhookHandler(c, constants.GATEWAY_FLASHPAY)
}

func (httpSvc *HttpService) paymintWebhookHandler(c echo.Context) error {
	return httpSvc.signedWebhookHandler(c, constants.GATEWAY_PAYMINT)
}

// signedWebhookHandler is the shared path for gateways that sign their
// callbacks. Signature verification happens before any payload field is
// read; a failed check returns 401 and touches no order state.
func (httpSvc *HttpService) signedWebhookHandler(c echo.Context, gatewayName string) error {
	gw, err := httpSvc.svc.GetGatewayChain().Get(gatewayName)
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Unknown gateway"})
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Failed to read request body"})
	}

	notification, err := gw.VerifyWebhook(body, c.Request().Header)
	if errors.Is(err, gateway.ErrInvalidSignature) {
		logger.Logger.Warn().
			Str("gateway", gatewayName).
			Str("remote_ip", c.RealIP()).
			Msg("Webhook signature verification failed")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Message: "Invalid signature"})
	}
	if err != nil {
		logger.Logger.Error().Err(err).Str("gateway", gatewayName).Msg("Failed to parse webhook payload")
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid payload"})
	}

	return httpSvc.applyPaymentNotification(c, gatewayName, notification)
}

// upilinkCallbackHandler handles the UPI gateway, which does not sign
// its callbacks. The callback body is used only to learn which
// transaction to look at; the verdict comes from querying the gateway.
func (httpSvc *HttpService) upilinkCallbackHandler(c echo.Context) error {
	clientTxnID := c.FormValue("client_txn_id")
	if clientTxnID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Missing client_txn_id"})
	}

	gw, err := httpSvc.svc.GetGatewayChain().Get(constants.GATEWAY_UPILINK)
	if err != nil {
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Unknown gateway"})
	}

	status, err := gw.FetchPaymentStatus(c.Request().Context(), clientTxnID)
	if err != nil {
		logger.Logger.Error().Err(err).Str("client_txn_id", clientTxnID).Msg("Failed to verify UPI payment status")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Message: "Payment verification failed"})
	}
	if status.Pending {
		// the callback fired before the payment settled, the gateway
		// will retry or reconciliation will pick it up
		return c.JSON(http.StatusOK, map[string]string{"status": "pending"})
	}

	return httpSvc.applyPaymentNotification(c, constants.GATEWAY_UPILINK, &gateway.PaymentNotification{
		ClientTxnID: clientTxnID,
		PaymentID:   status.PaymentID,
		Amount:      status.Amount,
		Success:     status.Paid,
	})
}

// applyPaymentNotification routes a verified notification to either the
// purchase confirmation path or the renewal path, keyed on which column
// the transaction id matches.
func (httpSvc *HttpService) applyPaymentNotification(c echo.Context, gatewayName string, notification *gateway.PaymentNotification) error {
	ctx := c.Request().Context()

	order, err := httpSvc.svc.GetOrdersService().GetOrderByClientTxnID(ctx, notification.ClientTxnID)
	if err == nil {
		return httpSvc.applyPurchaseNotification(c, order, gatewayName, notification)
	}

	var renewalOrder db.Order
	err = httpSvc.db.First(&renewalOrder, "pending_renewal_txn_id = ?", notification.ClientTxnID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Logger.Warn().
			Str("gateway", gatewayName).
			Str("client_txn_id", notification.ClientTxnID).
			Msg("Webhook for unknown transaction")
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Unknown transaction"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}

	if !notification.Success {
		// failed renewal payments keep the pending marker, the stale
		// cleanup job clears them after its cutoff
		return c.JSON(http.StatusOK, map[string]string{"status": "ignored"})
	}

	payment, err := httpSvc.svc.GetRenewalService().ConfirmRenewal(ctx, renewalOrder.ID, &renewal.RenewalNotice{
		RenewalTxnID: notification.ClientTxnID,
		Gateway:      gatewayName,
		PaymentID:    notification.PaymentID,
		Amount:       notification.Amount,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Str("order_id", renewalOrder.ID).Msg("Failed to confirm renewal")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Failed to confirm renewal"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":     "renewed",
		"expires_at": payment.NewExpiry,
	})
}

func (httpSvc *HttpService) applyPurchaseNotification(c echo.Context, order *db.Order, gatewayName string, notification *gateway.PaymentNotification) error {
	ctx := c.Request().Context()
	ordersSvc := httpSvc.svc.GetOrdersService()

	if !notification.Success {
		if err := ordersSvc.FailPayment(ctx, order.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "failed"})
	}

	if err := ordersSvc.ConfirmPayment(ctx, order.ID, gatewayName, notification.PaymentID); err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}

	// fire and forget; the batch provisioner retries anything this
	// attempt leaves behind
	httpSvc.svc.GetOrchestrator().ProvisionAsync(order.ID)

	return c.JSON(http.StatusOK, map[string]string{"status": "confirmed"})
}
