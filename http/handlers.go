package http

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/velohost/velohub/actions"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/orders"
	"github.com/velohost/velohub/renewal"
)

func (httpSvc *HttpService) renewOrderHandler(c echo.Context) error {
	var body RenewRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
	}
	if err := httpSvc.validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	}

	ctx := c.Request().Context()
	order, err := httpSvc.svc.GetOrdersService().GetOrder(ctx, c.Param("id"))
	if errors.Is(err, orders.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Order not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	if order.UserID != body.UserID {
		return c.JSON(http.StatusForbidden, ErrorResponse{Message: "Order does not belong to this user"})
	}

	renewalTxnID := uuid.NewString()
	gatewayOrder, err := httpSvc.svc.GetGatewayChain().CreateOrder(ctx, &gateway.CreateOrderParams{
		Amount:        order.Price,
		Currency:      "INR",
		ClientTxnID:   renewalTxnID,
		CustomerName:  body.CustomerName,
		CustomerEmail: body.CustomerEmail,
		CustomerPhone: body.CustomerPhone,
		ReturnURL:     body.ReturnURL,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("All gateways failed to create renewal order")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Message: "Payment initiation failed, please retry"})
	}

	err = httpSvc.svc.GetRenewalService().StartRenewal(ctx, order.ID, renewalTxnID, gatewayOrder.Gateway, order.Price)
	if errors.Is(err, renewal.ErrRenewalAlreadyPending) {
		return c.JSON(http.StatusConflict, ErrorResponse{Message: "A renewal payment is already in progress for this order"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}

	return c.JSON(http.StatusOK, RenewResponse{
		OrderID:      order.ID,
		RenewalTxnID: renewalTxnID,
		Gateway:      gatewayOrder.Gateway,
		PaymentURL:   gatewayOrder.PaymentURL,
	})
}

func (httpSvc *HttpService) submitActionHandler(c echo.Context) error {
	var body SubmitActionRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
	}
	if err := httpSvc.validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	}

	request, err := httpSvc.svc.GetActionsService().SubmitRequest(c.Request().Context(), &actions.SubmitParams{
		OrderID: body.OrderID,
		UserID:  body.UserID,
		Action:  body.Action,
		Payload: body.Payload,
	})
	switch {
	case errors.Is(err, actions.ErrUnknownAction):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	case errors.Is(err, actions.ErrOrderAutoProvisioned):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case errors.Is(err, actions.ErrDuplicatePending):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Order not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, request)
}

func (httpSvc *HttpService) actionStatusHandler(c echo.Context) error {
	orderID := c.QueryParam("orderId")
	userID := c.QueryParam("userId")
	if orderID == "" || userID == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "orderId and userId query parameters are required"})
	}

	request, err := httpSvc.svc.GetActionsService().GetLatestPendingRequest(c.Request().Context(), orderID, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	if request == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"pending": false})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"pending": true,
		"request": request,
	})
}
