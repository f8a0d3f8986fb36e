package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"gorm.io/gorm"

	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/gateway"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/orders"
	"github.com/velohost/velohub/service"
)

type HttpService struct {
	cfg            *config.AppConfig
	db             *gorm.DB
	eventPublisher events.EventPublisher
	svc            service.Service
	validate       *validator.Validate
	startedAt      time.Time
}

func NewHttpService(svc service.Service, eventPublisher events.EventPublisher) *HttpService {
	return &HttpService{
		cfg:            svc.GetConfig(),
		db:             svc.GetDB(),
		eventPublisher: eventPublisher,
		svc:            svc,
		validate:       validator.New(),
		startedAt:      time.Now(),
	}
}

func (httpSvc *HttpService) RegisterSharedRoutes(e *echo.Echo) {
	e.HideBanner = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogRemoteIP:  true,
		LogUserAgent: true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			logger.HttpLogger.Info().
				Str("uri", values.URI).
				Int("status", values.Status).
				Str("remote_ip", values.RemoteIP).
				Str("user_agent", values.UserAgent).
				Str("request_id", values.RequestID).
				Msg("handled API request")
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	e.GET("/api/info", httpSvc.infoHandler)

	// payment gateway callbacks; bursty retries from the gateways are
	// smoothed out rather than rejected outright
	webhookRateLimiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(10))
	e.POST("/webhooks/flashpay", httpSvc.flashpayWebhookHandler, webhookRateLimiter)
	e.POST("/webhooks/paymint", httpSvc.paymintWebhookHandler, webhookRateLimiter)
	e.POST("/webhooks/upilink", httpSvc.upilinkCallbackHandler, webhookRateLimiter)

	e.POST("/api/checkout", httpSvc.checkoutHandler)
	e.GET("/api/orders/:id", httpSvc.getOrderHandler)
	e.POST("/api/orders/:id/renew", httpSvc.renewOrderHandler)
	e.POST("/api/actions", httpSvc.submitActionHandler)
	e.GET("/api/actions/status", httpSvc.actionStatusHandler)

	// ops routes, scheduled invocations authenticate with a static JWT
	ops := e.Group("/api/ops")
	ops.Use(echojwt.WithConfig(echojwt.Config{
		KeyFunc: func(token *jwt.Token) (interface{}, error) {
			if httpSvc.cfg.JWTSecret == "" {
				return nil, errors.New("ops routes disabled: no JWT secret configured")
			}
			return []byte(httpSvc.cfg.JWTSecret), nil
		},
	}))
	ops.POST("/provision-batch", httpSvc.provisionBatchHandler)
	ops.GET("/renewals/pending", httpSvc.pendingRenewalsHandler)
	ops.POST("/renewals/recover", httpSvc.recoverRenewalsHandler)
	ops.POST("/renewals/clear-stale", httpSvc.clearStaleRenewalsHandler)
	ops.POST("/status-sync", httpSvc.statusSyncHandler)
	ops.POST("/actions/:id/approve", httpSvc.approveActionHandler)
	ops.POST("/actions/:id/reject", httpSvc.rejectActionHandler)
}

func (httpSvc *HttpService) infoHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"name":   "velohub",
		"uptime": time.Since(httpSvc.startedAt).Round(time.Second).String(),
	})
}

func (httpSvc *HttpService) checkoutHandler(c echo.Context) error {
	var body CheckoutRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: "Invalid request body"})
	}
	if err := httpSvc.validate.Struct(&body); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Message: err.Error()})
	}

	ctx := c.Request().Context()
	var promoCode *string
	if body.PromoCode != "" {
		promoCode = &body.PromoCode
	}
	order, err := httpSvc.svc.GetOrdersService().CreateOrder(ctx, &orders.CreateOrderParams{
		UserID:      body.UserID,
		ProductID:   body.ProductID,
		ProductName: body.ProductName,
		MemoryMB:    body.MemoryMB,
		Price:       body.Price,
		PromoCode:   promoCode,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Failed to create order")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Failed to create order"})
	}

	gatewayOrder, err := httpSvc.svc.GetGatewayChain().CreateOrder(ctx, &gateway.CreateOrderParams{
		Amount:        order.Price,
		Currency:      "INR",
		ClientTxnID:   order.ClientTxnID,
		CustomerName:  body.CustomerName,
		CustomerEmail: body.CustomerEmail,
		CustomerPhone: body.CustomerPhone,
		ReturnURL:     body.ReturnURL,
	})
	if err != nil {
		logger.Logger.Error().Err(err).Str("order_id", order.ID).Msg("All gateways failed to create payment order")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Message: "Payment initiation failed, please retry"})
	}

	// remember which gateway actually served, the confirmation path
	// queries that one later
	err = httpSvc.db.Model(order).Updates(map[string]interface{}{
		"gateway":          gatewayOrder.Gateway,
		"gateway_order_id": gatewayOrder.GatewayOrderID,
	}).Error
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: "Failed to persist gateway selection"})
	}

	return c.JSON(http.StatusOK, CheckoutResponse{
		OrderID:     order.ID,
		ClientTxnID: order.ClientTxnID,
		Gateway:     gatewayOrder.Gateway,
		PaymentURL:  gatewayOrder.PaymentURL,
	})
}

func (httpSvc *HttpService) getOrderHandler(c echo.Context) error {
	order, err := httpSvc.svc.GetOrdersService().GetOrder(c.Request().Context(), c.Param("id"))
	if errors.Is(err, orders.ErrOrderNotFound) {
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Order not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, toOrderResponse(order))
}
