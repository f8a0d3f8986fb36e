package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/velohost/velohub/actions"
	"github.com/velohost/velohub/config"
	"github.com/velohost/velohub/logger"
)

type provisionBatchRequest struct {
	BatchSize  int `json:"batchSize"`
	MaxRetries int `json:"maxRetries"`
}

func (httpSvc *HttpService) provisionBatchHandler(c echo.Context) error {
	cfg := config.DefaultBatchConfig()

	var body provisionBatchRequest
	if err := c.Bind(&body); err == nil {
		if body.BatchSize > 0 {
			cfg.BatchSize = body.BatchSize
		}
		if body.MaxRetries > 0 {
			cfg.MaxRetries = body.MaxRetries
		}
	}

	summary, err := httpSvc.svc.GetBatchRunner().Run(c.Request().Context(), cfg)
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Provisioning batch run failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

func (httpSvc *HttpService) pendingRenewalsHandler(c echo.Context) error {
	report, err := httpSvc.svc.GetReconcileService().Report(c.Request().Context(), config.RecoveryConfig{
		StaleAfter: httpSvc.staleAfter(c),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, report)
}

func (httpSvc *HttpService) recoverRenewalsHandler(c echo.Context) error {
	summary, err := httpSvc.svc.GetReconcileService().RecoverPendingRenewals(c.Request().Context())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Renewal recovery run failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

func (httpSvc *HttpService) clearStaleRenewalsHandler(c echo.Context) error {
	summary, err := httpSvc.svc.GetReconcileService().ClearStalePendingRenewals(c.Request().Context(), config.RecoveryConfig{
		StaleAfter: httpSvc.staleAfter(c),
	})
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Stale renewal cleanup failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

func (httpSvc *HttpService) statusSyncHandler(c echo.Context) error {
	summary, err := httpSvc.svc.GetReconcileService().SyncProvisioningStatus(c.Request().Context(), config.DefaultSyncConfig())
	if err != nil {
		logger.Logger.Error().Err(err).Msg("Provisioning status sync failed")
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, summary)
}

func (httpSvc *HttpService) approveActionHandler(c echo.Context) error {
	return httpSvc.processActionHandler(c, true)
}

func (httpSvc *HttpService) rejectActionHandler(c echo.Context) error {
	return httpSvc.processActionHandler(c, false)
}

func (httpSvc *HttpService) processActionHandler(c echo.Context, approve bool) error {
	request, err := httpSvc.svc.GetActionsService().ProcessRequest(c.Request().Context(), c.Param("id"), approve)
	switch {
	case errors.Is(err, actions.ErrRequestProcessed):
		return c.JSON(http.StatusConflict, ErrorResponse{Message: err.Error()})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.JSON(http.StatusNotFound, ErrorResponse{Message: "Request not found"})
	case err != nil:
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Message: err.Error()})
	}
	return c.JSON(http.StatusOK, request)
}

// staleAfter reads an optional staleAfterHours query override, falling
// back to the default cutoff.
func (httpSvc *HttpService) staleAfter(c echo.Context) time.Duration {
	if hours := c.QueryParam("staleAfterHours"); hours != "" {
		if parsed, err := time.ParseDuration(hours + "h"); err == nil && parsed > 0 {
			return parsed
		}
	}
	return config.DefaultRecoveryConfig().StaleAfter
}
