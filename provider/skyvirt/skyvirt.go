package skyvirt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/provider"
)

// SkyvirtClient speaks the Skyvirt JSON REST API. Skyvirt reports
// machine state as numbers and booleans rather than strings, and wraps
// every response in a {success, data, error} envelope.
type SkyvirtClient struct {
	apiURL     string
	apiKey     string
	httpClient *http.Client
}

func NewSkyvirtClient(apiURL string, apiKey string, timeout time.Duration) *SkyvirtClient {
	return &SkyvirtClient{
		apiURL: strings.TrimSuffix(apiURL, "/"),
		apiKey: apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (svc *SkyvirtClient) GetProviderName() string {
	return constants.PROVIDER_SKYVIRT
}

type skyvirtEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type skyvirtServer struct {
	ServerID  int64  `json:"server_id"`
	MainIP    string `json:"main_ip"`
	SSHUser   string `json:"ssh_user"`
	SSHPass   string `json:"ssh_pass"`
	State     int    `json:"state"`   // 0=building 1=running 2=stopped 3=error
	Suspended bool   `json:"suspended"`
}

func (svc *SkyvirtClient) Provision(ctx context.Context, req *provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	payload := map[string]interface{}{
		"label":     req.Hostname,
		"memory_mb": req.MemoryMB,
		"os_slug":   req.OS,
		"password":  req.Password,
	}

	var server skyvirtServer
	if err := svc.call(ctx, http.MethodPost, "/servers", payload, &server); err != nil {
		return nil, err
	}

	logger.Logger.Info().
		Str("order_id", req.OrderID).
		Int64("server_id", server.ServerID).
		Str("ip", server.MainIP).
		Msg("Skyvirt server created")

	return &provider.ProvisionResult{
		ServiceID: fmt.Sprintf("%d", server.ServerID),
		IPAddress: server.MainIP,
		Username:  server.SSHUser,
		Password:  server.SSHPass,
	}, nil
}

func (svc *SkyvirtClient) Renew(ctx context.Context, serviceID string) (*provider.RenewResult, error) {
	var raw map[string]interface{}
	err := svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/renew", nil, &raw)
	if err != nil {
		return nil, err
	}
	result := &provider.RenewResult{Raw: raw}
	if expiry, ok := raw["expires_at"].(string); ok {
		result.NewExpiry = expiry
	}
	return result, nil
}

func (svc *SkyvirtClient) Start(ctx context.Context, serviceID string) error {
	return svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/start", nil, nil)
}

func (svc *SkyvirtClient) Stop(ctx context.Context, serviceID string) error {
	return svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/stop", nil, nil)
}

func (svc *SkyvirtClient) Reboot(ctx context.Context, serviceID string) error {
	return svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/reboot", nil, nil)
}

func (svc *SkyvirtClient) Format(ctx context.Context, serviceID string) error {
	return svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/reinstall", nil, nil)
}

func (svc *SkyvirtClient) ChangePassword(ctx context.Context, serviceID string, newPassword string) error {
	payload := map[string]interface{}{
		"password": newPassword,
	}
	return svc.call(ctx, http.MethodPost, "/servers/"+serviceID+"/password", payload, nil)
}

func (svc *SkyvirtClient) GetStatus(ctx context.Context, serviceID string) (*provider.ServerStatus, error) {
	var server skyvirtServer
	if err := svc.call(ctx, http.MethodGet, "/servers/"+serviceID, nil, &server); err != nil {
		return nil, err
	}

	status := &provider.ServerStatus{
		IPAddress: server.MainIP,
		Username:  server.SSHUser,
		Password:  server.SSHPass,
	}

	// numeric state takes precedence, the suspended flag overrides
	token := fmt.Sprintf("%d", server.State)
	switch server.State {
	case 0:
		token = "building"
	case 1:
		token = "running"
	case 2:
		token = "stopped"
	case 3:
		token = "error"
	}
	if server.Suspended {
		token = "suspended"
	}
	if normalized, ok := provider.NormalizeStatus(svc.GetProviderName(), token); ok {
		status.MachineStatus = normalized
	}
	if server.State == 1 && !server.Suspended {
		status.PowerStatus = "on"
	} else {
		status.PowerStatus = "off"
	}
	return status, nil
}

func (svc *SkyvirtClient) call(ctx context.Context, method string, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, svc.apiURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+svc.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		code := constants.ADAPTER_ERROR_UNKNOWN
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			code = constants.ADAPTER_ERROR_TIMEOUT
		}
		return provider.NewAdapterError(code, "skyvirt request failed: %s", err.Error())
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "skyvirt response read failed: %s", err.Error())
	}

	var envelope skyvirtEnvelope
	if err := json.Unmarshal(responseBody, &envelope); err != nil {
		return provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "skyvirt returned malformed response: %s", err.Error())
	}

	if resp.StatusCode >= 400 || !envelope.Success {
		return provider.NewAdapterError(mapErrorCode(resp.StatusCode, envelope.Error), "%s", envelope.Error)
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "skyvirt returned unexpected data shape: %s", err.Error())
		}
	}
	return nil
}

func mapErrorCode(statusCode int, message string) string {
	switch statusCode {
	case http.StatusTooManyRequests:
		return constants.ADAPTER_ERROR_RATE_LIMITED
	case http.StatusConflict:
		return constants.ADAPTER_ERROR_CONFLICT
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return constants.ADAPTER_ERROR_INVALID_INPUT
	case http.StatusUnauthorized, http.StatusForbidden:
		return constants.ADAPTER_ERROR_AUTH
	case http.StatusGatewayTimeout:
		return constants.ADAPTER_ERROR_TIMEOUT
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit"):
		return constants.ADAPTER_ERROR_RATE_LIMITED
	case strings.Contains(lower, "timeout"):
		return constants.ADAPTER_ERROR_TIMEOUT
	}
	return constants.ADAPTER_ERROR_UNKNOWN
}
