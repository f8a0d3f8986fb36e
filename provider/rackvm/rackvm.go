package rackvm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/provider"
)

// RackvmClient speaks the Rackvm panel API: form-encoded requests, a
// string status vocabulary and results nested one level under "vserver".
type RackvmClient struct {
	apiURL     string
	apiKey     string
	apiPass    string
	httpClient *http.Client
}

func NewRackvmClient(apiURL string, apiKey string, apiPass string, timeout time.Duration) *RackvmClient {
	return &RackvmClient{
		apiURL:  strings.TrimSuffix(apiURL, "/"),
		apiKey:  apiKey,
		apiPass: apiPass,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (svc *RackvmClient) GetProviderName() string {
	return constants.PROVIDER_RACKVM
}

type rackvmResponse struct {
	Status  string         `json:"status"` // "success" or "error"
	Message string         `json:"message"`
	Vserver *rackvmVserver `json:"vserver"`
}

type rackvmVserver struct {
	VserverID string `json:"vserverid"`
	IPAddress string `json:"ipaddress"`
	Username  string `json:"username"`
	Password  string `json:"password"`
	State     string `json:"state"` // online/offline/installing/...
	Power     string `json:"power"` // on/off
}

func (svc *RackvmClient) Provision(ctx context.Context, req *provider.ProvisionRequest) (*provider.ProvisionResult, error) {
	form := url.Values{}
	form.Set("action", "vserver-create")
	form.Set("hostname", req.Hostname)
	form.Set("ram", strconv.Itoa(req.MemoryMB))
	form.Set("template", req.OS)
	form.Set("rootpassword", req.Password)

	resp, err := svc.call(ctx, form)
	if err != nil {
		return nil, err
	}
	if resp.Vserver == nil {
		return nil, provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "rackvm create returned no vserver block")
	}

	logger.Logger.Info().
		Str("order_id", req.OrderID).
		Str("vserver_id", resp.Vserver.VserverID).
		Msg("Rackvm vserver created")

	return &provider.ProvisionResult{
		ServiceID: resp.Vserver.VserverID,
		IPAddress: resp.Vserver.IPAddress,
		Username:  resp.Vserver.Username,
		Password:  resp.Vserver.Password,
	}, nil
}

func (svc *RackvmClient) Renew(ctx context.Context, serviceID string) (*provider.RenewResult, error) {
	form := url.Values{}
	form.Set("action", "vserver-renew")
	form.Set("vserverid", serviceID)

	resp, err := svc.call(ctx, form)
	if err != nil {
		return nil, err
	}
	return &provider.RenewResult{
		Raw: map[string]interface{}{"message": resp.Message},
	}, nil
}

func (svc *RackvmClient) Start(ctx context.Context, serviceID string) error {
	return svc.simpleAction(ctx, "vserver-start", serviceID)
}

func (svc *RackvmClient) Stop(ctx context.Context, serviceID string) error {
	return svc.simpleAction(ctx, "vserver-stop", serviceID)
}

func (svc *RackvmClient) Reboot(ctx context.Context, serviceID string) error {
	return svc.simpleAction(ctx, "vserver-reboot", serviceID)
}

func (svc *RackvmClient) Format(ctx context.Context, serviceID string) error {
	return svc.simpleAction(ctx, "vserver-rebuild", serviceID)
}

func (svc *RackvmClient) ChangePassword(ctx context.Context, serviceID string, newPassword string) error {
	form := url.Values{}
	form.Set("action", "vserver-rootpassword")
	form.Set("vserverid", serviceID)
	form.Set("rootpassword", newPassword)
	_, err := svc.call(ctx, form)
	return err
}

func (svc *RackvmClient) GetStatus(ctx context.Context, serviceID string) (*provider.ServerStatus, error) {
	form := url.Values{}
	form.Set("action", "vserver-show")
	form.Set("vserverid", serviceID)

	resp, err := svc.call(ctx, form)
	if err != nil {
		return nil, err
	}
	if resp.Vserver == nil {
		return nil, provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "rackvm show returned no vserver block")
	}

	status := &provider.ServerStatus{
		IPAddress:   resp.Vserver.IPAddress,
		Username:    resp.Vserver.Username,
		Password:    resp.Vserver.Password,
		PowerStatus: resp.Vserver.Power,
	}
	if normalized, ok := provider.NormalizeStatus(svc.GetProviderName(), resp.Vserver.State); ok {
		status.MachineStatus = normalized
	}
	return status, nil
}

func (svc *RackvmClient) simpleAction(ctx context.Context, action string, serviceID string) error {
	form := url.Values{}
	form.Set("action", action)
	form.Set("vserverid", serviceID)
	_, err := svc.call(ctx, form)
	return err
}

func (svc *RackvmClient) call(ctx context.Context, form url.Values) (*rackvmResponse, error) {
	form.Set("apikey", svc.apiKey)
	form.Set("apipassword", svc.apiPass)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		code := constants.ADAPTER_ERROR_UNKNOWN
		if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "Client.Timeout") {
			code = constants.ADAPTER_ERROR_TIMEOUT
		}
		return nil, provider.NewAdapterError(code, "rackvm request failed: %s", err.Error())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "rackvm response read failed: %s", err.Error())
	}

	var parsed rackvmResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, provider.NewAdapterError(constants.ADAPTER_ERROR_UNKNOWN, "rackvm returned malformed response: %s", err.Error())
	}

	if parsed.Status != "success" {
		return nil, provider.NewAdapterError(mapErrorCode(resp.StatusCode, parsed.Message), "%s", parsed.Message)
	}
	return &parsed, nil
}

func mapErrorCode(statusCode int, message string) string {
	if statusCode == http.StatusTooManyRequests {
		return constants.ADAPTER_ERROR_RATE_LIMITED
	}
	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return constants.ADAPTER_ERROR_RATE_LIMITED
	case strings.Contains(lower, "already in use"), strings.Contains(lower, "already exists"):
		return constants.ADAPTER_ERROR_CONFLICT
	case strings.Contains(lower, "password"):
		// the panel rejects passwords it considers weak; a regenerated
		// password usually passes on retry
		return constants.ADAPTER_ERROR_INVALID_INPUT
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return constants.ADAPTER_ERROR_TIMEOUT
	case strings.Contains(lower, "authentication"), strings.Contains(lower, "api key"):
		return constants.ADAPTER_ERROR_AUTH
	}
	return constants.ADAPTER_ERROR_UNKNOWN
}

