// Package notify is the narrow contract to the notification system
// (email/SMS formatting lives outside this repo).
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/logger"
)

type Notifier interface {
	Send(ctx context.Context, event string, userID string, order *db.Order) error
}

type webhookNotifier struct {
	hookURL    string
	httpClient *http.Client
}

func NewWebhookNotifier(hookURL string) *webhookNotifier {
	return &webhookNotifier{
		hookURL: hookURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (svc *webhookNotifier) Send(ctx context.Context, event string, userID string, order *db.Order) error {
	payload := map[string]interface{}{
		"event":   event,
		"user_id": userID,
	}
	if order != nil {
		payload["order"] = map[string]interface{}{
			"id":      order.ID,
			"product": order.ProductName,
			"status":  order.Status,
		}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.hookURL, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("notification hook returned %s", resp.Status)
	}
	return nil
}

// NoopNotifier drops notifications; used when no hook is configured.
type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, event string, userID string, order *db.Order) error {
	logger.Logger.Debug().
		Str("event", event).
		Str("user_id", userID).
		Msg("Notification dropped (no hook configured)")
	return nil
}
