package service

import (
	"context"

	"gorm.io/gorm"

	"github.com/velohost/velohub/constants"
	"github.com/velohost/velohub/db"
	"github.com/velohost/velohub/events"
	"github.com/velohost/velohub/logger"
	"github.com/velohost/velohub/notify"
)

// notificationConsumer forwards order lifecycle events to the external
// notification contract. Formatting and delivery happen outside this
// repo; only the narrow payload leaves here.
type notificationConsumer struct {
	db       *gorm.DB
	notifier notify.Notifier
}

var notifiedEvents = map[string]bool{
	constants.EVENT_ORDER_CONFIRMED:         true,
	constants.EVENT_ORDER_PROVISIONED:       true,
	constants.EVENT_ORDER_PROVISION_FAILED:  true,
	constants.EVENT_ORDER_RENEWED:           true,
	constants.EVENT_ORDER_RENEWAL_RECOVERED: true,
	constants.EVENT_ACTION_REQUESTED:        true,
}

func (consumer *notificationConsumer) ConsumeEvent(ctx context.Context, event *events.Event, globalProperties map[string]interface{}) {
	if !notifiedEvents[event.Event] {
		return
	}

	properties, ok := event.Properties.(map[string]interface{})
	if !ok {
		return
	}
	orderID, ok := properties["order_id"].(string)
	if !ok {
		return
	}

	var order db.Order
	if err := consumer.db.First(&order, "id = ?", orderID).Error; err != nil {
		logger.Logger.Warn().Err(err).Str("order_id", orderID).Msg("Could not load order for notification")
		return
	}

	if err := consumer.notifier.Send(ctx, event.Event, order.UserID, &order); err != nil {
		logger.Logger.Warn().
			Err(err).
			Str("event", event.Event).
			Str("order_id", orderID).
			Msg("Notification dispatch failed")
	}
}
