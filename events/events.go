package events

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/velohost/velohub/logger"
)

type Event struct {
	Event      string      `json:"event"`
	Properties interface{} `json:"properties,omitempty"`
}

type EventSubscriber interface {
	ConsumeEvent(ctx context.Context, event *Event, globalProperties map[string]interface{})
}

type EventPublisher interface {
	RegisterSubscriber(subscriber EventSubscriber)
	RemoveSubscriber(subscriber EventSubscriber)
	Publish(event *Event)
	PublishSync(event *Event)
	SetGlobalProperty(key string, value interface{})
}

type eventPublisher struct {
	listeners        []EventSubscriber
	subscriberMtx    sync.Mutex
	globalProperties map[string]interface{}
}

func NewEventPublisher() *eventPublisher {
	return &eventPublisher{
		listeners:        []EventSubscriber{},
		globalProperties: map[string]interface{}{},
	}
}

func (ep *eventPublisher) RegisterSubscriber(listener EventSubscriber) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()
	ep.listeners = append(ep.listeners, listener)
}

func (ep *eventPublisher) RemoveSubscriber(listenerToRemove EventSubscriber) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()

	ep.listeners = slices.DeleteFunc(ep.listeners, func(listener EventSubscriber) bool {
		return listener == listenerToRemove
	})
}

func (ep *eventPublisher) SetGlobalProperty(key string, value interface{}) {
	ep.subscriberMtx.Lock()
	defer ep.subscriberMtx.Unlock()
	ep.globalProperties[key] = value
}

// Publish delivers the event to every subscriber on its own goroutine.
// Delivery is fire-and-forget; a subscriber that needs an observable
// completion should expose one itself.
func (ep *eventPublisher) Publish(event *Event) {
	ep.subscriberMtx.Lock()
	listeners := slices.Clone(ep.listeners)
	globalProperties := maps.Clone(ep.globalProperties)
	ep.subscriberMtx.Unlock()

	logger.Logger.Debug().
		Str("event", event.Event).
		Interface("properties", event.Properties).
		Msg("Publishing event")

	for _, listener := range listeners {
		go listener.ConsumeEvent(context.Background(), event, globalProperties)
	}
}

// PublishSync delivers the event to every subscriber before returning.
func (ep *eventPublisher) PublishSync(event *Event) {
	ep.subscriberMtx.Lock()
	listeners := slices.Clone(ep.listeners)
	globalProperties := maps.Clone(ep.globalProperties)
	ep.subscriberMtx.Unlock()

	for _, listener := range listeners {
		listener.ConsumeEvent(context.Background(), event, globalProperties)
	}
}
