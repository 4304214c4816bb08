package eventbus

import (
	"sync"

	"github.com/taskmesh/taskmesh-backend/pkg/events"
	"github.com/taskmesh/taskmesh-backend/pkg/logging"
)

// EventHandler is a function that handles an event
type EventHandler func(event events.Event)

// EventBus manages event subscriptions and publications. Publish never
// blocks the caller: handlers run in their own goroutines and panics are
// recovered so a bad subscriber cannot take down the serving path.
type EventBus struct {
	handlers map[events.EventType][]EventHandler
	logger   logging.Logger
	mu       sync.RWMutex
}

// New creates a new EventBus
func New(logger logging.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[events.EventType][]EventHandler),
		logger:   logger,
	}
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType events.EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
	eb.logger.Debugf("Subscribed to event type: %s", eventType)
}

// Publish sends an event to all subscribed handlers
func (eb *EventBus) Publish(event events.Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	handlers, exists := eb.handlers[event.Type]
	if !exists {
		return
	}
	for _, handler := range handlers {
		go func(h EventHandler) {
			defer func() {
				if r := recover(); r != nil {
					eb.logger.Errorf("Recovered from panic in event handler: %v", r)
				}
			}()
			h(event)
		}(handler)
	}
	eb.logger.Debugf("Published event type: %s", event.Type)
}
