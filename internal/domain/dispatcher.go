package domain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/pkg/logger"
)

// EventHandler processes a role event.
type EventHandler func(ctx context.Context, event *RoleEvent) error

// EventDispatcher routes role events to registered handlers.
type EventDispatcher struct {
	handlers map[EventType][]EventHandler
	mu       sync.RWMutex
}

// NewEventDispatcher creates a new EventDispatcher.
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Register registers a handler for one or more event types.
func (d *EventDispatcher) Register(handler EventHandler, eventTypes ...EventType) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, eventType := range eventTypes {
		d.handlers[eventType] = append(d.handlers[eventType], handler)
	}
}

// Dispatch dispatches an event to all registered handlers.
// All handlers are called sequentially. If any handler fails, the error is logged
// but remaining handlers are still executed (best-effort delivery).
// A nil dispatcher drops the event.
func (d *EventDispatcher) Dispatch(ctx context.Context, event *RoleEvent) error {
	if d == nil || event == nil {
		return nil
	}
	d.mu.RLock()
	handlers := d.handlers[event.EventType]
	d.mu.RUnlock()

	if len(handlers) == 0 {
		logger.Debug("No handlers registered for event type",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
		)
		return nil
	}

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			logger.Error("Event handler failed",
				zap.String("event_type", string(event.EventType)),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = fmt.Errorf("handler for %s failed: %w", event.EventType, err)
			}
		}
	}

	return firstErr
}
