package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is a notable occurrence in a model's life.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Model is the component name of the model that emitted the event.
	Model string `json:"model"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// Event types.
const (
	EventTypeLifecycleChanged = "model.lifecycle_changed"
	EventTypeOperationFailed  = "model.operation_failed"
	EventTypeEndReached       = "model.end_reached"
	EventTypeCheckpointSaved  = "model.checkpoint_saved"
	EventTypeCheckpointLoaded = "model.checkpoint_loaded"
	EventTypeRegistryChanged  = "registry.changed"
)

// Event levels.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be delivered.
type EventFilter func(event Event) bool

// EventPublisher fans events out to subscribers, either inline or from a
// background goroutine.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	ep := &EventPublisher{
		config: cfg,
		buffer: make(chan Event, cfg.BufferSize),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers.
func (ep *EventPublisher) Publish(event Event) error {
	if !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case ep.buffer <- event:
			return nil
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishLifecycleChanged publishes a lifecycle state change.
func (ep *EventPublisher) PublishLifecycleChanged(model, from, to string) error {
	return ep.Publish(Event{
		Type:    EventTypeLifecycleChanged,
		Model:   model,
		Message: fmt.Sprintf("%s moved from %s to %s", model, from, to),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"from": from,
			"to":   to,
		},
	})
}

// PublishOperationFailed publishes a failed model operation.
func (ep *EventPublisher) PublishOperationFailed(model, operation, kind, reason string) error {
	return ep.Publish(Event{
		Type:    EventTypeOperationFailed,
		Model:   model,
		Message: fmt.Sprintf("%s %s failed: %s", model, operation, reason),
		Level:   EventLevelError,
		Data: map[string]interface{}{
			"operation": operation,
			"kind":      kind,
		},
	})
}

// PublishEndReached publishes that a model reached its end time.
func (ep *EventPublisher) PublishEndReached(model string, end float64) error {
	return ep.Publish(Event{
		Type:    EventTypeEndReached,
		Model:   model,
		Message: fmt.Sprintf("%s reached end time %g", model, end),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"end_time": end,
		},
	})
}

// PublishCheckpoint publishes a saved or loaded checkpoint.
func (ep *EventPublisher) PublishCheckpoint(model, eventType, id, dir string, at float64) error {
	return ep.Publish(Event{
		Type:    eventType,
		Model:   model,
		Message: fmt.Sprintf("%s checkpoint %s at time %g", model, id, at),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"checkpoint_id": id,
			"dir":           dir,
			"time":          at,
		},
	})
}

// PublishRegistryChanged publishes a model added to or removed from a registry.
func (ep *EventPublisher) PublishRegistryChanged(key, change, source string) error {
	return ep.Publish(Event{
		Type:    EventTypeRegistryChanged,
		Model:   key,
		Message: fmt.Sprintf("%s %s", key, change),
		Level:   EventLevelInfo,
		Data: map[string]interface{}{
			"change": change,
			"source": source,
		},
	})
}

// Subscribe adds a new event subscriber. A nil filter accepts every event.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)
		case <-ep.ctx.Done():
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	defer ep.mu.RUnlock()

	for _, entry := range ep.subscribers {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		entry.subscriber(event)
	}
}

// Shutdown drains buffered events and stops the publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}
	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByModel creates a filter that only allows events from one model.
func FilterByModel(model string) EventFilter {
	return func(event Event) bool {
		return event.Model == model
	}
}
