package broadcast

import (
	"context"
	"errors"
	"sync"

	"github.com/MarkoPoloResearchLab/tablebook/pkg/booking"
	"go.uber.org/zap"
)

// Handler receives one event delivered on one channel.
type Handler func(ctx context.Context, channel string, event booking.Event) error

// Sink forwards events to an external broker.
type Sink interface {
	Deliver(ctx context.Context, channel string, event booking.Event) error
	Close() error
}

type subscription struct {
	id      uint64
	channel string
	types   map[booking.EventType]struct{}
	handler Handler
}

func (sub subscription) matches(channel string, eventType booking.EventType) bool {
	if sub.channel != "" && sub.channel != channel {
		return false
	}
	if len(sub.types) == 0 {
		return true
	}
	_, ok := sub.types[eventType]
	return ok
}

// Bus implements booking.EventPublisher. Each event is delivered once per
// channel it names to the matching in-process subscribers and to every sink.
type Bus struct {
	logger *zap.Logger

	mu            sync.RWMutex
	nextID        uint64
	subscriptions []subscription
	sinks         []Sink
}

// NewBus builds a bus forwarding to the given sinks.
func NewBus(logger *zap.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	bus := &Bus{logger: logger}
	for _, sink := range sinks {
		if sink != nil {
			bus.sinks = append(bus.sinks, sink)
		}
	}
	return bus
}

// Subscribe registers handler for events on channel. An empty channel
// matches every channel; no types matches every event type. The returned
// function removes the subscription.
func (bus *Bus) Subscribe(channel string, handler Handler, types ...booking.EventType) func() {
	filter := make(map[booking.EventType]struct{}, len(types))
	for _, eventType := range types {
		filter[eventType] = struct{}{}
	}
	bus.mu.Lock()
	bus.nextID++
	id := bus.nextID
	bus.subscriptions = append(bus.subscriptions, subscription{id: id, channel: channel, types: filter, handler: handler})
	bus.mu.Unlock()

	return func() {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		for index, sub := range bus.subscriptions {
			if sub.id == id {
				bus.subscriptions = append(bus.subscriptions[:index], bus.subscriptions[index+1:]...)
				return
			}
		}
	}
}

// Publish fans the event out. Every subscriber and sink is attempted; the
// joined failures are logged and returned.
func (bus *Bus) Publish(ctx context.Context, event booking.Event) error {
	bus.mu.RLock()
	subscriptions := append([]subscription(nil), bus.subscriptions...)
	sinks := append([]Sink(nil), bus.sinks...)
	bus.mu.RUnlock()

	var failures []error
	for _, channel := range event.Channels() {
		for _, sub := range subscriptions {
			if !sub.matches(channel, event.Type) {
				continue
			}
			if err := sub.handler(ctx, channel, event); err != nil {
				failures = append(failures, err)
				bus.warn("subscriber failed", channel, event, err)
			}
		}
		for _, sink := range sinks {
			if err := sink.Deliver(ctx, channel, event); err != nil {
				failures = append(failures, err)
				bus.warn("sink delivery failed", channel, event, err)
			}
		}
	}
	return errors.Join(failures...)
}

// Close closes every sink.
func (bus *Bus) Close() error {
	bus.mu.Lock()
	sinks := bus.sinks
	bus.sinks = nil
	bus.mu.Unlock()

	var failures []error
	for _, sink := range sinks {
		if err := sink.Close(); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func (bus *Bus) warn(message string, channel string, event booking.Event, err error) {
	bus.logger.Warn(message,
		zap.String("channel", channel),
		zap.String("event_type", string(event.Type)),
		zap.String("event_id", event.ID),
		zap.String("restaurant_id", event.RestaurantID.String()),
		zap.Error(err),
	)
}
