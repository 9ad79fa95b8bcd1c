package lockbox

import (
	"context"
	"encoding/json"
	"sync"
)

type (
	// Hub fans applied update events out to interested consumers. Attach
	// one via Config.Hub; the engine publishes each event after its journal
	// append has succeeded
	Hub struct {
		mu        sync.RWMutex
		consumers map[*Consumer]struct{}
	}

	// Consumer receives applied events matching its interests. A consumer
	// that falls behind its buffer loses events rather than stalling the
	// apply loop
	Consumer struct {
		hub       *Hub
		types     map[EventType]bool // empty = all event types
		ch        chan *Event
		closeOnce sync.Once
	}

	// Handler handles a single applied event
	Handler func(*Event) error
)

// DefaultConsumerBuffer is the channel capacity of a new Consumer
const DefaultConsumerBuffer = 64

func NewHub() *Hub {
	return &Hub{
		consumers: map[*Consumer]struct{}{},
	}
}

// NewConsumer creates a consumer interested in specific event types. If no
// event types are specified, the consumer receives all events
func (h *Hub) NewConsumer(eventTypes ...EventType) *Consumer {
	c := &Consumer{
		hub: h,
		ch:  make(chan *Event, DefaultConsumerBuffer),
	}
	if len(eventTypes) > 0 {
		c.types = make(map[EventType]bool, len(eventTypes))
		for _, et := range eventTypes {
			c.types[et] = true
		}
	}

	h.mu.Lock()
	h.consumers[c] = struct{}{}
	h.mu.Unlock()
	return c
}

// publish delivers events to every matching consumer without blocking
func (h *Hub) publish(evs []*Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.consumers) == 0 {
		return
	}
	for c := range h.consumers {
		for _, ev := range evs {
			if !c.matches(ev) {
				continue
			}
			select {
			case c.ch <- ev:
			default:
			}
		}
	}
}

// Receive returns the channel of events matching the consumer's interests.
// The channel is closed when the consumer is closed
func (c *Consumer) Receive() <-chan *Event {
	return c.ch
}

// Close unregisters the consumer and closes its channel
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		c.hub.mu.Lock()
		delete(c.hub.consumers, c)
		close(c.ch)
		c.hub.mu.Unlock()
	})
	return nil
}

func (c *Consumer) matches(ev *Event) bool {
	return len(c.types) == 0 || c.types[ev.Type]
}

// Consume feeds the consumer's events through the handler until the context
// is done or the consumer is closed. The first handler error stops the loop
func Consume(ctx context.Context, c *Consumer, fn Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-c.ch:
			if !ok {
				return nil
			}
			if err := fn(ev); err != nil {
				return err
			}
		}
	}
}

// MakeHandler decodes each event's payload before invoking fn
func MakeHandler[T any](fn func(ev *Event, data T) error) Handler {
	return func(ev *Event) error {
		var data T
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			return err
		}
		return fn(ev, data)
	}
}

// MakeDispatcher routes events to per-type handlers, ignoring event types
// without one
func MakeDispatcher(handlers map[EventType]Handler) Handler {
	return func(ev *Event) error {
		if fn, ok := handlers[ev.Type]; ok {
			return fn(ev)
		}
		return nil
	}
}
