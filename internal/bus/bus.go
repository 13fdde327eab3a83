// internal/bus/bus.go
package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/shopkeep/internal/clock"
)

// ErrShutdown is returned by Publish once the bus has been shut down.
var ErrShutdown = errors.New("event bus is shut down")

// Message is the envelope for every event delivered over the bus.
type Message struct {
	ID        string
	Timestamp time.Time
	Topic     Topic
	Payload   interface{}
}

// Handler consumes a delivered message. Returned errors are logged, never propagated
// to the publisher.
type Handler func(ctx context.Context, msg Message) error

// Publisher is the narrow contract modules depend on to emit events.
type Publisher interface {
	Publish(ctx context.Context, topic Topic, payload interface{}) error
}

type subscription struct {
	id      uint64
	name    string
	handler Handler
}

// EventBus is an ordered, synchronous publish/subscribe channel. Publish invokes
// handlers on the caller's goroutine, in subscription order, before returning.
type EventBus struct {
	logger *zap.Logger
	clk    clock.Clock

	mu          sync.RWMutex
	subscribers map[Topic][]subscription
	nextID      uint64
	isShutdown  bool
}

// New creates an EventBus that stamps messages using clk.
func New(logger *zap.Logger, clk clock.Clock) *EventBus {
	if clk == nil {
		clk = clock.Real{}
	}
	return &EventBus{
		logger:      logger.Named("event_bus"),
		clk:         clk,
		subscribers: make(map[Topic][]subscription),
	}
}

// Subscribe registers handler for the given topics and returns an unsubscribe func.
// name is used only for logging.
func (b *EventBus) Subscribe(name string, handler Handler, topics ...Topic) func() {
	if len(topics) == 0 {
		panic("must subscribe to at least one topic")
	}
	if handler == nil {
		panic("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.isShutdown {
		return func() {}
	}

	b.nextID++
	sub := subscription{id: b.nextID, name: name, handler: handler}
	subscribed := make([]Topic, len(topics))
	copy(subscribed, topics)
	for _, topic := range subscribed {
		b.subscribers[topic] = append(b.subscribers[topic], sub)
	}

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, topic := range subscribed {
			subs := b.subscribers[topic]
			for i, s := range subs {
				if s.id == sub.id {
					b.subscribers[topic] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(b.subscribers[topic]) == 0 {
				delete(b.subscribers, topic)
			}
		}
	}
}

// Publish delivers payload to every subscriber of topic, synchronously and in order.
// Handler failures and panics are logged and do not stop delivery to later handlers.
func (b *EventBus) Publish(ctx context.Context, topic Topic, payload interface{}) error {
	b.mu.RLock()
	if b.isShutdown {
		b.mu.RUnlock()
		return ErrShutdown
	}
	subs := b.subscribers[topic]
	// Copy so handlers may subscribe or unsubscribe during delivery.
	subsCopy := make([]subscription, len(subs))
	copy(subsCopy, subs)
	b.mu.RUnlock()

	msg := Message{
		ID:        uuid.New().String(),
		Timestamp: b.clk.Now(),
		Topic:     topic,
		Payload:   payload,
	}

	if len(subsCopy) == 0 {
		return nil
	}
	b.logger.Debug("Publishing event", zap.String("topic", string(topic)), zap.String("id", msg.ID), zap.Int("subscribers", len(subsCopy)))

	for _, sub := range subsCopy {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.deliver(ctx, sub, msg)
	}
	return nil
}

func (b *EventBus) deliver(ctx context.Context, sub subscription, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Panic recovered in event handler",
				zap.String("subscriber", sub.name),
				zap.String("topic", string(msg.Topic)),
				zap.String("message_id", msg.ID),
				zap.Any("panic_value", r),
			)
		}
	}()
	if err := sub.handler(ctx, msg); err != nil {
		b.logger.Warn("Event handler returned an error",
			zap.String("subscriber", sub.name),
			zap.String("topic", string(msg.Topic)),
			zap.Error(err),
		)
	}
}

// SubscriberCount reports how many handlers are registered for topic.
func (b *EventBus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[topic])
}

// Shutdown stops delivery. Subsequent Publish calls return ErrShutdown.
func (b *EventBus) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.isShutdown {
		return
	}
	b.isShutdown = true
	b.subscribers = make(map[Topic][]subscription)
	b.logger.Info("Event bus shut down.")
}

// Payload extracts a typed payload from msg.
func Payload[T any](msg Message) (T, error) {
	v, ok := msg.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected payload %T for topic %s", msg.Payload, msg.Topic)
	}
	return v, nil
}
