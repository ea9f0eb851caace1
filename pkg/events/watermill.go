package events

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

const (
	// Topic carries every event on the in-process bus.
	Topic = "cluster_events"
	// PoisonTopic receives events whose handler kept failing after retries.
	PoisonTopic = "cluster_events_poisoned"
)

// RetryPolicy bounds redelivery of a failing handler. Delays grow from
// InitialInterval by Multiplier up to MaxInterval.
type RetryPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:      5,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}
}

type BusOption func(*ChannelBus)

func WithRetryPolicy(p RetryPolicy) BusOption {
	return func(b *ChannelBus) { b.retry = p }
}

// ChannelBus is an in-process bus on watermill's gochannel pub/sub. Every
// subscription runs behind a router with retry and poison-queue middleware,
// so a failing handler is retried with backoff and then parked on
// PoisonTopic instead of redelivered forever.
type ChannelBus struct {
	pubSub *gochannel.GoChannel
	logger logger.ILogger
	retry  RetryPolicy

	mu      sync.Mutex
	routers []*message.Router
	seq     int
}

func NewChannelBus(log logger.ILogger, opts ...BusOption) *ChannelBus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 256},
		watermill.NopLogger{},
	)
	b := &ChannelBus{pubSub: pubSub, logger: log, retry: DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *ChannelBus) Publish(ctx context.Context, event Event) error {
	payload, err := Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("type", event.EventType())
	if err := b.pubSub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.EventType(), err)
	}
	return nil
}

// Subscribe matches event types with path.Match, so "CLUSTER_*" selects every
// cluster event. durable only names the handler. The subscription ends when
// ctx is cancelled or the bus is closed.
func (b *ChannelBus) Subscribe(ctx context.Context, pattern, durable string, handler Handler) error {
	router, err := message.NewRouter(message.RouterConfig{CloseTimeout: 5 * time.Second}, watermill.NopLogger{})
	if err != nil {
		return err
	}
	poison, err := middleware.PoisonQueue(b.pubSub, PoisonTopic)
	if err != nil {
		return err
	}
	router.AddMiddleware(
		middleware.Recoverer,
		poison,
		b.logExhausted,
		middleware.Retry{
			MaxRetries:      b.retry.MaxRetries,
			InitialInterval: b.retry.InitialInterval,
			MaxInterval:     b.retry.MaxInterval,
			Multiplier:      b.retry.Multiplier,
		}.Middleware,
	)

	b.mu.Lock()
	b.seq++
	name := fmt.Sprintf("%s-%d", durable, b.seq)
	b.routers = append(b.routers, router)
	b.mu.Unlock()

	router.AddNoPublisherHandler(name, Topic, b.pubSub, func(msg *message.Message) error {
		return b.process(ctx, pattern, msg, handler)
	})

	go func() {
		if err := router.Run(ctx); err != nil {
			b.logger.Error(logger.ModuleEvents, "Event router stopped", map[string]interface{}{
				"handler": name,
				"error":   err.Error(),
			})
		}
	}()
	select {
	case <-router.Running():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *ChannelBus) process(ctx context.Context, pattern string, msg *message.Message, handler Handler) error {
	event, err := Unmarshal(msg.Payload)
	if err != nil {
		b.logger.Error(logger.ModuleEvents, "Dropping undecodable event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		return nil
	}
	if ok, _ := path.Match(pattern, event.Type); !ok {
		return nil
	}
	return handler(ctx, event)
}

// logExhausted sits between the poison queue and the retry middleware, so it
// sees only errors that survived every retry.
func (b *ChannelBus) logExhausted(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		produced, err := h(msg)
		if err != nil {
			b.logger.Warn(logger.ModuleEvents, "Event handler failed, moving event to poison topic", map[string]interface{}{
				"message_id": msg.UUID,
				"type":       msg.Metadata.Get("type"),
				"retries":    b.retry.MaxRetries,
				"error":      err.Error(),
			})
		}
		return produced, err
	}
}

func (b *ChannelBus) Close() error {
	b.mu.Lock()
	routers := b.routers
	b.routers = nil
	b.mu.Unlock()

	for _, r := range routers {
		if err := r.Close(); err != nil {
			b.logger.Warn(logger.ModuleEvents, "Failed to close event router", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	return b.pubSub.Close()
}
