package nats

import (
	"context"
	"fmt"
	"math"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/events"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Subscriber consumes the EVENTS stream through durable consumers. A failed
// handler is redelivered with growing delays until the retry budget is spent,
// then the message is terminated.
type Subscriber struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger logger.ILogger
	retry  events.RetryPolicy
}

var _ events.Subscriber = (*Subscriber)(nil)

type SubscriberOption func(*Subscriber)

func WithRetryPolicy(p events.RetryPolicy) SubscriberOption {
	return func(s *Subscriber) { s.retry = p }
}

func NewSubscriber(url string, log logger.ILogger, opts ...SubscriberOption) (*Subscriber, error) {
	nc, js, err := connect(url)
	if err != nil {
		return nil, err
	}
	s := &Subscriber{nc: nc, js: js, logger: log, retry: events.DefaultRetryPolicy()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// delivery is the part of jetstream.Msg the subscriber acts on.
type delivery interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
	TermWithReason(reason string) error
}

// Subscribe takes an event type pattern in NATS wildcard syntax, e.g.
// "CLUSTER_*" is mapped to the subject filter "events.*" plus a type check.
func (s *Subscriber) Subscribe(ctx context.Context, pattern, durable string, handler events.Handler) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subjectPrefix + "*",
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    s.maxDeliver(),
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, pattern, msg, handler)
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	go func() {
		<-ctx.Done()
		cc.Stop()
	}()

	s.logger.Info(logger.ModuleEvents, "Subscribed to event stream", map[string]interface{}{
		"pattern": pattern,
		"durable": durable,
	})
	return nil
}

func (s *Subscriber) handle(ctx context.Context, pattern string, msg delivery, handler events.Handler) {
	event, err := events.Unmarshal(msg.Data())
	if err != nil {
		s.logger.Error(logger.ModuleEvents, "Dropping undecodable event", map[string]interface{}{
			"subject": msg.Subject(),
			"error":   err.Error(),
		})
		_ = msg.Term()
		return
	}
	if !matchType(pattern, event.Type) {
		_ = msg.Ack()
		return
	}
	if err := handler(ctx, event); err != nil {
		delivered := uint64(1)
		if md, mdErr := msg.Metadata(); mdErr == nil && md.NumDelivered > 0 {
			delivered = md.NumDelivered
		}
		if delivered >= uint64(s.maxDeliver()) {
			s.logger.Error(logger.ModuleEvents, "Event handler failed, giving up", map[string]interface{}{
				"subject":   msg.Subject(),
				"delivered": delivered,
				"error":     err.Error(),
			})
			_ = msg.TermWithReason("retries exhausted: " + err.Error())
			return
		}
		delay := s.redeliveryDelay(delivered)
		s.logger.Warn(logger.ModuleEvents, "Event handler failed, redelivering", map[string]interface{}{
			"subject":   msg.Subject(),
			"delivered": delivered,
			"delay":     delay.String(),
			"error":     err.Error(),
		})
		_ = msg.NakWithDelay(delay)
		return
	}
	_ = msg.Ack()
}

func (s *Subscriber) maxDeliver() int {
	return s.retry.MaxRetries + 1
}

// redeliveryDelay grows from InitialInterval by Multiplier per delivery.
func (s *Subscriber) redeliveryDelay(delivered uint64) time.Duration {
	mult := s.retry.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(s.retry.InitialInterval) * math.Pow(mult, float64(delivered-1)))
	if s.retry.MaxInterval > 0 && d > s.retry.MaxInterval {
		d = s.retry.MaxInterval
	}
	return d
}

// matchType supports a single trailing "*" wildcard.
func matchType(pattern, eventType string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if n := len(pattern) - 1; pattern[n] == '*' {
		return len(eventType) >= n && eventType[:n] == pattern[:n]
	}
	return pattern == eventType
}

func (s *Subscriber) Close() error {
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
