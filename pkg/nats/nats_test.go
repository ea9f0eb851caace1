package nats

import (
	"context"
	"testing"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"
	"cluster-intelligence-be/pkg/events"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "events.CLUSTER_SPLIT", Subject("CLUSTER_SPLIT"))
}

func TestMatchType(t *testing.T) {
	assert.True(t, matchType("CLUSTER_*", "CLUSTER_MERGE"))
	assert.True(t, matchType("*", "ANYTHING"))
	assert.True(t, matchType("CLUSTER_SPLIT", "CLUSTER_SPLIT"))
	assert.False(t, matchType("CLUSTER_*", "USER_LOGIN"))
	assert.False(t, matchType("CLUSTER_SPLIT", "CLUSTER_MERGE"))
}

type fakeDelivery struct {
	data      []byte
	delivered uint64

	acked      bool
	terminated bool
	reason     string
	naks       []time.Duration
}

func (m *fakeDelivery) Data() []byte    { return m.data }
func (m *fakeDelivery) Subject() string { return "events.CLUSTER_MERGE" }
func (m *fakeDelivery) Metadata() (*jetstream.MsgMetadata, error) {
	return &jetstream.MsgMetadata{NumDelivered: m.delivered}, nil
}
func (m *fakeDelivery) Ack() error { m.acked = true; return nil }
func (m *fakeDelivery) NakWithDelay(d time.Duration) error {
	m.naks = append(m.naks, d)
	return nil
}
func (m *fakeDelivery) Term() error { m.terminated = true; return nil }
func (m *fakeDelivery) TermWithReason(reason string) error {
	m.terminated = true
	m.reason = reason
	return nil
}

func newTestSubscriber() *Subscriber {
	return &Subscriber{logger: logger.NewNopLogger(), retry: events.RetryPolicy{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     300 * time.Millisecond,
		Multiplier:      2,
	}}
}

func TestSubscriber_FailedHandlerBacksOffThenTerminates(t *testing.T) {
	s := newTestSubscriber()
	raw, err := events.Marshal(events.NewClusterEvent("merge", map[string]interface{}{"success": true}, time.Now()))
	require.NoError(t, err)

	calls := 0
	failing := func(ctx context.Context, e events.Event) error {
		calls++
		return assert.AnError
	}

	var naks []time.Duration
	for delivered := uint64(1); delivered <= 4; delivered++ {
		msg := &fakeDelivery{data: raw, delivered: delivered}
		s.handle(context.Background(), "CLUSTER_*", msg, failing)
		assert.False(t, msg.acked)
		naks = append(naks, msg.naks...)
		if delivered < 4 {
			assert.False(t, msg.terminated, "delivery %d", delivered)
		} else {
			assert.True(t, msg.terminated)
			assert.Contains(t, msg.reason, "retries exhausted")
		}
	}
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond}, naks)
	assert.Equal(t, 4, s.maxDeliver())
}

func TestSubscriber_AcksSuccessAndForeignTypes(t *testing.T) {
	s := newTestSubscriber()
	raw, err := events.Marshal(events.BaseEvent{Type: "USER_LOGIN", OccurredAt: time.Now()})
	require.NoError(t, err)

	called := false
	msg := &fakeDelivery{data: raw, delivered: 1}
	s.handle(context.Background(), "CLUSTER_*", msg, func(ctx context.Context, e events.Event) error {
		called = true
		return nil
	})
	assert.False(t, called)
	assert.True(t, msg.acked)

	bad := &fakeDelivery{data: []byte("not json"), delivered: 1}
	s.handle(context.Background(), "CLUSTER_*", bad, nil)
	assert.True(t, bad.terminated)
}
