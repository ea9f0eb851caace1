package events

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"cluster-intelligence-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalRoundTripKeepsType(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	raw, err := Marshal(NewClusterEvent("split", map[string]interface{}{"user_id": "u1"}, at))
	require.NoError(t, err)

	got, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, "CLUSTER_SPLIT", got.Type)
	assert.Equal(t, "u1", got.Data["user_id"])
	assert.True(t, at.Equal(got.OccurredAt))
	assert.True(t, IsClusterEvent(got))
}

func TestUnmarshalRejectsUntyped(t *testing.T) {
	_, err := Unmarshal([]byte(`{"data":{}}`))
	assert.Error(t, err)
}

func TestStringIDs(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, StringIDs(map[string]interface{}{"ids": []interface{}{"a", 1, "b"}}, "ids"))
	assert.Equal(t, []string{"x"}, StringIDs(map[string]interface{}{"ids": []string{"x"}}, "ids"))
	assert.Nil(t, StringIDs(map[string]interface{}{}, "ids"))
}

func TestChannelBus_DeliversMatchingEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewChannelBus(logger.NewNopLogger())
	defer bus.Close()

	got := make(chan Event, 4)
	require.NoError(t, bus.Subscribe(ctx, "CLUSTER_*", "", func(ctx context.Context, e Event) error {
		got <- e
		return nil
	}))

	require.NoError(t, bus.Publish(ctx, BaseEvent{Type: "OTHER_THING", OccurredAt: time.Now()}))
	require.NoError(t, bus.Publish(ctx, NewClusterEvent("merge", map[string]interface{}{"n": 1}, time.Now())))

	select {
	case e := <-got:
		assert.Equal(t, "CLUSTER_MERGE", e.EventType())
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-got:
		t.Fatalf("unexpected event %s", e.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestChannelBus_FailingHandlerIsRetriedThenPoisoned(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewChannelBus(logger.NewNopLogger(), WithRetryPolicy(RetryPolicy{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2,
	}))
	defer bus.Close()

	poisoned, err := bus.pubSub.Subscribe(ctx, PoisonTopic)
	require.NoError(t, err)

	var calls atomic.Int32
	require.NoError(t, bus.Subscribe(ctx, "CLUSTER_*", "health", func(ctx context.Context, e Event) error {
		calls.Add(1)
		return assert.AnError
	}))
	require.NoError(t, bus.Publish(ctx, NewClusterEvent("delete", map[string]interface{}{"n": 1}, time.Now())))

	select {
	case msg := <-poisoned:
		assert.Equal(t, "CLUSTER_DELETE", msg.Metadata.Get("type"))
		assert.Contains(t, msg.Metadata.Get(middleware.ReasonForPoisonedKey), assert.AnError.Error())
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("event never reached the poison topic")
	}

	// One first attempt plus MaxRetries, then no redelivery.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestChannelBus_RecoversAfterTransientFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewChannelBus(logger.NewNopLogger(), WithRetryPolicy(RetryPolicy{
		MaxRetries:      3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		Multiplier:      1,
	}))
	defer bus.Close()

	var calls atomic.Int32
	done := make(chan struct{})
	require.NoError(t, bus.Subscribe(ctx, "CLUSTER_*", "health", func(ctx context.Context, e Event) error {
		if calls.Add(1) == 1 {
			return assert.AnError
		}
		close(done)
		return nil
	}))
	require.NoError(t, bus.Publish(ctx, NewClusterEvent("move", nil, time.Now())))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never succeeded")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(2), calls.Load())
}

type recordingPublisher struct {
	n   int
	err error
}

func (r *recordingPublisher) Publish(ctx context.Context, e Event) error {
	r.n++
	return r.err
}

func (r *recordingPublisher) Close() error { return nil }

func TestMultiPublisher_TriesAll(t *testing.T) {
	a := &recordingPublisher{err: assert.AnError}
	b := &recordingPublisher{}
	err := MultiPublisher{a, b}.Publish(context.Background(), BaseEvent{Type: "X"})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, a.n)
	assert.Equal(t, 1, b.n)
}
