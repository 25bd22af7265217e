package service

import (
	"context"
	"testing"
	"time"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startConsumer(t *testing.T, pubSub *gochannel.GoChannel, sink events.Publisher) (IConsumerService, context.CancelFunc, <-chan error) {
	t.Helper()

	consumer := NewConsumerService(pubSub, "docchat.events", sink, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Consume(ctx) }()

	select {
	case <-consumer.Ready():
	case err := <-done:
		cancel()
		t.Fatalf("consumer exited before subscribing: %v", err)
	case <-time.After(time.Second):
		cancel()
		t.Fatal("consumer never subscribed")
	}
	return consumer, cancel, done
}

func TestEventBusRoundTrip(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	sink := events.NewRecorder(16)
	_, cancel, done := startConsumer(t, pubSub, sink)
	defer cancel()

	publisher := NewPublisherService("docchat.events", pubSub)
	require.NoError(t, publisher.Publish(context.Background(), events.New(events.TurnCompleted, map[string]interface{}{"session_id": "s1"})))

	select {
	case e := <-sink.Events():
		assert.Equal(t, events.TurnCompleted, e.EventType())
		assert.Equal(t, "s1", e.Payload()["session_id"])
	case <-time.After(time.Second):
		t.Fatal("event was not forwarded")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestEventBusDeliversEverythingPublishedAfterReady(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	defer pubSub.Close()

	sink := events.NewRecorder(16)
	_, cancel, _ := startConsumer(t, pubSub, sink)
	defer cancel()

	// the first events of a seeded process must not be lost
	publisher := NewPublisherService("docchat.events", pubSub)
	sent := []string{events.SessionCreated, events.FilesIngested, events.SessionCreated}
	for _, eventType := range sent {
		require.NoError(t, publisher.Publish(context.Background(), events.New(eventType, map[string]interface{}{})))
	}

	var got []string
	for range sent {
		select {
		case e := <-sink.Events():
			got = append(got, e.EventType())
		case <-time.After(time.Second):
			t.Fatalf("only %d of %d events forwarded", len(got), len(sent))
		}
	}
	assert.ElementsMatch(t, sent, got)
}

func TestConsumerReadyBeforeConsume(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	consumer := NewConsumerService(pubSub, "docchat.events", events.NewRecorder(1), logger.NewNop())
	select {
	case <-consumer.Ready():
		t.Fatal("ready before subscribing")
	default:
	}
}
