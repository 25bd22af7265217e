package service

import (
	"context"
	"sync"

	"docchat-be/internal/pkg/logger"
	"docchat-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
	// Ready is closed once Consume has subscribed. Events published before
	// that are not delivered.
	Ready() <-chan struct{}
}

// consumerService drains the in-process bus into the outward transports
// (websocket hub, NATS). A slow transport therefore never stalls the store.
type consumerService struct {
	subscriber message.Subscriber
	topicName  string
	sink       events.Publisher
	logger     logger.ILogger

	ready     chan struct{}
	readyOnce sync.Once
}

func NewConsumerService(subscriber message.Subscriber, topicName string, sink events.Publisher, log logger.ILogger) IConsumerService {
	return &consumerService{
		subscriber: subscriber,
		topicName:  topicName,
		sink:       sink,
		logger:     log,
		ready:      make(chan struct{}),
	}
}

// Consume subscribes and forwards messages until ctx is done.
func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}
	cs.readyOnce.Do(func() { close(cs.ready) })

	cs.logger.Info("ConsumerService", "Consuming store events", map[string]interface{}{"topic": cs.topicName})
	for msg := range messages {
		cs.processMessage(ctx, msg)
	}
	return ctx.Err()
}

func (cs *consumerService) Ready() <-chan struct{} {
	return cs.ready
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	event, err := events.Unmarshal(msg.Payload)
	if err != nil {
		cs.logger.Error("ConsumerService", "Failed to decode event", map[string]interface{}{
			"message_id": msg.UUID,
			"error":      err.Error(),
		})
		// invalid payloads would be redelivered forever
		msg.Ack()
		return
	}

	// Delivery to websocket clients and NATS is best effort; a failed
	// transport is logged and the message is still acked.
	if err := cs.sink.Publish(ctx, event); err != nil {
		cs.logger.Warn("ConsumerService", "Failed to forward event", map[string]interface{}{
			"event": event.EventType(),
			"error": err.Error(),
		})
	}
	msg.Ack()
}
