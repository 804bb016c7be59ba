// Package changefeed carries row-level message changes from the API layer to
// live subscribers.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/npezzotti/topichat/internal/types"
	"go.uber.org/zap"
)

const topic = "message_changes"

type Publisher interface {
	Publish(ctx context.Context, ev types.ChangeEvent) error
}

type Bus struct {
	pubSub *gochannel.GoChannel
	log    *zap.Logger
}

var _ Publisher = (*Bus)(nil)

func NewBus(logger *zap.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			OutputChannelBuffer:            64,
			BlockPublishUntilSubscriberAck: true,
		},
		watermill.NewStdLogger(false, false),
	)

	return &Bus{pubSub: pubSub, log: logger}
}

// Publish delivers ev to every subscriber. Events published without
// subscribers are dropped.
func (b *Bus) Publish(ctx context.Context, ev types.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("kind", string(ev.Kind))
	msg.Metadata.Set("room_id", ev.RoomId)

	if err := b.pubSub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}

	return nil
}

// Subscribe streams decoded events until ctx is done or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan types.ChangeEvent, error) {
	messages, err := b.pubSub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	out := make(chan types.ChangeEvent)
	go func() {
		defer close(out)
		for msg := range messages {
			var ev types.ChangeEvent
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				b.log.Error("decode change event", zap.String("uuid", msg.UUID), zap.Error(err))
				msg.Ack()
				continue
			}

			select {
			case out <- ev:
				msg.Ack()
			case <-ctx.Done():
				msg.Nack()
				return
			}
		}
	}()

	return out, nil
}

func (b *Bus) Close() error {
	return b.pubSub.Close()
}
