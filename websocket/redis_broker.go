package websocket

import (
	"context"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "campusline:user:"

type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{client: client, logger: logger}
}

func (b *RedisBroker) Publish(ctx context.Context, userID string, payload []byte) error {
	return b.client.Publish(ctx, redisChannelPrefix+userID, payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, deliver func(userID string, payload []byte)) error {
	pubsub := b.client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return err
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				userID := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
				deliver(userID, []byte(msg.Payload))
			}
		}
	}()

	b.logger.Info("redis relay subscribed", zap.String("pattern", redisChannelPrefix+"*"))
	return nil
}

// Close is a no-op; the client is shared and closed by its owner.
func (b *RedisBroker) Close() error {
	return nil
}
