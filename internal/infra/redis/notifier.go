package redis

import (
	"context"

	"event-trivia-service/internal/app"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultNotifyChannel = "trivia:leaderboard:changed"

// Notifier publishes leaderboard changes on a pub/sub channel so the live hub of
// every instance reloads, not only the one that ran the projection.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewNotifier(client *redis.Client, channel string, logger *zap.Logger) *Notifier {
	if channel == "" {
		channel = defaultNotifyChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{client: client, channel: channel, logger: logger}
}

func (n *Notifier) Notify(ctx context.Context, gameID string) error {
	return n.client.Publish(ctx, n.channel, gameID).Err()
}

// Listen forwards published game ids to local until ctx is done.
func (n *Notifier) Listen(ctx context.Context, local app.Notifier) error {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := local.Notify(ctx, msg.Payload); err != nil {
				n.logger.Warn("local leaderboard notify failed", zap.String("game_id", msg.Payload), zap.Error(err))
			}
		}
	}
}
