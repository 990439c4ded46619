package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"event-trivia-service/internal/app"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

type publishChannel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher sends completion events to a topic exchange. The event type is the
// routing key, so consumers can bind to "player.finished" or "player.#".
type Publisher struct {
	conn     *amqp.Connection
	channel  publishChannel
	closer   func() error
	exchange string
	logger   *zap.Logger

	mu sync.Mutex // amqp channels are not safe for concurrent publishing
}

func NewPublisher(amqpURL, exchange string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	p := newPublisher(ch, exchange, logger)
	p.conn = conn
	p.closer = ch.Close
	return p, nil
}

func newPublisher(ch publishChannel, exchange string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{channel: ch, exchange: exchange, logger: logger}
}

func (p *Publisher) PublishCompletion(ctx context.Context, ev app.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.Publish(
		p.exchange,
		string(ev.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    ev.ID,
			Timestamp:    ev.OccurredAt,
			Type:         string(ev.Type),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.logger.Debug("completion event published",
		zap.String("event_id", ev.ID),
		zap.String("game_id", ev.GameID),
		zap.String("player_id", ev.PlayerID),
	)
	return nil
}

func (p *Publisher) Close() {
	if p.closer != nil {
		_ = p.closer()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}
