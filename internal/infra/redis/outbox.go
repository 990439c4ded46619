package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"event-trivia-service/internal/app"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const eventField = "event"

// OutboxConfig configures a Redis Streams outbox.
type OutboxConfig struct {
	Stream  string
	Group   string
	Workers int
	// MaxLen caps the stream length (approximate trimming). Zero keeps everything.
	MaxLen int64
	// Block is how long XREADGROUP waits for new entries. A negative value
	// polls without blocking and sleeps Idle between empty reads.
	Block time.Duration
	Idle  time.Duration
	Count int64
}

// Outbox is an app.Outbox and app.EventSource backed by a Redis stream and a
// consumer group, so events survive a process restart and several instances
// share the projection work.
type Outbox struct {
	client *redis.Client
	cfg    OutboxConfig
	logger *zap.Logger
}

func NewOutbox(client *redis.Client, cfg OutboxConfig, logger *zap.Logger) *Outbox {
	if cfg.Stream == "" {
		cfg.Stream = "trivia:outbox"
	}
	if cfg.Group == "" {
		cfg.Group = "projector"
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Block == 0 {
		cfg.Block = 2 * time.Second
	}
	if cfg.Idle <= 0 {
		cfg.Idle = 100 * time.Millisecond
	}
	if cfg.Count <= 0 {
		cfg.Count = 32
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Outbox{client: client, cfg: cfg, logger: logger}
}

func (o *Outbox) Emit(ctx context.Context, ev app.Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: o.cfg.Stream,
		Values: map[string]interface{}{eventField: raw},
	}
	if o.cfg.MaxLen > 0 {
		args.MaxLen = o.cfg.MaxLen
		args.Approx = true
	}
	return o.client.XAdd(ctx, args).Err()
}

// Consume reads the stream through the consumer group until ctx is done. Every
// delivered entry is acknowledged once handle returns; handler errors are
// logged and the entry is not redelivered.
func (o *Outbox) Consume(ctx context.Context, handle func(context.Context, app.Event) error) error {
	if err := o.ensureGroup(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.cfg.Workers; i++ {
		consumer := fmt.Sprintf("%s-%d", uuid.NewString()[:8], i)
		g.Go(func() error { return o.consume(ctx, consumer, handle) })
	}
	return g.Wait()
}

func (o *Outbox) ensureGroup(ctx context.Context) error {
	err := o.client.XGroupCreateMkStream(ctx, o.cfg.Stream, o.cfg.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group: %w", err)
	}
	return nil
}

func (o *Outbox) consume(ctx context.Context, consumer string, handle func(context.Context, app.Event) error) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		streams, err := o.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    o.cfg.Group,
			Consumer: consumer,
			Streams:  []string{o.cfg.Stream, ">"},
			Count:    o.cfg.Count,
			Block:    o.cfg.Block,
		}).Result()
		if err != nil && !isNil(err) {
			if ctx.Err() != nil {
				return nil
			}
			o.logger.Warn("outbox read failed", zap.String("stream", o.cfg.Stream), zap.Error(err))
			if !o.sleep(ctx) {
				return nil
			}
			continue
		}

		delivered := 0
		for _, stream := range streams {
			for _, msg := range stream.Messages {
				delivered++
				o.deliver(ctx, msg, handle)
			}
		}
		if delivered == 0 && o.cfg.Block < 0 && !o.sleep(ctx) {
			return nil
		}
	}
}

func (o *Outbox) deliver(ctx context.Context, msg redis.XMessage, handle func(context.Context, app.Event) error) {
	log := o.logger.With(zap.String("stream", o.cfg.Stream), zap.String("message_id", msg.ID))
	ev, err := decodeEvent(msg)
	if err != nil {
		log.Error("dropping undecodable outbox entry", zap.Error(err))
	} else if err := handle(ctx, ev); err != nil {
		log.Warn("outbox handler failed", zap.String("event_type", string(ev.Type)), zap.Error(err))
	}
	if err := o.client.XAck(context.WithoutCancel(ctx), o.cfg.Stream, o.cfg.Group, msg.ID).Err(); err != nil {
		log.Warn("outbox ack failed", zap.Error(err))
	}
}

func (o *Outbox) sleep(ctx context.Context) bool {
	t := time.NewTimer(o.cfg.Idle)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Pending reports entries delivered to the group but not yet acknowledged.
func (o *Outbox) Pending(ctx context.Context) (int64, error) {
	p, err := o.client.XPending(ctx, o.cfg.Stream, o.cfg.Group).Result()
	if err != nil {
		return 0, err
	}
	return p.Count, nil
}

func decodeEvent(msg redis.XMessage) (app.Event, error) {
	raw, ok := msg.Values[eventField].(string)
	if !ok {
		return app.Event{}, errors.New("missing event field")
	}
	var ev app.Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		return app.Event{}, err
	}
	return ev, nil
}
