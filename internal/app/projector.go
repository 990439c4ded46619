package app

import (
	"context"
	"fmt"
	"time"

	"event-trivia-service/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Projector applies outbox events to the leaderboard mirror and stats counters
// and hands completions to the external sink. Each step is retried on its own
// so a failed mirror write never double-counts stats. Errors that survive the
// retry budget are logged and dropped; the reconciler repairs the mirror from
// the record store.
type Projector struct {
	mirror     LeaderboardMirror
	stats      StatsStore
	sink       CompletionSink
	notifier   Notifier
	logger     *zap.Logger
	maxRetries uint64
	backoff    func() backoff.BackOff
}

// ProjectorConfig wires a Projector.
type ProjectorConfig struct {
	Mirror     LeaderboardMirror
	Stats      StatsStore
	Sink       CompletionSink // optional
	Notifier   Notifier       // optional
	Logger     *zap.Logger
	MaxRetries int
}

func NewProjector(cfg ProjectorConfig) (*Projector, error) {
	if cfg.Mirror == nil {
		return nil, fmt.Errorf("projector: mirror is required")
	}
	if cfg.Stats == nil {
		return nil, fmt.Errorf("projector: stats store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return &Projector{
		mirror:     cfg.Mirror,
		stats:      cfg.Stats,
		sink:       cfg.Sink,
		notifier:   cfg.Notifier,
		logger:     logger,
		maxRetries: uint64(retries),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 50 * time.Millisecond
			b.MaxInterval = 2 * time.Second
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}, nil
}

// Run consumes src until ctx is done.
func (p *Projector) Run(ctx context.Context, src EventSource) error {
	return src.Consume(ctx, p.Handle)
}

// Handle applies one event. It returns the first step error after retries;
// remaining steps still run.
func (p *Projector) Handle(ctx context.Context, ev Event) error {
	var firstErr error
	record := func(step string, err error) {
		if err == nil {
			return
		}
		p.logger.Error("projection step failed",
			zap.String("step", step),
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.Type)),
			zap.String("game_id", ev.GameID),
			zap.String("player_id", ev.PlayerID),
			zap.Error(err),
		)
		if firstErr == nil {
			firstErr = fmt.Errorf("%s: %w", step, err)
		}
	}

	switch ev.Type {
	case EventPlayerRegistered:
		record("mirror", p.retry(ctx, func() error { return p.mirror.Upsert(ctx, ev.Entry) }))
		record("stats", p.retry(ctx, func() error {
			return p.stats.Add(ctx, ev.GameID, domain.StatsCounters{Registered: 1})
		}))
	case EventPlayerScored:
		record("mirror", p.retry(ctx, func() error { return p.mirror.Upsert(ctx, ev.Entry) }))
		delta := domain.StatsCounters{Answers: 1}
		if ev.FirstAnswer {
			delta.Started = 1
		}
		record("stats", p.retry(ctx, func() error { return p.stats.Add(ctx, ev.GameID, delta) }))
	case EventPlayerFinished:
		// mirror, stats and rank were written by CompletionRecorder
		if p.sink != nil {
			record("sink", p.retry(ctx, func() error { return p.sink.PublishCompletion(ctx, ev) }))
		}
	default:
		p.logger.Warn("unknown event type", zap.String("event_type", string(ev.Type)))
		return nil
	}

	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, ev.GameID); err != nil {
			p.logger.Warn("leaderboard notify failed", zap.String("game_id", ev.GameID), zap.Error(err))
		}
	}
	return firstErr
}

func (p *Projector) retry(ctx context.Context, op func() error) error {
	b := backoff.WithContext(backoff.WithMaxRetries(p.backoff(), p.maxRetries), ctx)
	return backoff.Retry(op, b)
}
