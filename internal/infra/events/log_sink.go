package events

import (
	"context"

	"event-trivia-service/internal/app"
	"go.uber.org/zap"
)

// LogSink writes completion events to the structured log. It is the default
// sink when no broker is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) PublishCompletion(_ context.Context, ev app.Event) error {
	fields := []zap.Field{
		zap.String("event_id", ev.ID),
		zap.String("event_type", string(ev.Type)),
		zap.String("game_id", ev.GameID),
		zap.String("player_id", ev.PlayerID),
		zap.Int("score", ev.Entry.Score),
		zap.Float64("accuracy", ev.Entry.Accuracy),
		zap.Int64("total_time_ms", ev.Entry.TotalTimeMs),
	}
	if ev.Entry.Rank != nil {
		fields = append(fields, zap.Int("rank", *ev.Entry.Rank))
	}
	s.logger.Info("player completed game", fields...)
	return nil
}
