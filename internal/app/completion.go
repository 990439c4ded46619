package app

import (
	"context"
	"fmt"
	"time"

	"event-trivia-service/internal/domain"
	"go.uber.org/zap"
)

// CompletionRecorder runs the side effects of a player finishing the game that
// the final answer's response depends on: mirror, stats, rank and the recent
// feed. External delivery happens later, from the player.finished event it
// emits. Every step is best effort: failures are logged and the following
// steps run.
type CompletionRecorder struct {
	players PlayerRepository
	mirror  LeaderboardMirror
	stats   StatsStore
	ranks   *RankService
	outbox  Outbox
	logger  *zap.Logger
	now     func() time.Time
}

// CompletionConfig wires a CompletionRecorder.
type CompletionConfig struct {
	Players PlayerRepository
	Mirror  LeaderboardMirror
	Stats   StatsStore
	Ranks   *RankService
	Outbox  Outbox // optional; receives player.finished
	Logger  *zap.Logger
	Now     func() time.Time
}

func NewCompletionRecorder(cfg CompletionConfig) (*CompletionRecorder, error) {
	switch {
	case cfg.Players == nil:
		return nil, fmt.Errorf("completion: player repository is required")
	case cfg.Mirror == nil:
		return nil, fmt.Errorf("completion: mirror is required")
	case cfg.Stats == nil:
		return nil, fmt.Errorf("completion: stats store is required")
	}
	ranks := cfg.Ranks
	if ranks == nil {
		ranks = NewRankService(cfg.Mirror)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &CompletionRecorder{
		players: cfg.Players,
		mirror:  cfg.Mirror,
		stats:   cfg.Stats,
		ranks:   ranks,
		outbox:  cfg.Outbox,
		logger:  logger,
		now:     now,
	}, nil
}

// Record finalizes a finished player and returns the computed rank, or nil if
// the rank could not be computed.
func (r *CompletionRecorder) Record(ctx context.Context, player *domain.Player) *int {
	log := r.logger.With(zap.String("game_id", player.GameID), zap.String("player_id", player.ID))
	if player.Status != domain.StatusFinished {
		log.Warn("completion requested for unfinished player", zap.String("status", string(player.Status)))
		return nil
	}
	entry := player.LeaderboardEntry()

	if err := r.mirror.Upsert(ctx, entry); err != nil {
		log.Error("mirror upsert on completion failed", zap.Error(err))
	}

	if err := r.stats.Add(ctx, player.GameID, domain.StatsCounters{
		Finished:    1,
		ScoreSum:    int64(player.CurrentScore),
		AccuracySum: player.Accuracy(),
		TimeSumMs:   player.TotalTimeMs,
	}); err != nil {
		log.Error("stats update on completion failed", zap.Error(err))
	}

	var rank *int
	if n, err := r.ranks.RankOf(ctx, entry); err != nil {
		log.Error("rank computation failed", zap.Error(err))
	} else {
		rank = &n
		entry.Rank = rank
		if err := r.players.SetRank(ctx, player.GameID, player.ID, n); err != nil {
			log.Error("persist rank on player failed", zap.Error(err))
		}
		if err := r.mirror.SetRank(ctx, player.GameID, player.ID, n); err != nil {
			log.Error("persist rank on mirror failed", zap.Error(err))
		}
	}

	if err := r.mirror.PushRecent(ctx, entry); err != nil {
		log.Error("recent completions push failed", zap.Error(err))
	}

	if r.outbox != nil {
		ev := newEvent(EventPlayerFinished, player, r.now())
		ev.Entry = entry
		if err := r.outbox.Emit(ctx, ev); err != nil {
			log.Error("player.finished emit failed", zap.Error(err))
		}
	}

	if rank != nil {
		log.Info("player finished", zap.Int("score", player.CurrentScore), zap.Int("rank", *rank))
	}
	return rank
}
