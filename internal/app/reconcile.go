package app

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Reconciler re-derives the leaderboard mirror from the record store, repairing
// drift left by dropped projection events.
type Reconciler struct {
	players PlayerRepository
	mirror  LeaderboardMirror
	logger  *zap.Logger
}

func NewReconciler(players PlayerRepository, mirror LeaderboardMirror, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{players: players, mirror: mirror, logger: logger}
}

// Rebuild clears the game's mirror entries and writes one entry per player
// record, carrying over ranks already recorded on finished players. The recent
// completions feed is rebuilt in finish order.
func (r *Reconciler) Rebuild(ctx context.Context, gameID string) (int, error) {
	players, err := r.players.ListByGame(ctx, gameID)
	if err != nil {
		return 0, fmt.Errorf("list players: %w", err)
	}
	if err := r.mirror.Clear(ctx, gameID); err != nil {
		return 0, fmt.Errorf("clear mirror: %w", err)
	}

	finished := 0
	for _, p := range players {
		entry := p.LeaderboardEntry()
		if err := r.mirror.Upsert(ctx, entry); err != nil {
			return 0, fmt.Errorf("upsert %s: %w", p.ID, err)
		}
		if p.Rank != nil {
			if err := r.mirror.SetRank(ctx, gameID, p.ID, *p.Rank); err != nil {
				return 0, fmt.Errorf("set rank %s: %w", p.ID, err)
			}
		}
	}

	byFinish := make([]int, 0, len(players))
	for i, p := range players {
		if p.FinishedAt != nil {
			byFinish = append(byFinish, i)
		}
	}
	sort.Slice(byFinish, func(a, b int) bool {
		return players[byFinish[a]].FinishedAt.Before(*players[byFinish[b]].FinishedAt)
	})
	for _, i := range byFinish {
		if err := r.mirror.PushRecent(ctx, players[i].LeaderboardEntry()); err != nil {
			return 0, fmt.Errorf("push recent %s: %w", players[i].ID, err)
		}
		finished++
	}

	r.logger.Info("mirror rebuilt",
		zap.String("game_id", gameID),
		zap.Int("players", len(players)),
		zap.Int("finished", finished),
	)
	return len(players), nil
}
