package app

import (
	"context"
	"fmt"
	"sort"

	"event-trivia-service/internal/domain"
)

// Better reports whether a ranks strictly ahead of b: score desc, then players
// who have answered ahead of those who have not, accuracy desc, total time asc,
// then finish time asc with unfinished entries last.
func Better(a, b domain.LeaderboardEntry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if (a.AnswersCount > 0) != (b.AnswersCount > 0) {
		return a.AnswersCount > 0
	}
	if a.Accuracy != b.Accuracy {
		return a.Accuracy > b.Accuracy
	}
	if a.TotalTimeMs != b.TotalTimeMs {
		return a.TotalTimeMs < b.TotalTimeMs
	}
	switch {
	case a.FinishedAt != nil && b.FinishedAt != nil:
		return a.FinishedAt.Before(*b.FinishedAt)
	case a.FinishedAt != nil:
		return true
	}
	return false
}

// SortEntries orders entries best first and fills Position. Entries that tie on
// every key are ordered by player id so output is stable.
func SortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if Better(entries[i], entries[j]) {
			return true
		}
		if Better(entries[j], entries[i]) {
			return false
		}
		return entries[i].PlayerID < entries[j].PlayerID
	})
	for i := range entries {
		entries[i].Position = i + 1
	}
}

// RankService computes a player's point-in-time rank against the mirror.
type RankService struct {
	mirror LeaderboardMirror
}

func NewRankService(mirror LeaderboardMirror) *RankService {
	return &RankService{mirror: mirror}
}

// Rank returns 1 + the number of mirror entries strictly better than the player's.
func (r *RankService) Rank(ctx context.Context, gameID, playerID string) (int, error) {
	entry, ok, err := r.mirror.Entry(ctx, gameID, playerID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("rank %s/%s: %w", gameID, playerID, domain.ErrPlayerNotFound)
	}
	return r.RankOf(ctx, entry)
}

// RankOf ranks entry against the other entries of its game. The mirror's own copy
// of the player, if any, is ignored so a lagging mirror cannot skew the result.
func (r *RankService) RankOf(ctx context.Context, entry domain.LeaderboardEntry) (int, error) {
	if idx, ok := r.mirror.(ScoreIndex); ok {
		return r.rankIndexed(ctx, idx, entry)
	}
	entries, err := r.mirror.Entries(ctx, entry.GameID)
	if err != nil {
		return 0, fmt.Errorf("load entries: %w", err)
	}
	return 1 + countBetter(entries, entry), nil
}

func (r *RankService) rankIndexed(ctx context.Context, idx ScoreIndex, entry domain.LeaderboardEntry) (int, error) {
	above, err := idx.CountScoreAbove(ctx, entry.GameID, entry.Score)
	if err != nil {
		return 0, fmt.Errorf("count scores: %w", err)
	}
	// Our own stale copy may sit above us if the mirror lags; it is excluded here.
	own, ok, err := r.mirror.Entry(ctx, entry.GameID, entry.PlayerID)
	if err != nil {
		return 0, err
	}
	if ok && own.Score > entry.Score {
		above--
	}
	ties, err := idx.EntriesWithScore(ctx, entry.GameID, entry.Score)
	if err != nil {
		return 0, fmt.Errorf("load ties: %w", err)
	}
	return 1 + above + countBetter(ties, entry), nil
}

// countBetter counts the entries ahead of entry. Registered players who have
// not answered yet are outside the rank population.
func countBetter(entries []domain.LeaderboardEntry, entry domain.LeaderboardEntry) int {
	n := 0
	for _, other := range entries {
		if other.PlayerID == entry.PlayerID || other.AnswersCount == 0 {
			continue
		}
		if Better(other, entry) {
			n++
		}
	}
	return n
}
