package memory

import (
	"context"
	"sync"

	"event-trivia-service/internal/domain"
)

// Leaderboard is an in-memory implementation of app.LeaderboardMirror.
type Leaderboard struct {
	capacity int

	mu     sync.RWMutex
	games  map[string]map[string]domain.LeaderboardEntry
	ranks  map[string]map[string]int
	recent map[string][]domain.LeaderboardEntry
}

// NewLeaderboard creates a mirror whose recent completions feed keeps at most
// capacity entries per game.
func NewLeaderboard(capacity int) *Leaderboard {
	if capacity <= 0 {
		capacity = 20
	}
	return &Leaderboard{
		capacity: capacity,
		games:    make(map[string]map[string]domain.LeaderboardEntry),
		ranks:    make(map[string]map[string]int),
		recent:   make(map[string][]domain.LeaderboardEntry),
	}
}

func (l *Leaderboard) Upsert(_ context.Context, entry domain.LeaderboardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entries, ok := l.games[entry.GameID]
	if !ok {
		entries = make(map[string]domain.LeaderboardEntry)
		l.games[entry.GameID] = entries
	}
	if current, ok := entries[entry.PlayerID]; ok && current.AnswersCount > entry.AnswersCount {
		return nil
	}
	entry.Rank = nil
	entry.Position = 0
	entries[entry.PlayerID] = entry
	return nil
}

func (l *Leaderboard) SetRank(_ context.Context, gameID, playerID string, rank int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ranks, ok := l.ranks[gameID]
	if !ok {
		ranks = make(map[string]int)
		l.ranks[gameID] = ranks
	}
	ranks[playerID] = rank
	return nil
}

func (l *Leaderboard) Entry(_ context.Context, gameID, playerID string) (domain.LeaderboardEntry, bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.games[gameID][playerID]
	if !ok {
		return domain.LeaderboardEntry{}, false, nil
	}
	return l.withRankLocked(entry), true, nil
}

func (l *Leaderboard) Entries(_ context.Context, gameID string) ([]domain.LeaderboardEntry, error) {
	return l.filter(gameID, func(domain.LeaderboardEntry) bool { return true }), nil
}

func (l *Leaderboard) BranchEntries(_ context.Context, gameID, branchID string) ([]domain.LeaderboardEntry, error) {
	return l.filter(gameID, func(e domain.LeaderboardEntry) bool { return e.BranchID == branchID }), nil
}

func (l *Leaderboard) filter(gameID string, keep func(domain.LeaderboardEntry) bool) []domain.LeaderboardEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.LeaderboardEntry, 0, len(l.games[gameID]))
	for _, entry := range l.games[gameID] {
		if keep(entry) {
			out = append(out, l.withRankLocked(entry))
		}
	}
	return out
}

func (l *Leaderboard) withRankLocked(entry domain.LeaderboardEntry) domain.LeaderboardEntry {
	if rank, ok := l.ranks[entry.GameID][entry.PlayerID]; ok {
		r := rank
		entry.Rank = &r
	}
	return entry
}

// PushRecent prepends entry to the feed, evicting the oldest beyond capacity.
func (l *Leaderboard) PushRecent(_ context.Context, entry domain.LeaderboardEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	feed := append([]domain.LeaderboardEntry{entry}, l.recent[entry.GameID]...)
	if len(feed) > l.capacity {
		feed = feed[:l.capacity]
	}
	l.recent[entry.GameID] = feed
	return nil
}

func (l *Leaderboard) Recent(_ context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	feed := l.recent[gameID]
	if limit > 0 && len(feed) > limit {
		feed = feed[:limit]
	}
	return append([]domain.LeaderboardEntry{}, feed...), nil
}

func (l *Leaderboard) Clear(_ context.Context, gameID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.games, gameID)
	delete(l.ranks, gameID)
	delete(l.recent, gameID)
	return nil
}
