package app

import (
	"context"
	"time"

	"event-trivia-service/internal/domain"
)

// PlayerRepository is the authoritative store of player records.
type PlayerRepository interface {
	Create(ctx context.Context, player *domain.Player) error
	Get(ctx context.Context, gameID, playerID string) (*domain.Player, error)
	ListByGame(ctx context.Context, gameID string) ([]*domain.Player, error)
	// Commit applies one accepted answer atomically. Implementations re-check, in
	// order: finished player, duplicate question, then ExpectedVersion.
	Commit(ctx context.Context, c Commit) (*domain.Player, error)
	SetRank(ctx context.Context, gameID, playerID string, rank int) error
}

// Commit is the unit of work written by PlayerRepository.Commit.
type Commit struct {
	GameID          string
	PlayerID        string
	ExpectedVersion int64
	Record          domain.AnswerRecord
	NewStreak       int
	Complete        bool
	At              time.Time
}

// ApplyCommit runs the guards and mutation shared by every PlayerRepository
// implementation against a loaded record.
func ApplyCommit(p *domain.Player, c Commit) error {
	if p.Status == domain.StatusFinished || p.HasCompleted {
		return domain.ErrPlayerFinished
	}
	if p.HasAnswered(c.Record.QuestionID) {
		return domain.ErrAlreadyAnswered
	}
	if p.Version != c.ExpectedVersion {
		return domain.ErrConcurrentUpdate
	}
	return p.Apply(c.Record, c.NewStreak, c.Complete, c.At)
}

// QuizRepository loads game content (from cache/backing store).
type QuizRepository interface {
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
}

// CatalogInvalidator is implemented by QuizRepository caches that can drop a
// cached game so the next read goes to the backing store.
type CatalogInvalidator interface {
	Invalidate(ctx context.Context, gameID string) error
}

// PhaseStore tracks whether a game accepts answers. Unknown games are waiting.
type PhaseStore interface {
	Phase(ctx context.Context, gameID string) (domain.GamePhase, error)
	SetPhase(ctx context.Context, gameID string, phase domain.GamePhase) error
}

// LeaderboardMirror is the denormalized, eventually consistent standings cache.
type LeaderboardMirror interface {
	// Upsert overwrites the player's entry unless the stored entry has seen more answers.
	Upsert(ctx context.Context, entry domain.LeaderboardEntry) error
	SetRank(ctx context.Context, gameID, playerID string, rank int) error
	Entry(ctx context.Context, gameID, playerID string) (domain.LeaderboardEntry, bool, error)
	Entries(ctx context.Context, gameID string) ([]domain.LeaderboardEntry, error)
	BranchEntries(ctx context.Context, gameID, branchID string) ([]domain.LeaderboardEntry, error)
	PushRecent(ctx context.Context, entry domain.LeaderboardEntry) error
	Recent(ctx context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error)
	Clear(ctx context.Context, gameID string) error
}

// ScoreIndex is implemented by mirrors that can count by score without loading
// every entry. RankService uses it when available.
type ScoreIndex interface {
	CountScoreAbove(ctx context.Context, gameID string, score int) (int, error)
	EntriesWithScore(ctx context.Context, gameID string, score int) ([]domain.LeaderboardEntry, error)
}

// StatsStore accumulates the per-game counters. Add only ever increments.
type StatsStore interface {
	Add(ctx context.Context, gameID string, delta domain.StatsCounters) error
	Counters(ctx context.Context, gameID string) (domain.StatsCounters, error)
}

// Outbox accepts events emitted after a successful primary commit.
type Outbox interface {
	Emit(ctx context.Context, ev Event) error
}

// EventSource delivers emitted events to a consumer until ctx is done.
type EventSource interface {
	Consume(ctx context.Context, handle func(context.Context, Event) error) error
}

// CompletionSink receives completion events for external collaborators.
type CompletionSink interface {
	PublishCompletion(ctx context.Context, ev Event) error
}

// BranchDirectory validates branch ids for sub-leaderboards.
type BranchDirectory interface {
	Valid(ctx context.Context, branchID string) (bool, error)
}

// Notifier is told when a game's standings changed.
type Notifier interface {
	Notify(ctx context.Context, gameID string) error
}
