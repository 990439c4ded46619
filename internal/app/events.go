package app

import (
	"time"

	"event-trivia-service/internal/domain"
	"github.com/google/uuid"
)

// EventType names an outbox event.
type EventType string

const (
	EventPlayerRegistered EventType = "player.registered"
	EventPlayerScored     EventType = "player.scored"
	EventPlayerFinished   EventType = "player.finished"
)

// Event is emitted after the player record has been committed. Entry is the
// projection of the committed record.
type Event struct {
	ID          string                  `json:"id"`
	Type        EventType               `json:"type"`
	GameID      string                  `json:"gameId"`
	PlayerID    string                  `json:"playerId"`
	Entry       domain.LeaderboardEntry `json:"entry"`
	FirstAnswer bool                    `json:"firstAnswer,omitempty"`
	OccurredAt  time.Time               `json:"occurredAt"`
}

func newEvent(typ EventType, player *domain.Player, at time.Time) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		GameID:     player.GameID,
		PlayerID:   player.ID,
		Entry:      player.LeaderboardEntry(),
		OccurredAt: at,
	}
}
