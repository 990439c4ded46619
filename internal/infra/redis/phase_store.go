package redis

import (
	"context"

	"event-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// PhaseStore keeps each game's phase in Redis so every instance agrees on
// whether answers are accepted. Games without a stored phase are waiting.
type PhaseStore struct {
	client *redis.Client
}

func NewPhaseStore(client *redis.Client) *PhaseStore {
	return &PhaseStore{client: client}
}

func (s *PhaseStore) Phase(ctx context.Context, gameID string) (domain.GamePhase, error) {
	v, err := s.client.Get(ctx, s.key(gameID)).Result()
	if isNil(err) {
		return domain.PhaseWaiting, nil
	}
	if err != nil {
		return "", err
	}
	return domain.GamePhase(v), nil
}

func (s *PhaseStore) SetPhase(ctx context.Context, gameID string, phase domain.GamePhase) error {
	return s.client.Set(ctx, s.key(gameID), string(phase), 0).Err()
}

func (s *PhaseStore) key(gameID string) string {
	return "game:" + gameID + ":phase"
}
