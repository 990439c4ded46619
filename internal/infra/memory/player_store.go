package memory

import (
	"context"
	"sort"
	"sync"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
)

// PlayerStore is an in-memory implementation of app.PlayerRepository. Records
// are copied on the way in and out so callers never share state with the store.
type PlayerStore struct {
	mu      sync.RWMutex
	players map[string]*domain.Player
}

func NewPlayerStore() *PlayerStore {
	return &PlayerStore{players: make(map[string]*domain.Player)}
}

func (s *PlayerStore) Create(_ context.Context, player *domain.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(player.GameID, player.ID)
	if _, ok := s.players[k]; ok {
		return domain.ErrPlayerExists
	}
	s.players[k] = clonePlayer(player)
	return nil
}

func (s *PlayerStore) Get(_ context.Context, gameID, playerID string) (*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[key(gameID, playerID)]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	return clonePlayer(p), nil
}

func (s *PlayerStore) ListByGame(_ context.Context, gameID string) ([]*domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Player, 0)
	for _, p := range s.players {
		if p.GameID == gameID {
			out = append(out, clonePlayer(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Commit applies the answer on a copy and swaps it in only when every guard
// passes, so a rejected commit leaves the stored record untouched.
func (s *PlayerStore) Commit(_ context.Context, c app.Commit) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(c.GameID, c.PlayerID)
	current, ok := s.players[k]
	if !ok {
		return nil, domain.ErrPlayerNotFound
	}
	next := clonePlayer(current)
	if err := app.ApplyCommit(next, c); err != nil {
		return nil, err
	}
	s.players[k] = next
	return clonePlayer(next), nil
}

func (s *PlayerStore) SetRank(_ context.Context, gameID, playerID string, rank int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[key(gameID, playerID)]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	r := rank
	p.Rank = &r
	return nil
}

func key(gameID, playerID string) string {
	return gameID + "/" + playerID
}

func clonePlayer(p *domain.Player) *domain.Player {
	out := *p
	out.Answers = append([]domain.AnswerRecord{}, p.Answers...)
	if p.StartedAt != nil {
		t := *p.StartedAt
		out.StartedAt = &t
	}
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		out.FinishedAt = &t
	}
	if p.Rank != nil {
		r := *p.Rank
		out.Rank = &r
	}
	return &out
}
