package memory

import (
	"context"
	"sync"

	"event-trivia-service/internal/domain"
)

// PhaseStore is an in-memory implementation of app.PhaseStore.
type PhaseStore struct {
	mu     sync.RWMutex
	phases map[string]domain.GamePhase
}

func NewPhaseStore() *PhaseStore {
	return &PhaseStore{
		phases: make(map[string]domain.GamePhase),
	}
}

func (s *PhaseStore) Phase(_ context.Context, gameID string) (domain.GamePhase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if phase, ok := s.phases[gameID]; ok {
		return phase, nil
	}
	return domain.PhaseWaiting, nil
}

func (s *PhaseStore) SetPhase(_ context.Context, gameID string, phase domain.GamePhase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phases[gameID] = phase
	return nil
}
