package memory

import (
	"context"
	"sync"

	"event-trivia-service/internal/domain"
)

// Stats is an in-memory implementation of app.StatsStore.
type Stats struct {
	mu       sync.Mutex
	counters map[string]domain.StatsCounters
}

func NewStats() *Stats {
	return &Stats{counters: make(map[string]domain.StatsCounters)}
}

func (s *Stats) Add(_ context.Context, gameID string, d domain.StatsCounters) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.counters[gameID]
	c.Registered += d.Registered
	c.Started += d.Started
	c.Finished += d.Finished
	c.Answers += d.Answers
	c.ScoreSum += d.ScoreSum
	c.AccuracySum += d.AccuracySum
	c.TimeSumMs += d.TimeSumMs
	s.counters[gameID] = c
	return nil
}

func (s *Stats) Counters(_ context.Context, gameID string) (domain.StatsCounters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[gameID], nil
}
