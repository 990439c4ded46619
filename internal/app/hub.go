package app

import (
	"context"
	"sync"

	"event-trivia-service/internal/domain"
)

// SnapshotFunc loads the current standings of a game.
type SnapshotFunc func(ctx context.Context, gameID string) (domain.Leaderboard, error)

// Hub fans leaderboard snapshots out to live subscribers of each game.
type Hub struct {
	snapshot SnapshotFunc

	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot:    snapshot,
		subscribers: make(map[string]map[chan domain.Leaderboard]struct{}),
	}
}

// Subscribe returns a channel that receives leaderboard updates for a game,
// starting with the current snapshot. The caller must invoke cancel.
func (h *Hub) Subscribe(ctx context.Context, gameID string) (<-chan domain.Leaderboard, func(), error) {
	initial, err := h.snapshot(ctx, gameID)
	if err != nil {
		return nil, nil, err
	}
	ch := make(chan domain.Leaderboard, 8)
	ch <- initial

	h.mu.Lock()
	subs, ok := h.subscribers[gameID]
	if !ok {
		subs = make(map[chan domain.Leaderboard]struct{})
		h.subscribers[gameID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs, ok := h.subscribers[gameID]
		if !ok {
			return
		}
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, gameID)
		}
	}
	return ch, cancel, nil
}

// Notify reloads the game's standings and broadcasts them. Games without
// subscribers are skipped.
func (h *Hub) Notify(ctx context.Context, gameID string) error {
	if h.subscriberCount(gameID) == 0 {
		return nil
	}
	lb, err := h.snapshot(ctx, gameID)
	if err != nil {
		return err
	}
	h.broadcast(gameID, lb)
	return nil
}

func (h *Hub) subscriberCount(gameID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[gameID])
}

func (h *Hub) broadcast(gameID string, lb domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[gameID] {
		select {
		case ch <- lb:
		default:
			// slow subscriber: drop its oldest snapshot
			select {
			case <-ch:
			default:
			}
			ch <- lb
		}
	}
}
