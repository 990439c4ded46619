package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"event-trivia-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// GameLoader fetches game definitions from a backing store (e.g., Postgres).
type GameLoader interface {
	LoadGame(ctx context.Context, gameID string) (domain.Game, error)
}

// Catalog serves prepared game definitions: each loaded game is validated once
// and its active questions indexed, then kept until its TTL runs out.
// A game that fails validation is never cached.
type Catalog struct {
	loader GameLoader
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu    sync.RWMutex
	games map[string]catalogEntry
}

type catalogEntry struct {
	game      domain.Game
	expiresAt time.Time
}

func NewCatalog(loader GameLoader, ttl time.Duration) *Catalog {
	return &Catalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		games:  make(map[string]catalogEntry),
	}
}

func (c *Catalog) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	if game, ok := c.fresh(gameID); ok {
		return game, nil
	}
	v, err, _ := c.loads.Do(gameID, func() (any, error) {
		if game, ok := c.fresh(gameID); ok {
			return game, nil
		}
		raw, err := c.loader.LoadGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}
		game, err := raw.Prepare()
		if err != nil {
			return domain.Game{}, fmt.Errorf("load game %s: %w", gameID, err)
		}
		c.mu.Lock()
		c.games[gameID] = catalogEntry{game: game, expiresAt: c.clock().Add(expiry(c.ttl))}
		c.mu.Unlock()
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return v.(domain.Game), nil
}

// Invalidate drops a game so the next read reloads and revalidates it.
func (c *Catalog) Invalidate(_ context.Context, gameID string) error {
	c.mu.Lock()
	delete(c.games, gameID)
	c.mu.Unlock()
	return nil
}

func (c *Catalog) fresh(gameID string) (domain.Game, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.games[gameID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Game{}, false
	}
	return entry.game, true
}

// expiry adds up to 10% jitter so games loaded together do not expire together.
func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + rand.N(ttl/10+1)
}

// StaticGameLoader serves games from an in-process map (demos and tests).
type StaticGameLoader struct {
	mu    sync.RWMutex
	games map[string]domain.Game
}

func NewStaticGameLoader(games map[string]domain.Game) *StaticGameLoader {
	copied := make(map[string]domain.Game, len(games))
	for id, g := range games {
		copied[id] = g
	}
	return &StaticGameLoader{games: copied}
}

// Put replaces the stored definition of game.ID.
func (l *StaticGameLoader) Put(game domain.Game) {
	l.mu.Lock()
	l.games[game.ID] = game
	l.mu.Unlock()
}

func (l *StaticGameLoader) LoadGame(_ context.Context, gameID string) (domain.Game, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if game, ok := l.games[gameID]; ok {
		return game, nil
	}
	return domain.Game{}, domain.ErrGameNotFound
}
