package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"event-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// GameLoader fetches game definitions from a backing store (e.g., Postgres).
type GameLoader interface {
	LoadGame(ctx context.Context, gameID string) (domain.Game, error)
}

// Catalog caches game definitions in Redis, shared by every instance, and falls
// back to the loader on a miss. Each game is one JSON document at
// game:{gameID}:content. Only games that pass validation are written.
type Catalog struct {
	client *redis.Client
	loader GameLoader
	ttl    time.Duration
	loads  singleflight.Group
}

func NewCatalog(client *redis.Client, loader GameLoader, ttl time.Duration) *Catalog {
	return &Catalog{client: client, loader: loader, ttl: ttl}
}

func (c *Catalog) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	if game, ok := c.cached(ctx, gameID); ok {
		return game, nil
	}

	v, err, _ := c.loads.Do(gameID, func() (any, error) {
		if game, ok := c.cached(ctx, gameID); ok {
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
		if doc, err := json.Marshal(raw); err == nil {
			// a failed write only costs a reload
			_ = c.client.Set(ctx, contentKey(gameID), doc, expiry(c.ttl)).Err()
		}
		return game, nil
	})
	if err != nil {
		return domain.Game{}, err
	}
	return v.(domain.Game), nil
}

// Invalidate drops the cached game on every instance.
func (c *Catalog) Invalidate(ctx context.Context, gameID string) error {
	return c.client.Del(ctx, contentKey(gameID)).Err()
}

// cached decodes and re-indexes the shared document; the question index is
// process-local and never serialized.
func (c *Catalog) cached(ctx context.Context, gameID string) (domain.Game, bool) {
	doc, err := c.client.Get(ctx, contentKey(gameID)).Bytes()
	if err != nil {
		return domain.Game{}, false
	}
	var raw domain.Game
	if err := json.Unmarshal(doc, &raw); err != nil {
		return domain.Game{}, false
	}
	game, err := raw.Prepare()
	if err != nil {
		return domain.Game{}, false
	}
	return game, true
}

func contentKey(gameID string) string {
	return "game:" + gameID + ":content"
}

// expiry adds up to 10% jitter so games loaded together do not expire together.
func expiry(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + rand.N(ttl/10+1)
}

func isNil(err error) bool {
	return errors.Is(err, redis.Nil)
}
