package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"event-trivia-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// GameLoader loads game JSONB from Postgres.
type GameLoader struct {
	pool *pgxpool.Pool
}

func NewGameLoader(pool *pgxpool.Pool) *GameLoader {
	return &GameLoader{pool: pool}
}

func (l *GameLoader) LoadGame(ctx context.Context, gameID string) (domain.Game, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM games WHERE id=$1`, gameID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Game{}, fmt.Errorf("%w: %s", domain.ErrGameNotFound, gameID)
	}
	if err != nil {
		return domain.Game{}, fmt.Errorf("load game: %w", err)
	}
	var game domain.Game
	if err := json.Unmarshal(raw, &game); err != nil {
		return domain.Game{}, fmt.Errorf("unmarshal game: %w", err)
	}
	if game.ID == "" {
		game.ID = gameID
	}
	return game, nil
}

// SaveGame inserts or replaces a game definition.
func (l *GameLoader) SaveGame(ctx context.Context, game domain.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("marshal game: %w", err)
	}
	_, err = l.pool.Exec(ctx,
		`INSERT INTO games (id, data) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		game.ID, string(data))
	if err != nil {
		return fmt.Errorf("save game: %w", err)
	}
	return nil
}
