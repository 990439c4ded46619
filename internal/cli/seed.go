package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"event-trivia-service/internal/domain"
	pgstore "event-trivia-service/internal/infra/postgres"
	infraredis "event-trivia-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewSeedCmd loads game definitions into Postgres.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load game definitions (JSON array) into Postgres; built-in samples when no file is given",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()
			if cfg.Postgres.URL == "" {
				return fmt.Errorf("postgres url not configured")
			}

			games, err := readGames(file)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			loader := pgstore.NewGameLoader(pool)
			var cache *infraredis.Catalog
			if cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     cfg.Redis.Addr,
					Password: cfg.Redis.Password,
					DB:       cfg.Redis.DB,
				})
				defer client.Close()
				cache = infraredis.NewCatalog(client, loader, 0)
			}
			for _, g := range games {
				if err := loader.SaveGame(ctx, g); err != nil {
					return err
				}
				// running servers would otherwise serve the old content until the TTL expires
				if cache != nil {
					if err := cache.Invalidate(ctx, g.ID); err != nil {
						logger.Warn("cached game not invalidated", zap.String("game_id", g.ID), zap.Error(err))
					}
				}
				logger.Info("game seeded", zap.String("game_id", g.ID), zap.Int("questions", g.ActiveQuestionCount()))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "path to a JSON array of games")
	return cmd
}

func readGames(path string) ([]domain.Game, error) {
	if path == "" {
		games := make([]domain.Game, 0, len(sampleGames()))
		for _, g := range sampleGames() {
			games = append(games, g)
		}
		return games, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var games []domain.Game
	if err := json.Unmarshal(raw, &games); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, g := range games {
		if _, err := g.Prepare(); err != nil {
			return nil, fmt.Errorf("game %d: %w", i, err)
		}
	}
	return games, nil
}

// sampleGames backs the in-memory catalog when Postgres is not configured.
func sampleGames() map[string]domain.Game {
	q := func(id, prompt string, correct int, options ...string) domain.Question {
		opts := make([]domain.Option, len(options))
		for i, text := range options {
			opts[i] = domain.Option{ID: fmt.Sprintf("%s-o%d", id, i+1), Text: text, Correct: i == correct}
		}
		return domain.Question{ID: id, Prompt: prompt, Options: opts, Active: true}
	}
	demo := domain.Game{
		ID:    "demo",
		Title: "Demo night",
		Questions: []domain.Question{
			q("q1", "What is 2 + 2?", 1, "3", "4", "5"),
			q("q2", "Which planet is known as the red planet?", 2, "Venus", "Jupiter", "Mars"),
			q("q3", "How many minutes are in an hour?", 0, "60", "100", "30"),
			q("q4", "What is the boiling point of water at sea level in Celsius?", 1, "90", "100", "120"),
			q("q5", "Which ocean is the largest?", 0, "Pacific", "Atlantic", "Indian"),
		},
	}
	for i := range demo.Questions {
		demo.Questions[i].Index = i
	}
	return map[string]domain.Game{demo.ID: demo}
}
