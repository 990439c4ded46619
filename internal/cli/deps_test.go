package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/config"
	"event-trivia-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("outbox:\n  backend: memory\nbranches: [north]\n"), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestBuildDepsInMemory(t *testing.T) {
	ctx := context.Background()
	d, err := buildDeps(ctx, memoryConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer d.Close()
	assert.Nil(t, d.bridge)

	require.NoError(t, d.service.SetPhase(ctx, "demo", domain.PhaseActive))
	_, err = d.service.RegisterPlayer(ctx, app.RegisterInput{GameID: "demo", PlayerID: "p1", DisplayName: "P1"})
	require.NoError(t, err)

	res, err := d.service.SubmitAnswer(ctx, domain.AnswerSubmission{
		GameID: "demo", PlayerID: "p1", QuestionID: "q1", AnswerID: "q1-o2", ResponseTimeMs: 1000,
	})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, "q1-o2", res.CorrectAnswerID)
}

func TestBuildDepsRejectsUnknownBackends(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Outbox.Backend = "kafka"
	_, err := buildDeps(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "unknown outbox backend")

	cfg = memoryConfig(t)
	cfg.Outbox.Backend = "redis"
	_, err = buildDeps(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "requires redis.addr")

	cfg = memoryConfig(t)
	cfg.Completion.Sink = "amqp"
	_, err = buildDeps(context.Background(), cfg, zap.NewNop())
	assert.ErrorContains(t, err, "requires amqp.url")
}

func TestReadGames(t *testing.T) {
	games, err := readGames("")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, 5, games[0].ActiveQuestionCount())

	dir := t.TempDir()
	good := filepath.Join(dir, "games.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"id":"g1","questions":[{"id":"q1","active":true,"options":[{"id":"a","correct":true}]}]}]`), 0o600))
	games, err = readGames(good)
	require.NoError(t, err)
	assert.Equal(t, "g1", games[0].ID)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{"id":"g2","questions":[{"id":"q1","active":true,"options":[{"id":"a"}]}]}]`), 0o600))
	_, err = readGames(bad)
	assert.ErrorIs(t, err, domain.ErrNoCorrectAnswer)
}
