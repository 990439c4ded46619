package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"event-trivia-service/internal/app"
	"event-trivia-service/internal/domain"
	"event-trivia-service/internal/infra/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStats struct {
	*memory.Stats
	failures atomic.Int32
}

func (s *flakyStats) Add(ctx context.Context, gameID string, d domain.StatsCounters) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("stats unavailable")
	}
	return s.Stats.Add(ctx, gameID, d)
}

type countingNotifier struct{ calls atomic.Int32 }

func (n *countingNotifier) Notify(context.Context, string) error {
	n.calls.Add(1)
	return nil
}

func scoredEvent(playerID string, score, answers int, first bool) app.Event {
	return app.Event{
		ID:          fmt.Sprintf("%s-%d", playerID, answers),
		Type:        app.EventPlayerScored,
		GameID:      "g1",
		PlayerID:    playerID,
		FirstAnswer: first,
		Entry:       domain.LeaderboardEntry{GameID: "g1", PlayerID: playerID, Score: score, AnswersCount: answers},
	}
}

func TestProjectorAppliesEvents(t *testing.T) {
	ctx := context.Background()
	mirror := memory.NewLeaderboard(10)
	stats := memory.NewStats()
	notifier := &countingNotifier{}
	p, err := app.NewProjector(app.ProjectorConfig{Mirror: mirror, Stats: stats, Notifier: notifier})
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, app.Event{
		Type: app.EventPlayerRegistered, GameID: "g1", PlayerID: "p1",
		Entry: domain.LeaderboardEntry{GameID: "g1", PlayerID: "p1"},
	}))
	require.NoError(t, p.Handle(ctx, scoredEvent("p1", 135, 1, true)))
	require.NoError(t, p.Handle(ctx, scoredEvent("p1", 270, 2, false)))
	// delivered late
	require.NoError(t, p.Handle(ctx, scoredEvent("p1", 135, 1, false)))

	entry, ok, err := mirror.Entry(ctx, "g1", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 270, entry.Score)

	counters, err := stats.Counters(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, counters.Registered)
	assert.EqualValues(t, 1, counters.Started)
	assert.EqualValues(t, 3, counters.Answers)
	assert.EqualValues(t, 4, notifier.calls.Load())
}

func TestProjectorRetriesFailedStepOnly(t *testing.T) {
	ctx := context.Background()
	mirror := memory.NewLeaderboard(10)
	stats := &flakyStats{Stats: memory.NewStats()}
	stats.failures.Store(1)
	p, err := app.NewProjector(app.ProjectorConfig{Mirror: mirror, Stats: stats, MaxRetries: 2})
	require.NoError(t, err)

	require.NoError(t, p.Handle(ctx, scoredEvent("p1", 100, 1, true)))

	counters, _ := stats.Counters(ctx, "g1")
	assert.EqualValues(t, 1, counters.Answers, "a retried step must not double count")
	assert.EqualValues(t, 1, counters.Started)
}

func TestProjectorReportsExhaustedRetries(t *testing.T) {
	ctx := context.Background()
	mirror := memory.NewLeaderboard(10)
	stats := &flakyStats{Stats: memory.NewStats()}
	stats.failures.Store(100)
	p, err := app.NewProjector(app.ProjectorConfig{Mirror: mirror, Stats: stats, MaxRetries: 0})
	require.NoError(t, err)

	err = p.Handle(ctx, scoredEvent("p1", 100, 1, true))
	require.Error(t, err)

	_, ok, _ := mirror.Entry(ctx, "g1", "p1")
	assert.True(t, ok, "the mirror step runs even though stats failed")
}

func TestProjectorRunConsumesOutbox(t *testing.T) {
	mirror := memory.NewLeaderboard(10)
	stats := memory.NewStats()
	outbox := memory.NewOutbox(16, 2)
	p, err := app.NewProjector(app.ProjectorConfig{Mirror: mirror, Stats: stats})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, outbox) }()

	require.NoError(t, outbox.Emit(ctx, scoredEvent("p1", 50, 1, true)))
	require.NoError(t, outbox.Emit(ctx, scoredEvent("p2", 70, 1, true)))

	require.Eventually(t, func() bool {
		entries, _ := mirror.Entries(context.Background(), "g1")
		return len(entries) == 2
	}, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

type flakySink struct {
	recordingSink
	failures atomic.Int32
}

func (s *flakySink) PublishCompletion(ctx context.Context, ev app.Event) error {
	if s.failures.Add(-1) >= 0 {
		return errors.New("broker unavailable")
	}
	return s.recordingSink.PublishCompletion(ctx, ev)
}

func TestProjectorPublishesFinishedEvents(t *testing.T) {
	ctx := context.Background()
	mirror := memory.NewLeaderboard(10)
	stats := memory.NewStats()
	notifier := &countingNotifier{}
	sink := &flakySink{}
	sink.failures.Store(1)
	p, err := app.NewProjector(app.ProjectorConfig{
		Mirror: mirror, Stats: stats, Sink: sink, Notifier: notifier, MaxRetries: 2,
	})
	require.NoError(t, err)

	rank := 1
	require.NoError(t, p.Handle(ctx, app.Event{
		ID: "p1-finished", Type: app.EventPlayerFinished, GameID: "g1", PlayerID: "p1",
		Entry: domain.LeaderboardEntry{GameID: "g1", PlayerID: "p1", Score: 300, AnswersCount: 3, Finished: true, Rank: &rank},
	}))

	published := sink.events()
	require.Len(t, published, 1)
	assert.Equal(t, "p1-finished", published[0].ID)
	require.NotNil(t, published[0].Entry.Rank)
	assert.Equal(t, 1, *published[0].Entry.Rank)
	assert.EqualValues(t, 1, notifier.calls.Load())

	counters, _ := stats.Counters(ctx, "g1")
	assert.Zero(t, counters.Finished, "completion stats are written by the recorder")
}
