package memory

import (
	"context"
	"sync"
	"testing"

	"event-trivia-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatsConcurrentIncrements(t *testing.T) {
	ctx := context.Background()
	stats := NewStats()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = stats.Add(ctx, "g1", domain.StatsCounters{Finished: 1, ScoreSum: 100, AccuracySum: 50, TimeSumMs: 2000})
		}()
	}
	wg.Wait()

	c, err := stats.Counters(ctx, "g1")
	require.NoError(t, err)
	assert.EqualValues(t, 50, c.Finished)
	assert.EqualValues(t, 5000, c.ScoreSum)

	snap := c.Snapshot("g1")
	assert.InDelta(t, 100, snap.AvgScore, 1e-9)
	assert.InDelta(t, 50, snap.AvgAccuracy, 1e-9)
	assert.InDelta(t, 2000, snap.AvgTimeMs, 1e-9)
}
