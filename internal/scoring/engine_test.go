package scoring

import (
	"testing"

	"event-trivia-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(mode domain.ScoringMode) domain.ScoringConfig {
	return domain.ScoringConfig{
		Mode:               mode,
		BasePoints:         100,
		TimeBonusMax:       50,
		DefaultTimeLimitMs: 30000,
		StreakTable:        []float64{1.0, 1.0, 1.2, 1.5, 2.0},
	}
}

func TestScoreTimeAndStreakExample(t *testing.T) {
	cfg := testConfig(domain.ModeTimeAndStreak)
	got, err := Score(Input{
		Mode:           domain.ModeTimeAndStreak,
		IsCorrect:      true,
		ResponseTimeMs: 9000,
		TimeLimitMs:    30000,
		CurrentStreak:  0,
	}, cfg)
	require.NoError(t, err)

	assert.Equal(t, 100, got.BasePoints)
	assert.Equal(t, 35, got.TimeBonus)
	assert.Equal(t, 1.0, got.StreakMultiplier)
	assert.Equal(t, 135, got.TotalPoints)
	assert.Equal(t, 1, got.NewStreak)
}

func TestScoreIncorrectAlwaysZero(t *testing.T) {
	modes := []domain.ScoringMode{
		domain.ModeSimple, domain.ModeTimeOnly, domain.ModeStreakOnly, domain.ModeTimeAndStreak,
	}
	for _, mode := range modes {
		for _, streak := range []int{0, 1, 7} {
			got, err := Score(Input{
				Mode:           mode,
				IsCorrect:      false,
				ResponseTimeMs: 100,
				TimeLimitMs:    30000,
				CurrentStreak:  streak,
			}, testConfig(mode))
			require.NoError(t, err)
			assert.Zero(t, got.TotalPoints, "mode %s streak %d", mode, streak)
			assert.Zero(t, got.NewStreak, "mode %s streak %d", mode, streak)
			assert.Zero(t, got.TimeBonus)
			assert.Equal(t, 1.0, got.StreakMultiplier)
		}
	}
}

func TestScoreModes(t *testing.T) {
	tests := []struct {
		name       string
		mode       domain.ScoringMode
		rt         int64
		streak     int
		base       int
		wantBonus  int
		wantMult   float64
		wantTotal  int
		wantStreak int
	}{
		{name: "simple ignores time and streak", mode: domain.ModeSimple, rt: 1000, streak: 3, wantMult: 1, wantTotal: 100, wantStreak: 4},
		{name: "time only", mode: domain.ModeTimeOnly, rt: 15000, wantBonus: 25, wantMult: 1, wantTotal: 125, wantStreak: 1},
		{name: "time only over limit", mode: domain.ModeTimeOnly, rt: 45000, wantBonus: 0, wantMult: 1, wantTotal: 100, wantStreak: 1},
		{name: "time only exactly at limit", mode: domain.ModeTimeOnly, rt: 30000, wantBonus: 0, wantMult: 1, wantTotal: 100, wantStreak: 1},
		{name: "streak only third in a row", mode: domain.ModeStreakOnly, rt: 1000, streak: 2, wantMult: 1.5, wantTotal: 150, wantStreak: 3},
		{name: "streak beyond table reuses last tier", mode: domain.ModeStreakOnly, rt: 1000, streak: 10, wantMult: 2.0, wantTotal: 200, wantStreak: 11},
		{name: "time and streak combined", mode: domain.ModeTimeAndStreak, rt: 0, streak: 1, wantBonus: 50, wantMult: 1.2, wantTotal: 180, wantStreak: 2},
		{name: "question base points override", mode: domain.ModeSimple, base: 250, wantMult: 1, wantTotal: 250, wantStreak: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(Input{
				Mode:           tt.mode,
				IsCorrect:      true,
				ResponseTimeMs: tt.rt,
				TimeLimitMs:    30000,
				CurrentStreak:  tt.streak,
				BasePoints:     tt.base,
			}, testConfig(tt.mode))
			require.NoError(t, err)
			assert.Equal(t, tt.wantBonus, got.TimeBonus)
			assert.InDelta(t, tt.wantMult, got.StreakMultiplier, 1e-9)
			assert.Equal(t, tt.wantTotal, got.TotalPoints)
			assert.Equal(t, tt.wantStreak, got.NewStreak)
		})
	}
}

func TestScoreUnknownMode(t *testing.T) {
	_, err := Score(Input{Mode: "double_or_nothing", IsCorrect: true}, testConfig(""))
	require.ErrorIs(t, err, domain.ErrUnknownScoringMode)
}

func TestScoreFallsBackToConfigMode(t *testing.T) {
	got, err := Score(Input{IsCorrect: true, ResponseTimeMs: 15000, TimeLimitMs: 30000}, testConfig(domain.ModeTimeOnly))
	require.NoError(t, err)
	assert.Equal(t, 125, got.TotalPoints)
}

func TestTimeBonusNeverNegative(t *testing.T) {
	assert.Equal(t, 0, TimeBonus(60000, 30000, 50))
	assert.Equal(t, 0, TimeBonus(100, 0, 50))
	assert.Equal(t, 50, TimeBonus(0, 30000, 50))
	assert.Equal(t, 50, TimeBonus(-10, 30000, 50))
}

func TestStreakMultiplierEmptyTable(t *testing.T) {
	assert.Equal(t, 1.0, StreakMultiplier(5, nil))
	assert.Equal(t, 1.0, StreakMultiplier(0, []float64{1, 2, 3}))
}
