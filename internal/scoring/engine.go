// Package scoring computes the points awarded for a single answer.
package scoring

import (
	"fmt"
	"math"

	"event-trivia-service/internal/domain"
)

// Input describes one answer to be scored.
type Input struct {
	Mode           domain.ScoringMode
	IsCorrect      bool
	ResponseTimeMs int64
	TimeLimitMs    int64
	CurrentStreak  int
	BasePoints     int // per-question override; the config value is used when <= 0
}

// Breakdown is the full point computation for one answer.
type Breakdown struct {
	BasePoints       int
	TimeBonus        int
	StreakMultiplier float64
	TotalPoints      int
	NewStreak        int
}

// Score applies the configured scoring mode. It has no side effects.
func Score(in Input, cfg domain.ScoringConfig) (Breakdown, error) {
	out := Breakdown{StreakMultiplier: 1}
	if in.IsCorrect {
		out.NewStreak = in.CurrentStreak + 1
	}

	mode := in.Mode
	if mode == "" {
		mode = cfg.Mode
	}
	switch mode {
	case domain.ModeSimple, domain.ModeTimeOnly, domain.ModeStreakOnly, domain.ModeTimeAndStreak:
	default:
		return Breakdown{}, fmt.Errorf("%w: %q", domain.ErrUnknownScoringMode, mode)
	}

	if !in.IsCorrect {
		return out, nil
	}

	base := cfg.BasePoints
	if in.BasePoints > 0 {
		base = in.BasePoints
	}
	out.BasePoints = base

	switch mode {
	case domain.ModeSimple:
		out.TotalPoints = base
	case domain.ModeTimeOnly:
		out.TimeBonus = TimeBonus(in.ResponseTimeMs, in.TimeLimitMs, cfg.TimeBonusMax)
		out.TotalPoints = base + out.TimeBonus
	case domain.ModeStreakOnly:
		out.StreakMultiplier = StreakMultiplier(out.NewStreak, cfg.StreakTable)
		out.TotalPoints = round(float64(base) * out.StreakMultiplier)
	case domain.ModeTimeAndStreak:
		out.TimeBonus = TimeBonus(in.ResponseTimeMs, in.TimeLimitMs, cfg.TimeBonusMax)
		out.StreakMultiplier = StreakMultiplier(out.NewStreak, cfg.StreakTable)
		out.TotalPoints = round(float64(base+out.TimeBonus) * out.StreakMultiplier)
	}
	return out, nil
}

// TimeBonus is proportional to the share of the time limit left. It is zero when
// the limit is unset or exceeded.
func TimeBonus(responseTimeMs, timeLimitMs int64, max int) int {
	if timeLimitMs <= 0 || max <= 0 || responseTimeMs >= timeLimitMs {
		return 0
	}
	remaining := 1 - float64(responseTimeMs)/float64(timeLimitMs)
	remaining = math.Max(0, math.Min(1, remaining))
	return round(remaining * float64(max))
}

// StreakMultiplier looks up the multiplier for a streak. Index i of table holds the
// multiplier for a streak of i; streaks past the end reuse the last tier.
func StreakMultiplier(streak int, table []float64) float64 {
	if len(table) == 0 || streak <= 0 {
		return 1
	}
	maxTier := len(table) - 1
	if streak > maxTier {
		streak = maxTier
	}
	return table[streak]
}

func round(v float64) int {
	return int(math.Round(v))
}
