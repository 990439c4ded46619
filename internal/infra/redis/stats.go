package redis

import (
	"context"
	"strconv"

	"event-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Stats keeps per-game counters in one Redis hash: stats:{gameID}.
type Stats struct {
	client *redis.Client
}

func NewStats(client *redis.Client) *Stats {
	return &Stats{client: client}
}

const (
	fieldRegistered  = "registered"
	fieldStarted     = "started"
	fieldFinished    = "finished"
	fieldAnswers     = "answers"
	fieldScoreSum    = "score_sum"
	fieldAccuracySum = "accuracy_sum"
	fieldTimeSumMs   = "time_sum_ms"
)

// Add increments every non-zero counter of d in a single transaction.
func (s *Stats) Add(ctx context.Context, gameID string, d domain.StatsCounters) error {
	key := s.key(gameID)
	pipe := s.client.TxPipeline()
	ints := []struct {
		field string
		v     int64
	}{
		{fieldRegistered, d.Registered},
		{fieldStarted, d.Started},
		{fieldFinished, d.Finished},
		{fieldAnswers, d.Answers},
		{fieldScoreSum, d.ScoreSum},
		{fieldTimeSumMs, d.TimeSumMs},
	}
	queued := 0
	for _, f := range ints {
		if f.v != 0 {
			pipe.HIncrBy(ctx, key, f.field, f.v)
			queued++
		}
	}
	if d.AccuracySum != 0 {
		pipe.HIncrByFloat(ctx, key, fieldAccuracySum, d.AccuracySum)
		queued++
	}
	if queued == 0 {
		return nil
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (s *Stats) Counters(ctx context.Context, gameID string) (domain.StatsCounters, error) {
	raw, err := s.client.HGetAll(ctx, s.key(gameID)).Result()
	if err != nil {
		return domain.StatsCounters{}, err
	}
	i := func(field string) int64 {
		v, _ := strconv.ParseInt(raw[field], 10, 64)
		return v
	}
	acc, _ := strconv.ParseFloat(raw[fieldAccuracySum], 64)
	return domain.StatsCounters{
		Registered:  i(fieldRegistered),
		Started:     i(fieldStarted),
		Finished:    i(fieldFinished),
		Answers:     i(fieldAnswers),
		ScoreSum:    i(fieldScoreSum),
		AccuracySum: acc,
		TimeSumMs:   i(fieldTimeSumMs),
	}, nil
}

func (s *Stats) key(gameID string) string {
	return "stats:" + gameID
}
