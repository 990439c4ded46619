package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"event-trivia-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// Leaderboard is a Redis implementation of app.LeaderboardMirror and
// app.ScoreIndex. Keys of one game share a hash tag so the Lua upsert stays on
// one cluster slot:
//
//	lb:{g}:entries      hash   player -> entry JSON
//	lb:{g}:answers      hash   player -> answers count (stale-write guard)
//	lb:{g}:scores       zset   player scored by total score
//	lb:{g}:branch:{b}   set    players of a branch
//	lb:{g}:branches     set    branch ids seen
//	lb:{g}:ranks        hash   player -> rank recorded at finish
//	lb:{g}:recent       list   newest-first completion entries, capped
type Leaderboard struct {
	client   *redis.Client
	capacity int64
}

func NewLeaderboard(client *redis.Client, capacity int) *Leaderboard {
	if capacity <= 0 {
		capacity = 20
	}
	return &Leaderboard{client: client, capacity: int64(capacity)}
}

// upsertScript writes the entry unless the stored answers count is higher.
var upsertScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[2], ARGV[1])
if current and tonumber(current) > tonumber(ARGV[2]) then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
if ARGV[5] ~= '' then
  redis.call('SADD', KEYS[4], ARGV[1])
  redis.call('SADD', KEYS[5], ARGV[5])
end
return 1
`)

type gameKeys string

func keysFor(gameID string) gameKeys { return gameKeys("lb:{" + gameID + "}:") }

func (k gameKeys) entries() string               { return string(k) + "entries" }
func (k gameKeys) answers() string               { return string(k) + "answers" }
func (k gameKeys) scores() string                { return string(k) + "scores" }
func (k gameKeys) branch(branchID string) string { return string(k) + "branch:" + branchID }
func (k gameKeys) branches() string              { return string(k) + "branches" }
func (k gameKeys) ranks() string                 { return string(k) + "ranks" }
func (k gameKeys) recent() string                { return string(k) + "recent" }

func (l *Leaderboard) Upsert(ctx context.Context, entry domain.LeaderboardEntry) error {
	entry.Rank = nil
	entry.Position = 0
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	k := keysFor(entry.GameID)
	return upsertScript.Run(ctx, l.client,
		[]string{k.entries(), k.answers(), k.scores(), k.branch(entry.BranchID), k.branches()},
		entry.PlayerID, entry.AnswersCount, entry.Score, raw, entry.BranchID,
	).Err()
}

func (l *Leaderboard) SetRank(ctx context.Context, gameID, playerID string, rank int) error {
	return l.client.HSet(ctx, keysFor(gameID).ranks(), playerID, rank).Err()
}

func (l *Leaderboard) Entry(ctx context.Context, gameID, playerID string) (domain.LeaderboardEntry, bool, error) {
	entries, err := l.load(ctx, gameID, []string{playerID})
	if err != nil {
		return domain.LeaderboardEntry{}, false, err
	}
	if len(entries) == 0 {
		return domain.LeaderboardEntry{}, false, nil
	}
	return entries[0], true, nil
}

func (l *Leaderboard) Entries(ctx context.Context, gameID string) ([]domain.LeaderboardEntry, error) {
	k := keysFor(gameID)
	raw, err := l.client.HGetAll(ctx, k.entries()).Result()
	if err != nil {
		return nil, err
	}
	ranks, err := l.client.HGetAll(ctx, k.ranks()).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(raw))
	for _, v := range raw {
		entry, err := decodeEntry(v)
		if err != nil {
			return nil, err
		}
		out = append(out, withRank(entry, ranks[entry.PlayerID]))
	}
	return out, nil
}

func (l *Leaderboard) BranchEntries(ctx context.Context, gameID, branchID string) ([]domain.LeaderboardEntry, error) {
	ids, err := l.client.SMembers(ctx, keysFor(gameID).branch(branchID)).Result()
	if err != nil {
		return nil, err
	}
	return l.load(ctx, gameID, ids)
}

// CountScoreAbove counts entries with a score strictly greater than score.
func (l *Leaderboard) CountScoreAbove(ctx context.Context, gameID string, score int) (int, error) {
	n, err := l.client.ZCount(ctx, keysFor(gameID).scores(), "("+strconv.Itoa(score), "+inf").Result()
	return int(n), err
}

// EntriesWithScore returns every entry whose score equals score.
func (l *Leaderboard) EntriesWithScore(ctx context.Context, gameID string, score int) ([]domain.LeaderboardEntry, error) {
	s := strconv.Itoa(score)
	ids, err := l.client.ZRangeByScore(ctx, keysFor(gameID).scores(), &redis.ZRangeBy{Min: s, Max: s}).Result()
	if err != nil {
		return nil, err
	}
	return l.load(ctx, gameID, ids)
}

func (l *Leaderboard) PushRecent(ctx context.Context, entry domain.LeaderboardEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	key := keysFor(entry.GameID).recent()
	pipe := l.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, l.capacity-1)
	_, err = pipe.Exec(ctx)
	return err
}

func (l *Leaderboard) Recent(ctx context.Context, gameID string, limit int) ([]domain.LeaderboardEntry, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raw, err := l.client.LRange(ctx, keysFor(gameID).recent(), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.LeaderboardEntry, 0, len(raw))
	for _, v := range raw {
		entry, err := decodeEntry(v)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (l *Leaderboard) Clear(ctx context.Context, gameID string) error {
	k := keysFor(gameID)
	branches, err := l.client.SMembers(ctx, k.branches()).Result()
	if err != nil {
		return err
	}
	keys := []string{k.entries(), k.answers(), k.scores(), k.branches(), k.ranks(), k.recent()}
	for _, b := range branches {
		keys = append(keys, k.branch(b))
	}
	return l.client.Del(ctx, keys...).Err()
}

func (l *Leaderboard) load(ctx context.Context, gameID string, playerIDs []string) ([]domain.LeaderboardEntry, error) {
	if len(playerIDs) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	k := keysFor(gameID)
	pipe := l.client.Pipeline()
	entriesCmd := pipe.HMGet(ctx, k.entries(), playerIDs...)
	ranksCmd := pipe.HMGet(ctx, k.ranks(), playerIDs...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	ranks := ranksCmd.Val()
	out := make([]domain.LeaderboardEntry, 0, len(playerIDs))
	for i, v := range entriesCmd.Val() {
		s, ok := v.(string)
		if !ok {
			continue
		}
		entry, err := decodeEntry(s)
		if err != nil {
			return nil, err
		}
		rank, _ := ranks[i].(string)
		out = append(out, withRank(entry, rank))
	}
	return out, nil
}

func decodeEntry(raw string) (domain.LeaderboardEntry, error) {
	var entry domain.LeaderboardEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return domain.LeaderboardEntry{}, fmt.Errorf("decode entry: %w", err)
	}
	return entry, nil
}

func withRank(entry domain.LeaderboardEntry, rank string) domain.LeaderboardEntry {
	if rank == "" {
		return entry
	}
	if r, err := strconv.Atoi(rank); err == nil {
		entry.Rank = &r
	}
	return entry
}
