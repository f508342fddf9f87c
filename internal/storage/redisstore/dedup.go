package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// Dedup records live for a week; the staleness cutoff that governs crash
// recovery is caller-supplied and much shorter, so this TTL is pure
// housekeeping.
const dedupRecordTTL = 7 * 24 * time.Hour

// dedupAcquireScript implements the per-update state machine in one step.
// Absent -> insert and acquire; processed -> terminal; stale in-progress ->
// replace and acquire; fresh in-progress -> refuse.
// KEYS[1] = record key
// ARGV[1] = now (unix ms)
// ARGV[2] = staleness cutoff (unix ms)
// ARGV[3] = record TTL (ms)
var dedupAcquireScript = redis.NewScript(`
local created = redis.call("HGET", KEYS[1], "created_at")
if not created then
    redis.call("HSET", KEYS[1], "created_at", ARGV[1])
    redis.call("PEXPIRE", KEYS[1], ARGV[3])
    return 1
end
if redis.call("HGET", KEYS[1], "processed_at") then
    return 2
end
if tonumber(created) < tonumber(ARGV[2]) then
    redis.call("DEL", KEYS[1])
    redis.call("HSET", KEYS[1], "created_at", ARGV[1])
    redis.call("PEXPIRE", KEYS[1], ARGV[3])
    return 1
end
return 3
`)

// dedupMarkScript stamps processed_at once, keeping the first finisher's
// timestamp, and only on a live record. A mark landing after the
// housekeeping TTL fired must not plant an orphan hash with no created_at,
// which the acquire script would treat as absent.
// KEYS[1] = record key
// ARGV[1] = processed at (unix ms)
// ARGV[2] = record TTL (ms)
var dedupMarkScript = redis.NewScript(`
if not redis.call("HGET", KEYS[1], "created_at") then
    return 0
end
local set = redis.call("HSETNX", KEYS[1], "processed_at", ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return set
`)

// dedupReleaseScript deletes the record only while it is still unprocessed.
// KEYS[1] = record key
var dedupReleaseScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "processed_at") then
    return 0
end
return redis.call("DEL", KEYS[1])
`)

// DedupStore persists webhook dedup records as Redis hashes.
type DedupStore struct {
	client redis.UniversalClient
}

func NewDedup(client redis.UniversalClient) *DedupStore {
	return &DedupStore{client: client}
}

func dedupKey(bot domain.BotType, updateID int64) string {
	return fmt.Sprintf("dedup:%s:%d", bot, updateID)
}

func (s *DedupStore) TryAcquire(ctx context.Context, bot domain.BotType, updateID int64, now, staleBefore time.Time) (domain.DedupOutcome, error) {
	res, err := dedupAcquireScript.Run(ctx, s.client,
		[]string{dedupKey(bot, updateID)},
		now.UnixMilli(), staleBefore.UnixMilli(), dedupRecordTTL.Milliseconds(),
	).Int()
	if err != nil {
		return "", fmt.Errorf("redis dedup acquire %s/%d: %w", bot, updateID, err)
	}
	switch res {
	case 1:
		return domain.DedupAcquired, nil
	case 2:
		return domain.DedupAlreadyProcessed, nil
	case 3:
		return domain.DedupInProgress, nil
	}
	return "", fmt.Errorf("redis dedup acquire %s/%d: unexpected result %d", bot, updateID, res)
}

func (s *DedupStore) MarkProcessed(ctx context.Context, bot domain.BotType, updateID int64, processedAt time.Time) error {
	err := dedupMarkScript.Run(ctx, s.client,
		[]string{dedupKey(bot, updateID)},
		processedAt.UnixMilli(), dedupRecordTTL.Milliseconds(),
	).Err()
	if err != nil {
		return fmt.Errorf("redis dedup mark %s/%d: %w", bot, updateID, err)
	}
	return nil
}

func (s *DedupStore) ReleaseProcessing(ctx context.Context, bot domain.BotType, updateID int64) error {
	if err := dedupReleaseScript.Run(ctx, s.client, []string{dedupKey(bot, updateID)}).Err(); err != nil {
		return fmt.Errorf("redis dedup release %s/%d: %w", bot, updateID, err)
	}
	return nil
}
