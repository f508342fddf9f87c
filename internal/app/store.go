package app

import (
	"context"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// ReserveStore is the TTL key/value layer backing reserves, order holds and
// locks. Every compound operation is a single atomic server-side action;
// callers never read-then-write around it.
type ReserveStore interface {
	// SetIfAbsent creates the key only if it does not exist.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Set writes the key unconditionally (reservation refresh).
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	// CompareAndSwapMove verifies srcKey holds expected, writes newValue at
	// dstKey with ttl and deletes srcKey, all in one step. No side effects
	// when the precondition fails.
	CompareAndSwapMove(ctx context.Context, srcKey, expected, dstKey, newValue string, ttl time.Duration) (bool, error)
	// DeleteIfValue deletes the key only when its current value matches.
	DeleteIfValue(ctx context.Context, key, expected string) (bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	// ExtendTTL refreshes the key's TTL; reports whether the key existed.
	ExtendTTL(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// DedupStore persists webhook dedup records with per-(bot, update) atomicity.
type DedupStore interface {
	TryAcquire(ctx context.Context, bot domain.BotType, updateID int64, now, staleBefore time.Time) (domain.DedupOutcome, error)
	MarkProcessed(ctx context.Context, bot domain.BotType, updateID int64, processedAt time.Time) error
	ReleaseProcessing(ctx context.Context, bot domain.BotType, updateID int64) error
}
