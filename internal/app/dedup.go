package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
	"github.com/koteev-m/bot-for-order-sub001/internal/obs"
)

const defaultDedupStaleAfter = 5 * time.Minute

// DedupGate admits each webhook update (bot, update id) for processing at
// most once. The gate is fail-closed: when the store errors on acquisition it
// reports the update as already handled, because the upstream platform
// retries failed deliveries and a dropped update is cheaper than a duplicate
// side effect.
type DedupGate struct {
	store      DedupStore
	clock      clock.Clock
	logger     *slog.Logger
	metrics    *obs.Metrics
	staleAfter time.Duration
}

func NewDedupGate(store DedupStore, clk clock.Clock, logger *slog.Logger, metrics *obs.Metrics, opts ...DedupGateOption) *DedupGate {
	if logger == nil {
		logger = slog.Default()
	}
	g := &DedupGate{
		store:      store,
		clock:      clk,
		logger:     logger,
		metrics:    metrics,
		staleAfter: defaultDedupStaleAfter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type DedupGateOption func(*DedupGate)

// WithDedupStaleAfter overrides how long an in-progress record blocks
// re-acquisition before it is considered abandoned (crash recovery window).
func WithDedupStaleAfter(d time.Duration) DedupGateOption {
	return func(g *DedupGate) {
		if d > 0 {
			g.staleAfter = d
		}
	}
}

// TryAcquire claims the update for processing. Outcomes other than
// DedupAcquired mean the caller must not process the update. In-progress
// records older than the staleness window are re-acquired, recovering from a
// worker that crashed mid-processing.
func (g *DedupGate) TryAcquire(ctx context.Context, bot domain.BotType, updateID int64) domain.DedupOutcome {
	now := g.clock.Now()
	outcome, err := g.store.TryAcquire(ctx, bot, updateID, now, now.Add(-g.staleAfter))
	if err != nil {
		// Fail closed.
		g.logger.Error("dedup acquire failed, dropping update",
			"bot", string(bot), "update_id", updateID, "err", err)
		g.countOutcome("dropped")
		return domain.DedupAlreadyProcessed
	}
	g.countOutcome(string(outcome))
	return outcome
}

// MarkProcessed finalizes the record. It is a no-op when the record is
// already processed, so double marking cannot move the timestamp.
func (g *DedupGate) MarkProcessed(ctx context.Context, bot domain.BotType, updateID int64) error {
	if err := g.store.MarkProcessed(ctx, bot, updateID, g.clock.Now()); err != nil {
		return fmt.Errorf("mark processed %s/%d: %w", bot, updateID, err)
	}
	return nil
}

// ReleaseProcessing deletes an unprocessed record so a retry can re-acquire
// immediately instead of waiting out the staleness window. Processed records
// are left untouched.
func (g *DedupGate) ReleaseProcessing(ctx context.Context, bot domain.BotType, updateID int64) error {
	if err := g.store.ReleaseProcessing(ctx, bot, updateID); err != nil {
		return fmt.Errorf("release processing %s/%d: %w", bot, updateID, err)
	}
	return nil
}

func (g *DedupGate) countOutcome(outcome string) {
	if g.metrics != nil {
		g.metrics.DedupTotal.WithLabelValues(outcome).Inc()
	}
}
