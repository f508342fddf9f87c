package app

import (
	"context"
	"fmt"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
	"github.com/koteev-m/bot-for-order-sub001/internal/obs"
)

// OrderHoldService coordinates the per-line stock holds protecting an order
// during checkout. Each hold is a store key derived from the line's resource
// (variant or listing) valued with the owning order id.
//
// Acquisition across multiple keys is best-effort, not transactional: on the
// first conflict every key acquired in the same call is rolled back, and TTL
// expiry backstops any partial state an adversarial interleaving could leave
// behind. This tradeoff favors availability over cross-key atomicity.
type OrderHoldService struct {
	store   ReserveStore
	metrics *obs.Metrics
}

func NewOrderHoldService(store ReserveStore, metrics *obs.Metrics) *OrderHoldService {
	return &OrderHoldService{store: store, metrics: metrics}
}

// TryAcquire claims every requested hold for orderID. A key already valued
// with this order id counts as acquired and gets its TTL refreshed, so
// retried checkouts re-enter cleanly. Returns domain.ErrReservationConflict
// when any key belongs to a different order; partially acquired keys are
// released before returning.
func (s *OrderHoldService) TryAcquire(ctx context.Context, orderID string, holds []domain.OrderHoldRequest, ttl time.Duration) error {
	acquired := make([]string, 0, len(holds))

	for _, h := range holds {
		if h.Qty <= 0 {
			s.rollback(ctx, orderID, acquired)
			return domain.ErrInvalidQuantity
		}
		key := h.ResourceKey()

		ok, err := s.store.SetIfAbsent(ctx, key, orderID, ttl)
		if err != nil {
			s.rollback(ctx, orderID, acquired)
			s.countAcquire("error")
			return fmt.Errorf("acquire hold %s: %w", key, err)
		}
		if ok {
			acquired = append(acquired, key)
			continue
		}

		owner, exists, err := s.store.Get(ctx, key)
		if err != nil {
			s.rollback(ctx, orderID, acquired)
			s.countAcquire("error")
			return fmt.Errorf("inspect hold %s: %w", key, err)
		}
		if exists && owner == orderID {
			// Re-entrant acquisition (retry of the same order).
			if _, err := s.store.ExtendTTL(ctx, key, ttl); err != nil {
				s.rollback(ctx, orderID, acquired)
				s.countAcquire("error")
				return fmt.Errorf("refresh hold %s: %w", key, err)
			}
			acquired = append(acquired, key)
			continue
		}

		s.rollback(ctx, orderID, acquired)
		s.countAcquire("conflict")
		return domain.ErrReservationConflict
	}

	s.countAcquire("acquired")
	return nil
}

// Extend refreshes the TTL of every hold still owned by orderID and returns
// domain.ErrReserveExpired if any requested key changed hands or expired.
// Matching keys are extended even when the overall call fails, so a partially
// lost order keeps what it still has while the caller decides.
func (s *OrderHoldService) Extend(ctx context.Context, orderID string, holds []domain.OrderHoldRequest, ttl time.Duration) error {
	allOwned := true
	for _, h := range holds {
		key := h.ResourceKey()
		owner, exists, err := s.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("inspect hold %s: %w", key, err)
		}
		if !exists || owner != orderID {
			allOwned = false
			continue
		}
		if _, err := s.store.ExtendTTL(ctx, key, ttl); err != nil {
			return fmt.Errorf("extend hold %s: %w", key, err)
		}
	}
	if !allOwned {
		return domain.ErrReserveExpired
	}
	return nil
}

// Release deletes only the holds currently owned by orderID.
func (s *OrderHoldService) Release(ctx context.Context, orderID string, holds []domain.OrderHoldRequest) error {
	var firstErr error
	for _, h := range holds {
		key := h.ResourceKey()
		released, err := s.store.DeleteIfValue(ctx, key, orderID)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("release hold %s: %w", key, err)
			}
			continue
		}
		if released && s.metrics != nil {
			s.metrics.HoldReleaseTotal.Inc()
		}
	}
	return firstErr
}

// HasActive reports whether every requested hold is currently owned by
// orderID.
func (s *OrderHoldService) HasActive(ctx context.Context, orderID string, holds []domain.OrderHoldRequest) (bool, error) {
	for _, h := range holds {
		key := h.ResourceKey()
		owner, exists, err := s.store.Get(ctx, key)
		if err != nil {
			return false, fmt.Errorf("inspect hold %s: %w", key, err)
		}
		if !exists || owner != orderID {
			return false, nil
		}
	}
	return true, nil
}

func (s *OrderHoldService) rollback(ctx context.Context, orderID string, keys []string) {
	for _, key := range keys {
		_, _ = s.store.DeleteIfValue(ctx, key, orderID)
	}
}

func (s *OrderHoldService) countAcquire(result string) {
	if s.metrics != nil {
		s.metrics.HoldAcquireTotal.WithLabelValues(result).Inc()
	}
}
