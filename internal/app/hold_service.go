package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// ReserveResult distinguishes a fresh reserve from an idempotent refresh of
// an existing one.
type ReserveResult string

const (
	ReserveCreated   ReserveResult = "created"
	ReserveRefreshed ReserveResult = "refreshed"
)

// HoldService manages offer- and order-level stock reserves in the shared
// TTL store. Reserves expire at the storage layer; there is no sweep.
type HoldService struct {
	store ReserveStore
	clock clock.Clock
}

func NewHoldService(store ReserveStore, clk clock.Clock) *HoldService {
	return &HoldService{store: store, clock: clk}
}

// CreateOfferReserve claims stock for an offer under negotiation. Re-entry
// for the same offer id is treated as an idempotent refresh: the payload and
// TTL are overwritten unconditionally.
func (s *HoldService) CreateOfferReserve(ctx context.Context, offerID string, payload domain.StockReservePayload, ttl time.Duration) (ReserveResult, error) {
	payload.From = domain.ReserveKindOffer
	return s.createReserve(ctx, domain.OfferReserveKey(offerID), payload, ttl)
}

// CreateOrderReserve claims stock for an order going through checkout.
func (s *HoldService) CreateOrderReserve(ctx context.Context, orderID string, payload domain.StockReservePayload, ttl time.Duration) (ReserveResult, error) {
	payload.From = domain.ReserveKindOrder
	return s.createReserve(ctx, domain.OrderReserveKey(orderID), payload, ttl)
}

func (s *HoldService) createReserve(ctx context.Context, key domain.ReserveKey, payload domain.StockReservePayload, ttl time.Duration) (ReserveResult, error) {
	payload.CreatedAt = s.clock.Now().Unix()
	payload.TTLSec = int64(ttl / time.Second)
	if err := payload.Validate(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal reserve payload: %w", err)
	}

	created, err := s.store.SetIfAbsent(ctx, key.StorageKey(), string(raw), ttl)
	if err != nil {
		return "", fmt.Errorf("set reserve %s: %w", key.StorageKey(), err)
	}
	if created {
		return ReserveCreated, nil
	}
	if err := s.store.Set(ctx, key.StorageKey(), string(raw), ttl); err != nil {
		return "", fmt.Errorf("refresh reserve %s: %w", key.StorageKey(), err)
	}
	return ReserveRefreshed, nil
}

// ConvertOfferToOrderReserve atomically moves the reserve held by an offer to
// the order created from it. The update callback may adjust quantity/variant
// as agreed at acceptance time; the offer back-reference and ownership tag
// are set here. Returns domain.ErrReserveExpired when the offer reserve is
// gone or was concurrently converted: the caller must treat the reservation
// as lost and not proceed.
func (s *HoldService) ConvertOfferToOrderReserve(
	ctx context.Context,
	offerID, orderID string,
	extendTTL time.Duration,
	update func(domain.StockReservePayload) domain.StockReservePayload,
) error {
	srcKey := domain.OfferReserveKey(offerID).StorageKey()
	dstKey := domain.OrderReserveKey(orderID).StorageKey()

	current, ok, err := s.store.Get(ctx, srcKey)
	if err != nil {
		return fmt.Errorf("get offer reserve %s: %w", srcKey, err)
	}
	if !ok {
		return domain.ErrReserveExpired
	}

	var payload domain.StockReservePayload
	if err := json.Unmarshal([]byte(current), &payload); err != nil {
		return fmt.Errorf("decode offer reserve %s: %w", srcKey, err)
	}
	if update != nil {
		payload = update(payload)
	}
	payload.From = domain.ReserveKindOrder
	payload.OfferID = offerID
	payload.CreatedAt = s.clock.Now().Unix()
	payload.TTLSec = int64(extendTTL / time.Second)
	if err := payload.Validate(); err != nil {
		return err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal order reserve: %w", err)
	}

	// The store checks the source value against what we read; a concurrent
	// conversion or expiry between Get and the swap makes the move fail with
	// no side effects.
	moved, err := s.store.CompareAndSwapMove(ctx, srcKey, current, dstKey, string(raw), extendTTL)
	if err != nil {
		return fmt.Errorf("convert reserve %s -> %s: %w", srcKey, dstKey, err)
	}
	if !moved {
		return domain.ErrReserveExpired
	}
	return nil
}

// DeleteReserveByOrder removes an order reserve. No ownership check: reserve
// keys are namespaced per order id, never shared.
func (s *HoldService) DeleteReserveByOrder(ctx context.Context, orderID string) (bool, error) {
	return s.store.Delete(ctx, domain.OrderReserveKey(orderID).StorageKey())
}

// DeleteReserveByOffer removes an offer reserve.
func (s *HoldService) DeleteReserveByOffer(ctx context.Context, offerID string) (bool, error) {
	return s.store.Delete(ctx, domain.OfferReserveKey(offerID).StorageKey())
}

// GetOrderReserve returns the payload of an order reserve, if present.
func (s *HoldService) GetOrderReserve(ctx context.Context, orderID string) (*domain.StockReservePayload, error) {
	raw, ok, err := s.store.Get(ctx, domain.OrderReserveKey(orderID).StorageKey())
	if err != nil {
		return nil, fmt.Errorf("get order reserve: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var payload domain.StockReservePayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("decode order reserve: %w", err)
	}
	return &payload, nil
}

func (s *HoldService) HasOrderReserve(ctx context.Context, orderID string) (bool, error) {
	_, ok, err := s.store.Get(ctx, domain.OrderReserveKey(orderID).StorageKey())
	if err != nil {
		return false, fmt.Errorf("get order reserve: %w", err)
	}
	return ok, nil
}

// ReleaseExpired is intentionally a no-op: reserves rely on store-native TTL
// expiry. It exists as the extension point for stores without native expiry.
func (s *HoldService) ReleaseExpired(ctx context.Context) error {
	return nil
}
