package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// OrderService advances orders through their lifecycle. Every transition is
// a status-guarded update plus a history row; the paid and canceled
// transitions also tear down the stock protection (line holds and the order
// reserve) because checkout has concluded either way.
type OrderService struct {
	repo     OrderRepository
	holds    *OrderHoldService
	reserves *HoldService
	clock    clock.Clock
	logger   *slog.Logger
}

func NewOrderService(repo OrderRepository, holds *OrderHoldService, reserves *HoldService, clk clock.Clock, logger *slog.Logger) *OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderService{repo: repo, holds: holds, reserves: reserves, clock: clk, logger: logger}
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return s.repo.GetOrder(ctx, orderID)
}

// AdvanceStatus moves the order forward along the lifecycle. The transition
// table rejects backwards moves and changes out of terminal states.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, to domain.OrderStatus) error {
	order, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !domain.CanTransition(order.Status, to) {
		return domain.ErrInvalidStatusChange
	}

	now := s.clock.Now()
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		ok, err := s.repo.UpdateOrderStatus(ctx, orderID, order.Status, to, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race with a concurrent transition.
			return domain.ErrInvalidStatusChange
		}
		return s.repo.CreateStatusChange(ctx, domain.OrderStatusChange{
			OrderID:   orderID,
			From:      order.Status,
			To:        to,
			ChangedAt: now,
		})
	})
	if err != nil {
		return fmt.Errorf("advance order %s to %s: %w", orderID, to, err)
	}

	switch to {
	case domain.OrderStatusPaid, domain.OrderStatusCanceled:
		s.releaseStockProtection(ctx, order)
	}
	return nil
}

// MarkPaid finalizes payment for a pending order.
func (s *OrderService) MarkPaid(ctx context.Context, orderID, providerChargeID string) error {
	if err := s.AdvanceStatus(ctx, orderID, domain.OrderStatusPaid); err != nil {
		return err
	}
	if providerChargeID != "" {
		if err := s.repo.SetProviderChargeID(ctx, orderID, providerChargeID); err != nil {
			s.logger.Error("store provider charge id failed", "order_id", orderID, "err", err)
		}
	}
	return nil
}

// Cancel aborts an order and frees its stock.
func (s *OrderService) Cancel(ctx context.Context, orderID string) error {
	return s.AdvanceStatus(ctx, orderID, domain.OrderStatusCanceled)
}

func (s *OrderService) releaseStockProtection(ctx context.Context, order domain.Order) {
	if err := s.holds.Release(ctx, order.ID, order.HoldRequests()); err != nil {
		s.logger.Error("release line holds failed", "order_id", order.ID, "err", err)
	}
	if _, err := s.reserves.DeleteReserveByOrder(ctx, order.ID); err != nil {
		s.logger.Error("release order reserve failed", "order_id", order.ID, "err", err)
	}
}
