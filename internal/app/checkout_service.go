package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
	"github.com/koteev-m/bot-for-order-sub001/internal/obs"
)

type OrderRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	CreateOrder(ctx context.Context, order domain.Order) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	// UpdateOrderStatus moves the order from one status to another, guarded
	// by the current status; reports false when the guard fails.
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus, changedAt time.Time) (bool, error)
	CreateStatusChange(ctx context.Context, change domain.OrderStatusChange) error
	SetProviderChargeID(ctx context.Context, orderID, chargeID string) error
}

// PaymentDispatcher hands a pending order to the external payment
// collaborator.
type PaymentDispatcher interface {
	CreateAndSendInvoice(ctx context.Context, order domain.Order, title, photoURL string) error
}

const (
	defaultCheckoutHoldTTL = 15 * time.Minute
	checkoutLockWait       = 3 * time.Second
	checkoutLockLease      = 15 * time.Second
)

// CheckoutService coordinates one checkout as a unit: line holds, optional
// offer reserve conversion, durable order creation and payment dispatch.
// Holds acquired here survive order creation on purpose; they are the stock
// protection until the order resolves (paid or canceled).
type CheckoutService struct {
	orders   OrderRepository
	holds    *OrderHoldService
	reserves *HoldService
	offers   *OfferService
	locks    *LockManager
	payments PaymentDispatcher
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *obs.Metrics
	holdTTL  time.Duration
}

func NewCheckoutService(
	orders OrderRepository,
	holds *OrderHoldService,
	reserves *HoldService,
	offers *OfferService,
	locks *LockManager,
	payments PaymentDispatcher,
	clk clock.Clock,
	logger *slog.Logger,
	metrics *obs.Metrics,
	opts ...CheckoutServiceOption,
) *CheckoutService {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &CheckoutService{
		orders:   orders,
		holds:    holds,
		reserves: reserves,
		offers:   offers,
		locks:    locks,
		payments: payments,
		clock:    clk,
		logger:   logger,
		metrics:  metrics,
		holdTTL:  defaultCheckoutHoldTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type CheckoutServiceOption func(*CheckoutService)

// WithCheckoutHoldTTL overrides how long line holds and the order reserve
// protect stock during checkout.
func WithCheckoutHoldTTL(d time.Duration) CheckoutServiceOption {
	return func(s *CheckoutService) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

type CheckoutInput struct {
	UserID      string
	Lines       []domain.OrderLine
	Currency    string
	AmountMinor int64
	// OfferID is set when this checkout finalizes an accepted offer; its
	// reserve is converted to an order reserve.
	OfferID  string
	Title    string
	PhotoURL string
}

func (in CheckoutInput) validate() error {
	if len(in.Lines) == 0 {
		return domain.ErrInvalidQuantity
	}
	for _, l := range in.Lines {
		if l.Qty <= 0 {
			return domain.ErrInvalidQuantity
		}
	}
	if in.AmountMinor <= 0 {
		return domain.ErrInvalidOfferInput
	}
	return nil
}

// Checkout runs the full orchestration. Failures before the order row exists
// roll back every hold taken in this call; once the row is durable, holds are
// retained and the error is surfaced for the caller to retry payment.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (domain.Order, error) {
	if err := in.validate(); err != nil {
		return domain.Order{}, err
	}

	order := domain.Order{
		ID:          newID(),
		UserID:      in.UserID,
		Lines:       in.Lines,
		Currency:    in.Currency,
		AmountMinor: in.AmountMinor,
		Status:      domain.OrderStatusPending,
		OfferID:     in.OfferID,
		CreatedAt:   s.clock.Now(),
	}

	err := s.locks.WithLock(ctx, "checkout:user:"+in.UserID, checkoutLockWait, checkoutLockLease, func(ctx context.Context) error {
		return s.run(ctx, &order, in)
	})
	if err != nil {
		return domain.Order{}, err
	}
	s.countCheckout("created")
	return order, nil
}

func (s *CheckoutService) run(ctx context.Context, order *domain.Order, in CheckoutInput) error {
	holdReqs := order.HoldRequests()

	if err := s.holds.TryAcquire(ctx, order.ID, holdReqs, s.holdTTL); err != nil {
		if errors.Is(err, domain.ErrReservationConflict) {
			s.countCheckout("conflict")
		} else {
			s.countCheckout("error")
		}
		return err
	}

	converted := false
	if in.OfferID != "" {
		line := in.Lines[0]
		err := s.reserves.ConvertOfferToOrderReserve(ctx, in.OfferID, order.ID, s.holdTTL,
			func(p domain.StockReservePayload) domain.StockReservePayload {
				p.Qty = line.Qty
				p.VariantID = line.VariantID
				return p
			})
		if err != nil {
			s.rollbackHolds(ctx, order.ID, holdReqs, false)
			if errors.Is(err, domain.ErrReserveExpired) {
				s.countCheckout("reserve_lost")
			} else {
				s.countCheckout("error")
			}
			return err
		}
		converted = true

		if err := s.offers.MarkAccepted(ctx, in.OfferID); err != nil {
			s.rollbackHolds(ctx, order.ID, holdReqs, converted)
			s.countCheckout("error")
			return err
		}
	}

	err := s.orders.WithTx(ctx, func(ctx context.Context) error {
		if err := s.orders.CreateOrder(ctx, *order); err != nil {
			return err
		}
		return s.orders.CreateStatusChange(ctx, domain.OrderStatusChange{
			OrderID:   order.ID,
			From:      "",
			To:        domain.OrderStatusPending,
			ChangedAt: order.CreatedAt,
		})
	})
	if err != nil {
		s.rollbackHolds(ctx, order.ID, holdReqs, converted)
		s.countCheckout("error")
		return fmt.Errorf("persist order: %w", err)
	}

	// The order row is durable from here: holds stay until it resolves.
	if err := s.payments.CreateAndSendInvoice(ctx, *order, in.Title, in.PhotoURL); err != nil {
		s.logger.Error("payment dispatch failed, order kept pending",
			"order_id", order.ID, "err", err)
		return fmt.Errorf("dispatch payment for order %s: %w", order.ID, err)
	}
	return nil
}

func (s *CheckoutService) rollbackHolds(ctx context.Context, orderID string, holds []domain.OrderHoldRequest, dropReserve bool) {
	if err := s.holds.Release(ctx, orderID, holds); err != nil {
		s.logger.Error("hold rollback failed", "order_id", orderID, "err", err)
	}
	if dropReserve {
		if _, err := s.reserves.DeleteReserveByOrder(ctx, orderID); err != nil {
			s.logger.Error("order reserve rollback failed", "order_id", orderID, "err", err)
		}
	}
}

func (s *CheckoutService) countCheckout(result string) {
	if s.metrics != nil {
		s.metrics.CheckoutTotal.WithLabelValues(result).Inc()
	}
}
