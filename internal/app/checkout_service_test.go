package app

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
	"github.com/koteev-m/bot-for-order-sub001/internal/storage/memstore"
)

type checkoutFixture struct {
	svc       *CheckoutService
	offers    *OfferService
	offerRepo *fakeOfferRepo
	orders    *fakeOrderRepo
	holds     *OrderHoldService
	reserves  *HoldService
	payments  *fakeDispatcher
	store     *memstore.Store
}

func newCheckoutFixture(t *testing.T, now time.Time) *checkoutFixture {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFixed(now)

	reserves := NewHoldService(store, clk)
	holds := NewOrderHoldService(store, nil)
	locks := NewLockManager(store, nil)

	offerRepo := newFakeOfferRepo()
	offerRepo.items["item-1"] = domain.Item{
		ID:             "item-1",
		Title:          "Vintage jacket",
		PriceMinor:     10000,
		Currency:       "EUR",
		BargainEnabled: true,
		Bargain:        testRules(),
	}
	offers := NewOfferService(offerRepo, reserves, locks, clk)

	orders := newFakeOrderRepo()
	payments := &fakeDispatcher{}

	svc := NewCheckoutService(orders, holds, reserves, offers, locks, payments, clk, slog.Default(), nil)
	return &checkoutFixture{
		svc:       svc,
		offers:    offers,
		offerRepo: offerRepo,
		orders:    orders,
		holds:     holds,
		reserves:  reserves,
		payments:  payments,
		store:     store,
	}
}

func plainInput() CheckoutInput {
	return CheckoutInput{
		UserID:      "user-1",
		Lines:       []domain.OrderLine{{ListingID: "item-1", VariantID: "variant-1", Qty: 1, PriceMinor: 10000}},
		Currency:    "EUR",
		AmountMinor: 10000,
		Title:       "Vintage jacket",
	}
}

func TestCheckoutService_Checkout(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("creates a pending order with holds and dispatches payment", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		order, err := f.svc.Checkout(context.Background(), plainInput())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if order.Status != domain.OrderStatusPending {
			t.Fatalf("expected status %s, got %s", domain.OrderStatusPending, order.Status)
		}
		if _, ok := f.orders.orders[order.ID]; !ok {
			t.Fatalf("expected order persisted")
		}
		if len(f.orders.history[order.ID]) != 1 {
			t.Fatalf("expected one history row, got %d", len(f.orders.history[order.ID]))
		}
		if len(f.payments.sent) != 1 {
			t.Fatalf("expected one invoice, got %d", len(f.payments.sent))
		}

		active, err := f.holds.HasActive(context.Background(), order.ID, order.HoldRequests())
		if err != nil || !active {
			t.Fatalf("expected holds retained after checkout, active=%v err=%v", active, err)
		}
	})

	t.Run("conflicting hold aborts before anything is persisted", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		blocker := []domain.OrderHoldRequest{{ListingID: "item-1", VariantID: "variant-1", Qty: 1}}
		if err := f.holds.TryAcquire(context.Background(), "order-other", blocker, time.Minute); err != nil {
			t.Fatalf("seed blocker: %v", err)
		}

		_, err := f.svc.Checkout(context.Background(), plainInput())
		if !errors.Is(err, domain.ErrReservationConflict) {
			t.Fatalf("expected ErrReservationConflict, got %v", err)
		}
		if len(f.orders.orders) != 0 {
			t.Fatalf("expected no order rows, got %d", len(f.orders.orders))
		}
		if len(f.payments.sent) != 0 {
			t.Fatalf("expected no invoices, got %d", len(f.payments.sent))
		}
	})

	t.Run("offer checkout converts the reserve and accepts the offer", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		offer, _, err := f.offers.CreateOffer(context.Background(), CreateOfferInput{
			ItemID: "item-1", VariantID: "variant-1", UserID: "user-1", AmountMinor: 8500,
		})
		if err != nil {
			t.Fatalf("create offer: %v", err)
		}

		in := plainInput()
		in.OfferID = offer.ID
		in.AmountMinor = 8500

		order, err := f.svc.Checkout(context.Background(), in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}

		payload, err := f.reserves.GetOrderReserve(context.Background(), order.ID)
		if err != nil || payload == nil {
			t.Fatalf("expected order reserve, payload=%v err=%v", payload, err)
		}
		if payload.OfferID != offer.ID {
			t.Fatalf("expected offer back-reference %s, got %s", offer.ID, payload.OfferID)
		}
		if got := f.offerRepo.offers[offer.ID].Status; got != domain.OfferStatusAccepted {
			t.Fatalf("expected offer %s, got %s", domain.OfferStatusAccepted, got)
		}
	})

	t.Run("accepted counter checks out at the counter amount", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		offer, decision, err := f.offers.CreateOffer(context.Background(), CreateOfferInput{
			ItemID: "item-1", VariantID: "variant-1", UserID: "user-1", AmountMinor: 7000,
		})
		if err != nil {
			t.Fatalf("create offer: %v", err)
		}
		if offer.Status != domain.OfferStatusCountered {
			t.Fatalf("expected countered offer, got %s", offer.Status)
		}

		in := plainInput()
		in.OfferID = offer.ID
		in.AmountMinor = decision.AmountMinor

		order, err := f.svc.Checkout(context.Background(), in)
		if err != nil {
			t.Fatalf("expected checkout to complete, got %v", err)
		}
		payload, err := f.reserves.GetOrderReserve(context.Background(), order.ID)
		if err != nil || payload == nil {
			t.Fatalf("expected order reserve, payload=%v err=%v", payload, err)
		}
		if payload.OfferID != offer.ID {
			t.Fatalf("expected offer back-reference %s, got %s", offer.ID, payload.OfferID)
		}
		if got := f.offerRepo.offers[offer.ID].Status; got != domain.OfferStatusAccepted {
			t.Fatalf("expected offer %s, got %s", domain.OfferStatusAccepted, got)
		}
	})

	t.Run("expired offer reserve aborts and rolls back holds", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		offer, _, err := f.offers.CreateOffer(context.Background(), CreateOfferInput{
			ItemID: "item-1", VariantID: "variant-1", UserID: "user-1", AmountMinor: 8500,
		})
		if err != nil {
			t.Fatalf("create offer: %v", err)
		}
		// Simulate TTL expiry between acceptance and checkout.
		if _, err := f.reserves.DeleteReserveByOffer(context.Background(), offer.ID); err != nil {
			t.Fatalf("drop reserve: %v", err)
		}

		in := plainInput()
		in.OfferID = offer.ID

		_, err = f.svc.Checkout(context.Background(), in)
		if !errors.Is(err, domain.ErrReserveExpired) {
			t.Fatalf("expected ErrReserveExpired, got %v", err)
		}
		if len(f.orders.orders) != 0 {
			t.Fatalf("expected no order rows, got %d", len(f.orders.orders))
		}
		// The line hold taken in this call must be gone again.
		if _, ok, _ := f.store.Get(context.Background(), "order_hold:variant:variant-1"); ok {
			t.Fatalf("expected hold rolled back")
		}
	})

	t.Run("persist failure rolls back holds and the converted reserve", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)
		f.orders.createErr = errors.New("db down")

		offer, _, err := f.offers.CreateOffer(context.Background(), CreateOfferInput{
			ItemID: "item-1", VariantID: "variant-1", UserID: "user-1", AmountMinor: 8500,
		})
		if err != nil {
			t.Fatalf("create offer: %v", err)
		}

		in := plainInput()
		in.OfferID = offer.ID

		_, err = f.svc.Checkout(context.Background(), in)
		if err == nil {
			t.Fatalf("expected persist error")
		}
		if _, ok, _ := f.store.Get(context.Background(), "order_hold:variant:variant-1"); ok {
			t.Fatalf("expected hold rolled back")
		}
		if len(f.orders.orders) != 0 {
			t.Fatalf("expected no order rows, got %d", len(f.orders.orders))
		}
	})

	t.Run("payment failure keeps the order and its holds", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)
		f.payments.err = errors.New("amqp down")

		_, err := f.svc.Checkout(context.Background(), plainInput())
		if err == nil {
			t.Fatalf("expected dispatch error")
		}
		if len(f.orders.orders) != 1 {
			t.Fatalf("expected order persisted despite dispatch failure, got %d", len(f.orders.orders))
		}
		var orderID string
		for id := range f.orders.orders {
			orderID = id
		}
		active, err := f.holds.HasActive(context.Background(), orderID,
			[]domain.OrderHoldRequest{{ListingID: "item-1", VariantID: "variant-1", Qty: 1}})
		if err != nil || !active {
			t.Fatalf("expected holds retained, active=%v err=%v", active, err)
		}
	})

	t.Run("rejects empty and invalid input", func(t *testing.T) {
		t.Parallel()
		f := newCheckoutFixture(t, now)

		_, err := f.svc.Checkout(context.Background(), CheckoutInput{UserID: "user-1"})
		if !errors.Is(err, domain.ErrInvalidQuantity) {
			t.Fatalf("expected ErrInvalidQuantity, got %v", err)
		}

		in := plainInput()
		in.AmountMinor = 0
		_, err = f.svc.Checkout(context.Background(), in)
		if !errors.Is(err, domain.ErrInvalidOfferInput) {
			t.Fatalf("expected ErrInvalidOfferInput, got %v", err)
		}
	})
}

type fakeOrderRepo struct {
	orders       map[string]domain.Order
	history      map[string][]domain.OrderStatusChange
	chargeIDs    map[string]string
	createErr    error
	updateErr    error
	beforeUpdate func()
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{
		orders:    map[string]domain.Order{},
		history:   map[string][]domain.OrderStatusChange{},
		chargeIDs: map[string]string{},
	}
}

func (f *fakeOrderRepo) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *fakeOrderRepo) CreateOrder(_ context.Context, order domain.Order) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrderRepo) GetOrder(_ context.Context, orderID string) (domain.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrderRepo) UpdateOrderStatus(_ context.Context, orderID string, from, to domain.OrderStatus, _ time.Time) (bool, error) {
	if f.updateErr != nil {
		return false, f.updateErr
	}
	if f.beforeUpdate != nil {
		f.beforeUpdate()
	}
	order, ok := f.orders[orderID]
	if !ok || order.Status != from {
		return false, nil
	}
	order.Status = to
	f.orders[orderID] = order
	return true, nil
}

func (f *fakeOrderRepo) CreateStatusChange(_ context.Context, change domain.OrderStatusChange) error {
	f.history[change.OrderID] = append(f.history[change.OrderID], change)
	return nil
}

func (f *fakeOrderRepo) SetProviderChargeID(_ context.Context, orderID, chargeID string) error {
	f.chargeIDs[orderID] = chargeID
	return nil
}

type fakeDispatcher struct {
	sent []domain.Order
	err  error
}

func (f *fakeDispatcher) CreateAndSendInvoice(_ context.Context, order domain.Order, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, order)
	return nil
}
