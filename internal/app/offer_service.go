package app

import (
	"context"
	"fmt"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/bargain"
	"github.com/koteev-m/bot-for-order-sub001/internal/clock"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type OfferRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetItem(ctx context.Context, itemID string) (domain.Item, error)
	CreateOffer(ctx context.Context, offer domain.Offer) error
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	// UpdateOfferDecision applies a decision outcome guarded by the current
	// status; reports false when the offer moved on concurrently.
	UpdateOfferDecision(ctx context.Context, offerID string, from, to domain.OfferStatus, countersUsed int, lastCounter *int64, expiresAt *time.Time) (bool, error)
}

const (
	offerLockWait  = 3 * time.Second
	offerLockLease = 10 * time.Second
)

// OfferService runs the bargain flow: create an offer, evaluate it against
// the item's rules under a per-offer lock, and record the outcome with an
// atomic status transition. Auto-accepted and countered offers get an
// offer-level stock reserve so the listing cannot be sold away while the
// buyer checks out or decides on the counter.
type OfferService struct {
	repo     OfferRepository
	reserves *HoldService
	locks    *LockManager
	clock    clock.Clock
	offerTTL time.Duration
}

const defaultOfferReserveTTL = 15 * time.Minute

func NewOfferService(repo OfferRepository, reserves *HoldService, locks *LockManager, clk clock.Clock, opts ...OfferServiceOption) *OfferService {
	svc := &OfferService{
		repo:     repo,
		reserves: reserves,
		locks:    locks,
		clock:    clk,
		offerTTL: defaultOfferReserveTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

type OfferServiceOption func(*OfferService)

// WithOfferReserveTTL overrides the TTL of reserves created for accepted
// offers.
func WithOfferReserveTTL(d time.Duration) OfferServiceOption {
	return func(s *OfferService) {
		if d > 0 {
			s.offerTTL = d
		}
	}
}

type CreateOfferInput struct {
	ItemID      string
	VariantID   string
	UserID      string
	AmountMinor int64
}

// CreateOffer persists a new offer and immediately evaluates it.
func (s *OfferService) CreateOffer(ctx context.Context, in CreateOfferInput) (domain.Offer, bargain.Decision, error) {
	if in.AmountMinor <= 0 {
		return domain.Offer{}, bargain.Decision{}, domain.ErrInvalidOfferInput
	}

	item, err := s.repo.GetItem(ctx, in.ItemID)
	if err != nil {
		return domain.Offer{}, bargain.Decision{}, err
	}
	if !item.BargainEnabled {
		return domain.Offer{}, bargain.Decision{}, domain.ErrOfferNotDecidable
	}

	offer := domain.Offer{
		ID:               newID(),
		ItemID:           in.ItemID,
		VariantID:        in.VariantID,
		UserID:           in.UserID,
		OfferAmountMinor: in.AmountMinor,
		Status:           domain.OfferStatusNew,
		CreatedAt:        s.clock.Now(),
	}
	if err := s.repo.CreateOffer(ctx, offer); err != nil {
		return domain.Offer{}, bargain.Decision{}, err
	}

	decision, err := s.Evaluate(ctx, offer.ID)
	if err != nil {
		return domain.Offer{}, bargain.Decision{}, err
	}
	updated, err := s.repo.GetOffer(ctx, offer.ID)
	if err != nil {
		return domain.Offer{}, bargain.Decision{}, err
	}
	return updated, decision, nil
}

// Evaluate decides a pending offer under the per-offer lock so concurrent
// webhook deliveries for the same offer cannot double-apply a decision.
func (s *OfferService) Evaluate(ctx context.Context, offerID string) (bargain.Decision, error) {
	var decision bargain.Decision

	err := s.locks.WithLock(ctx, "offer:"+offerID, offerLockWait, offerLockLease, func(ctx context.Context) error {
		offer, err := s.repo.GetOffer(ctx, offerID)
		if err != nil {
			return err
		}
		if offer.Status != domain.OfferStatusNew && offer.Status != domain.OfferStatusCountered {
			return domain.ErrOfferNotDecidable
		}

		item, err := s.repo.GetItem(ctx, offer.ItemID)
		if err != nil {
			return err
		}

		decision, err = bargain.Evaluate(item.PriceMinor, offer.OfferAmountMinor, item.Bargain, offer.CountersUsed)
		if err != nil {
			return err
		}

		return s.applyDecision(ctx, offer, item, decision)
	})
	if err != nil {
		return bargain.Decision{}, err
	}
	return decision, nil
}

func (s *OfferService) applyDecision(ctx context.Context, offer domain.Offer, item domain.Item, decision bargain.Decision) error {
	now := s.clock.Now()

	switch decision.Kind {
	case bargain.DecisionAutoAccept:
		ok, err := s.repo.UpdateOfferDecision(ctx, offer.ID, offer.Status, domain.OfferStatusAutoAccept, offer.CountersUsed, nil, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOfferNotDecidable
		}
		return s.reserveStock(ctx, offer, s.offerTTL)

	case bargain.DecisionCounter:
		counterTTL := time.Duration(item.Bargain.TTLSec) * time.Second
		if counterTTL <= 0 {
			counterTTL = s.offerTTL
		}
		expires := now.Add(counterTTL)
		amount := decision.AmountMinor
		ok, err := s.repo.UpdateOfferDecision(ctx, offer.ID, offer.Status, domain.OfferStatusCountered, offer.CountersUsed+1, &amount, &expires)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOfferNotDecidable
		}
		// The counter holds the stock for its whole window; accepting the
		// counter at checkout converts this reserve to the order.
		return s.reserveStock(ctx, offer, counterTTL)

	case bargain.DecisionReject:
		ok, err := s.repo.UpdateOfferDecision(ctx, offer.ID, offer.Status, domain.OfferStatusDeclined, offer.CountersUsed, nil, nil)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrOfferNotDecidable
		}
		return nil
	}
	return fmt.Errorf("unknown decision kind %q", decision.Kind)
}

func (s *OfferService) reserveStock(ctx context.Context, offer domain.Offer, ttl time.Duration) error {
	_, err := s.reserves.CreateOfferReserve(ctx, offer.ID, domain.StockReservePayload{
		ItemID:    offer.ItemID,
		VariantID: offer.VariantID,
		Qty:       1,
		UserID:    offer.UserID,
	}, ttl)
	if err != nil {
		return fmt.Errorf("reserve stock for offer %s: %w", offer.ID, err)
	}
	return nil
}

// MarkAccepted records that the offer's reserve was converted into an order
// reserve. Only auto-accepted or countered offers can be accepted.
func (s *OfferService) MarkAccepted(ctx context.Context, offerID string) error {
	offer, err := s.repo.GetOffer(ctx, offerID)
	if err != nil {
		return err
	}
	switch offer.Status {
	case domain.OfferStatusAutoAccept, domain.OfferStatusCountered:
	default:
		return domain.ErrOfferNotAccepted
	}
	ok, err := s.repo.UpdateOfferDecision(ctx, offerID, offer.Status, domain.OfferStatusAccepted, offer.CountersUsed, offer.LastCounterAmount, offer.ExpiresAt)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrOfferNotAccepted
	}
	return nil
}
