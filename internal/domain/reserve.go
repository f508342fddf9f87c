package domain

import "fmt"

// ReserveKind tells whether a stock reserve belongs to an offer under
// negotiation or to an order going through checkout.
type ReserveKind string

const (
	ReserveKindOffer ReserveKind = "offer"
	ReserveKindOrder ReserveKind = "order"
)

// ReserveKey addresses a single stock reserve in the shared store.
type ReserveKey struct {
	Kind ReserveKind
	ID   string
}

func OfferReserveKey(offerID string) ReserveKey {
	return ReserveKey{Kind: ReserveKindOffer, ID: offerID}
}

func OrderReserveKey(orderID string) ReserveKey {
	return ReserveKey{Kind: ReserveKindOrder, ID: orderID}
}

// StorageKey maps the key to its store namespace. Kinds are namespaced so
// distinct (kind, id) pairs can never collide.
func (k ReserveKey) StorageKey() string {
	return fmt.Sprintf("reserve:%s:%s", k.Kind, k.ID)
}

// StockReservePayload is the value stored under a ReserveKey. It is owned
// exclusively by the hold service and only ever replaced through an atomic
// store operation, never mutated in place.
type StockReservePayload struct {
	ItemID    string      `json:"item_id"`
	VariantID string      `json:"variant_id,omitempty"`
	Qty       int         `json:"qty"`
	UserID    string      `json:"user_id,omitempty"`
	CreatedAt int64       `json:"created_at"`
	TTLSec    int64       `json:"ttl_sec"`
	From      ReserveKind `json:"from"`
	// OfferID back-references the originating offer when an order reserve
	// was converted from an offer reserve.
	OfferID string `json:"offer_id,omitempty"`
}

func (p StockReservePayload) Validate() error {
	if p.Qty <= 0 {
		return ErrInvalidQuantity
	}
	if p.TTLSec <= 0 {
		return fmt.Errorf("ttl_sec must be positive")
	}
	return nil
}

// OrderHoldRequest describes one order line to hold. Hold granularity is
// variant-level when the listing has variants, listing-level otherwise.
type OrderHoldRequest struct {
	ListingID string
	VariantID string
	Qty       int
}

// ResourceKey derives the store key the hold competes on.
func (h OrderHoldRequest) ResourceKey() string {
	if h.VariantID != "" {
		return "order_hold:variant:" + h.VariantID
	}
	return "order_hold:listing:" + h.ListingID
}
