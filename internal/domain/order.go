package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending     OrderStatus = "pending"
	OrderStatusPaid        OrderStatus = "paid"
	OrderStatusFulfillment OrderStatus = "fulfillment"
	OrderStatusShipped     OrderStatus = "shipped"
	OrderStatusDelivered   OrderStatus = "delivered"
	OrderStatusCanceled    OrderStatus = "canceled"
	OrderStatusRefunded    OrderStatus = "refunded"
)

// forwardRank orders the linear part of the lifecycle. Canceled and refunded
// are terminal branches reachable from any non-terminal status.
var forwardRank = map[OrderStatus]int{
	OrderStatusPending:     0,
	OrderStatusPaid:        1,
	OrderStatusFulfillment: 2,
	OrderStatusShipped:     3,
	OrderStatusDelivered:   4,
}

// CanTransition reports whether an order may move from one status to another.
// The linear chain advances strictly forward; canceled/refunded close it out.
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return false
	}
	switch from {
	case OrderStatusCanceled, OrderStatusRefunded, OrderStatusDelivered:
		return false
	}
	switch to {
	case OrderStatusCanceled:
		return true
	case OrderStatusRefunded:
		// Refunds only make sense once money changed hands.
		return forwardRank[from] >= forwardRank[OrderStatusPaid]
	}
	fromRank, ok := forwardRank[from]
	if !ok {
		return false
	}
	toRank, ok := forwardRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCanceled, OrderStatusRefunded:
		return true
	}
	return false
}

type OrderLine struct {
	ListingID  string
	VariantID  string
	Qty        int
	PriceMinor int64
}

// Order is a checkout result awaiting payment and fulfillment.
type Order struct {
	ID               string
	UserID           string
	Lines            []OrderLine
	Currency         string
	AmountMinor      int64
	Status           OrderStatus
	OfferID          string
	ProviderChargeID string
	CreatedAt        time.Time
}

// HoldRequests derives the per-line hold descriptors for this order.
func (o Order) HoldRequests() []OrderHoldRequest {
	out := make([]OrderHoldRequest, 0, len(o.Lines))
	for _, l := range o.Lines {
		out = append(out, OrderHoldRequest{ListingID: l.ListingID, VariantID: l.VariantID, Qty: l.Qty})
	}
	return out
}

type OrderStatusChange struct {
	OrderID   string
	From      OrderStatus
	To        OrderStatus
	ChangedAt time.Time
}
