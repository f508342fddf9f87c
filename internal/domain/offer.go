package domain

import "time"

type OfferStatus string

const (
	OfferStatusNew        OfferStatus = "new"
	OfferStatusAutoAccept OfferStatus = "auto_accept"
	OfferStatusCountered  OfferStatus = "countered"
	OfferStatusAccepted   OfferStatus = "accepted"
	OfferStatusDeclined   OfferStatus = "declined"
	OfferStatusExpired    OfferStatus = "expired"
)

// Offer is a buyer's bargain attempt on a listing. Status moves from new to
// auto_accept/countered/declined/expired through decision outcomes; accepted
// is reached only by converting the offer reserve into an order reserve.
type Offer struct {
	ID                string
	ItemID            string
	VariantID         string
	UserID            string
	OfferAmountMinor  int64
	Status            OfferStatus
	CountersUsed      int
	ExpiresAt         *time.Time
	LastCounterAmount *int64
	CreatedAt         time.Time
}

// BargainRules is per-item bargain configuration, immutable once attached.
type BargainRules struct {
	MinAcceptPct       int64
	MinVisiblePct      int64
	MaxCounters        int
	CooldownSec        int64
	TTLSec             int64
	AutoCounterStepPct int64
}

// Item is a sellable listing; VariantIDs is non-empty when stock is tracked
// per variant.
type Item struct {
	ID             string
	Title          string
	PriceMinor     int64
	Currency       string
	BargainEnabled bool
	Bargain        BargainRules
	PhotoURL       string
	CreatedAt      time.Time
}
