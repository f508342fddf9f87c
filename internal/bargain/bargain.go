// Package bargain holds the offer decision engine: a pure function from
// price, offer amount and per-item rules to an accept/counter/reject outcome.
package bargain

import (
	"math"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type DecisionKind string

const (
	DecisionAutoAccept DecisionKind = "auto_accept"
	DecisionCounter    DecisionKind = "counter"
	DecisionReject     DecisionKind = "reject"
)

const ReasonTooLow = "too_low"

// Decision is the outcome of evaluating one offer. AmountMinor carries the
// accepted amount for auto_accept and the counter amount for counter.
type Decision struct {
	Kind        DecisionKind
	AmountMinor int64
	Reason      string
}

// Evaluate maps (base price, offer amount, rules, counters already used) to a
// decision. It is deterministic and side-effect free.
//
// All percentage math is integer with floor (truncating) division. This is
// deliberately different from the round-half-up used for currency conversion
// elsewhere; the two must not be conflated.
func Evaluate(baseMinor, offerMinor int64, rules domain.BargainRules, countersUsed int) (Decision, error) {
	if baseMinor <= 0 || offerMinor <= 0 {
		return Decision{}, domain.ErrInvalidOfferInput
	}
	if baseMinor > math.MaxInt64/100 || offerMinor > math.MaxInt64/100 {
		return Decision{}, domain.ErrAmountOverflow
	}

	// Floor the discount itself, not the remaining share: 20.01% off is a
	// 20% discount. Offers above the base price go negative and auto-accept.
	discountPct := (baseMinor - offerMinor) * 100 / baseMinor

	// Boundary discounts are inclusive: a discount exactly at MinAcceptPct
	// auto-accepts, exactly at MinVisiblePct is still counter-eligible.
	if discountPct <= rules.MinAcceptPct {
		return Decision{Kind: DecisionAutoAccept, AmountMinor: offerMinor}, nil
	}

	if discountPct <= rules.MinVisiblePct && countersUsed < rules.MaxCounters {
		counterPct := 100 - (rules.MinAcceptPct + rules.AutoCounterStepPct)
		if counterPct < 0 {
			counterPct = 0
		}
		if counterPct > 100 {
			counterPct = 100
		}
		amount := baseMinor * counterPct / 100
		if amount < 1 {
			amount = 1
		}
		return Decision{Kind: DecisionCounter, AmountMinor: amount}, nil
	}

	return Decision{Kind: DecisionReject, Reason: ReasonTooLow}, nil
}
