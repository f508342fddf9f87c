package bargain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

func defaultRules() domain.BargainRules {
	return domain.BargainRules{
		MinAcceptPct:       20,
		MinVisiblePct:      40,
		MaxCounters:        2,
		CooldownSec:        60,
		TTLSec:             3600,
		AutoCounterStepPct: 5,
	}
}

func TestEvaluate(t *testing.T) {
	t.Parallel()

	rules := defaultRules()

	tests := []struct {
		name         string
		baseMinor    int64
		offerMinor   int64
		countersUsed int
		want         Decision
	}{
		{
			name:       "discount exactly at accept boundary auto-accepts",
			baseMinor:  10000,
			offerMinor: 8000, // 20% off
			want:       Decision{Kind: DecisionAutoAccept, AmountMinor: 8000},
		},
		{
			name:       "one cent above the boundary auto-accepts",
			baseMinor:  10000,
			offerMinor: 8001,
			want:       Decision{Kind: DecisionAutoAccept, AmountMinor: 8001},
		},
		{
			name:       "one cent below the boundary still accepts via floor",
			baseMinor:  10000,
			offerMinor: 7999, // 20.01% raw, floors to 20
			want:       Decision{Kind: DecisionAutoAccept, AmountMinor: 7999},
		},
		{
			name:       "full price auto-accepts",
			baseMinor:  10000,
			offerMinor: 10000,
			want:       Decision{Kind: DecisionAutoAccept, AmountMinor: 10000},
		},
		{
			name:       "above full price auto-accepts",
			baseMinor:  10000,
			offerMinor: 12000,
			want:       Decision{Kind: DecisionAutoAccept, AmountMinor: 12000},
		},
		{
			name:       "lowball in counter window gets a counter",
			baseMinor:  10000,
			offerMinor: 7000, // 30% off, visible
			// counter = base * (100 - (20+5)) / 100
			want: Decision{Kind: DecisionCounter, AmountMinor: 7500},
		},
		{
			name:       "discount exactly at visible boundary still counters",
			baseMinor:  10000,
			offerMinor: 6000, // 40% off
			want:       Decision{Kind: DecisionCounter, AmountMinor: 7500},
		},
		{
			name:       "just past the visible boundary floors back into the counter window",
			baseMinor:  10000,
			offerMinor: 5999, // 40.01% raw, floors to 40
			want:       Decision{Kind: DecisionCounter, AmountMinor: 7500},
		},
		{
			name:       "below visible boundary rejects",
			baseMinor:  10000,
			offerMinor: 5900, // 41% off
			want:       Decision{Kind: DecisionReject, Reason: ReasonTooLow},
		},
		{
			name:         "counters exhausted downgrades counter to reject",
			baseMinor:    10000,
			offerMinor:   7000,
			countersUsed: 2,
			want:         Decision{Kind: DecisionReject, Reason: ReasonTooLow},
		},
		{
			name:         "one counter left still counters",
			baseMinor:    10000,
			offerMinor:   7000,
			countersUsed: 1,
			want:         Decision{Kind: DecisionCounter, AmountMinor: 7500},
		},
		{
			name:       "tiny amounts use floor division",
			baseMinor:  3,
			offerMinor: 2, // 33% off after floor, counters
			want:       Decision{Kind: DecisionCounter, AmountMinor: 2},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Evaluate(tt.baseMinor, tt.offerMinor, rules, tt.countersUsed)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluate_InvalidInput(t *testing.T) {
	t.Parallel()

	rules := defaultRules()

	_, err := Evaluate(0, 100, rules, 0)
	require.ErrorIs(t, err, domain.ErrInvalidOfferInput)

	_, err = Evaluate(100, 0, rules, 0)
	require.ErrorIs(t, err, domain.ErrInvalidOfferInput)

	_, err = Evaluate(-5, -5, rules, 0)
	require.ErrorIs(t, err, domain.ErrInvalidOfferInput)
}

func TestEvaluate_Overflow(t *testing.T) {
	t.Parallel()

	rules := defaultRules()

	_, err := Evaluate(1000, math.MaxInt64/100+1, rules, 0)
	require.ErrorIs(t, err, domain.ErrAmountOverflow)

	_, err = Evaluate(math.MaxInt64/100+1, 1000, rules, 0)
	require.ErrorIs(t, err, domain.ErrAmountOverflow)
}

func TestEvaluate_Deterministic(t *testing.T) {
	t.Parallel()

	rules := defaultRules()
	first, err := Evaluate(10000, 7000, rules, 0)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		got, err := Evaluate(10000, 7000, rules, 0)
		require.NoError(t, err)
		require.Equal(t, first, got)
	}
}

func TestEvaluate_CounterClamping(t *testing.T) {
	t.Parallel()

	// Accept + step over 100 clamps the counter percentage at zero, and the
	// floor of one cent keeps the counter amount meaningful.
	rules := domain.BargainRules{
		MinAcceptPct:       90,
		MinVisiblePct:      99,
		MaxCounters:        1,
		AutoCounterStepPct: 20,
		TTLSec:             3600,
	}

	got, err := Evaluate(10000, 500, rules, 0) // 95% off, visible
	require.NoError(t, err)
	require.Equal(t, DecisionCounter, got.Kind)
	require.Equal(t, int64(1), got.AmountMinor)
}
