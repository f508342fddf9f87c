package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/koteev-m/bot-for-order-sub001/internal/app"
	"github.com/koteev-m/bot-for-order-sub001/internal/bargain"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

// OfferCreator is the minimal interface needed to place and decide offers.
type OfferCreator interface {
	CreateOffer(ctx context.Context, in app.CreateOfferInput) (domain.Offer, bargain.Decision, error)
}

// HandleCreateOffer returns the handler for placing a bargain offer. The
// decision is computed synchronously and returned with the offer.
func HandleCreateOffer(svc OfferCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOfferRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if err := req.validate(); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidOffer, err.Error())
			return
		}

		offer, decision, err := svc.CreateOffer(r.Context(), app.CreateOfferInput{
			ItemID:      req.ItemID,
			VariantID:   req.VariantID,
			UserID:      req.UserID,
			AmountMinor: req.AmountMinor,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		resp := offerResponse{
			ID:           offer.ID,
			Status:       string(offer.Status),
			Decision:     string(decision.Kind),
			CountersUsed: offer.CountersUsed,
			ExpiresAt:    offer.ExpiresAt,
		}
		if decision.Kind == bargain.DecisionCounter {
			resp.CounterAmountMinor = &decision.AmountMinor
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

type createOfferRequest struct {
	ItemID      string `json:"item_id"`
	VariantID   string `json:"variant_id,omitempty"`
	UserID      string `json:"user_id"`
	AmountMinor int64  `json:"amount_minor"`
}

func (r createOfferRequest) validate() error {
	if r.ItemID == "" || r.UserID == "" {
		return errFieldRequired("item_id and user_id")
	}
	if r.AmountMinor <= 0 {
		return domain.ErrInvalidOfferInput
	}
	return nil
}

type offerResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	Decision           string     `json:"decision"`
	CounterAmountMinor *int64     `json:"counter_amount_minor,omitempty"`
	CountersUsed       int        `json:"counters_used"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

type fieldError string

func (e fieldError) Error() string { return string(e) + " required" }

func errFieldRequired(name string) error { return fieldError(name) }
