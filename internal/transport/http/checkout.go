package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/koteev-m/bot-for-order-sub001/internal/app"
	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

type CheckoutRunner interface {
	Checkout(ctx context.Context, in app.CheckoutInput) (domain.Order, error)
}

type OrderReader interface {
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	MarkPaid(ctx context.Context, orderID, providerChargeID string) error
	Cancel(ctx context.Context, orderID string) error
}

// HandleCheckout starts a checkout for a cart (or a single accepted offer).
func HandleCheckout(svc CheckoutRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req checkoutRequest
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
			return
		}
		if req.UserID == "" || len(req.Lines) == 0 {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "user_id and lines required")
			return
		}

		lines := make([]domain.OrderLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			lines = append(lines, domain.OrderLine{
				ListingID:  l.ListingID,
				VariantID:  l.VariantID,
				Qty:        l.Qty,
				PriceMinor: l.PriceMinor,
			})
		}

		order, err := svc.Checkout(r.Context(), app.CheckoutInput{
			UserID:      req.UserID,
			Lines:       lines,
			Currency:    req.Currency,
			AmountMinor: req.AmountMinor,
			OfferID:     req.OfferID,
			Title:       req.Title,
			PhotoURL:    req.PhotoURL,
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, orderResponse{
			ID:          order.ID,
			Status:      string(order.Status),
			Currency:    order.Currency,
			AmountMinor: order.AmountMinor,
			CreatedAt:   order.CreatedAt,
		})
	}
}

// HandleGetOrder returns order state for the mini-app's polling.
func HandleGetOrder(svc OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := svc.GetOrder(r.Context(), chi.URLParam(r, "orderID"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, orderResponse{
			ID:          order.ID,
			Status:      string(order.Status),
			Currency:    order.Currency,
			AmountMinor: order.AmountMinor,
			CreatedAt:   order.CreatedAt,
		})
	}
}

// HandlePaymentCallback finalizes payment for an order. Called by the
// payments worker after the provider confirms the charge.
func HandlePaymentCallback(svc OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req paymentCallbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
			writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "order_id required")
			return
		}
		if err := svc.MarkPaid(r.Context(), req.OrderID, req.ChargeID); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// HandleCancelOrder aborts a pending order and frees its stock.
func HandleCancelOrder(svc OrderReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Cancel(r.Context(), chi.URLParam(r, "orderID")); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type checkoutRequest struct {
	UserID      string         `json:"user_id"`
	Lines       []checkoutLine `json:"lines"`
	Currency    string         `json:"currency"`
	AmountMinor int64          `json:"amount_minor"`
	OfferID     string         `json:"offer_id,omitempty"`
	Title       string         `json:"title"`
	PhotoURL    string         `json:"photo_url,omitempty"`
}

type checkoutLine struct {
	ListingID  string `json:"listing_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type paymentCallbackRequest struct {
	OrderID  string `json:"order_id"`
	ChargeID string `json:"charge_id"`
}

type orderResponse struct {
	ID          string    `json:"id"`
	Status      string    `json:"status"`
	Currency    string    `json:"currency"`
	AmountMinor int64     `json:"amount_minor"`
	CreatedAt   time.Time `json:"created_at"`
}
