package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koteev-m/bot-for-order-sub001/internal/domain"
)

const (
	codeNotFound            = "not_found"
	codeInvalidRequestBody  = "invalid_request_body"
	codeInvalidQuantity     = "invalid_quantity"
	codeInvalidID           = "invalid_id"
	codeInvalidOffer        = "invalid_offer"
	codeOfferNotDecidable   = "offer_not_decidable"
	codeOfferNotAccepted    = "offer_not_accepted"
	codeVariantUnavailable  = "variant_not_available"
	codeReserveLost         = "reservation_lost"
	codeLockBusy            = "busy_retry"
	codeInvalidStatusChange = "invalid_status_change"
	codeForbidden           = "forbidden"
	codeInternalError       = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the core error taxonomy onto HTTP responses.
// Reservation conflicts are semantic, not retryable; lock timeouts are.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrReservationConflict):
		writeError(w, http.StatusConflict, codeVariantUnavailable, "variant not available")
	case errors.Is(err, domain.ErrReserveExpired):
		writeError(w, http.StatusConflict, codeReserveLost, "reservation lost, restart checkout")
	case errors.Is(err, domain.ErrLockUnavailable):
		writeError(w, http.StatusServiceUnavailable, codeLockBusy, "busy, retry")
	case errors.Is(err, domain.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, codeInvalidQuantity, "invalid quantity")
	case errors.Is(err, domain.ErrInvalidOfferInput):
		writeError(w, http.StatusBadRequest, codeInvalidOffer, "invalid offer amount")
	case errors.Is(err, domain.ErrOfferNotDecidable):
		writeError(w, http.StatusConflict, codeOfferNotDecidable, "offer not in a decidable state")
	case errors.Is(err, domain.ErrOfferNotAccepted):
		writeError(w, http.StatusConflict, codeOfferNotAccepted, "offer not accepted")
	case errors.Is(err, domain.ErrInvalidStatusChange):
		writeError(w, http.StatusConflict, codeInvalidStatusChange, "invalid status change")
	case errors.Is(err, domain.ErrInvalidID):
		writeError(w, http.StatusBadRequest, codeInvalidID, "invalid id")
	case errors.Is(err, domain.ErrItemNotFound),
		errors.Is(err, domain.ErrOfferNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
