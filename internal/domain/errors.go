package domain

import "errors"

var (
	ErrReservationConflict = errors.New("reservation held by another owner")
	ErrReserveExpired      = errors.New("reservation expired or missing")
	ErrLockUnavailable     = errors.New("lock unavailable")

	ErrInvalidOfferInput = errors.New("invalid offer input")
	ErrAmountOverflow    = errors.New("minor amount overflow")

	ErrItemNotFound        = errors.New("item not found")
	ErrOfferNotFound       = errors.New("offer not found")
	ErrOfferNotDecidable   = errors.New("offer not in a decidable state")
	ErrOfferNotAccepted    = errors.New("offer not accepted")
	ErrOrderNotFound       = errors.New("order not found")
	ErrInvalidStatusChange = errors.New("invalid order status change")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInvalidID           = errors.New("invalid id")
)
