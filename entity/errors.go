package entity

import (
	"errors"
	"fmt"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrProductNotFound     = errors.New("product not found")
	ErrOutOfStock          = errors.New("out of stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConflict            = errors.New("transaction conflict")
	ErrPriceChanged        = errors.New("price changed")
	ErrValidation          = errors.New("validation error")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrHandleTaken         = errors.New("handle already taken")
	ErrStorageUnavailable  = errors.New("storage unavailable")
)

// ValidationError wraps ErrValidation with a human-readable reason.
func ValidationError(reason string) error {
	return fmt.Errorf("%w: %s", ErrValidation, reason)
}

// Error kinds are stable labels for logs, metrics and user messages.
const (
	KindOk                  = "ok"
	KindNotFound            = "not_found"
	KindOutOfStock          = "out_of_stock"
	KindInsufficientBalance = "insufficient_balance"
	KindConflict            = "conflict"
	KindPriceChanged        = "price_changed"
	KindValidation          = "validation"
	KindUnauthorized        = "unauthorized"
	KindStorage             = "storage"
)

func ErrorKind(err error) string {
	switch {
	case err == nil:
		return KindOk
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrProductNotFound):
		return KindNotFound
	case errors.Is(err, ErrOutOfStock):
		return KindOutOfStock
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrPriceChanged):
		return KindPriceChanged
	case errors.Is(err, ErrValidation), errors.Is(err, ErrHandleTaken):
		return KindValidation
	case errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	default:
		return KindStorage
	}
}
