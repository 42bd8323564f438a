package entity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, KindOk},
		{ErrAccountNotFound, KindNotFound},
		{fmt.Errorf("purchase: %w", ErrProductNotFound), KindNotFound},
		{ErrOutOfStock, KindOutOfStock},
		{ErrInsufficientBalance, KindInsufficientBalance},
		{fmt.Errorf("%w: deadlock", ErrConflict), KindConflict},
		{ErrPriceChanged, KindPriceChanged},
		{ValidationError("bad"), KindValidation},
		{ErrInvalidCredentials, KindUnauthorized},
		{errors.New("connection refused"), KindStorage},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ErrorKind(tt.err), "%v", tt.err)
	}
}

func TestValidationError(t *testing.T) {
	err := ValidationError("price must be positive")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "price must be positive")
}
