package entity

import (
	"net/http"
	"strings"
	"time"

	"keyshop/lib/validate"

	"github.com/shopspring/decimal"
)

// Account is a buyer or administrator. TelegramId is nil while the account
// is not linked to any chat.
type Account struct {
	Id           int64           `json:"id" bson:"id"`
	TelegramId   *int64          `json:"telegram_id,omitempty" bson:"telegram_id"`
	Handle       string          `json:"handle" bson:"handle"`
	Credential   string          `json:"-" bson:"credential"`
	Balance      decimal.Decimal `json:"balance" bson:"-"`
	IsAdmin      bool            `json:"is_admin" bson:"is_admin"`
	RegisteredAt time.Time       `json:"registered_at" bson:"registered_at"`
}

func (a *Account) IsLinked() bool {
	return a.TelegramId != nil
}

// SameHandle compares handles the way login does: case-insensitive.
func (a *Account) SameHandle(handle string) bool {
	return strings.EqualFold(a.Handle, handle)
}

// NewAccount is the admin request body for account provisioning.
type NewAccount struct {
	Handle     string          `json:"handle" validate:"required,max=50"`
	Credential string          `json:"credential" validate:"required,max=72"`
	Balance    decimal.Decimal `json:"balance"`
	IsAdmin    bool            `json:"is_admin"`
}

func (n *NewAccount) Bind(_ *http.Request) error {
	if err := validate.Struct(n); err != nil {
		return ValidationError(err.Error())
	}
	if strings.ContainsAny(n.Handle, " \t\n") {
		return ValidationError("handle must be a single word")
	}
	if strings.ContainsAny(n.Credential, " \t\n") {
		return ValidationError("credential must be a single word")
	}
	if n.Balance.IsNegative() {
		return ValidationError("balance must not be negative")
	}
	return CheckAmount("balance", n.Balance)
}

// BalanceAdjustment is a signed delta applied to an account balance.
type BalanceAdjustment struct {
	Delta decimal.Decimal `json:"delta"`
}

func (b *BalanceAdjustment) Bind(_ *http.Request) error {
	if b.Delta.IsZero() {
		return ValidationError("delta must not be zero")
	}
	return CheckAmount("delta", b.Delta)
}
