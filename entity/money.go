package entity

import (
	"strings"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest price or balance a DECIMAL(12,2) column holds.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// MaxLicenseLen matches license_keys.license.
const MaxLicenseLen = 255

// CheckAmount rejects amounts with more than two fractional digits or
// beyond MaxAmount in either direction.
func CheckAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Round(2)) {
		return ValidationError(field + " must have at most two decimal places")
	}
	if d.Abs().GreaterThan(MaxAmount) {
		return ValidationError(field + " must not exceed " + FormatMoney(MaxAmount))
	}
	return nil
}

// FormatMoney renders an amount with exactly two fractional digits.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// ParseMoney accepts both "10.50" and "10,50".
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	d, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, ValidationError("invalid amount: " + s)
	}
	return d, nil
}
