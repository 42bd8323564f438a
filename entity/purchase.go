package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purchase is the receipt of one successful claim.
type Purchase struct {
	Id          string          `json:"id"`
	AccountId   int64           `json:"account_id"`
	ProductId   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	KeyId       int64           `json:"key_id"`
	License     string          `json:"license"`
	Price       decimal.Decimal `json:"price"`
	Balance     decimal.Decimal `json:"balance"`
	CreatedAt   time.Time       `json:"created_at"`
}
