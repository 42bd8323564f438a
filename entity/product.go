package entity

import (
	"fmt"
	"net/http"
	"time"

	"keyshop/lib/validate"

	"github.com/shopspring/decimal"
)

type Product struct {
	Id          int64           `json:"id"`
	Name        string          `json:"name" validate:"required,max=100"`
	Category    string          `json:"category" validate:"required,max=50"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description" validate:"max=255"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (p *Product) Bind(_ *http.Request) error {
	if err := validate.Struct(p); err != nil {
		return ValidationError(err.Error())
	}
	if !p.Price.IsPositive() {
		return ValidationError("price must be positive")
	}
	return CheckAmount("price", p.Price)
}

// ProductStock is a product together with the number of its available keys.
type ProductStock struct {
	Product
	Available int `json:"available"`
	Used      int `json:"used"`
}

// Label is the exact text a buyer sees and sends back when choosing a product.
func (p *ProductStock) Label() string {
	return ProductLabel(p.Name, p.Price, p.Available)
}

func ProductLabel(name string, price decimal.Decimal, stock int) string {
	return fmt.Sprintf("%s - $%s (Stock: %d)", name, FormatMoney(price), stock)
}
