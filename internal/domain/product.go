package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product belongs to exactly one pharmacy. Stock is mutated by direct admin
// edits and implicitly by order creation (decrement) and cancellation (restore).
type Product struct {
	ID                   string
	PharmacyID           string
	Name                 string
	Category             string
	Description          string
	Price                decimal.Decimal
	Stock                int
	Active               bool
	RequiresPrescription bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// InStock reports whether the requested quantity can be fulfilled.
func (p Product) InStock(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}
