package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CouponType distinguishes percentage from fixed-amount discounts.
type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFixed      CouponType = "fixed"
)

// Coupon is a code-keyed discount rule. Read-only from the order workflow.
type Coupon struct {
	Code        string
	Type        CouponType
	Value       decimal.Decimal
	MinValue    decimal.Decimal
	MaxDiscount decimal.Decimal
	Active      bool
	ExpiresAt   time.Time
}

// Usable reports whether the coupon is active and not expired at the given time.
func (c Coupon) Usable(now time.Time) bool {
	if !c.Active {
		return false
	}
	if !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt) {
		return false
	}
	return true
}
