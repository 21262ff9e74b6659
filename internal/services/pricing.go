package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
)

// ErrCouponMinValue signals the order subtotal is below the coupon's minimum.
var ErrCouponMinValue = errors.New("pricing: order below coupon minimum value")

var oneHundred = decimal.NewFromInt(100)

// PriceLine is one priced item at checkout.
type PriceLine struct {
	Quantity  int
	UnitPrice decimal.Decimal
}

// PriceQuote is the calculator output. Total = Subtotal - Discount + Shipping.
type PriceQuote struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Shipping decimal.Decimal
	Total    decimal.Decimal
}

// PricingInput bundles everything the calculator needs. It never touches a
// repository: callers resolve the coupon and shipping config first.
type PricingInput struct {
	Lines []PriceLine
	// Coupon is the resolved coupon, nil when no code was supplied or the
	// code did not resolve. Unknown, inactive and expired coupons are
	// ignored silently per the checkout contract.
	Coupon *domain.Coupon
	// Shipping is the selling pharmacy's shipping config.
	Shipping domain.ShippingConfig
	// DefaultShipping applies when the pharmacy has no flat rate configured.
	DefaultShipping decimal.Decimal
	Now             time.Time
}

// CalculatePrice computes subtotal, discount, shipping and total for an order.
func CalculatePrice(input PricingInput) (PriceQuote, error) {
	subtotal := decimal.Zero
	for _, line := range input.Lines {
		subtotal = subtotal.Add(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	discount, err := couponDiscount(input.Coupon, subtotal, input.Now)
	if err != nil {
		return PriceQuote{}, err
	}

	shipping := shippingCost(input.Shipping, input.DefaultShipping, subtotal)

	return PriceQuote{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Total:    subtotal.Sub(discount).Add(shipping),
	}, nil
}

func couponDiscount(coupon *domain.Coupon, subtotal decimal.Decimal, now time.Time) (decimal.Decimal, error) {
	if coupon == nil || !coupon.Usable(now) {
		return decimal.Zero, nil
	}
	if coupon.MinValue.IsPositive() && subtotal.LessThan(coupon.MinValue) {
		return decimal.Zero, ErrCouponMinValue
	}

	var discount decimal.Decimal
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = subtotal.Mul(coupon.Value).Div(oneHundred)
	case domain.CouponTypeFixed:
		discount = coupon.Value
	default:
		return decimal.Zero, nil
	}

	if coupon.MaxDiscount.IsPositive() && discount.GreaterThan(coupon.MaxDiscount) {
		discount = coupon.MaxDiscount
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	return discount, nil
}

func shippingCost(cfg domain.ShippingConfig, fallback, subtotal decimal.Decimal) decimal.Decimal {
	if cfg.OffersFreeShipping && cfg.FreeShippingMinValue.IsPositive() &&
		subtotal.GreaterThanOrEqual(cfg.FreeShippingMinValue) {
		return decimal.Zero
	}
	if cfg.FlatRate.IsPositive() {
		return cfg.FlatRate
	}
	return fallback
}
