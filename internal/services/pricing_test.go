package services

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/pharmakart/api/internal/domain"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", value, err)
	}
	return d
}

func TestCalculatePriceSubtotal(t *testing.T) {
	quote, err := CalculatePrice(PricingInput{
		Lines: []PriceLine{
			{Quantity: 2, UnitPrice: dec(t, "10.50")},
			{Quantity: 3, UnitPrice: dec(t, "10.50")},
		},
		Now: time.Now(),
	})
	if err != nil {
		t.Fatalf("CalculatePrice: %v", err)
	}
	if !quote.Subtotal.Equal(dec(t, "52.50")) {
		t.Fatalf("subtotal = %s, want 52.50", quote.Subtotal)
	}
	if !quote.Total.Equal(quote.Subtotal.Sub(quote.Discount).Add(quote.Shipping)) {
		t.Fatalf("total identity violated: %s", quote.Total)
	}
}

func TestCalculatePriceCoupons(t *testing.T) {
	now := time.Now()
	lines := []PriceLine{{Quantity: 5, UnitPrice: dec(t, "10.50")}} // subtotal 52.50

	tests := []struct {
		name         string
		coupon       *domain.Coupon
		lines        []PriceLine
		wantDiscount string
		wantErr      error
	}{
		{
			name: "percentage",
			coupon: &domain.Coupon{
				Code:   "SAVE10",
				Type:   domain.CouponTypePercentage,
				Value:  dec(t, "10"),
				Active: true,
			},
			lines:        lines,
			wantDiscount: "5.25",
		},
		{
			name: "fixed",
			coupon: &domain.Coupon{
				Code:   "FLAT20",
				Type:   domain.CouponTypeFixed,
				Value:  dec(t, "20"),
				Active: true,
			},
			lines:        lines,
			wantDiscount: "20",
		},
		{
			name: "max discount clamp",
			coupon: &domain.Coupon{
				Code:        "HALF",
				Type:        domain.CouponTypePercentage,
				Value:       dec(t, "50"),
				MaxDiscount: dec(t, "10"),
				Active:      true,
			},
			lines:        []PriceLine{{Quantity: 10, UnitPrice: dec(t, "10.50")}},
			wantDiscount: "10",
		},
		{
			name: "fixed discount never exceeds subtotal",
			coupon: &domain.Coupon{
				Code:   "BIG",
				Type:   domain.CouponTypeFixed,
				Value:  dec(t, "100"),
				Active: true,
			},
			lines:        lines,
			wantDiscount: "52.50",
		},
		{
			name: "inactive coupon ignored",
			coupon: &domain.Coupon{
				Code:  "OLD",
				Type:  domain.CouponTypePercentage,
				Value: dec(t, "10"),
			},
			lines:        lines,
			wantDiscount: "0",
		},
		{
			name: "expired coupon ignored",
			coupon: &domain.Coupon{
				Code:      "EXPIRED",
				Type:      domain.CouponTypePercentage,
				Value:     dec(t, "10"),
				Active:    true,
				ExpiresAt: now.Add(-time.Hour),
			},
			lines:        lines,
			wantDiscount: "0",
		},
		{
			name: "below minimum value",
			coupon: &domain.Coupon{
				Code:     "MIN100",
				Type:     domain.CouponTypePercentage,
				Value:    dec(t, "10"),
				MinValue: dec(t, "100"),
				Active:   true,
			},
			lines:   lines,
			wantErr: ErrCouponMinValue,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := CalculatePrice(PricingInput{
				Lines:  tc.lines,
				Coupon: tc.coupon,
				Now:    now,
			})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("err = %v, want %v", err, tc.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("CalculatePrice: %v", err)
			}
			if !quote.Discount.Equal(dec(t, tc.wantDiscount)) {
				t.Fatalf("discount = %s, want %s", quote.Discount, tc.wantDiscount)
			}
		})
	}
}

func TestCalculatePriceShipping(t *testing.T) {
	tests := []struct {
		name         string
		lines        []PriceLine
		shipping     domain.ShippingConfig
		fallback     string
		wantShipping string
		wantTotal    string
	}{
		{
			name:  "flat rate below free threshold",
			lines: []PriceLine{{Quantity: 2, UnitPrice: dec(t, "10.50")}},
			shipping: domain.ShippingConfig{
				FlatRate:             dec(t, "5.00"),
				OffersFreeShipping:   true,
				FreeShippingMinValue: dec(t, "50"),
			},
			fallback:     "4.90",
			wantShipping: "5.00",
			wantTotal:    "26.00",
		},
		{
			name:  "free shipping at threshold",
			lines: []PriceLine{{Quantity: 10, UnitPrice: dec(t, "10.50")}},
			shipping: domain.ShippingConfig{
				FlatRate:             dec(t, "5.00"),
				OffersFreeShipping:   true,
				FreeShippingMinValue: dec(t, "50"),
			},
			fallback:     "4.90",
			wantShipping: "0",
			wantTotal:    "105.00",
		},
		{
			name:         "default applies without flat rate",
			lines:        []PriceLine{{Quantity: 1, UnitPrice: dec(t, "10")}},
			shipping:     domain.ShippingConfig{},
			fallback:     "4.90",
			wantShipping: "4.90",
			wantTotal:    "14.90",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := CalculatePrice(PricingInput{
				Lines:           tc.lines,
				Shipping:        tc.shipping,
				DefaultShipping: dec(t, tc.fallback),
				Now:             time.Now(),
			})
			if err != nil {
				t.Fatalf("CalculatePrice: %v", err)
			}
			if !quote.Shipping.Equal(dec(t, tc.wantShipping)) {
				t.Fatalf("shipping = %s, want %s", quote.Shipping, tc.wantShipping)
			}
			if !quote.Total.Equal(dec(t, tc.wantTotal)) {
				t.Fatalf("total = %s, want %s", quote.Total, tc.wantTotal)
			}
		})
	}
}
