package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository reads coupons keyed by their lowercase code.
type CouponRepository struct {
	provider *pfirestore.Provider
}

func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider}, nil
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return domain.Coupon{}, errors.New("coupon find: code is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find", err)
	}
	snap, err := client.Collection(couponsCollection).Doc(code).Get(ctx)
	if err != nil {
		return domain.Coupon{}, pfirestore.WrapError("coupons.find", err)
	}
	var doc couponDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Coupon{}, fmt.Errorf("decode coupon %s: %w", code, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

type couponDocument struct {
	Type        string    `firestore:"type"`
	Value       string    `firestore:"value"`
	MinValue    string    `firestore:"minValue,omitempty"`
	MaxDiscount string    `firestore:"maxDiscount,omitempty"`
	Active      bool      `firestore:"active"`
	ExpiresAt   time.Time `firestore:"expiresAt,omitempty"`
}

func (d couponDocument) toDomain(code string) domain.Coupon {
	return domain.Coupon{
		Code:        code,
		Type:        domain.CouponType(d.Type),
		Value:       moneyValue(d.Value),
		MinValue:    moneyValue(d.MinValue),
		MaxDiscount: moneyValue(d.MaxDiscount),
		Active:      d.Active,
		ExpiresAt:   d.ExpiresAt,
	}
}
