package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/pharmakart/api/internal/domain"
	pfirestore "github.com/pharmakart/api/internal/platform/firestore"
	"github.com/pharmakart/api/internal/repositories"
)

const (
	pharmaciesCollection = "pharmacies"

	defaultPharmacyLimit = 20
	maxPharmacyLimit     = 100
)

// PharmacyRepository persists pharmacies and their denormalised stats.
type PharmacyRepository struct {
	provider *pfirestore.Provider
}

func NewPharmacyRepository(provider *pfirestore.Provider) (*PharmacyRepository, error) {
	if provider == nil {
		return nil, errors.New("pharmacy repository requires firestore provider")
	}
	return &PharmacyRepository{provider: provider}, nil
}

var _ repositories.PharmacyRepository = (*PharmacyRepository)(nil)

func (r *PharmacyRepository) Insert(ctx context.Context, pharmacy domain.Pharmacy) error {
	if pharmacy.ID == "" {
		return errors.New("pharmacy insert: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("pharmacies.insert", err)
	}
	if _, err := client.Collection(pharmaciesCollection).Doc(pharmacy.ID).Create(ctx, newPharmacyDocument(pharmacy)); err != nil {
		return pfirestore.WrapError("pharmacies.insert", err)
	}
	return nil
}

func (r *PharmacyRepository) Update(ctx context.Context, pharmacy domain.Pharmacy) error {
	if pharmacy.ID == "" {
		return errors.New("pharmacy update: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("pharmacies.update", err)
	}
	if _, err := client.Collection(pharmaciesCollection).Doc(pharmacy.ID).Set(ctx, newPharmacyDocument(pharmacy)); err != nil {
		return pfirestore.WrapError("pharmacies.update", err)
	}
	return nil
}

func (r *PharmacyRepository) FindByID(ctx context.Context, pharmacyID string) (domain.Pharmacy, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return domain.Pharmacy{}, errors.New("pharmacy find: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Pharmacy{}, pfirestore.WrapError("pharmacies.find", err)
	}
	snap, err := client.Collection(pharmaciesCollection).Doc(pharmacyID).Get(ctx)
	if err != nil {
		return domain.Pharmacy{}, pfirestore.WrapError("pharmacies.find", err)
	}
	var doc pharmacyDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Pharmacy{}, fmt.Errorf("decode pharmacy %s: %w", pharmacyID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *PharmacyRepository) List(ctx context.Context, filter repositories.PharmacyListFilter) (domain.Page[domain.Pharmacy], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Pharmacy]{}, pfirestore.WrapError("pharmacies.list", err)
	}

	query := client.Collection(pharmaciesCollection).Query
	if len(filter.Statuses) > 0 {
		values := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			values[i] = string(s)
		}
		query = query.Where("status", "in", values)
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Pharmacy]{}, pfirestore.WrapError("pharmacies.list", err)
	}

	page := filter.Page.Normalize(defaultPharmacyLimit, maxPharmacyLimit)
	query = query.OrderBy(pharmacySortField(filter.Sort), sortDirection(filter.Sort.Order)).
		Offset(page.Offset).
		Limit(page.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var pharmacies []domain.Pharmacy
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Pharmacy]{}, pfirestore.WrapError("pharmacies.list", err)
		}
		var doc pharmacyDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Pharmacy]{}, fmt.Errorf("decode pharmacy %s: %w", snap.Ref.ID, err)
		}
		pharmacies = append(pharmacies, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.Pharmacy]{Items: pharmacies, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (r *PharmacyRepository) ApplyStatsDelta(ctx context.Context, pharmacyID string, delta repositories.StatsDelta) error {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return errors.New("pharmacy stats: pharmacy id is required")
	}
	if delta.IsZero() {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("pharmacies.stats", err)
	}

	// Revenue is stored as a decimal string, so the whole delta goes through
	// a transaction instead of field transforms.
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := client.Collection(pharmaciesCollection).Doc(pharmacyID)
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc pharmacyDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode pharmacy %s: %w", pharmacyID, err)
		}
		doc.Stats.TotalOrders = clampCounter(doc.Stats.TotalOrders + delta.TotalOrders)
		doc.Stats.PendingOrders = clampCounter(doc.Stats.PendingOrders + delta.PendingOrders)
		doc.Stats.CompletedOrders = clampCounter(doc.Stats.CompletedOrders + delta.CompletedOrders)
		doc.Stats.CancelledOrders = clampCounter(doc.Stats.CancelledOrders + delta.CancelledOrders)
		doc.Stats.TotalProducts = clampCounter(doc.Stats.TotalProducts + delta.TotalProducts)
		doc.Stats.ActiveProducts = clampCounter(doc.Stats.ActiveProducts + delta.ActiveProducts)
		doc.Stats.TotalRevenue = moneyString(moneyValue(doc.Stats.TotalRevenue).Add(delta.TotalRevenue))
		doc.UpdatedAt = time.Now().UTC()
		return tx.Set(ref, doc)
	})
	if err != nil {
		return pfirestore.WrapError("pharmacies.stats", err)
	}
	return nil
}

func (r *PharmacyRepository) RemoveDeviceTokens(ctx context.Context, pharmacyID string, tokens []string) error {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return errors.New("pharmacy tokens: pharmacy id is required")
	}
	if len(tokens) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("pharmacies.tokens", err)
	}
	values := make([]any, len(tokens))
	for i, token := range tokens {
		values[i] = token
	}
	_, err = client.Collection(pharmaciesCollection).Doc(pharmacyID).Update(ctx, []firestore.Update{
		{Path: "deviceTokens", Value: firestore.ArrayRemove(values...)},
	})
	if err != nil {
		return pfirestore.WrapError("pharmacies.tokens", err)
	}
	return nil
}

func pharmacySortField(sort domain.Sort) string {
	switch sort.Field {
	case "name", "status", "updatedAt":
		return sort.Field
	default:
		return "createdAt"
	}
}

func clampCounter(value int64) int64 {
	if value < 0 {
		return 0
	}
	return value
}

// Document mapping ----------------------------------------------------------

type pharmacyDocument struct {
	Name         string                `firestore:"name"`
	Email        string                `firestore:"email"`
	Phone        string                `firestore:"phone,omitempty"`
	Status       string                `firestore:"status"`
	Address      addressDocument       `firestore:"address"`
	GeoLocation  *geoPointDocument     `firestore:"location,omitempty"`
	Shipping     shippingDocument      `firestore:"shipping"`
	DeviceTokens []string              `firestore:"deviceTokens,omitempty"`
	Stats        pharmacyStatsDocument `firestore:"stats"`
	CreatedAt    time.Time             `firestore:"createdAt"`
	UpdatedAt    time.Time             `firestore:"updatedAt"`
}

type geoPointDocument struct {
	Latitude  float64 `firestore:"lat"`
	Longitude float64 `firestore:"lng"`
}

type shippingDocument struct {
	FlatRate             string `firestore:"flatRate"`
	OffersFreeShipping   bool   `firestore:"offersFreeShipping"`
	FreeShippingMinValue string `firestore:"freeShippingMinValue,omitempty"`
}

type pharmacyStatsDocument struct {
	TotalOrders     int64  `firestore:"totalOrders"`
	TotalRevenue    string `firestore:"totalRevenue"`
	PendingOrders   int64  `firestore:"pendingOrders"`
	CompletedOrders int64  `firestore:"completedOrders"`
	CancelledOrders int64  `firestore:"cancelledOrders"`
	TotalProducts   int64  `firestore:"totalProducts"`
	ActiveProducts  int64  `firestore:"activeProducts"`
}

func newPharmacyDocument(pharmacy domain.Pharmacy) pharmacyDocument {
	doc := pharmacyDocument{
		Name:   pharmacy.Name,
		Email:  pharmacy.Email,
		Phone:  pharmacy.Phone,
		Status: string(pharmacy.Status),
		Address: addressDocument{
			Line1:      pharmacy.Address.Line1,
			Line2:      pharmacy.Address.Line2,
			City:       pharmacy.Address.City,
			State:      pharmacy.Address.State,
			PostalCode: pharmacy.Address.PostalCode,
			Country:    pharmacy.Address.Country,
		},
		Shipping: shippingDocument{
			FlatRate:             moneyString(pharmacy.Shipping.FlatRate),
			OffersFreeShipping:   pharmacy.Shipping.OffersFreeShipping,
			FreeShippingMinValue: moneyString(pharmacy.Shipping.FreeShippingMinValue),
		},
		DeviceTokens: pharmacy.DeviceTokens,
		Stats: pharmacyStatsDocument{
			TotalOrders:     pharmacy.Stats.TotalOrders,
			TotalRevenue:    moneyString(pharmacy.Stats.TotalRevenue),
			PendingOrders:   pharmacy.Stats.PendingOrders,
			CompletedOrders: pharmacy.Stats.CompletedOrders,
			CancelledOrders: pharmacy.Stats.CancelledOrders,
			TotalProducts:   pharmacy.Stats.TotalProducts,
			ActiveProducts:  pharmacy.Stats.ActiveProducts,
		},
		CreatedAt: pharmacy.CreatedAt.UTC(),
		UpdatedAt: pharmacy.UpdatedAt.UTC(),
	}
	if pharmacy.Location != nil {
		doc.GeoLocation = &geoPointDocument{
			Latitude:  pharmacy.Location.Latitude,
			Longitude: pharmacy.Location.Longitude,
		}
	}
	return doc
}

func (d pharmacyDocument) toDomain(id string) domain.Pharmacy {
	pharmacy := domain.Pharmacy{
		ID:     id,
		Name:   d.Name,
		Email:  d.Email,
		Phone:  d.Phone,
		Status: domain.PharmacyStatus(d.Status),
		Address: domain.Address{
			Line1:      d.Address.Line1,
			Line2:      d.Address.Line2,
			City:       d.Address.City,
			State:      d.Address.State,
			PostalCode: d.Address.PostalCode,
			Country:    d.Address.Country,
		},
		Shipping: domain.ShippingConfig{
			FlatRate:             moneyValue(d.Shipping.FlatRate),
			OffersFreeShipping:   d.Shipping.OffersFreeShipping,
			FreeShippingMinValue: moneyValue(d.Shipping.FreeShippingMinValue),
		},
		DeviceTokens: d.DeviceTokens,
		Stats: domain.PharmacyStats{
			TotalOrders:     d.Stats.TotalOrders,
			TotalRevenue:    moneyValue(d.Stats.TotalRevenue),
			PendingOrders:   d.Stats.PendingOrders,
			CompletedOrders: d.Stats.CompletedOrders,
			CancelledOrders: d.Stats.CancelledOrders,
			TotalProducts:   d.Stats.TotalProducts,
			ActiveProducts:  d.Stats.ActiveProducts,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.GeoLocation != nil {
		pharmacy.Location = &domain.GeoPoint{
			Latitude:  d.GeoLocation.Latitude,
			Longitude: d.GeoLocation.Longitude,
		}
	}
	return pharmacy
}
