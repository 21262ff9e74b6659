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
	productsCollection = "products"

	defaultProductLimit = 20
	maxProductLimit     = 100
)

// ProductRepository persists catalog products.
type ProductRepository struct {
	provider *pfirestore.Provider
}

func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{provider: provider}, nil
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return errors.New("product insert: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	if _, err := client.Collection(productsCollection).Doc(product.ID).Create(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.insert", err)
	}
	return nil
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if product.ID == "" {
		return errors.New("product update: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	if _, err := client.Collection(productsCollection).Doc(product.ID).Set(ctx, newProductDocument(product)); err != nil {
		return pfirestore.WrapError("products.update", err)
	}
	return nil
}

func (r *ProductRepository) Delete(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return errors.New("product delete: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	if _, err := client.Collection(productsCollection).Doc(productID).Delete(ctx, firestore.Exists); err != nil {
		return pfirestore.WrapError("products.delete", err)
	}
	return nil
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, errors.New("product find: id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	snap, err := client.Collection(productsCollection).Doc(productID).Get(ctx)
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.find", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[domain.Product], error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	query := client.Collection(productsCollection).Query
	if id := strings.TrimSpace(filter.PharmacyID); id != "" {
		query = query.Where("pharmacyId", "==", id)
	}
	if category := strings.TrimSpace(filter.Category); category != "" {
		query = query.Where("category", "==", category)
	}
	if filter.Active != nil {
		query = query.Where("active", "==", *filter.Active)
	}

	total, err := countDocuments(ctx, query)
	if err != nil {
		return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
	}

	page := filter.Page.Normalize(defaultProductLimit, maxProductLimit)
	query = query.OrderBy(productSortField(filter.Sort), sortDirection(filter.Sort.Order)).
		Offset(page.Offset).
		Limit(page.Limit)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var products []domain.Product
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Product]{}, pfirestore.WrapError("products.list", err)
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Product]{}, fmt.Errorf("decode product %s: %w", snap.Ref.ID, err)
		}
		products = append(products, doc.toDomain(snap.Ref.ID))
	}

	return domain.Page[domain.Product]{Items: products, Total: total, Limit: page.Limit, Offset: page.Offset}, nil
}

func (r *ProductRepository) CountByCategory(ctx context.Context) (map[string]int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError("products.countByCategory", err)
	}

	iter := client.Collection(productsCollection).Select("category").Documents(ctx)
	defer iter.Stop()

	counts := make(map[string]int64)
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("products.countByCategory", err)
		}
		category := ""
		if raw, err := snap.DataAt("category"); err == nil {
			if value, ok := raw.(string); ok {
				category = value
			}
		}
		counts[category]++
	}
	return counts, nil
}

func (r *ProductRepository) SetActiveByPharmacy(ctx context.Context, pharmacyID string, active bool) (int, error) {
	pharmacyID = strings.TrimSpace(pharmacyID)
	if pharmacyID == "" {
		return 0, errors.New("product set active: pharmacy id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("products.setActive", err)
	}

	iter := client.Collection(productsCollection).
		Where("pharmacyId", "==", pharmacyID).
		Where("active", "==", !active).
		Documents(ctx)
	defer iter.Stop()

	writer := client.BulkWriter(ctx)
	updated := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			writer.End()
			return 0, pfirestore.WrapError("products.setActive", err)
		}
		if _, err := writer.Update(snap.Ref, []firestore.Update{
			{Path: "active", Value: active},
			{Path: "updatedAt", Value: time.Now().UTC()},
		}); err != nil {
			writer.End()
			return 0, pfirestore.WrapError("products.setActive", err)
		}
		updated++
	}
	writer.End()
	return updated, nil
}

func productSortField(sort domain.Sort) string {
	switch sort.Field {
	case "name", "price", "stock", "updatedAt":
		return sort.Field
	default:
		return "createdAt"
	}
}

// Document mapping ----------------------------------------------------------

type productDocument struct {
	PharmacyID           string    `firestore:"pharmacyId"`
	Name                 string    `firestore:"name"`
	Category             string    `firestore:"category,omitempty"`
	Description          string    `firestore:"description,omitempty"`
	Price                string    `firestore:"price"`
	Stock                int       `firestore:"stock"`
	Active               bool      `firestore:"active"`
	RequiresPrescription bool      `firestore:"requiresPrescription"`
	CreatedAt            time.Time `firestore:"createdAt"`
	UpdatedAt            time.Time `firestore:"updatedAt"`
}

func newProductDocument(product domain.Product) productDocument {
	return productDocument{
		PharmacyID:           product.PharmacyID,
		Name:                 product.Name,
		Category:             product.Category,
		Description:          product.Description,
		Price:                moneyString(product.Price),
		Stock:                product.Stock,
		Active:               product.Active,
		RequiresPrescription: product.RequiresPrescription,
		CreatedAt:            product.CreatedAt.UTC(),
		UpdatedAt:            product.UpdatedAt.UTC(),
	}
}

func (d productDocument) toDomain(id string) domain.Product {
	return domain.Product{
		ID:                   id,
		PharmacyID:           d.PharmacyID,
		Name:                 d.Name,
		Category:             d.Category,
		Description:          d.Description,
		Price:                moneyValue(d.Price),
		Stock:                d.Stock,
		Active:               d.Active,
		RequiresPrescription: d.RequiresPrescription,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
}
