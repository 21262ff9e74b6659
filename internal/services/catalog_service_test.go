package services

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
)

type capturingProductRepo struct {
	stubProductRepo
	inserted []domain.Product
	updated  []domain.Product
	deleted  []string
}

func (r *capturingProductRepo) Insert(_ context.Context, product domain.Product) error {
	r.inserted = append(r.inserted, product)
	return nil
}

func (r *capturingProductRepo) Update(_ context.Context, product domain.Product) error {
	r.updated = append(r.updated, product)
	return nil
}

func (r *capturingProductRepo) Delete(_ context.Context, productID string) error {
	r.deleted = append(r.deleted, productID)
	return nil
}

type catalogFixture struct {
	service  CatalogService
	products *capturingProductRepo
	bus      *recordingBus
	now      time.Time
}

func newCatalogFixture(t *testing.T, seed ...domain.Product) *catalogFixture {
	t.Helper()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	products := &capturingProductRepo{}
	products.products = make(map[string]domain.Product)
	for _, product := range seed {
		products.products[product.ID] = product
	}

	bus := &recordingBus{}
	service, err := NewCatalogService(CatalogServiceDeps{
		Products: products,
		Pharmacies: &stubPharmacyRepo{pharmacies: map[string]domain.Pharmacy{
			"pha_1": {ID: "pha_1", Status: domain.PharmacyStatusApproved},
		}},
		Events:      bus,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "TEST" },
	})
	require.NoError(t, err)

	return &catalogFixture{service: service, products: products, bus: bus, now: now}
}

func fakeCreateProductCommand(faker *gofakeit.Faker) CreateProductCommand {
	return CreateProductCommand{
		PharmacyID:  "pha_1",
		Name:        faker.ProductName(),
		Category:    faker.ProductCategory(),
		Description: faker.Sentence(8),
		Price:       decimal.NewFromFloat(faker.Price(1, 200)).Round(2),
		Stock:       faker.Number(1, 50),
		Active:      true,
	}
}

func TestCatalogCreateProduct(t *testing.T) {
	fixture := newCatalogFixture(t)
	faker := gofakeit.New(1)

	cmd := fakeCreateProductCommand(faker)
	product, err := fixture.service.Create(context.Background(), cmd)
	require.NoError(t, err)

	assert.Equal(t, "prd_TEST", product.ID)
	assert.Equal(t, cmd.Name, product.Name)
	assert.True(t, product.Price.Equal(cmd.Price))
	assert.Equal(t, fixture.now, product.CreatedAt)

	require.Len(t, fixture.products.inserted, 1)
	require.Len(t, fixture.bus.published, 1)
	created, ok := fixture.bus.published[0].(events.ProductCreated)
	require.True(t, ok, "expected ProductCreated, got %T", fixture.bus.published[0])
	assert.Equal(t, product.ID, created.Product.ID)
}

func TestCatalogCreateValidation(t *testing.T) {
	fixture := newCatalogFixture(t)
	faker := gofakeit.New(2)

	tests := []struct {
		name   string
		mutate func(*CreateProductCommand)
	}{
		{"missing pharmacy", func(cmd *CreateProductCommand) { cmd.PharmacyID = "" }},
		{"missing name", func(cmd *CreateProductCommand) { cmd.Name = "  " }},
		{"negative price", func(cmd *CreateProductCommand) { cmd.Price = decimal.NewFromInt(-1) }},
		{"negative stock", func(cmd *CreateProductCommand) { cmd.Stock = -3 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cmd := fakeCreateProductCommand(faker)
			tc.mutate(&cmd)

			_, err := fixture.service.Create(context.Background(), cmd)
			assert.ErrorIs(t, err, ErrProductInvalidInput)
		})
	}
	assert.Empty(t, fixture.products.inserted)
}

func TestCatalogCreateUnknownPharmacy(t *testing.T) {
	fixture := newCatalogFixture(t)
	faker := gofakeit.New(3)

	cmd := fakeCreateProductCommand(faker)
	cmd.PharmacyID = "pha_ghost"

	_, err := fixture.service.Create(context.Background(), cmd)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCatalogUpdateAppliesPartialChanges(t *testing.T) {
	existing := domain.Product{
		ID:         "prd_1",
		PharmacyID: "pha_1",
		Name:       "Ibuprofen 400mg",
		Category:   "analgesics",
		Price:      decimal.RequireFromString("10.50"),
		Stock:      20,
		Active:     true,
	}
	fixture := newCatalogFixture(t, existing)

	newPrice := decimal.RequireFromString("8.90")
	newStock := 0
	product, err := fixture.service.Update(context.Background(), UpdateProductCommand{
		ProductID: "prd_1",
		Price:     &newPrice,
		Stock:     &newStock,
	})
	require.NoError(t, err)

	assert.True(t, product.Price.Equal(newPrice))
	assert.Equal(t, 0, product.Stock)
	assert.Equal(t, "Ibuprofen 400mg", product.Name, "untouched fields must survive")
	assert.Equal(t, fixture.now, product.UpdatedAt)

	require.Len(t, fixture.bus.published, 1)
	updated, ok := fixture.bus.published[0].(events.ProductUpdated)
	require.True(t, ok, "expected ProductUpdated, got %T", fixture.bus.published[0])
	assert.True(t, updated.Previous.Price.Equal(existing.Price), "event must carry the pre-update snapshot")
	assert.Equal(t, 20, updated.Previous.Stock)
}

func TestCatalogUpdateRejectsEmptyName(t *testing.T) {
	fixture := newCatalogFixture(t, domain.Product{ID: "prd_1", PharmacyID: "pha_1", Name: "Aspirin"})

	empty := "   "
	_, err := fixture.service.Update(context.Background(), UpdateProductCommand{
		ProductID: "prd_1",
		Name:      &empty,
	})
	assert.ErrorIs(t, err, ErrProductInvalidInput)
	assert.Empty(t, fixture.products.updated)
}

func TestCatalogDeletePublishesSnapshot(t *testing.T) {
	existing := domain.Product{ID: "prd_1", PharmacyID: "pha_1", Name: "Aspirin", Active: true}
	fixture := newCatalogFixture(t, existing)

	err := fixture.service.Delete(context.Background(), "prd_1", "adm_1")
	require.NoError(t, err)

	require.Equal(t, []string{"prd_1"}, fixture.products.deleted)
	require.Len(t, fixture.bus.published, 1)
	deleted, ok := fixture.bus.published[0].(events.ProductDeleted)
	require.True(t, ok, "expected ProductDeleted, got %T", fixture.bus.published[0])
	assert.Equal(t, "Aspirin", deleted.Product.Name)
}

func TestCatalogDeleteUnknownProduct(t *testing.T) {
	fixture := newCatalogFixture(t)

	err := fixture.service.Delete(context.Background(), "prd_ghost", "adm_1")
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Empty(t, fixture.products.deleted)
}
