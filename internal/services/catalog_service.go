package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/pharmakart/api/internal/domain"
	"github.com/pharmakart/api/internal/events"
	"github.com/pharmakart/api/internal/repositories"
)

const productIDPrefix = "prd_"

var (
	// ErrProductInvalidInput signals the caller provided invalid data.
	ErrProductInvalidInput = errors.New("product: invalid input")
	// ErrProductNotFound indicates the product could not be located.
	ErrProductNotFound = errors.New("product: not found")
)

// CatalogServiceDeps bundles collaborators required to construct the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Pharmacies  repositories.PharmacyRepository
	Events      events.Publisher
	Clock       func() time.Time
	IDGenerator func() string
}

type catalogService struct {
	products   repositories.ProductRepository
	pharmacies repositories.PharmacyRepository
	events     events.Publisher
	clock      func() time.Time
	newID      func() string
}

// NewCatalogService wires dependencies into a concrete CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Pharmacies == nil {
		return nil, errors.New("catalog service: pharmacy repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	return &catalogService{
		products:   deps.Products,
		pharmacies: deps.Pharmacies,
		events:     deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID: idGen,
	}, nil
}

func (s *catalogService) Create(ctx context.Context, cmd CreateProductCommand) (Product, error) {
	pharmacyID := strings.TrimSpace(cmd.PharmacyID)
	name := strings.TrimSpace(cmd.Name)
	if pharmacyID == "" {
		return Product{}, fmt.Errorf("%w: pharmacy id is required", ErrProductInvalidInput)
	}
	if name == "" {
		return Product{}, fmt.Errorf("%w: name is required", ErrProductInvalidInput)
	}
	if cmd.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
	}
	if cmd.Stock < 0 {
		return Product{}, fmt.Errorf("%w: stock must not be negative", ErrProductInvalidInput)
	}

	if _, err := s.pharmacies.FindByID(ctx, pharmacyID); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	now := s.clock()
	product := Product{
		ID:                   productIDPrefix + s.newID(),
		PharmacyID:           pharmacyID,
		Name:                 name,
		Category:             strings.TrimSpace(cmd.Category),
		Description:          strings.TrimSpace(cmd.Description),
		Price:                cmd.Price,
		Stock:                cmd.Stock,
		Active:               cmd.Active,
		RequiresPrescription: cmd.RequiresPrescription,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.ProductCreated{Product: product, At: now})
	return product, nil
}

func (s *catalogService) Update(ctx context.Context, cmd UpdateProductCommand) (Product, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	previous := product

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return Product{}, fmt.Errorf("%w: name must not be empty", ErrProductInvalidInput)
		}
		product.Name = name
	}
	if cmd.Category != nil {
		product.Category = strings.TrimSpace(*cmd.Category)
	}
	if cmd.Description != nil {
		product.Description = strings.TrimSpace(*cmd.Description)
	}
	if cmd.Price != nil {
		if cmd.Price.IsNegative() {
			return Product{}, fmt.Errorf("%w: price must not be negative", ErrProductInvalidInput)
		}
		product.Price = *cmd.Price
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return Product{}, fmt.Errorf("%w: stock must not be negative", ErrProductInvalidInput)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.Active != nil {
		product.Active = *cmd.Active
	}
	if cmd.RequiresPrescription != nil {
		product.RequiresPrescription = *cmd.RequiresPrescription
	}

	now := s.clock()
	product.UpdatedAt = now
	if err := s.products.Update(ctx, product); err != nil {
		return Product{}, s.mapRepositoryError(err)
	}

	s.publish(ctx, events.ProductUpdated{Product: product, Previous: previous, At: now})
	return product, nil
}

func (s *catalogService) Delete(ctx context.Context, productID, actorID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return s.mapRepositoryError(err)
	}
	if err := s.products.Delete(ctx, productID); err != nil {
		return s.mapRepositoryError(err)
	}

	s.publish(ctx, events.ProductDeleted{Product: product, At: s.clock()})
	return nil
}

func (s *catalogService) Get(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrProductInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, s.mapRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) List(ctx context.Context, filter repositories.ProductListFilter) (domain.Page[Product], error) {
	page, err := s.products.List(ctx, filter)
	if err != nil {
		return domain.Page[Product]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *catalogService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrProductNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("product: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *catalogService) publish(ctx context.Context, event events.Event) {
	if s.events == nil {
		return
	}
	s.events.Publish(ctx, event)
}
