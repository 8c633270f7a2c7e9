package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/textnorm"
	"github.com/Spok95/placesdir/internal/validation"
)

type Store interface {
	GetPackage(ctx context.Context, id string) (*Package, error)
	ListPackages(ctx context.Context, onlyActive bool) ([]Package, error)
	CreatePackage(ctx context.Context, p *Package) error
	CategoriesByIDs(ctx context.Context, ids []string) ([]Category, error)
}

// Catalog — чтение тарифов и разрешение цены.
type Catalog struct {
	store Store
}

func New(store Store) *Catalog { return &Catalog{store: store} }

// GetActive возвращает пакет, если он Active и не удалён, иначе NotFound.
func (c *Catalog) GetActive(ctx context.Context, id string) (*Package, error) {
	p, err := c.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperr.NotFound("package")
	}
	return p, nil
}

// Lookup — как GetActive, но отсутствие пакета не ошибка (nil, nil).
func (c *Catalog) Lookup(ctx context.Context, id string) (*Package, error) {
	p, err := c.store.GetPackage(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("catalog: get package: %w", err)
	}
	if p == nil || !p.Available() {
		return nil, nil
	}
	return p, nil
}

func (c *Catalog) List(ctx context.Context) ([]Package, error) {
	return c.store.ListPackages(ctx, true)
}

// Create заполняет производные поля (finalPrice, canonical) и сохраняет пакет.
func (c *Catalog) Create(ctx context.Context, p Package) (*Package, error) {
	if p.Status == "" {
		p.Status = StatusActive
	}
	if p.Type == "" {
		p.Type = TypePaidListing
	}
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if p.Price.IsNegative() {
		return nil, apperr.Validation("price", "must not be negative")
	}
	if p.SalePrice.Valid && p.SalePrice.Decimal.IsNegative() {
		return nil, apperr.Validation("salePrice", "must not be negative")
	}
	p.ID = uuid.NewString()
	p.Canonical = textnorm.Canonical(p.Name)
	p.FinalPrice = FinalPrice(p.Price, p.SalePrice)
	if err := c.store.CreatePackage(ctx, &p); err != nil {
		return nil, fmt.Errorf("catalog: create package: %w", err)
	}
	return &p, nil
}

func (c *Catalog) Categories(ctx context.Context, ids []string) ([]Category, error) {
	return c.store.CategoriesByIDs(ctx, ids)
}
