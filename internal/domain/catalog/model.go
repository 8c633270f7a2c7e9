package catalog

import (
	"time"

	"github.com/shopspring/decimal"
)

type PackageType string

const (
	TypePaidListing    PackageType = "paid_listing"    // размещение объявления
	TypePromoteListing PackageType = "promote_listing" // продвижение (featured)
)

type PackageStatus string

const (
	StatusActive   PackageStatus = "Active"
	StatusInactive PackageStatus = "Inactive"
)

// Package — тариф. В UserPackage хранится его копия на момент покупки.
type Package struct {
	ID                       string              `json:"id"`
	Name                     string              `json:"name" validate:"required,max=200"`
	Canonical                string              `json:"canonical"`
	Price                    decimal.Decimal     `json:"price"`
	SalePrice                decimal.NullDecimal `json:"salePrice"`
	FinalPrice               decimal.Decimal     `json:"finalPrice"`
	ListingLimit             *int                `json:"listingLimit,omitempty" validate:"omitempty,gte=1"`
	ListingDuration          *int                `json:"listingDuration,omitempty" validate:"omitempty,gte=1"`
	DisableMultiplePurchases bool                `json:"disableMultiplePurchases"`
	AutoApproveListing       bool                `json:"autoApproveListing"`
	MarkListingAsFeatured    bool                `json:"markListingAsFeatured"`
	Type                     PackageType         `json:"type" validate:"oneof=paid_listing promote_listing"`
	Status                   PackageStatus       `json:"status" validate:"oneof=Active Inactive"`
	Sort                     int                 `json:"sort"`
	DeletedAt                *time.Time          `json:"deletedAt,omitempty"`
	CreatedAt                time.Time           `json:"createdAt"`
	UpdatedAt                time.Time           `json:"updatedAt"`
}

// FinalPrice: salePrice == 0 — бесплатно, иначе salePrice, если задана, иначе price.
func FinalPrice(price decimal.Decimal, sale decimal.NullDecimal) decimal.Decimal {
	if sale.Valid {
		return sale.Decimal
	}
	return price
}

func (p Package) IsFree() bool { return !p.FinalPrice.IsPositive() }

// Available — активен и не удалён.
func (p Package) Available() bool {
	return p.Status == StatusActive && p.DeletedAt == nil
}

type Category struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Slug      string    `json:"slug"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}
