package places

import (
	"math"
	"time"

	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/geo"
	"github.com/Spok95/placesdir/internal/textnorm"
)

type Status string

const (
	StatusPending         Status = "Pending"
	StatusPendingApproval Status = "Pending Approval"
	StatusApproved        Status = "Approved"
	StatusExpired         Status = "Expired"
	StatusRejected        Status = "Rejected" // только модерация
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPendingApproval, StatusApproved, StatusExpired, StatusRejected:
		return true
	}
	return false
}

type Place struct {
	ID                string             `json:"id"`
	UserID            string             `json:"userId"`
	Title             string             `json:"title"`
	Description       string             `json:"description"`
	Canonical         string             `json:"canonical"`
	Slug              string             `json:"slug"`
	CategoryIDs       []string           `json:"categoryIds"`
	Categories        []catalog.Category `json:"categories,omitempty"`
	Tags              []string           `json:"tags"`
	Address           string             `json:"address"`
	Phone             string             `json:"phone"`
	Email             string             `json:"email"`
	Website           string             `json:"website"`
	Whatsapp          string             `json:"whatsapp"`
	Image             string             `json:"image"`
	Images            []string           `json:"images"`
	PriceRange        string             `json:"priceRange"`
	Location          geo.Point          `json:"location"`
	Status            Status             `json:"status"`
	IsFeatured        bool               `json:"isFeatured"`
	ExpiresAt         *time.Time         `json:"expiresAt,omitempty"`
	FeaturedExpiresAt *time.Time         `json:"featuredExpiresAt,omitempty"`
	RatingCount       int                `json:"ratingCount"`
	RatingTotal       int                `json:"ratingTotal"`
	RatingAvg         int                `json:"ratingAvg"`
	ViewCount         int                `json:"viewCount"`
	CallCount         int                `json:"callCount"`
	LikeCount         int                `json:"likeCount"`
	UserPackageID     *string            `json:"userPackageId,omitempty"`
	DeletedAt         *time.Time         `json:"deletedAt,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`

	// Distance заполняется при поиске от точки
	Distance *float64 `json:"distance,omitempty"`
}

// Input — редактируемые владельцем поля объявления.
type Input struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=10000"`
	CategoryIDs []string  `json:"categories" validate:"required,min=1,dive,required"`
	Tags        []string  `json:"tags" validate:"max=30,dive,max=50"`
	Location    geo.Point `json:"location"`
	Address     string    `json:"address" validate:"max=500"`
	Phone       string    `json:"phone" validate:"max=50"`
	Email       string    `json:"email" validate:"omitempty,email"`
	Website     string    `json:"website" validate:"omitempty,url"`
	Whatsapp    string    `json:"whatsapp" validate:"max=50"`
	Image       string    `json:"image"`
	Images      []string  `json:"images" validate:"max=20"`
	PriceRange  string    `json:"priceRange" validate:"max=10"`
	// PackageID — id тарифа или уже купленного UserPackage
	PackageID string `json:"packageId"`
}

func (in Input) applyTo(p *Place) {
	p.Title = in.Title
	p.Description = in.Description
	p.Canonical = textnorm.Canonical(in.Title)
	p.Slug = textnorm.Slug(in.Title)
	p.CategoryIDs = in.CategoryIDs
	p.Tags = canonicalTags(in.Tags)
	p.Location = in.Location
	p.Address = in.Address
	p.Phone = in.Phone
	p.Email = in.Email
	p.Website = in.Website
	p.Whatsapp = in.Whatsapp
	p.Image = in.Image
	p.Images = in.Images
	p.PriceRange = in.PriceRange
}

func canonicalTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		c := textnorm.Canonical(t)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// AverageRating — round(total/count) или 0 без оценок.
func AverageRating(total, count int) int {
	if count <= 0 {
		return 0
	}
	return int(math.Round(float64(total) / float64(count)))
}

// AdjustRating применяет приращения к агрегатам рейтинга.
func (p *Place) AdjustRating(countDelta, totalDelta int) {
	p.RatingCount += countDelta
	p.RatingTotal += totalDelta
	if p.RatingCount < 0 {
		p.RatingCount = 0
	}
	if p.RatingTotal < 0 {
		p.RatingTotal = 0
	}
	p.RatingAvg = AverageRating(p.RatingTotal, p.RatingCount)
}

type EventKind string

const (
	EventView EventKind = "view"
	EventCall EventKind = "call"
	EventLike EventKind = "like"
)

// Stats — счётчики объявления. При заданном периоде — число событий за период.
type Stats struct {
	Views int `json:"views"`
	Calls int `json:"calls"`
	Likes int `json:"likes"`
}

type AdminFilter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}
