package places

import (
	"time"

	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
)

// Переходы состояний объявления:
//
//	создание        -> Pending | Approved
//	редактирование  -> Pending Approval -> Approved (autoApprove)
//	оплата          -> Approved (autoApproveListing), isFeatured, срок
//	expiresAt       Approved -> Expired
//	featuredExpires isFeatured -> false
//
// Границы суток считаются в UTC.

// InitialStatus — статус нового объявления до учёта тарифа.
func InitialStatus(policy appconfig.Places) Status {
	if policy.AutoApprove && !policy.EnablePaidListings {
		return StatusApproved
	}
	return StatusPending
}

// StartOfDay — начало суток в UTC.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExpiryAfter — now + days, усечённое до начала суток.
func ExpiryAfter(now time.Time, days int) time.Time {
	return StartOfDay(now.UTC().AddDate(0, 0, days))
}

// ApplyEntitlement — эффекты оплаченного тарифа при создании объявления.
func (p *Place) ApplyEntitlement(pkg catalog.Package, now time.Time) {
	if pkg.AutoApproveListing {
		p.Status = StatusApproved
	}
	if pkg.MarkListingAsFeatured {
		p.IsFeatured = true
	}
	if pkg.ListingDuration != nil {
		t := ExpiryAfter(now, *pkg.ListingDuration)
		p.ExpiresAt = &t
	}
}

// ApplyPayment — эффекты подтверждённой шлюзом оплаты. Срок пишется
// в expiresAt для paid_listing и в featuredExpiresAt для promote_listing.
func (p *Place) ApplyPayment(pkg catalog.Package, now time.Time) {
	if pkg.AutoApproveListing {
		p.Status = StatusApproved
	}
	if pkg.MarkListingAsFeatured || pkg.Type == catalog.TypePromoteListing {
		p.IsFeatured = true
	}
	if pkg.ListingDuration != nil {
		t := ExpiryAfter(now, *pkg.ListingDuration)
		switch pkg.Type {
		case catalog.TypePromoteListing:
			p.FeaturedExpiresAt = &t
		default:
			p.ExpiresAt = &t
		}
	}
	p.UpdatedAt = now
}

// MarkEdited — после редактирования объявление снова ждёт модерации.
func (p *Place) MarkEdited(policy appconfig.Places) {
	p.Status = StatusPendingApproval
	if policy.AutoApprove {
		p.Status = StatusApproved
	}
}

func (p Place) ShouldExpire(now time.Time) bool {
	return p.DeletedAt == nil &&
		p.Status != StatusExpired &&
		p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

func (p Place) ShouldUnfeature(now time.Time) bool {
	return p.DeletedAt == nil &&
		p.Status == StatusApproved &&
		p.IsFeatured &&
		p.FeaturedExpiresAt != nil && !p.FeaturedExpiresAt.After(now)
}
