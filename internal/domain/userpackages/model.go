package userpackages

import (
	"time"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/catalog"
)

type Status string

const (
	StatusUnpaid Status = "unpaid"
	StatusPaid   Status = "paid"
)

// Charge — сведения об оплате от платёжного шлюза.
type Charge struct {
	ID              string    `json:"id"`
	PaymentIntentID string    `json:"paymentIntentId"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	PaidAt          time.Time `json:"paidAt"`
}

// UserPackage — купленный пользователем тариф (право на размещение).
type UserPackage struct {
	ID             string          `json:"id"`
	UserID         string          `json:"userId"`
	Package        catalog.Package `json:"package"`
	Status         Status          `json:"status"`
	Usage          int             `json:"usage"`
	IsLimitReached bool            `json:"isLimitReached"`
	Charge         *Charge         `json:"charge,omitempty"`
	DeletedAt      *time.Time      `json:"deletedAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (u UserPackage) PackageID() string { return u.Package.ID }

// Exclusive — для пакета действует запрет повторной покупки.
func (u UserPackage) Exclusive() bool { return u.Package.DisableMultiplePurchases }

func limitReached(limit *int, usage int) bool {
	return limit != nil && usage >= *limit
}

// New создаёт покупку со снимком тарифа. Бесплатный тариф сразу оплачен
// и засчитан одно использование.
func New(id, userID string, pkg catalog.Package, now time.Time) UserPackage {
	up := UserPackage{
		ID:        id,
		UserID:    userID,
		Package:   pkg,
		Status:    StatusUnpaid,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if pkg.IsFree() {
		up.Status = StatusPaid
		up.Usage = 1
	}
	up.IsLimitReached = limitReached(pkg.ListingLimit, up.Usage)
	return up
}

// CheckConsumable — можно ли списать ещё одно использование.
func (u UserPackage) CheckConsumable() error {
	if u.IsLimitReached || limitReached(u.Package.ListingLimit, u.Usage) {
		return apperr.UsageLimitReached()
	}
	if u.Status != StatusPaid {
		return apperr.UnpaidPackage()
	}
	return nil
}

// Consume увеличивает usage и пересчитывает isLimitReached.
func (u *UserPackage) Consume(now time.Time) error {
	if err := u.CheckConsumable(); err != nil {
		return err
	}
	u.Usage++
	u.IsLimitReached = limitReached(u.Package.ListingLimit, u.Usage)
	u.UpdatedAt = now
	return nil
}

// Release возвращает одно списанное использование.
func (u *UserPackage) Release(now time.Time) {
	if u.Usage > 0 {
		u.Usage--
	}
	u.IsLimitReached = limitReached(u.Package.ListingLimit, u.Usage)
	u.UpdatedAt = now
}

// MarkPaid переводит покупку в paid. Переход только unpaid -> paid.
func (u *UserPackage) MarkPaid(c Charge, now time.Time) error {
	if u.Status == StatusPaid {
		return apperr.PaymentStateConflict("user package already paid")
	}
	if limitReached(u.Package.ListingLimit, u.Usage) {
		return apperr.UsageLimitReached()
	}
	u.Status = StatusPaid
	u.Charge = &c
	u.Usage++
	u.IsLimitReached = limitReached(u.Package.ListingLimit, u.Usage)
	u.UpdatedAt = now
	return nil
}

type Filter struct {
	UserID string
	Status Status
	Limit  int
	Offset int
}
