package reviews

import "time"

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPublished Status = "Published"
	StatusBanned    Status = "Banned"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPublished, StatusBanned:
		return true
	}
	return false
}

type Review struct {
	ID        string    `json:"id"`
	PlaceID   string    `json:"placeId"`
	UserID    string    `json:"userId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Input struct {
	PlaceID string `json:"placeId" validate:"required"`
	Rating  int    `json:"rating" validate:"gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=5000"`
}

// RatingDelta — изменение агрегатов объявления при переходе отзыва
// из from в to. Пустой статус означает отсутствие отзыва.
// В агрегатах учитываются только опубликованные отзывы.
func RatingDelta(from, to Status, rating int) (count, total int) {
	was := from == StatusPublished
	is := to == StatusPublished
	switch {
	case !was && is:
		return 1, rating
	case was && !is:
		return -1, -rating
	}
	return 0, 0
}
