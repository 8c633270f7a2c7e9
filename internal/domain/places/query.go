package places

import "github.com/Spok95/placesdir/internal/geo"

type GeoMode int

const (
	GeoNone   GeoMode = iota
	GeoBox            // внутри прямоугольника
	GeoRadius         // в радиусе от точки
	GeoNear           // без радиуса, по удалённости от точки
)

func (m GeoMode) String() string {
	switch m {
	case GeoBox:
		return "box"
	case GeoRadius:
		return "radius"
	case GeoNear:
		return "near"
	default:
		return "none"
	}
}

type GeoFilter struct {
	Mode   GeoMode
	Box    geo.Box
	Center geo.Point
	Radius float64 // в единицах Unit
	Unit   geo.Unit
	// Sorted — упорядочить по удалённости от Center
	Sorted bool
}

// SortFields — поля, по которым разрешена сортировка.
var SortFields = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"title":       "title",
	"ratingAvg":   "rating_avg",
	"ratingCount": "rating_count",
	"viewCount":   "view_count",
	"likeCount":   "like_count",
}

type Sort struct {
	Field string
	Desc  bool
}

// Criteria — условия выборки объявлений. Удалённые объявления
// исключаются всегда.
type Criteria struct {
	IDs        []string
	Statuses   []Status
	UserID     string
	Categories []string
	// Tag — каноническая форма, подстрока canonical или точное совпадение тега
	Tag       string
	RatingMin *int
	RatingMax *int
	Featured  *bool
	Geo       GeoFilter
	Sort      []Sort
	Offset    int
	Limit     int
}
