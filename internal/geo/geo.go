package geo

import (
	"fmt"
	"math"
)

type Unit string

const (
	UnitKm Unit = "km"
	UnitMi Unit = "mi"
)

const (
	earthRadiusKm = 6371.0
	earthRadiusMi = 3958.8

	metersPerKm   = 1000.0
	metersPerMile = 1609.0
)

type Point struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// Box — прямоугольник по юго-западному и северо-восточному углам.
type Box struct {
	SouthWest Point `json:"southwest"`
	NorthEast Point `json:"northeast"`
}

func (b Box) Validate() error {
	if !b.SouthWest.Valid() || !b.NorthEast.Valid() {
		return fmt.Errorf("geo: box corners out of range")
	}
	if b.SouthWest.Lat > b.NorthEast.Lat {
		return fmt.Errorf("geo: southwest latitude above northeast")
	}
	return nil
}

// Contains учитывает переход через антимеридиан.
func (b Box) Contains(p Point) bool {
	if p.Lat < b.SouthWest.Lat || p.Lat > b.NorthEast.Lat {
		return false
	}
	if b.SouthWest.Lng <= b.NorthEast.Lng {
		return p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
	}
	return p.Lng >= b.SouthWest.Lng || p.Lng <= b.NorthEast.Lng
}

func ParseUnit(s string) (Unit, bool) {
	switch Unit(s) {
	case UnitKm, UnitMi:
		return Unit(s), true
	}
	return "", false
}

// EarthRadius в единицах unit; для неизвестной единицы — километры.
func EarthRadius(u Unit) float64 {
	if u == UnitMi {
		return earthRadiusMi
	}
	return earthRadiusKm
}

// RadiusFromMeters переводит радиус поиска из метров в единицы запроса.
// Для миль делитель 1609, как в конфигурации приложения.
func RadiusFromMeters(meters float64, u Unit) float64 {
	if u == UnitMi {
		return meters / metersPerMile
	}
	return meters / metersPerKm
}

// Distance — расстояние по формуле гаверсинусов в единицах u.
func Distance(a, b Point, u Unit) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadius(u) * c
}
