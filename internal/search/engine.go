// Package search — поиск и ранжирование объявлений по географии,
// категориям, тегам и рейтингу. Только чтение.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"time"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/geo"
	"github.com/Spok95/placesdir/internal/infra/metrics"
	"github.com/Spok95/placesdir/internal/textnorm"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000

	featuredLimit = 100
	randomSample  = 15
	homeSection   = 12
)

type Store interface {
	Search(ctx context.Context, c places.Criteria) ([]places.Place, error)
	Count(ctx context.Context, c places.Criteria) (int, error)
	Sample(ctx context.Context, c places.Criteria, n int) ([]string, error)
}

type Categories interface {
	Categories(ctx context.Context, ids []string) ([]catalog.Category, error)
}

type Policy interface {
	Get(ctx context.Context) (appconfig.AppConfig, error)
}

// Params — параметры поискового запроса.
type Params struct {
	Point       *geo.Point
	Unit        string
	MaxDistance *float64 // метры
	Bounds      *geo.Box
	Tag         string
	Categories  []string
	RatingMin   *int
	RatingMax   *int
	SortBy      string // asc | desc
	SortByField string // поле или location
	Nearby      bool
	Page        int
	Limit       int
	Statuses    []places.Status
	Featured    bool
	Count       bool
	UserID      string
}

type Result struct {
	Places []places.Place `json:"places,omitempty"`
	Count  *int           `json:"count,omitempty"`
}

type Home struct {
	Featured []places.Place `json:"featured"`
	Newest   []places.Place `json:"newest"`
	Nearby   []places.Place `json:"nearby"`
}

type Engine struct {
	store      Store
	categories Categories
	policy     Policy
	log        *slog.Logger
	rand       func() float64
}

func NewEngine(store Store, categories Categories, policy Policy, log *slog.Logger) *Engine {
	return &Engine{store: store, categories: categories, policy: policy, log: log, rand: rand.Float64}
}

// WithRand подменяет источник случайных ключей перемешивания.
func (e *Engine) WithRand(fn func() float64) *Engine {
	e.rand = fn
	return e
}

// Plan переводит параметры запроса в условия выборки.
// radius — searchRadius из настроек, в метрах.
func Plan(p Params, radius float64) (places.Criteria, error) {
	c := places.Criteria{
		Statuses:   p.Statuses,
		UserID:     p.UserID,
		Categories: p.Categories,
		RatingMin:  p.RatingMin,
		RatingMax:  p.RatingMax,
	}
	if len(c.Statuses) == 0 {
		c.Statuses = []places.Status{places.StatusApproved}
	}
	if p.Tag != "" {
		c.Tag = textnorm.Canonical(p.Tag)
	}
	if p.MaxDistance != nil && *p.MaxDistance > 0 && *p.MaxDistance < radius {
		radius = *p.MaxDistance
	}

	byLocation := p.SortByField == "location"
	switch {
	case p.Bounds != nil:
		if err := p.Bounds.Validate(); err != nil {
			return c, apperr.Validation("bounds", err.Error())
		}
		c.Geo = places.GeoFilter{Mode: places.GeoBox, Box: *p.Bounds}
	case p.Point != nil:
		if !p.Point.Valid() {
			return c, apperr.Validation("latitude", "coordinates out of range")
		}
		unit, ok := geo.ParseUnit(p.Unit)
		if ok && radius > 0 {
			c.Geo = places.GeoFilter{
				Mode:   places.GeoRadius,
				Center: *p.Point,
				Radius: geo.RadiusFromMeters(radius, unit),
				Unit:   unit,
				Sorted: p.Nearby || byLocation,
			}
		} else {
			c.Geo = places.GeoFilter{Mode: places.GeoNear, Center: *p.Point, Unit: geo.UnitKm, Sorted: p.Nearby || byLocation}
		}
	}

	switch {
	case p.SortBy != "" && !byLocation:
		if p.SortBy != "asc" && p.SortBy != "desc" {
			return c, apperr.Validation("sortBy", "must be asc or desc")
		}
		field := p.SortByField
		if field == "" {
			field = "createdAt"
		}
		if _, ok := places.SortFields[field]; !ok {
			return c, apperr.Validation("sortByField", fmt.Sprintf("cannot sort by %q", field))
		}
		c.Sort = []places.Sort{{Field: field, Desc: p.SortBy == "desc"}}
	case !p.Nearby && !byLocation:
		c.Sort = []places.Sort{{Field: "createdAt", Desc: true}}
	}
	return c, nil
}

// Search — основной поиск. На первой странице обычной выдачи впереди
// идут featured-объявления (перемешанные, если не запрошена сортировка
// по удалённости).
func (e *Engine) Search(ctx context.Context, p Params) (Result, error) {
	cfg, err := e.policy.Get(ctx)
	if err != nil {
		return Result{}, err
	}
	c, err := Plan(p, cfg.Places.SearchRadius)
	if err != nil {
		return Result{}, err
	}
	if p.Page < 0 {
		return Result{}, apperr.Validation("page", "must not be negative")
	}
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	start := time.Now()
	defer func() {
		metrics.SearchDuration.WithLabelValues(c.Geo.Mode.String()).Observe(time.Since(start).Seconds())
	}()

	if p.Count {
		n, err := e.store.Count(ctx, c)
		if err != nil {
			return Result{}, fmt.Errorf("search: count: %w", err)
		}
		return Result{Count: &n}, nil
	}

	var featured []places.Place
	if p.Page == 0 && !p.Featured {
		fc := c
		fc.Featured = ptr(true)
		fc.Offset = 0
		fc.Limit = featuredLimit
		featured, err = e.store.Search(ctx, fc)
		if err != nil {
			return Result{}, fmt.Errorf("search: featured: %w", err)
		}
		if !p.Nearby {
			e.shuffle(featured)
		}
	}

	c.Featured = ptr(p.Featured)
	c.Offset = p.Page * limit
	c.Limit = limit
	rest, err := e.store.Search(ctx, c)
	if err != nil {
		return Result{}, fmt.Errorf("search: %w", err)
	}

	out := append(featured, rest...)
	if err := e.withCategories(ctx, out); err != nil {
		return Result{}, err
	}
	return Result{Places: out}, nil
}

// Random — до 15 случайных одобренных объявлений в радиусе от точки.
// При нулевом searchRadius выборка идёт по всей базе.
func (e *Engine) Random(ctx context.Context, point *geo.Point) ([]places.Place, error) {
	if point == nil {
		return nil, apperr.Validation("latitude", "latitude and longitude are required")
	}
	cfg, err := e.policy.Get(ctx)
	if err != nil {
		return nil, err
	}
	c := places.Criteria{Statuses: []places.Status{places.StatusApproved}}
	if cfg.Places.SearchRadius > 0 {
		c.Geo = places.GeoFilter{
			Mode:   places.GeoRadius,
			Center: *point,
			Radius: geo.RadiusFromMeters(cfg.Places.SearchRadius, geo.UnitKm),
			Unit:   geo.UnitKm,
		}
	}
	ids, err := e.store.Sample(ctx, c, randomSample)
	if err != nil {
		return nil, fmt.Errorf("search: sample: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	out, err := e.store.Search(ctx, places.Criteria{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("search: sample fetch: %w", err)
	}
	e.shuffle(out)
	if err := e.withCategories(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Home — секции главной: featured, новые и рядом с точкой.
func (e *Engine) Home(ctx context.Context, point *geo.Point, unit string) (Home, error) {
	cfg, err := e.policy.Get(ctx)
	if err != nil {
		return Home{}, err
	}
	approved := []places.Status{places.StatusApproved}
	newest := []places.Sort{{Field: "createdAt", Desc: true}}

	var h Home
	h.Featured, err = e.store.Search(ctx, places.Criteria{
		Statuses: approved, Featured: ptr(true), Sort: newest, Limit: homeSection,
	})
	if err != nil {
		return Home{}, fmt.Errorf("search: home featured: %w", err)
	}
	e.shuffle(h.Featured)

	h.Newest, err = e.store.Search(ctx, places.Criteria{
		Statuses: approved, Sort: newest, Limit: homeSection,
	})
	if err != nil {
		return Home{}, fmt.Errorf("search: home newest: %w", err)
	}
	e.shuffle(h.Newest)

	if point != nil {
		u, ok := geo.ParseUnit(unit)
		if !ok {
			u = geo.UnitKm
		}
		nc := places.Criteria{Statuses: approved, Limit: homeSection}
		if cfg.Places.SearchRadius > 0 {
			nc.Geo = places.GeoFilter{
				Mode:   places.GeoRadius,
				Center: *point,
				Radius: geo.RadiusFromMeters(cfg.Places.SearchRadius, u),
				Unit:   u,
				Sorted: true,
			}
		} else {
			nc.Geo = places.GeoFilter{Mode: places.GeoNear, Center: *point, Unit: u, Sorted: true}
		}
		h.Nearby, err = e.store.Search(ctx, nc)
		if err != nil {
			return Home{}, fmt.Errorf("search: home nearby: %w", err)
		}
	}

	for _, section := range [][]places.Place{h.Featured, h.Newest, h.Nearby} {
		if err := e.withCategories(ctx, section); err != nil {
			return Home{}, err
		}
	}
	return h, nil
}

// shuffle — устойчивая сортировка по случайным ключам.
func (e *Engine) shuffle(ps []places.Place) {
	type keyed struct {
		key float64
		p   places.Place
	}
	ks := make([]keyed, len(ps))
	for i := range ps {
		ks[i] = keyed{key: e.rand(), p: ps[i]}
	}
	sort.SliceStable(ks, func(a, b int) bool { return ks[a].key < ks[b].key })
	for i := range ks {
		ps[i] = ks[i].p
	}
}

func (e *Engine) withCategories(ctx context.Context, ps []places.Place) error {
	if e.categories == nil || len(ps) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var ids []string
	for _, p := range ps {
		for _, id := range p.CategoryIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}
	cats, err := e.categories.Categories(ctx, ids)
	if err != nil {
		return fmt.Errorf("search: categories: %w", err)
	}
	byID := make(map[string]catalog.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}
	for i := range ps {
		ps[i].Categories = ps[i].Categories[:0]
		for _, id := range ps[i].CategoryIDs {
			if c, ok := byID[id]; ok {
				ps[i].Categories = append(ps[i].Categories, c)
			}
		}
	}
	return nil
}

func ptr[T any](v T) *T { return &v }
