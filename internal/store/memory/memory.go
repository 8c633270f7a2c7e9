// Package memory — хранилище в памяти процесса с теми же контрактами,
// что и репозитории Postgres. Используется в тестах и при
// storage.driver=memory.
package memory

import (
	"slices"
	"sync"
	"time"

	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/reviews"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/domain/users"
)

type likeKey struct{ placeID, userID string }

type appEvent struct {
	kind    places.EventKind
	placeID string
	userID  string
	at      time.Time
}

// DB — общее состояние; все подхранилища работают под одним мьютексом,
// поэтому операции над несколькими сущностями атомарны.
type DB struct {
	mu sync.Mutex

	packages     map[string]catalog.Package
	categories   map[string]catalog.Category
	userPackages map[string]userpackages.UserPackage
	places       map[string]places.Place
	reviews      map[string]reviews.Review
	users        map[string]users.User
	likes        map[likeKey]bool
	events       []appEvent
	webhooks     map[string]bool
	config       *appconfig.AppConfig

	now func() time.Time
}

func New() *DB {
	return &DB{
		packages:     make(map[string]catalog.Package),
		categories:   make(map[string]catalog.Category),
		userPackages: make(map[string]userpackages.UserPackage),
		places:       make(map[string]places.Place),
		reviews:      make(map[string]reviews.Review),
		users:        make(map[string]users.User),
		likes:        make(map[likeKey]bool),
		webhooks:     make(map[string]bool),
		now:          time.Now,
	}
}

// WithClock подменяет время для created_at/updated_at и событий.
func (db *DB) WithClock(now func() time.Time) *DB {
	db.now = now
	return db
}

func (db *DB) Catalog() *Catalog           { return &Catalog{db: db} }
func (db *DB) UserPackages() *UserPackages { return &UserPackages{db: db} }
func (db *DB) Places() *Places             { return &Places{db: db} }
func (db *DB) Reviews() *Reviews           { return &Reviews{db: db} }
func (db *DB) Payments() *Payments         { return &Payments{db: db} }
func (db *DB) Users() *Users               { return &Users{db: db} }
func (db *DB) AppConfig() *AppConfig       { return &AppConfig{db: db} }

func clonePlace(p places.Place) places.Place {
	p.CategoryIDs = slices.Clone(p.CategoryIDs)
	p.Tags = slices.Clone(p.Tags)
	p.Images = slices.Clone(p.Images)
	p.Categories = nil
	p.Distance = nil
	return p
}

func cloneUserPackage(u userpackages.UserPackage) userpackages.UserPackage {
	if u.Charge != nil {
		c := *u.Charge
		u.Charge = &c
	}
	return u
}

func page[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
