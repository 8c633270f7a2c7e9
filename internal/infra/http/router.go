package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/reviews"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/infra/payments"
	"github.com/Spok95/placesdir/internal/search"
)

// Deps — собранные в main сервисы.
type Deps struct {
	Log       *slog.Logger
	Auth      *Authenticator
	Authz     *authz.Authorizer
	Policy    *appconfig.Service
	Catalog   *catalog.Catalog
	Ledger    *userpackages.Ledger
	Places    *places.Lifecycle
	Reviews   *reviews.Service
	Search    *search.Engine
	Payments  *payments.Service
	Webhook   http.Handler
	Metrics   bool
	RateLimit int // запросов в минуту с IP, 0 — без ограничения
}

type api struct {
	Deps
}

func rateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}

func NewRouter(d Deps) http.Handler {
	a := &api{Deps: d}
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if d.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	if d.Webhook != nil {
		r.With(rateLimit(d.RateLimit)).Post("/stripe/webhook", d.Webhook.ServeHTTP)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(a.Auth.Middleware)

		// публичные маршруты
		r.Group(func(r chi.Router) {
			r.Use(rateLimit(d.RateLimit))
			r.Get("/home", a.home)
			r.Get("/packages", a.listPackages)
			r.Get("/places/search", a.searchPlaces)
			r.Get("/places/random", a.randomPlaces)
			r.Get("/places/{id}", a.getPlace)
			r.Post("/places/{id}/view", a.track(places.EventView))
			r.Post("/places/{id}/call", a.track(places.EventCall))
			r.Get("/places/{id}/reviews", a.listReviews)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Post("/places", a.createPlace)
			r.Put("/places/{id}", a.updatePlace)
			r.Delete("/places/{id}", a.deletePlace)
			r.Post("/places/{id}/like", a.toggleLike)
			r.Get("/places/{id}/statistics", a.placeStatistics)

			r.Post("/reviews", a.createReview)
			r.Delete("/reviews/{id}", a.deleteReview)

			r.Get("/user-packages", a.myUserPackages)
			r.Post("/user-packages", a.buyPackage)
			r.Get("/user-packages/{id}", a.getUserPackage)
			r.Post("/user-packages/{id}/payment-intent", a.createPaymentIntent)

			r.Route("/admin", func(r chi.Router) {
				r.Get("/places", a.adminListPlaces)
				r.Get("/places/export", a.exportPlaces)
				r.Patch("/places/{id}/status", a.moderatePlace)
				r.Patch("/reviews/{id}/status", a.moderateReview)
				r.Post("/packages", a.createPackage)
				r.Get("/user-packages", a.adminListUserPackages)
				r.Get("/user-packages/export", a.exportUserPackages)
				r.Get("/app-config", a.getAppConfig)
				r.Put("/app-config", a.saveAppConfig)
			})
		})
	})
	return r
}
