package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/appconfig"
	"github.com/Spok95/placesdir/internal/domain/catalog"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
	"github.com/Spok95/placesdir/internal/export"
)

type listResponse[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func (a *api) listPackages(w http.ResponseWriter, r *http.Request) {
	out, err := a.Catalog.List(r.Context())
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if out == nil {
		out = []catalog.Package{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) createPackage(w http.ResponseWriter, r *http.Request) {
	if err := a.Authz.Require(subjectFrom(r.Context()), authz.ObjPackage, authz.ActCreate); err != nil {
		writeError(w, a.Log, err)
		return
	}
	var in catalog.Package
	if err := decode(r, &in); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p, err := a.Catalog.Create(r.Context(), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

/* Покупки */

func userPackageFilter(r *http.Request) (userpackages.Filter, error) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		return userpackages.Filter{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return userpackages.Filter{}, err
	}
	return userpackages.Filter{
		UserID: r.URL.Query().Get("userId"),
		Status: userpackages.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (a *api) myUserPackages(w http.ResponseWriter, r *http.Request) {
	f, err := userPackageFilter(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	f.UserID = subjectFrom(r.Context()).UserID
	items, total, err := a.Ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if items == nil {
		items = []userpackages.UserPackage{}
	}
	writeJSON(w, http.StatusOK, listResponse[userpackages.UserPackage]{Items: items, Total: total})
}

func (a *api) getUserPackage(w http.ResponseWriter, r *http.Request) {
	sub := subjectFrom(r.Context())
	up, err := a.Ledger.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if err := a.Authz.RequireOwner(sub, up.UserID, authz.ObjUserPackage, authz.ActPurchase); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

type buyRequest struct {
	PackageID string `json:"packageId"`
}

func (a *api) buyPackage(w http.ResponseWriter, r *http.Request) {
	sub := subjectFrom(r.Context())
	if err := a.Authz.Require(sub, authz.ObjUserPackage, authz.ActPurchase); err != nil {
		writeError(w, a.Log, err)
		return
	}
	var req buyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.PackageID == "" {
		writeError(w, a.Log, apperr.Validation("packageId", "is required"))
		return
	}
	up, err := a.Ledger.BuyPackage(r.Context(), sub.UserID, req.PackageID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, up)
}

type intentRequest struct {
	PlaceID string `json:"placeId"`
}

func (a *api) createPaymentIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	in, err := a.Payments.CreateIntent(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"), req.PlaceID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, in)
}

/* Администрирование */

func (a *api) adminListUserPackages(w http.ResponseWriter, r *http.Request) {
	if err := a.Authz.Require(subjectFrom(r.Context()), authz.ObjUserPackage, authz.ActList); err != nil {
		writeError(w, a.Log, err)
		return
	}
	f, err := userPackageFilter(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	items, total, err := a.Ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if items == nil {
		items = []userpackages.UserPackage{}
	}
	writeJSON(w, http.StatusOK, listResponse[userpackages.UserPackage]{Items: items, Total: total})
}

func adminPlaceFilter(r *http.Request) (places.AdminFilter, error) {
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		return places.AdminFilter{}, err
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		return places.AdminFilter{}, err
	}
	return places.AdminFilter{
		UserID: r.URL.Query().Get("userId"),
		Status: places.Status(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	}, nil
}

func (a *api) adminListPlaces(w http.ResponseWriter, r *http.Request) {
	f, err := adminPlaceFilter(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	items, total, err := a.Places.ListForAdmin(r.Context(), subjectFrom(r.Context()), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if items == nil {
		items = []places.Place{}
	}
	writeJSON(w, http.StatusOK, listResponse[places.Place]{Items: items, Total: total})
}

const exportLimit = 10000

func writeXLSX(w http.ResponseWriter, name string, data []byte) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *api) exportUserPackages(w http.ResponseWriter, r *http.Request) {
	if err := a.Authz.Require(subjectFrom(r.Context()), authz.ObjUserPackage, authz.ActExport); err != nil {
		writeError(w, a.Log, err)
		return
	}
	f, err := userPackageFilter(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	f.Limit, f.Offset = exportLimit, 0
	items, _, err := a.Ledger.List(r.Context(), f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	data, err := export.UserPackages(items)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeXLSX(w, export.FileName("user_packages", time.Now()), data)
}

func (a *api) exportPlaces(w http.ResponseWriter, r *http.Request) {
	sub := subjectFrom(r.Context())
	if err := a.Authz.Require(sub, authz.ObjPlace, authz.ActExport); err != nil {
		writeError(w, a.Log, err)
		return
	}
	f, err := adminPlaceFilter(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	f.Limit, f.Offset = exportLimit, 0
	items, _, err := a.Places.ListForAdmin(r.Context(), sub, f)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	data, err := export.Places(items)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeXLSX(w, export.FileName("places", time.Now()), data)
}

func (a *api) getAppConfig(w http.ResponseWriter, r *http.Request) {
	if err := a.Authz.Require(subjectFrom(r.Context()), authz.ObjAppConfig, authz.ActList); err != nil {
		writeError(w, a.Log, err)
		return
	}
	c, err := a.Policy.Get(r.Context())
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *api) saveAppConfig(w http.ResponseWriter, r *http.Request) {
	if err := a.Authz.Require(subjectFrom(r.Context()), authz.ObjAppConfig, authz.ActWrite); err != nil {
		writeError(w, a.Log, err)
		return
	}
	var c appconfig.AppConfig
	if err := decode(r, &c); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if err := a.Policy.Save(r.Context(), c); err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
