package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/Spok95/placesdir/internal/apperr"
	"github.com/Spok95/placesdir/internal/authz"
	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/geo"
	"github.com/Spok95/placesdir/internal/search"
)

// parsePoint — latitude/longitude; nil, если точка не задана.
func parsePoint(r *http.Request) (*geo.Point, error) {
	lat, err := queryFloatPtr(r, "latitude")
	if err != nil {
		return nil, err
	}
	lng, err := queryFloatPtr(r, "longitude")
	if err != nil {
		return nil, err
	}
	if lat == nil && lng == nil {
		return nil, nil
	}
	if lat == nil || lng == nil {
		return nil, apperr.Validation("latitude", "latitude and longitude go together")
	}
	p := geo.Point{Lat: *lat, Lng: *lng}
	if !p.Valid() {
		return nil, apperr.Validation("latitude", "coordinates out of range")
	}
	return &p, nil
}

// parseBounds — bounds=swLat,swLng,neLat,neLng.
func parseBounds(s string) (*geo.Box, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, apperr.Validation("bounds", "expected swLat,swLng,neLat,neLng")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, apperr.Validation("bounds", "coordinates must be numbers")
		}
		v[i] = f
	}
	return &geo.Box{
		SouthWest: geo.Point{Lat: v[0], Lng: v[1]},
		NorthEast: geo.Point{Lat: v[2], Lng: v[3]},
	}, nil
}

func splitList(vals []string) []string {
	var out []string
	for _, v := range vals {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func (a *api) searchParams(r *http.Request) (search.Params, error) {
	q := r.URL.Query()
	var (
		p   search.Params
		err error
	)
	if p.Point, err = parsePoint(r); err != nil {
		return p, err
	}
	if p.MaxDistance, err = queryFloatPtr(r, "maxDistance"); err != nil {
		return p, err
	}
	if p.Bounds, err = parseBounds(q.Get("bounds")); err != nil {
		return p, err
	}
	if p.RatingMin, err = queryIntPtr(r, "ratingMin"); err != nil {
		return p, err
	}
	if p.RatingMax, err = queryIntPtr(r, "ratingMax"); err != nil {
		return p, err
	}
	if p.Page, err = queryInt(r, "page", 0); err != nil {
		return p, err
	}
	if p.Limit, err = queryInt(r, "limit", search.DefaultLimit); err != nil {
		return p, err
	}
	p.Unit = q.Get("unit")
	if p.Unit == "" {
		p.Unit = string(geo.UnitKm)
	}
	p.Tag = q.Get("tag")
	p.Categories = splitList(q["cat"])
	p.SortBy = q.Get("sortBy")
	p.SortByField = q.Get("sortByField")
	p.Nearby = queryBool(r, "nearby")
	p.Featured = queryBool(r, "featured")
	p.Count = queryBool(r, "count")
	p.UserID = q.Get("userId")

	// статусы кроме Approved видят только администраторы
	if ss := splitList(q["status"]); len(ss) > 0 {
		sub := subjectFrom(r.Context())
		for _, s := range ss {
			st := places.Status(s)
			if !st.Valid() {
				return p, apperr.Validation("status", "unknown status "+s)
			}
			if st != places.StatusApproved && !a.Authz.Allowed(sub, authz.ObjPlace, authz.ActList) {
				return p, apperr.Authorization("status filter requires admin")
			}
			p.Statuses = append(p.Statuses, st)
		}
	}
	return p, nil
}

func (a *api) searchPlaces(w http.ResponseWriter, r *http.Request) {
	p, err := a.searchParams(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	res, err := a.Search.Search(r.Context(), p)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if res.Count != nil {
		writeJSON(w, http.StatusOK, map[string]int{"count": *res.Count})
		return
	}
	if res.Places == nil {
		res.Places = []places.Place{}
	}
	writeJSON(w, http.StatusOK, res.Places)
}

func (a *api) randomPlaces(w http.ResponseWriter, r *http.Request) {
	point, err := parsePoint(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	out, err := a.Search.Random(r.Context(), point)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if out == nil {
		out = []places.Place{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) home(w http.ResponseWriter, r *http.Request) {
	point, err := parsePoint(r)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	h, err := a.Search.Home(r.Context(), point, r.URL.Query().Get("unit"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}
