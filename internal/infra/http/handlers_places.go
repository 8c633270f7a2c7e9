package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Spok95/placesdir/internal/domain/places"
	"github.com/Spok95/placesdir/internal/domain/reviews"
	"github.com/Spok95/placesdir/internal/domain/userpackages"
)

type createPlaceResponse struct {
	Place       *places.Place             `json:"place"`
	UserPackage *userpackages.UserPackage `json:"userPackage,omitempty"`
}

func (a *api) createPlace(w http.ResponseWriter, r *http.Request) {
	var in places.Input
	if err := decode(r, &in); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p, up, err := a.Places.Create(r.Context(), subjectFrom(r.Context()), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createPlaceResponse{Place: p, UserPackage: up})
}

func (a *api) updatePlace(w http.ResponseWriter, r *http.Request) {
	var in places.Input
	if err := decode(r, &in); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p, err := a.Places.Update(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) deletePlace(w http.ResponseWriter, r *http.Request) {
	if err := a.Places.Delete(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) getPlace(w http.ResponseWriter, r *http.Request) {
	p, err := a.Places.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *api) toggleLike(w http.ResponseWriter, r *http.Request) {
	liked, count, err := a.Places.ToggleLike(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likeCount": count})
}

func (a *api) track(kind places.EventKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub := subjectFrom(r.Context())
		if err := a.Places.Track(r.Context(), sub.UserID, chi.URLParam(r, "id"), kind); err != nil {
			writeError(w, a.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *api) placeStatistics(w http.ResponseWriter, r *http.Request) {
	from, err := queryTimePtr(r, "from")
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	to, err := queryTimePtr(r, "to")
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	st, err := a.Places.Statistics(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"), from, to)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

/* Отзывы */

func (a *api) listReviews(w http.ResponseWriter, r *http.Request) {
	out, err := a.Reviews.ListByPlace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if out == nil {
		out = []reviews.Review{}
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *api) createReview(w http.ResponseWriter, r *http.Request) {
	var in reviews.Input
	if err := decode(r, &in); err != nil {
		writeError(w, a.Log, err)
		return
	}
	rv, err := a.Reviews.Create(r.Context(), subjectFrom(r.Context()), in)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, rv)
}

func (a *api) deleteReview(w http.ResponseWriter, r *http.Request) {
	if err := a.Reviews.Delete(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeError(w, a.Log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (a *api) moderateReview(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	rv, err := a.Reviews.SetStatus(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"), reviews.Status(req.Status))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, rv)
}

func (a *api) moderatePlace(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	p, err := a.Places.Moderate(r.Context(), subjectFrom(r.Context()), chi.URLParam(r, "id"), places.Status(req.Status))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
