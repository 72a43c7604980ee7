package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/service"
)

// PlaceService is what PlaceHandler needs; *service.PlaceService satisfies it.
type PlaceService interface {
	ListPlaces(ctx context.Context, filter service.PlaceFilter) ([]model.Place, error)
	GetPlace(ctx context.Context, id string) (*model.Place, error)
	CreatePlace(ctx context.Context, caller *auth.Identity, in service.PlaceInput) (*model.Place, error)
	DeletePlace(ctx context.Context, caller *auth.Identity, id string) (*service.DeleteResult, error)
}

type PlaceHandler struct {
	places PlaceService
	logger *slog.Logger
}

func NewPlaceHandler(places PlaceService, logger *slog.Logger) *PlaceHandler {
	return &PlaceHandler{places: places, logger: logger}
}

// DeleteResponse is the body of a successful DELETE /places/{id}.
type DeleteResponse struct {
	Message        string `json:"message"`
	ReviewsDeleted int64  `json:"reviewsDeleted"`
}

// HandleList returns places newest first.
//
// HTTP: GET /places?q=koli&category=hiking
func (h *PlaceHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	places, err := h.places.ListPlaces(r.Context(), service.PlaceFilter{
		Query:    r.URL.Query().Get("q"),
		Category: r.URL.Query().Get("category"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, places)
}

// HandleGet returns one place.
//
// HTTP: GET /places/{id}
func (h *PlaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	place, err := h.places.GetPlace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, place)
}

// HandleCreate adds a place. Admin only.
//
// HTTP: POST /places
// BODY: {"name":"…","category":["hiking"],"position":[61.5,23.7],"address":"…"}
func (h *PlaceHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.PlaceInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	caller, _ := auth.IdentityFromContext(r.Context())
	place, err := h.places.CreatePlace(r.Context(), caller, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, place)
}

// HandleDelete removes a place and all of its reviews. Admin only.
//
// HTTP: DELETE /places/{id}
func (h *PlaceHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	caller, _ := auth.IdentityFromContext(r.Context())

	res, err := h.places.DeletePlace(r.Context(), caller, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{
		Message:        "place deleted",
		ReviewsDeleted: res.ReviewsDeleted,
	})
}
