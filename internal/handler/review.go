package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/service"
)

// ReviewService is what ReviewHandler needs; *service.ReviewService satisfies it.
type ReviewService interface {
	ListReviews(ctx context.Context, placeID string) ([]model.Review, error)
	CreateReview(ctx context.Context, in service.ReviewInput) (*model.Review, error)
}

type ReviewHandler struct {
	reviews ReviewService
	logger  *slog.Logger
}

func NewReviewHandler(reviews ReviewService, logger *slog.Logger) *ReviewHandler {
	return &ReviewHandler{reviews: reviews, logger: logger}
}

// HandleList returns a place's reviews, newest first.
//
// HTTP: GET /reviews?placeId=…
func (h *ReviewHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.reviews.ListReviews(r.Context(), r.URL.Query().Get("placeId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews)
}

// HandleCreate stores a review and returns it once the place's rating has
// been recomputed. No login required.
//
// HTTP: POST /reviews
// BODY: {"placeId":"…","rating":4,"comment":"…"}
func (h *ReviewHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.ReviewInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, err)
		return
	}

	review, err := h.reviews.CreateReview(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, review)
}
