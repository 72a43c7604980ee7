package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
)

const MaxCommentLength = 5000

// ReviewInput is a new review as submitted. Rating is a pointer so a missing
// rating ("rating is required") is distinguishable from 0 ("out of range").
type ReviewInput struct {
	PlaceID string `json:"placeId"`
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

type ReviewService struct {
	reviews    repository.ReviewRepository
	places     repository.PlaceRepository
	aggregator *RatingAggregator
	cache      PlaceCache
	metrics    Recorder
	logger     *slog.Logger
}

// NewReviewService wires a ReviewService. cache and metrics may be nil.
func NewReviewService(
	reviews repository.ReviewRepository,
	places repository.PlaceRepository,
	aggregator *RatingAggregator,
	cache PlaceCache,
	metrics Recorder,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		reviews:    reviews,
		places:     places,
		aggregator: aggregator,
		cache:      cacheOrNone(cache),
		metrics:    recorderOrNoop(metrics),
		logger:     logger,
	}
}

// ListReviews returns the reviews of a place, newest first. An unknown or
// deleted place simply has no reviews.
func (s *ReviewService) ListReviews(ctx context.Context, placeID string) ([]model.Review, error) {
	placeID = strings.TrimSpace(placeID)
	if placeID == "" {
		return nil, apperror.ValidationFailed("placeId", "placeId is required")
	}

	reviews, err := s.reviews.ListReviewsByPlace(ctx, placeID)
	if err != nil {
		s.logger.Error("failed to list reviews",
			slog.String("placeId", placeID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing reviews: %w", err)
	}
	return reviews, nil
}

// CreateReview validates and stores a review, then recomputes the place's
// rating before returning. Anyone may review; there is no role check.
//
// The review is returned only after the aggregate is stored, so a client
// that re-fetches the place right after sees its own review counted. If the
// recompute fails the call fails, even though the review row exists; the
// next successful recompute for the place includes it.
func (s *ReviewService) CreateReview(ctx context.Context, in ReviewInput) (*model.Review, error) {
	review, err := validateReview(in)
	if err != nil {
		return nil, err
	}

	if _, err := s.places.GetPlace(ctx, review.PlaceID); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("placeId", "place does not exist")
		}
		return nil, fmt.Errorf("checking place %s: %w", review.PlaceID, err)
	}

	if err := s.reviews.CreateReview(ctx, review); err != nil {
		s.logger.Error("failed to create review",
			slog.String("placeId", review.PlaceID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating review: %w", err)
	}

	if _, err := s.aggregator.Recompute(ctx, review.PlaceID); err != nil {
		s.logger.Error("review stored but rating recompute failed",
			slog.String("reviewId", review.ID),
			slog.String("placeId", review.PlaceID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("recomputing rating: %w", err)
	}

	invalidatePlaces(ctx, s.cache, s.logger)
	s.metrics.ReviewCreated(review.Rating)
	s.logger.Info("review created",
		slog.String("id", review.ID),
		slog.String("placeId", review.PlaceID),
		slog.Int("rating", review.Rating),
	)

	return review, nil
}

func validateReview(in ReviewInput) (*model.Review, error) {
	fields := map[string]string{}

	placeID := strings.TrimSpace(in.PlaceID)
	if placeID == "" {
		fields["placeId"] = "placeId is required"
	}

	switch {
	case in.Rating == nil:
		fields["rating"] = "rating is required"
	case *in.Rating < model.MinRating || *in.Rating > model.MaxRating:
		fields["rating"] = fmt.Sprintf("rating must be between %d and %d", model.MinRating, model.MaxRating)
	}

	comment := strings.TrimSpace(in.Comment)
	switch {
	case comment == "":
		fields["comment"] = "comment is required"
	case len(comment) > MaxCommentLength:
		fields["comment"] = fmt.Sprintf("comment must be %d characters or less", MaxCommentLength)
	}

	if len(fields) > 0 {
		return nil, apperror.Invalid(fields)
	}

	return &model.Review{PlaceID: placeID, Rating: *in.Rating, Comment: comment}, nil
}
