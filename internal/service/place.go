package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/model"
	"github.com/sakif/trailmap/internal/repository"
)

const (
	MaxPlaceNameLength   = 200
	MaxDescriptionLength = 5000
)

// PlaceInput is what a client may set when creating a place. Rating fields are
// absent on purpose: they are derived from reviews.
//
// Position is a slice (not model.Position) so a missing or wrong-length value
// can be told apart from [0, 0].
type PlaceInput struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    []string  `json:"category"`
	Position    []float64 `json:"position"`
	Address     string    `json:"address"`
	City        string    `json:"city"`
	Zip         string    `json:"zip"`
	Country     string    `json:"country"`
}

// PlaceFilter narrows ListPlaces. The zero value lists everything.
type PlaceFilter struct {
	// Query matches case-insensitively anywhere in name, description or a
	// category tag.
	Query string
	// Category keeps only places carrying this tag.
	Category string
}

func (f PlaceFilter) empty() bool {
	return strings.TrimSpace(f.Query) == "" && strings.TrimSpace(f.Category) == ""
}

// DeleteResult reports the cascade.
type DeleteResult struct {
	PlaceID        string `json:"placeId"`
	ReviewsDeleted int64  `json:"reviewsDeleted"`
}

type PlaceService struct {
	places  repository.PlaceRepository
	reviews repository.ReviewRepository
	cache   PlaceCache
	metrics Recorder
	logger  *slog.Logger
}

// NewPlaceService wires a PlaceService. cache and metrics may be nil.
func NewPlaceService(
	places repository.PlaceRepository,
	reviews repository.ReviewRepository,
	cache PlaceCache,
	metrics Recorder,
	logger *slog.Logger,
) *PlaceService {
	return &PlaceService{
		places:  places,
		reviews: reviews,
		cache:   cacheOrNone(cache),
		metrics: recorderOrNoop(metrics),
		logger:  logger,
	}
}

// ListPlaces returns places newest first with aggregates computed from
// reviews. Only the unfiltered list goes through the cache; filters are
// applied in memory on top of it.
func (s *PlaceService) ListPlaces(ctx context.Context, filter PlaceFilter) ([]model.Place, error) {
	places, err := s.allPlaces(ctx)
	if err != nil {
		return nil, err
	}
	if filter.empty() {
		return places, nil
	}
	return filterPlaces(places, filter), nil
}

func (s *PlaceService) allPlaces(ctx context.Context) ([]model.Place, error) {
	cached, gen, ok, cacheErr := s.cache.GetPlaces(ctx)
	if cacheErr != nil {
		s.logger.Warn("place cache read failed", slog.String("error", cacheErr.Error()))
	}
	if ok {
		return cached, nil
	}

	places, err := s.places.ListPlaces(ctx)
	if err != nil {
		s.logger.Error("failed to list places", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing places: %w", err)
	}

	// Without a generation from a successful read there is nothing safe to
	// compare against, so skip the write.
	if cacheErr != nil {
		return places, nil
	}
	if err := s.cache.SetPlaces(ctx, gen, places); err != nil {
		s.logger.Warn("place cache write failed", slog.String("error", err.Error()))
	}
	return places, nil
}

func filterPlaces(places []model.Place, f PlaceFilter) []model.Place {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	category := model.Category(strings.ToLower(strings.TrimSpace(f.Category)))

	out := []model.Place{}
	for _, p := range places {
		if category != "" && !p.HasCategory(category) {
			continue
		}
		if q != "" && !matchesQuery(p, q) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func matchesQuery(p model.Place, q string) bool {
	if strings.Contains(strings.ToLower(p.Name), q) ||
		strings.Contains(strings.ToLower(p.Description), q) {
		return true
	}
	for _, c := range p.Category {
		if strings.Contains(string(c), q) {
			return true
		}
	}
	return false
}

// GetPlace returns one place. Aggregates are always recomputed from reviews.
func (s *PlaceService) GetPlace(ctx context.Context, id string) (*model.Place, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "place ID is required")
	}
	return s.places.GetPlace(ctx, id)
}

// CreatePlace checks the caller is an admin, validates every field and stores
// the place with averageRating 0 and reviewCount 0.
//
// ORDER MATTERS: the access check runs BEFORE validation, so an anonymous
// caller learns nothing about what a valid place looks like.
func (s *PlaceService) CreatePlace(ctx context.Context, caller *auth.Identity, in PlaceInput) (*model.Place, error) {
	if err := auth.RequireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}

	place, err := validatePlace(in)
	if err != nil {
		return nil, err
	}

	if err := s.places.CreatePlace(ctx, place); err != nil {
		s.logger.Error("failed to create place",
			slog.String("name", place.Name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating place: %w", err)
	}

	invalidatePlaces(ctx, s.cache, s.logger)
	s.metrics.PlaceCreated()
	s.logger.Info("place created",
		slog.String("id", place.ID),
		slog.String("name", place.Name),
		slog.String("by", caller.Subject),
	)

	return place, nil
}

// validatePlace collects EVERY invalid field into one error.
func validatePlace(in PlaceInput) (*model.Place, error) {
	fields := map[string]string{}

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		fields["name"] = "name is required"
	case len(name) > MaxPlaceNameLength:
		fields["name"] = fmt.Sprintf("name must be %d characters or less", MaxPlaceNameLength)
	}

	description := strings.TrimSpace(in.Description)
	if len(description) > MaxDescriptionLength {
		fields["description"] = fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength)
	}

	address := strings.TrimSpace(in.Address)
	if address == "" {
		fields["address"] = "address is required"
	}

	var position model.Position
	switch {
	case in.Position == nil:
		fields["position"] = "position is required"
	case len(in.Position) != 2:
		fields["position"] = "position must be [latitude, longitude]"
	default:
		position = model.Position{in.Position[0], in.Position[1]}
		if !position.Finite() || !position.InRange() {
			fields["position"] = "position must be a latitude in [-90, 90] and a longitude in [-180, 180]"
		}
	}

	categories, msg := normalizeCategories(in.Category)
	if msg != "" {
		fields["category"] = msg
	}

	if len(fields) > 0 {
		return nil, apperror.Invalid(fields)
	}

	return &model.Place{
		Name:        name,
		Description: description,
		Category:    categories,
		Position:    position,
		Address:     address,
		City:        strings.TrimSpace(in.City),
		Zip:         strings.TrimSpace(in.Zip),
		Country:     strings.TrimSpace(in.Country),
	}, nil
}

// normalizeCategories lowercases and trims tags, drops duplicates keeping the
// first occurrence, and rejects unknown tags. It returns a message rather than
// an error because the caller folds it into the field map.
func normalizeCategories(raw []string) ([]model.Category, string) {
	out := make([]model.Category, 0, len(raw))
	seen := make(map[model.Category]bool, len(raw))
	var unknown []string

	for _, r := range raw {
		c := model.Category(strings.ToLower(strings.TrimSpace(r)))
		if !c.Valid() {
			unknown = append(unknown, r)
			continue
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}

	if len(unknown) > 0 {
		return nil, fmt.Sprintf("unknown category %q", strings.Join(unknown, ", "))
	}
	return out, ""
}

// DeletePlace removes a place and every review of it.
//
// CASCADE:
// A store that implements repository.CascadeDeleter does both deletes in one
// transaction. Otherwise reviews go first and the place second: if the second
// step fails we are left with a place without reviews, never with reviews
// pointing at a place that no longer exists.
func (s *PlaceService) DeletePlace(ctx context.Context, caller *auth.Identity, id string) (*DeleteResult, error) {
	if err := auth.RequireRole(caller, model.RoleAdmin); err != nil {
		return nil, err
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "place ID is required")
	}

	var (
		reviewsDeleted int64
		err            error
	)
	if cd, ok := s.places.(repository.CascadeDeleter); ok {
		reviewsDeleted, err = cd.DeletePlaceCascade(ctx, id)
	} else {
		reviewsDeleted, err = s.deleteReviewsThenPlace(ctx, id)
	}
	if err != nil {
		return nil, err
	}

	invalidatePlaces(ctx, s.cache, s.logger)
	s.metrics.PlaceDeleted(reviewsDeleted)
	s.logger.Info("place deleted",
		slog.String("id", id),
		slog.Int64("reviewsDeleted", reviewsDeleted),
		slog.String("by", caller.Subject),
	)

	return &DeleteResult{PlaceID: id, ReviewsDeleted: reviewsDeleted}, nil
}

func (s *PlaceService) deleteReviewsThenPlace(ctx context.Context, id string) (int64, error) {
	// Existence first, so deleting an unknown id is NotFound and touches nothing.
	if _, err := s.places.GetPlace(ctx, id); err != nil {
		return 0, err
	}

	n, err := s.reviews.DeleteReviewsByPlace(ctx, id)
	if err != nil {
		s.logger.Error("failed to delete reviews of place",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("deleting reviews of place %s: %w", id, err)
	}

	if err := s.places.DeletePlace(ctx, id); err != nil {
		s.logger.Error("reviews deleted but place remains",
			slog.String("id", id),
			slog.Int64("reviewsDeleted", n),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("deleting place %s: %w", id, err)
	}

	return n, nil
}
