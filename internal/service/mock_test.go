package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/auth"
	"github.com/sakif/trailmap/internal/model"
)

// =========================================================================
// MOCK STORE
// =========================================================================
//
// memStore implements PlaceRepository, ReviewRepository and UserRepository in
// memory. Like the real stores, reads compute aggregates from the reviews and
// UpdatePlaceRating only writes the "stored" columns (kept in stored).
//
// The err* fields let a test make one operation fail.

type memStore struct {
	mu      sync.Mutex
	seq     int
	places  map[string]model.Place
	order   []string // creation order
	reviews []model.Review
	stored  map[string]model.RatingSummary
	users   map[string]model.User // by ID

	errList      error
	errSummarize error
	errDelete    error
	errCreateRev error
	errGetUser   error

	summarizeCalls int
	updateCalls    int
}

func newMemStore() *memStore {
	return &memStore{
		places: make(map[string]model.Place),
		stored: make(map[string]model.RatingSummary),
		users:  make(map[string]model.User),
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) summaryLocked(placeID string) model.RatingSummary {
	var s model.RatingSummary
	for _, r := range m.reviews {
		if r.PlaceID == placeID {
			s = s.Add(r.Rating)
		}
	}
	return s
}

func (m *memStore) CreatePlace(_ context.Context, p *model.Place) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.nextID("place")
	p.CreatedAt = time.Now().UTC()
	m.places[p.ID] = *p
	m.order = append(m.order, p.ID)
	return nil
}

func (m *memStore) GetPlace(_ context.Context, id string) (*model.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.places[id]
	if !ok {
		return nil, apperror.NotFound("place", id)
	}
	p.ApplySummary(m.summaryLocked(id))
	return &p, nil
}

func (m *memStore) ListPlaces(_ context.Context) ([]model.Place, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errList != nil {
		return nil, m.errList
	}
	out := []model.Place{}
	for i := len(m.order) - 1; i >= 0; i-- {
		p, ok := m.places[m.order[i]]
		if !ok {
			continue
		}
		p.ApplySummary(m.summaryLocked(p.ID))
		out = append(out, p)
	}
	return out, nil
}

func (m *memStore) DeletePlace(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errDelete != nil {
		return m.errDelete
	}
	if _, ok := m.places[id]; !ok {
		return apperror.NotFound("place", id)
	}
	delete(m.places, id)
	return nil
}

func (m *memStore) UpdatePlaceRating(_ context.Context, id string, s model.RatingSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if _, ok := m.places[id]; !ok {
		return apperror.NotFound("place", id)
	}
	m.stored[id] = s
	return nil
}

func (m *memStore) CreateReview(_ context.Context, r *model.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errCreateRev != nil {
		return m.errCreateRev
	}
	r.ID = m.nextID("review")
	r.CreatedAt = time.Now().UTC()
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *memStore) ListReviewsByPlace(_ context.Context, placeID string) ([]model.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Review{}
	for i := len(m.reviews) - 1; i >= 0; i-- {
		if m.reviews[i].PlaceID == placeID {
			out = append(out, m.reviews[i])
		}
	}
	return out, nil
}

func (m *memStore) DeleteReviewsByPlace(_ context.Context, placeID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.reviews[:0]
	var n int64
	for _, r := range m.reviews {
		if r.PlaceID == placeID {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.reviews = kept
	return n, nil
}

func (m *memStore) SummarizeRatings(_ context.Context, placeID string) (model.RatingSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summarizeCalls++
	if m.errSummarize != nil {
		return model.RatingSummary{}, m.errSummarize
	}
	return m.summaryLocked(placeID), nil
}

func (m *memStore) reviewCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.reviews)
}

func (m *memStore) CreateUser(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.ExternalID == u.ExternalID {
			return apperror.Conflict("user", u.ExternalID)
		}
	}
	u.ID = m.nextID("user")
	if u.Role == "" {
		u.Role = model.RoleUser
	}
	m.users[u.ID] = *u
	return nil
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return &u, nil
}

func (m *memStore) GetUserByExternalID(_ context.Context, externalID string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errGetUser != nil {
		return nil, m.errGetUser
	}
	for _, u := range m.users {
		if u.ExternalID == externalID {
			return &u, nil
		}
	}
	return nil, apperror.NotFound("user", externalID)
}

func (m *memStore) UpdateUserProfile(_ context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.users[u.ID]
	if !ok {
		return apperror.NotFound("user", u.ID)
	}
	existing.Name, existing.Email, existing.AvatarURL = u.Name, u.Email, u.AvatarURL
	m.users[u.ID] = existing
	return nil
}

func (m *memStore) SetUserRole(_ context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return apperror.NotFound("user", id)
	}
	u.Role = role
	m.users[id] = u
	return nil
}

// cascadeStore adds the transactional delete, so tests cover both branches
// of PlaceService.DeletePlace.
type cascadeStore struct {
	*memStore
	cascadeCalls int
}

func (c *cascadeStore) DeletePlaceCascade(ctx context.Context, id string) (int64, error) {
	c.cascadeCalls++
	if _, err := c.GetPlace(ctx, id); err != nil {
		return 0, err
	}
	n, _ := c.DeleteReviewsByPlace(ctx, id)
	return n, c.DeletePlace(ctx, id)
}

// =========================================================================
// MOCK CACHE / RECORDER / CLAIMS
// =========================================================================

type memCache struct {
	places      []model.Place
	ok          bool
	gen         int64
	gets        int
	sets        int
	invalidated int
	err         error
}

func (c *memCache) GetPlaces(context.Context) ([]model.Place, int64, bool, error) {
	c.gets++
	if c.err != nil {
		return nil, 0, false, c.err
	}
	return c.places, c.gen, c.ok, nil
}

// SetPlaces honours the generation the same way the Redis cache does.
func (c *memCache) SetPlaces(_ context.Context, gen int64, p []model.Place) error {
	if c.err != nil {
		return c.err
	}
	if gen != c.gen {
		return nil
	}
	c.sets++
	c.places, c.ok = p, true
	return nil
}

func (c *memCache) InvalidatePlaces(context.Context) error {
	c.invalidated++
	c.gen++
	c.places, c.ok = nil, false
	return c.err
}

type countingRecorder struct {
	mu             sync.Mutex
	placesCreated  int
	placesDeleted  int
	reviewsCreated int
	recomputes     int
	logins         map[string]int
}

func (r *countingRecorder) PlaceCreated() {
	r.mu.Lock()
	r.placesCreated++
	r.mu.Unlock()
}

func (r *countingRecorder) PlaceDeleted(int64) {
	r.mu.Lock()
	r.placesDeleted++
	r.mu.Unlock()
}

func (r *countingRecorder) ReviewCreated(int) {
	r.mu.Lock()
	r.reviewsCreated++
	r.mu.Unlock()
}

func (r *countingRecorder) RatingRecomputed(time.Duration) {
	r.mu.Lock()
	r.recomputes++
	r.mu.Unlock()
}

func (r *countingRecorder) UserLoggedIn(provider string, _ bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.logins == nil {
		r.logins = map[string]int{}
	}
	r.logins[provider]++
}

// countingClaims wraps MemoryClaims and counts writes, so tests can assert
// that an up-to-date claim is not rewritten.
type countingClaims struct {
	*auth.MemoryClaims
	sets    int
	errRead error
}

func (c *countingClaims) Claims(ctx context.Context, subject string) (auth.CustomClaims, error) {
	if c.errRead != nil {
		return auth.CustomClaims{}, c.errRead
	}
	return c.MemoryClaims.Claims(ctx, subject)
}

func (c *countingClaims) SetClaims(ctx context.Context, subject string, cl auth.CustomClaims) error {
	c.sets++
	return c.MemoryClaims.SetClaims(ctx, subject, cl)
}

// =========================================================================
// HELPERS
// =========================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func adminIdentity() *auth.Identity {
	return &auth.Identity{Subject: "admin-1", Role: model.RoleAdmin}
}

func userIdentity() *auth.Identity {
	return &auth.Identity{Subject: "user-1", Role: model.RoleUser}
}

func intPtr(v int) *int { return &v }

func validPlaceInput() PlaceInput {
	return PlaceInput{
		Name:     "Laavu",
		Category: []string{"hiking"},
		Position: []float64{61.5, 23.7},
		Address:  "Trail 1",
	}
}
