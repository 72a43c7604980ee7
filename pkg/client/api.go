package client

import (
	"context"
	"net/http"
	"net/url"
	"time"
)

type Place struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Category      []string   `json:"category"`
	Position      [2]float64 `json:"position"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	Zip           string     `json:"zip"`
	Country       string     `json:"country"`
	Image         string     `json:"image"`
	AverageRating float64    `json:"averageRating"`
	ReviewCount   int        `json:"reviewCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// NewPlace is the body of CreatePlace.
type NewPlace struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Category    []string   `json:"category,omitempty"`
	Position    [2]float64 `json:"position"`
	Address     string     `json:"address"`
	City        string     `json:"city,omitempty"`
	Zip         string     `json:"zip,omitempty"`
	Country     string     `json:"country,omitempty"`
}

type PlaceFilter struct {
	Query    string
	Category string
}

type Review struct {
	ID        string    `json:"id"`
	PlaceID   string    `json:"placeId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"externalId"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	AvatarURL  string    `json:"avatarUrl"`
	Role       string    `json:"role"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func (c *Client) ListPlaces(ctx context.Context, filter PlaceFilter) ([]Place, error) {
	q := url.Values{}
	if filter.Query != "" {
		q.Set("q", filter.Query)
	}
	if filter.Category != "" {
		q.Set("category", filter.Category)
	}

	var places []Place
	if err := c.do(ctx, http.MethodGet, "/places", q, nil, &places); err != nil {
		return nil, err
	}
	return places, nil
}

func (c *Client) GetPlace(ctx context.Context, id string) (*Place, error) {
	var place Place
	if err := c.do(ctx, http.MethodGet, "/places/"+url.PathEscape(id), nil, nil, &place); err != nil {
		return nil, err
	}
	return &place, nil
}

// CreatePlace needs an admin token.
func (c *Client) CreatePlace(ctx context.Context, in NewPlace) (*Place, error) {
	var place Place
	if err := c.do(ctx, http.MethodPost, "/places", nil, in, &place); err != nil {
		return nil, err
	}
	return &place, nil
}

// DeletePlace needs an admin token. It returns how many reviews went with the
// place.
func (c *Client) DeletePlace(ctx context.Context, id string) (int64, error) {
	var resp struct {
		ReviewsDeleted int64 `json:"reviewsDeleted"`
	}
	if err := c.do(ctx, http.MethodDelete, "/places/"+url.PathEscape(id), nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.ReviewsDeleted, nil
}

func (c *Client) ListReviews(ctx context.Context, placeID string) ([]Review, error) {
	var reviews []Review
	q := url.Values{"placeId": {placeID}}
	if err := c.do(ctx, http.MethodGet, "/reviews", q, nil, &reviews); err != nil {
		return nil, err
	}
	return reviews, nil
}

// CreateReview posts a review. Within ReviewInterval of the previous
// successful review it returns a *ThrottleError without contacting the
// server. Calls on one Client are serialized.
func (c *Client) CreateReview(ctx context.Context, placeID string, rating int, comment string) (*Review, error) {
	c.reviewMu.Lock()
	defer c.reviewMu.Unlock()

	if !c.lastReview.IsZero() {
		if elapsed := c.now().Sub(c.lastReview); elapsed < ReviewInterval {
			return nil, &ThrottleError{Wait: ReviewInterval - elapsed}
		}
	}

	body := map[string]any{"placeId": placeID, "rating": rating, "comment": comment}
	var review Review
	if err := c.do(ctx, http.MethodPost, "/reviews", nil, body, &review); err != nil {
		return nil, err
	}

	c.lastReview = c.now()
	return &review, nil
}

// Login exchanges a provider identity token for the synced local user.
func (c *Client) Login(ctx context.Context, idToken string) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, map[string]string{"idToken": idToken}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the user behind the client's token.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
