package model

import "time"

// Rating bounds, inclusive.
const (
	MinRating = 1
	MaxRating = 5
)

// Review is one star rating + comment attached to exactly one place.
// Reviews are never edited; they disappear only when their place is deleted.
type Review struct {
	ID        string    `json:"id"`
	PlaceID   string    `json:"placeId"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createdAt"`
}
