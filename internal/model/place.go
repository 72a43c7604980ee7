// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data. Go favours composition over inheritance.
package model

import (
	"math"
	"time"
)

// Category is one of the fixed place tags. A place carries a set of them.
type Category string

const (
	CategoryHiking   Category = "hiking"
	CategoryLodging  Category = "lodging"
	CategoryFishing  Category = "fishing"
	CategoryDrinking Category = "drinking"
)

// Categories lists every accepted tag, in display order.
var Categories = []Category{CategoryHiking, CategoryLodging, CategoryFishing, CategoryDrinking}

// Valid reports whether c is one of the known tags.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Position is a [latitude, longitude] pair.
//
// WHY AN ARRAY AND NOT A STRUCT?
// The map widget and the stored documents both use a two-element array,
// and encoding/json marshals [2]float64 as exactly that: [60.17, 24.94].
type Position [2]float64

func (p Position) Lat() float64 { return p[0] }
func (p Position) Lng() float64 { return p[1] }

// Finite reports whether both coordinates are real numbers.
func (p Position) Finite() bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// InRange reports whether the coordinates are on the globe.
func (p Position) InRange() bool {
	return p.Lat() >= -90 && p.Lat() <= 90 && p.Lng() >= -180 && p.Lng() <= 180
}

// Place is a point of interest on the map.
//
// AverageRating and ReviewCount are DERIVED values. No client write sets them:
// reads compute them from the reviews table, and the rating aggregator writes
// them back onto the stored record after every review.
type Place struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Category      []Category `json:"category"`
	Position      Position   `json:"position"`
	Address       string     `json:"address"`
	City          string     `json:"city"`
	Zip           string     `json:"zip"`
	Country       string     `json:"country"`
	Image         string     `json:"image"`
	AverageRating float64    `json:"averageRating"`
	ReviewCount   int        `json:"reviewCount"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// ApplySummary copies the derived rating fields from s onto the place.
func (p *Place) ApplySummary(s RatingSummary) {
	p.AverageRating = s.Average()
	p.ReviewCount = s.Count
}

// HasCategory reports whether the place is tagged with c.
func (p *Place) HasCategory(c Category) bool {
	for _, have := range p.Category {
		if have == c {
			return true
		}
	}
	return false
}
