package mongodb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/sakif/trailmap/internal/model"
)

// These run without a server: they check the bson shape the read pipeline
// produces decodes into a complete model.Place.

func TestPlaceRow_DecodesPipelineDocument(t *testing.T) {
	created := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: "abc"},
		{Key: "name", Value: "Koli"},
		{Key: "description", Value: "Hills above Lake Pielinen"},
		{Key: "category", Value: bson.A{"hiking", "lodging"}},
		{Key: "position", Value: bson.A{63.09, 29.81}},
		{Key: "address", Value: "Ylä-Kolintie 39"},
		{Key: "city", Value: "Koli"},
		{Key: "zip", Value: "83960"},
		{Key: "country", Value: "Finland"},
		{Key: "image", Value: ""},
		{Key: "averageRating", Value: 0.0},
		{Key: "reviewCount", Value: 0},
		{Key: "createdAt", Value: created},
		{Key: "ratingCount", Value: 2},
		{Key: "ratingSum", Value: 9},
	})
	require.NoError(t, err)

	var row placeRow
	require.NoError(t, bson.Unmarshal(raw, &row))
	p := row.toModel()

	assert.Equal(t, "abc", p.ID)
	assert.Equal(t, "Koli", p.Name)
	assert.Equal(t, "Hills above Lake Pielinen", p.Description)
	assert.Equal(t, []model.Category{model.CategoryHiking, model.CategoryLodging}, p.Category)
	assert.Equal(t, model.Position{63.09, 29.81}, p.Position)
	assert.Equal(t, "Ylä-Kolintie 39", p.Address)
	assert.Equal(t, "83960", p.Zip)
	assert.Equal(t, "Finland", p.Country)
	assert.True(t, created.Equal(p.CreatedAt))
	assert.Equal(t, 2, p.ReviewCount)
	assert.Equal(t, 4.5, p.AverageRating)
}

func TestPlaceRow_RoundTripsStoredDocument(t *testing.T) {
	doc := placeDoc{
		ID:        "xyz",
		Name:      "Bar Loose",
		Category:  []model.Category{model.CategoryDrinking},
		Position:  model.Position{60.17, 24.94},
		Address:   "Annankatu 21",
		CreatedAt: time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
	}
	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	var row placeRow
	require.NoError(t, bson.Unmarshal(raw, &row))
	p := row.toModel()

	assert.Equal(t, doc.ID, p.ID)
	assert.Equal(t, doc.Name, p.Name)
	assert.Equal(t, doc.Category, p.Category)
	assert.Equal(t, doc.Position, p.Position)
	assert.Equal(t, doc.Address, p.Address)
	assert.Zero(t, p.ReviewCount, "no ratingCount field means no reviews")
	assert.Zero(t, p.AverageRating)
}
