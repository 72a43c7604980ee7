package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/trailmap/internal/model"
)

func TestCreateReview(t *testing.T) {
	db := newTestDB(t)
	place := createTestPlace(t, db, "reviewed")

	review := createTestReview(t, db, place.ID, 4)
	if review.ID == "" {
		t.Error("CreateReview() did not set review.ID")
	}
	if review.CreatedAt.IsZero() {
		t.Error("CreateReview() did not set review.CreatedAt")
	}
}

func TestCreateReview_UnknownPlace(t *testing.T) {
	db := newTestDB(t)

	// The foreign key rejects a review for a place that was never inserted.
	err := db.CreateReview(context.Background(), &model.Review{PlaceID: "ghost", Rating: 3, Comment: "x"})
	if err == nil {
		t.Error("CreateReview() succeeded for a missing place")
	}
}

func TestListReviewsByPlace_NewestFirst(t *testing.T) {
	db := newTestDB(t)
	place := createTestPlace(t, db, "ordered")
	first := createTestReview(t, db, place.ID, 1)
	second := createTestReview(t, db, place.ID, 2)
	third := createTestReview(t, db, place.ID, 3)

	reviews, err := db.ListReviewsByPlace(context.Background(), place.ID)
	if err != nil {
		t.Fatalf("ListReviewsByPlace() error = %v", err)
	}
	if len(reviews) != 3 {
		t.Fatalf("len(reviews) = %d, want 3", len(reviews))
	}

	want := []string{third.ID, second.ID, first.ID}
	for i, id := range want {
		if reviews[i].ID != id {
			t.Errorf("reviews[%d].ID = %q, want %q", i, reviews[i].ID, id)
		}
	}
}

func TestListReviewsByPlace_Empty(t *testing.T) {
	db := newTestDB(t)

	reviews, err := db.ListReviewsByPlace(context.Background(), "no-such-place")
	if err != nil {
		t.Fatalf("ListReviewsByPlace() error = %v", err)
	}
	if reviews == nil || len(reviews) != 0 {
		t.Errorf("reviews = %v, want empty non-nil slice", reviews)
	}
}

func TestSummarizeRatings(t *testing.T) {
	db := newTestDB(t)
	place := createTestPlace(t, db, "summed")

	s, err := db.SummarizeRatings(context.Background(), place.ID)
	if err != nil {
		t.Fatalf("SummarizeRatings() error = %v", err)
	}
	if s.Count != 0 || s.Sum != 0 {
		t.Errorf("empty summary = %+v, want zero", s)
	}

	for _, r := range []int{4, 5, 3, 5} {
		createTestReview(t, db, place.ID, r)
	}

	s, err = db.SummarizeRatings(context.Background(), place.ID)
	if err != nil {
		t.Fatalf("SummarizeRatings() error = %v", err)
	}
	if s.Count != 4 || s.Sum != 17 {
		t.Errorf("summary = %+v, want {Count:4 Sum:17}", s)
	}
	if s.Average() != 4.3 {
		t.Errorf("Average() = %v, want 4.3", s.Average())
	}
}

func TestDeleteReviewsByPlace(t *testing.T) {
	db := newTestDB(t)
	place := createTestPlace(t, db, "cleared")
	createTestReview(t, db, place.ID, 1)
	createTestReview(t, db, place.ID, 2)

	n, err := db.DeleteReviewsByPlace(context.Background(), place.ID)
	if err != nil {
		t.Fatalf("DeleteReviewsByPlace() error = %v", err)
	}
	if n != 2 {
		t.Errorf("deleted = %d, want 2", n)
	}
}
