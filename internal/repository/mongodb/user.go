package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/sakif/trailmap/internal/apperror"
	"github.com/sakif/trailmap/internal/model"
)

type userDoc struct {
	ID         string    `bson:"_id"`
	ExternalID string    `bson:"externalId"`
	Name       string    `bson:"name"`
	Email      string    `bson:"email"`
	AvatarURL  string    `bson:"avatarUrl"`
	Role       string    `bson:"role"`
	CreatedAt  time.Time `bson:"createdAt"`
	UpdatedAt  time.Time `bson:"updatedAt"`
}

func (d userDoc) toModel() *model.User {
	return &model.User{
		ID:         d.ID,
		ExternalID: d.ExternalID,
		Name:       d.Name,
		Email:      d.Email,
		AvatarURL:  d.AvatarURL,
		Role:       d.Role,
		CreatedAt:  d.CreatedAt,
		UpdatedAt:  d.UpdatedAt,
	}
}

// CreateUser inserts a user. A duplicate externalId or email comes back as
// apperror.ErrConflict.
func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	ts := now()
	user.ID = xid.New().String()
	user.CreatedAt = ts
	user.UpdatedAt = ts
	if user.Role == "" {
		user.Role = model.RoleUser
	}

	_, err := db.users.InsertOne(ctx, userDoc{
		ID:         user.ID,
		ExternalID: user.ExternalID,
		Name:       user.Name,
		Email:      user.Email,
		AvatarURL:  user.AvatarURL,
		Role:       user.Role,
		CreatedAt:  user.CreatedAt,
		UpdatedAt:  user.UpdatedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.ExternalID)
		}
		return fmt.Errorf("mongodb: inserting user (externalID=%s): %w", user.ExternalID, err)
	}
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.findUser(ctx, bson.D{{Key: "_id", Value: id}}, id)
}

func (db *DB) GetUserByExternalID(ctx context.Context, externalID string) (*model.User, error) {
	return db.findUser(ctx, bson.D{{Key: "externalId", Value: externalID}}, externalID)
}

func (db *DB) findUser(ctx context.Context, filter bson.D, key string) (*model.User, error) {
	var doc userDoc
	err := db.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperror.NotFound("user", key)
	}
	if err != nil {
		return nil, fmt.Errorf("mongodb: getting user %s: %w", key, err)
	}
	return doc.toModel(), nil
}

// UpdateUserProfile refreshes name, email and avatar. Role is untouched.
func (db *DB) UpdateUserProfile(ctx context.Context, user *model.User) error {
	user.UpdatedAt = now()

	res, err := db.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: user.ID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "name", Value: user.Name},
			{Key: "email", Value: user.Email},
			{Key: "avatarUrl", Value: user.AvatarURL},
			{Key: "updatedAt", Value: user.UpdatedAt},
		}}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return apperror.Conflict("user", user.ID)
		}
		return fmt.Errorf("mongodb: updating user %s: %w", user.ID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", user.ID)
	}
	return nil
}

// SetUserRole changes a user's role out-of-band.
func (db *DB) SetUserRole(ctx context.Context, id, role string) error {
	res, err := db.users.UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "role", Value: role},
			{Key: "updatedAt", Value: now()},
		}}},
	)
	if err != nil {
		return fmt.Errorf("mongodb: setting role of user %s: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
