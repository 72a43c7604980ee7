package model

import "time"

// Role values stored on the user record and carried in the identity token's
// "role" claim.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User is the local record of an identity from the external provider.
//
// ExternalID is the provider's subject ("sub" claim). It is stable, so it is
// the key we sync on; ID is our own xid so our primary keys are not tied to a
// third party's numbering. Exactly one row exists per ExternalID (UNIQUE).
//
// Role is the source of truth for authorization. On every login it is pushed
// back into the provider's custom claims when they disagree, so the NEXT token
// the provider issues carries it.
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

// IsAdmin reports whether the stored role grants admin access.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
