package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Profile is a connected social account with OAuth credentials. Tokens are
// rotated by the token refresh scheduler; the OAuth callback creates the
// initial set.
type Profile struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	Platform       string             `bson:"platform" json:"platform"`
	AccountID      string             `bson:"account_id" json:"account_id"`
	AccountName    string             `bson:"account_name,omitempty" json:"account_name,omitempty"`
	AccessToken    string             `bson:"access_token" json:"-"`
	RefreshToken   string             `bson:"refresh_token,omitempty" json:"-"`
	TokenExpiresAt *time.Time         `bson:"token_expires_at,omitempty" json:"token_expires_at,omitempty"`
	IsActive       bool               `bson:"is_active" json:"is_active"`
	Metadata       map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// TokenExpired reports whether the access token is past its expiry at the
// given instant. Profiles without an expiry never expire.
func (p *Profile) TokenExpired(now time.Time) bool {
	return p.TokenExpiresAt != nil && now.After(*p.TokenExpiresAt)
}
