package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OAuthState is the ephemeral PKCE record for one in-flight authorization
// attempt. It is consumed exactly once by the callback and must never
// validate a second callback; expired records are purged before a new one
// is created for the same (user, platform).
type OAuthState struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	Platform     string             `bson:"platform" json:"platform"`
	State        string             `bson:"state" json:"state"` // unique index
	CodeVerifier string             `bson:"code_verifier" json:"-"`
	ExpiresAt    time.Time          `bson:"expires_at" json:"expires_at"` // TTL index
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
}
