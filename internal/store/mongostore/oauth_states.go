package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

// OAuthStateStore is the MongoDB implementation of store.OAuthStateStore.
type OAuthStateStore struct {
	col *mongo.Collection
}

func NewOAuthStateStore(db *mongo.Database) *OAuthStateStore {
	return &OAuthStateStore{col: db.Collection("oauth_states")}
}

// Create purges expired records for the same (user, platform) first so
// abandoned handshakes never accumulate, then inserts the new state.
func (s *OAuthStateStore) Create(ctx context.Context, state *models.OAuthState) error {
	if _, err := s.PurgeExpired(ctx, state.UserID.Hex(), state.Platform); err != nil {
		return err
	}

	state.CreatedAt = time.Now().UTC()
	_, err := s.col.InsertOne(ctx, state)
	return err
}

// Consume atomically deletes and returns the matching unexpired state.
// The delete is what makes the handshake one-shot: a second callback with
// the same state finds nothing, as does any callback after expiry.
func (s *OAuthStateStore) Consume(ctx context.Context, userID, platform, state string) (string, error) {
	uid, err := parseID(userID)
	if err != nil {
		return "", err
	}

	var record models.OAuthState
	err = s.col.FindOneAndDelete(ctx, bson.M{
		"user_id":    uid,
		"platform":   platform,
		"state":      state,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}).Decode(&record)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return record.CodeVerifier, nil
}

func (s *OAuthStateStore) PurgeExpired(ctx context.Context, userID, platform string) (int64, error) {
	uid, err := parseID(userID)
	if err != nil {
		return 0, err
	}

	res, err := s.col.DeleteMany(ctx, bson.M{
		"user_id":    uid,
		"platform":   platform,
		"expires_at": bson.M{"$lte": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
