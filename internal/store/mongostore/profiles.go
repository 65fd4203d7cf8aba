package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

// ProfileStore is the MongoDB implementation of store.ProfileStore.
type ProfileStore struct {
	col *mongo.Collection
}

func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{col: db.Collection("profiles")}
}

func (s *ProfileStore) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var profile models.Profile
	err = s.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

func (s *ProfileStore) ListByUser(ctx context.Context, userID string) ([]models.Profile, error) {
	uid, err := parseID(userID)
	if err != nil {
		return nil, err
	}

	cursor, err := s.col.Find(ctx, bson.M{"user_id": uid},
		options.Find().SetSort(bson.D{{Key: "platform", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []models.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// ListExpiring selects active profiles whose token expiry falls before the
// given instant. Profiles without an expiry are skipped; their tokens do
// not rotate.
func (s *ProfileStore) ListExpiring(ctx context.Context, before time.Time) ([]models.Profile, error) {
	cursor, err := s.col.Find(ctx, bson.M{
		"is_active":        true,
		"token_expires_at": bson.M{"$ne": nil, "$lte": before.UTC()},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var profiles []models.Profile
	if err := cursor.All(ctx, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

func (s *ProfileStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	set := bson.M{
		"access_token":     accessToken,
		"token_expires_at": expiresAt.UTC(),
		"updated_at":       time.Now().UTC(),
	}
	// Some platforms do not return a new refresh token on rotation; keep
	// the old one in that case.
	if refreshToken != "" {
		set["refresh_token"] = refreshToken
	}

	res, err := s.col.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *ProfileStore) Deactivate(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := s.col.UpdateOne(ctx,
		bson.M{"_id": oid},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Upsert creates or reactivates the profile for (user, platform, account).
// The OAuth callback goes through here so reconnecting an account rotates
// its credentials in place.
func (s *ProfileStore) Upsert(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	now := time.Now().UTC()

	filter := bson.M{
		"user_id":    profile.UserID,
		"platform":   profile.Platform,
		"account_id": profile.AccountID,
	}
	set := bson.M{
		"account_name": profile.AccountName,
		"access_token": profile.AccessToken,
		"is_active":    true,
		"updated_at":   now,
	}
	if profile.RefreshToken != "" {
		set["refresh_token"] = profile.RefreshToken
	}
	if profile.TokenExpiresAt != nil {
		set["token_expires_at"] = profile.TokenExpiresAt.UTC()
	}
	for k, v := range profile.Metadata {
		set["metadata."+k] = v
	}

	var saved models.Profile
	err := s.col.FindOneAndUpdate(ctx,
		filter,
		bson.M{
			"$set": set,
			"$setOnInsert": bson.M{
				"user_id":    profile.UserID,
				"platform":   profile.Platform,
				"account_id": profile.AccountID,
				"created_at": now,
			},
		},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&saved)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}
