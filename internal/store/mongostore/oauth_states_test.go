package mongostore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

// testDatabase connects to the Mongo instance named by TEST_MONGO_URI, or
// skips the test when none is available.
func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()

	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skipf("TEST_MONGO_URI not set, skipping Mongo integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		t.Skipf("MongoDB not reachable: %v", err)
	}
	t.Cleanup(func() {
		client.Disconnect(context.Background())
	})

	return client.Database("social_publisher_test")
}

func newTestState(userID primitive.ObjectID, expiresAt time.Time) *models.OAuthState {
	return &models.OAuthState{
		UserID:       userID,
		Platform:     models.PlatformTwitter,
		State:        primitive.NewObjectID().Hex(),
		CodeVerifier: "verifier-" + primitive.NewObjectID().Hex(),
		ExpiresAt:    expiresAt,
	}
}

func TestConsumeIsOneShot(t *testing.T) {
	db := testDatabase(t)
	states := NewOAuthStateStore(db)
	ctx := context.Background()

	userID := primitive.NewObjectID()
	record := newTestState(userID, time.Now().Add(10*time.Minute))
	if err := states.Create(ctx, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	verifier, err := states.Consume(ctx, userID.Hex(), record.Platform, record.State)
	if err != nil {
		t.Fatalf("first Consume: %v", err)
	}
	if verifier != record.CodeVerifier {
		t.Fatalf("expected verifier %q, got %q", record.CodeVerifier, verifier)
	}

	// The state validated one callback; a replay must find nothing.
	_, err = states.Consume(ctx, userID.Hex(), record.Platform, record.State)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second Consume: expected ErrNotFound, got %v", err)
	}
}

func TestConsumeExpiredStateFails(t *testing.T) {
	db := testDatabase(t)
	states := NewOAuthStateStore(db)
	ctx := context.Background()

	userID := primitive.NewObjectID()
	record := newTestState(userID, time.Now().Add(-time.Minute))

	// Insert directly; Create purges expired records for the same
	// (user, platform) up front.
	record.CreatedAt = time.Now().UTC()
	if _, err := db.Collection("oauth_states").InsertOne(ctx, record); err != nil {
		t.Fatalf("insert expired state: %v", err)
	}

	_, err := states.Consume(ctx, userID.Hex(), record.Platform, record.State)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expired Consume: expected ErrNotFound, got %v", err)
	}
}

func TestConsumeWrongUserFails(t *testing.T) {
	db := testDatabase(t)
	states := NewOAuthStateStore(db)
	ctx := context.Background()

	userID := primitive.NewObjectID()
	record := newTestState(userID, time.Now().Add(10*time.Minute))
	if err := states.Create(ctx, record); err != nil {
		t.Fatalf("Create: %v", err)
	}

	other := primitive.NewObjectID()
	_, err := states.Consume(ctx, other.Hex(), record.Platform, record.State)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("cross-user Consume: expected ErrNotFound, got %v", err)
	}

	// The state is still intact for its owner.
	if _, err := states.Consume(ctx, userID.Hex(), record.Platform, record.State); err != nil {
		t.Fatalf("owner Consume after failed cross-user attempt: %v", err)
	}
}
