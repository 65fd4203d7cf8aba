package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

type stubProfileStore struct {
	profile *models.Profile
}

func (s *stubProfileStore) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	if s.profile == nil || s.profile.ID.Hex() != id {
		return nil, store.ErrNotFound
	}
	clone := *s.profile
	return &clone, nil
}

func (s *stubProfileStore) ListByUser(ctx context.Context, userID string) ([]models.Profile, error) {
	return nil, nil
}

func (s *stubProfileStore) ListExpiring(ctx context.Context, before time.Time) ([]models.Profile, error) {
	return nil, nil
}

func (s *stubProfileStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	return nil
}

func (s *stubProfileStore) Deactivate(ctx context.Context, id string) error {
	return nil
}

func (s *stubProfileStore) Upsert(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	return profile, nil
}

func schedulingContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/posts/x/schedule", nil)
	return c, rec
}

func TestRequireActiveProfileRejectsDisconnected(t *testing.T) {
	profile := &models.Profile{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Platform: models.PlatformTwitter,
		IsActive: false,
	}
	post := &models.Post{
		ID:        primitive.NewObjectID(),
		UserID:    profile.UserID,
		ProfileID: profile.ID,
		Status:    models.PostStatusFailed,
	}

	c, rec := schedulingContext(t)
	if requireActiveProfile(c, &stubProfileStore{profile: profile}, post) {
		t.Fatal("disconnected profile must not be schedulable")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRequireActiveProfileRejectsMissing(t *testing.T) {
	post := &models.Post{
		ID:        primitive.NewObjectID(),
		UserID:    primitive.NewObjectID(),
		ProfileID: primitive.NewObjectID(),
		Status:    models.PostStatusDraft,
	}

	c, rec := schedulingContext(t)
	if requireActiveProfile(c, &stubProfileStore{}, post) {
		t.Fatal("missing profile must not be schedulable")
	}
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRequireActiveProfileAllowsActive(t *testing.T) {
	profile := &models.Profile{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Platform: models.PlatformTwitter,
		IsActive: true,
	}
	post := &models.Post{
		ID:        primitive.NewObjectID(),
		UserID:    profile.UserID,
		ProfileID: profile.ID,
		Status:    models.PostStatusDraft,
	}

	c, rec := schedulingContext(t)
	if !requireActiveProfile(c, &stubProfileStore{profile: profile}, post) {
		t.Fatal("active profile should pass the guard")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("guard should not write a response, recorder has %d", rec.Code)
	}
}
