package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"social-publisher-platform/internal/platform"
)

func TestRefreshExpiringTokensRotatesInsideLookahead(t *testing.T) {
	fixed := time.Now()
	expiring := activeProfile()
	soon := fixed.Add(30 * time.Minute)
	expiring.TokenExpiresAt = &soon

	healthy := activeProfile()
	later := fixed.Add(48 * time.Hour)
	healthy.TokenExpiresAt = &later

	profiles := newFakeProfileStore(expiring, healthy)
	pub := &fakePublisher{tokens: &platform.TokenSet{
		AccessToken:  "rotated-access",
		RefreshToken: "rotated-refresh",
		ExpiresAt:    fixed.Add(2 * time.Hour),
	}}

	refresher := NewTokenRefresher(profiles, testRegistry(pub), time.Hour, 0.5).
		WithClock(func() time.Time { return fixed })
	report := refresher.RefreshExpiringTokens(context.Background())

	require.Equal(t, 1, report.Total)
	require.Equal(t, 1, report.Refreshed)
	require.Zero(t, report.Failed)
	require.Equal(t, 1, pub.refreshed)

	got, err := profiles.GetByID(context.Background(), expiring.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, "rotated-access", got.AccessToken)
	require.Equal(t, "rotated-refresh", got.RefreshToken)

	untouched, _ := profiles.GetByID(context.Background(), healthy.ID.Hex())
	require.Equal(t, "access", untouched.AccessToken)
}

func TestRefreshExpiringTokensDeactivatesOnCredentialFailure(t *testing.T) {
	fixed := time.Now()
	profile := activeProfile()
	soon := fixed.Add(10 * time.Minute)
	profile.TokenExpiresAt = &soon

	profiles := newFakeProfileStore(profile)
	pub := &fakePublisher{refreshErr: platform.Credential("grant revoked by user", nil)}

	refresher := NewTokenRefresher(profiles, testRegistry(pub), time.Hour, 0.5).
		WithClock(func() time.Time { return fixed })
	report := refresher.RefreshExpiringTokens(context.Background())

	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Results, 1)
	require.True(t, report.Results[0].Deactivated)
	require.Contains(t, report.Results[0].Message, "deactivated")

	got, _ := profiles.GetByID(context.Background(), profile.ID.Hex())
	require.False(t, got.IsActive)
}

func TestRefreshExpiringTokensKeepsProfileOnTransientFailure(t *testing.T) {
	fixed := time.Now()
	profile := activeProfile()
	soon := fixed.Add(10 * time.Minute)
	profile.TokenExpiresAt = &soon

	profiles := newFakeProfileStore(profile)
	pub := &fakePublisher{refreshErr: platform.Transient("token endpoint timeout", nil)}

	refresher := NewTokenRefresher(profiles, testRegistry(pub), time.Hour, 0.5).
		WithClock(func() time.Time { return fixed })
	report := refresher.RefreshExpiringTokens(context.Background())

	require.Equal(t, 1, report.Failed)
	require.False(t, report.Results[0].Deactivated)

	// Transient failures leave the profile connected for the next run.
	got, _ := profiles.GetByID(context.Background(), profile.ID.Hex())
	require.True(t, got.IsActive)
}

func TestRefreshProfileTokenManualTrigger(t *testing.T) {
	profile := activeProfile()
	profiles := newFakeProfileStore(profile)
	pub := &fakePublisher{}

	refresher := NewTokenRefresher(profiles, testRegistry(pub), time.Hour, 0.5)
	result := refresher.RefreshProfileToken(context.Background(), profile.ID.Hex())

	require.True(t, result.Success)
	require.Equal(t, profile.Platform, result.Platform)
	require.NotNil(t, result.ExpiresAt)

	got, _ := profiles.GetByID(context.Background(), profile.ID.Hex())
	require.Equal(t, "new-access", got.AccessToken)
}

func TestRefreshProfileTokenMissingProfile(t *testing.T) {
	refresher := NewTokenRefresher(newFakeProfileStore(), testRegistry(&fakePublisher{}), time.Hour, 0.5)
	result := refresher.RefreshProfileToken(context.Background(), "656565656565656565656565")

	require.False(t, result.Success)
	require.Contains(t, result.Message, "load profile")
}
