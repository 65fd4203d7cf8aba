package services

import (
	"context"
	"fmt"
	"time"

	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/internal/telemetry"
)

// RefreshResult is the outcome of one profile's token refresh.
type RefreshResult struct {
	ProfileID   string     `json:"profileId"`
	Platform    string     `json:"platform"`
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	Deactivated bool       `json:"deactivated,omitempty"`
}

// RefreshReport aggregates one scheduler run.
type RefreshReport struct {
	Total     int             `json:"total"`
	Refreshed int             `json:"refreshed"`
	Failed    int             `json:"failed"`
	Results   []RefreshResult `json:"results"`
}

// TokenRefresher proactively renews OAuth credentials nearing expiry so
// publishes never hit a dead token at post time. Permanent revocations
// deactivate the profile, which short-circuits the worker's credential
// guard without waiting for a live platform error.
type TokenRefresher struct {
	profiles   store.ProfileStore
	registry   *platform.Registry
	metrics    *telemetry.Metrics
	lookahead  time.Duration
	alertRatio float64
	now        func() time.Time
}

func NewTokenRefresher(profiles store.ProfileStore, registry *platform.Registry, lookahead time.Duration, alertRatio float64) *TokenRefresher {
	return &TokenRefresher{
		profiles:   profiles,
		registry:   registry,
		lookahead:  lookahead,
		alertRatio: alertRatio,
		now:        time.Now,
	}
}

// WithMetrics attaches the OTEL metrics sink.
func (r *TokenRefresher) WithMetrics(m *telemetry.Metrics) *TokenRefresher {
	r.metrics = m
	return r
}

// WithClock overrides the time source, used by tests.
func (r *TokenRefresher) WithClock(now func() time.Time) *TokenRefresher {
	r.now = now
	return r
}

// Run is the periodic entry point.
func (r *TokenRefresher) Run(ctx context.Context) error {
	report := r.RefreshExpiringTokens(ctx)
	logger.Info("Token refresh run finished",
		"total", report.Total, "refreshed", report.Refreshed, "failed", report.Failed)
	return nil
}

// RefreshExpiringTokens selects active profiles expiring inside the
// lookahead window and refreshes each one. Individual failures are
// collected, never propagated; a failure ratio above the alert threshold
// is logged as an alertable condition rather than raised.
func (r *TokenRefresher) RefreshExpiringTokens(ctx context.Context) *RefreshReport {
	report := &RefreshReport{Results: []RefreshResult{}}

	profiles, err := r.profiles.ListExpiring(ctx, r.now().Add(r.lookahead))
	if err != nil {
		logger.Error("Failed to list expiring profiles", "error", err)
		report.Failed++
		report.Results = append(report.Results, RefreshResult{
			Success: false,
			Message: fmt.Sprintf("list expiring profiles: %v", err),
		})
		return report
	}

	report.Total = len(profiles)
	for _, profile := range profiles {
		result := r.refreshOne(ctx, profile.ID.Hex())
		report.Results = append(report.Results, *result)
		if result.Success {
			report.Refreshed++
		} else {
			report.Failed++
		}
	}

	if report.Total > 0 && r.alertRatio > 0 {
		ratio := float64(report.Failed) / float64(report.Total)
		if ratio >= r.alertRatio {
			logger.Error("🚨 Token refresh failure ratio above alert threshold",
				"failed", report.Failed, "total", report.Total, "ratio", ratio)
		}
	}
	return report
}

// RefreshProfileToken is the manual per-profile trigger on the admin
// surface.
func (r *TokenRefresher) RefreshProfileToken(ctx context.Context, profileID string) *RefreshResult {
	return r.refreshOne(ctx, profileID)
}

func (r *TokenRefresher) refreshOne(ctx context.Context, profileID string) *RefreshResult {
	result := &RefreshResult{ProfileID: profileID}

	profile, err := r.profiles.GetByID(ctx, profileID)
	if err != nil {
		result.Message = fmt.Sprintf("load profile: %v", err)
		return result
	}
	result.Platform = profile.Platform

	pub, err := r.registry.Get(profile.Platform)
	if err != nil {
		result.Message = err.Error()
		return result
	}

	tokens, err := pub.RefreshToken(ctx, profile)
	if err != nil {
		if r.metrics != nil {
			r.metrics.RecordTokenRefresh(profile.Platform, platform.KindOf(err))
		}

		// A credential-class failure means the grant is gone for good;
		// deactivate so the publish worker stops trying this profile.
		if platform.IsCredential(err) {
			if deactivateErr := r.profiles.Deactivate(ctx, profileID); deactivateErr != nil {
				logger.Error("Failed to deactivate revoked profile",
					"profile_id", profileID, "error", deactivateErr)
			} else {
				result.Deactivated = true
			}
			result.Message = "refresh permanently rejected, profile deactivated: " + err.Error()
			logger.Warn("Profile deactivated after permanent refresh failure",
				"profile_id", profileID, "platform", profile.Platform)
			return result
		}

		result.Message = "refresh failed: " + err.Error()
		logger.Warn("Token refresh failed", "profile_id", profileID,
			"platform", profile.Platform, "error", err)
		return result
	}

	if err := r.profiles.UpdateTokens(ctx, profileID, tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		result.Message = fmt.Sprintf("store rotated tokens: %v", err)
		return result
	}

	if r.metrics != nil {
		r.metrics.RecordTokenRefresh(profile.Platform, "refreshed")
	}

	expiresAt := tokens.ExpiresAt
	result.Success = true
	result.Message = "token refreshed"
	result.ExpiresAt = &expiresAt
	return result
}
