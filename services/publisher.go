package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/internal/telemetry"
	"social-publisher-platform/models"
)

// Publisher consumes publish jobs and drives each post through its state
// machine: reload fresh, guard credentials, claim scheduled → publishing,
// call the platform, record the outcome. A crash between any two steps
// leaves the post in a state the sweeper can classify and repair.
type Publisher struct {
	posts          store.PostStore
	profiles       store.ProfileStore
	registry       *platform.Registry
	metrics        *telemetry.Metrics
	publishTimeout time.Duration
	hardFailAfter  time.Duration
	now            func() time.Time
}

func NewPublisher(
	posts store.PostStore,
	profiles store.ProfileStore,
	registry *platform.Registry,
	publishTimeout, hardFailAfter time.Duration,
) *Publisher {
	return &Publisher{
		posts:          posts,
		profiles:       profiles,
		registry:       registry,
		publishTimeout: publishTimeout,
		hardFailAfter:  hardFailAfter,
		now:            time.Now,
	}
}

// WithMetrics attaches the OTEL metrics sink.
func (p *Publisher) WithMetrics(m *telemetry.Metrics) *Publisher {
	p.metrics = m
	return p
}

// WithClock overrides the time source, used by tests.
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// HandlePublishTask is the asynq handler for queue.TaskPublishPost.
// Returning nil acknowledges the job; returning an error without
// asynq.SkipRetry schedules a backoff retry.
func (p *Publisher) HandlePublishTask(ctx context.Context, t *asynq.Task) error {
	tracer := otel.Tracer("publisher")
	ctx, span := tracer.Start(ctx, "publish.handle")
	defer span.End()

	payload, err := queue.DecodePublishPayload(t.Payload())
	if err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}
	span.SetAttributes(attribute.String("post.id", payload.PostID))

	// Reload fresh from the store; the payload is trusted only for ids.
	post, err := p.posts.GetByID(ctx, payload.PostID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("Publish job for missing post, acking", "post_id", payload.PostID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load post: %w", err)
	}

	// Late or duplicate delivery: the post already reached a state this
	// job has no business touching.
	if post.Status == models.PostStatusPublished || post.Status == models.PostStatusDraft {
		logger.Debug("Publish job for post not in a queueable state, acking",
			"post_id", payload.PostID, "status", post.Status)
		return nil
	}

	profile, err := p.profiles.GetByID(ctx, post.ProfileID.Hex())
	if errors.Is(err, store.ErrNotFound) {
		logger.Debug("Publish job for post with missing profile, acking", "post_id", payload.PostID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}

	if err := p.guardCredentials(ctx, post, profile); err != nil {
		return err
	}

	// Claim: the only path into publishing. Losing the compare-and-set
	// means another worker owns this post.
	claimed, err := p.posts.ClaimPublishing(ctx, post.ID.Hex())
	if errors.Is(err, store.ErrStateConflict) {
		logger.Debug("Lost publish claim, acking", "post_id", payload.PostID, "status", post.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("claim post for publishing: %w", err)
	}

	return p.publish(ctx, claimed, profile)
}

// guardCredentials fails the post without queue retries when its profile
// cannot publish: disconnected, or expired beyond repair. A stale but
// refreshable token gets one inline refresh attempt first.
func (p *Publisher) guardCredentials(ctx context.Context, post *models.Post, profile *models.Profile) error {
	now := p.now()

	if !profile.IsActive {
		return p.failCredential(ctx, post, "profile is disconnected; reconnect the account")
	}

	if !profile.TokenExpired(now) {
		return nil
	}

	if profile.TokenExpiresAt != nil && now.After(profile.TokenExpiresAt.Add(p.hardFailAfter)) {
		return p.failCredential(ctx, post, "access token expired beyond recovery; reconnect the account")
	}

	// Stale but inside the recovery window: consult the platform's token
	// endpoint before giving up.
	pub, err := p.registry.Get(post.Platform)
	if err != nil {
		return p.failPost(ctx, post, err)
	}

	tokens, err := pub.RefreshToken(ctx, profile)
	if err != nil {
		logger.Warn("Inline token refresh failed", "post_id", post.ID.Hex(),
			"profile_id", profile.ID.Hex(), "error", err)
		return p.failCredential(ctx, post, "access token expired and refresh failed: "+err.Error())
	}

	if err := p.profiles.UpdateTokens(ctx, profile.ID.Hex(), tokens.AccessToken, tokens.RefreshToken, tokens.ExpiresAt); err != nil {
		return fmt.Errorf("store refreshed tokens: %w", err)
	}
	profile.AccessToken = tokens.AccessToken
	if tokens.RefreshToken != "" {
		profile.RefreshToken = tokens.RefreshToken
	}
	expiresAt := tokens.ExpiresAt
	profile.TokenExpiresAt = &expiresAt
	return nil
}

func (p *Publisher) publish(ctx context.Context, post *models.Post, profile *models.Profile) error {
	pub, err := p.registry.Get(post.Platform)
	if err != nil {
		return p.failPost(ctx, post, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.publishTimeout)
	defer cancel()

	start := p.now()
	result, err := pub.Publish(callCtx, post, profile)
	elapsed := p.now().Sub(start).Seconds()

	if err != nil {
		kind := platform.KindOf(err)
		if p.metrics != nil {
			p.metrics.RecordPublish(post.Platform, kind, elapsed)
		}

		if kind != platform.KindTransient {
			return p.failPost(ctx, post, err)
		}

		// Transient: hand the post back to the queue's backoff, unless
		// this attempt exhausted the retry ceiling.
		retried, retriedOK := asynq.GetRetryCount(ctx)
		maxRetry, maxOK := asynq.GetMaxRetry(ctx)
		if retriedOK && maxOK && retried >= maxRetry {
			return p.failPost(ctx, post, fmt.Errorf("retries exhausted: %w", err))
		}

		if revertErr := p.posts.RevertToScheduled(ctx, post.ID.Hex()); revertErr != nil {
			logger.Error("Failed to revert post for retry", "post_id", post.ID.Hex(), "error", revertErr)
		}
		return fmt.Errorf("transient publish failure: %w", err)
	}

	if p.metrics != nil {
		p.metrics.RecordPublish(post.Platform, "published", elapsed)
	}

	if err := p.posts.MarkPublished(ctx, post.ID.Hex(), result.PlatformPostID, result.Metadata); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			// The sweeper force-failed us mid-call. The remote outcome is
			// recorded on the platform; leave the local state to operators.
			logger.Warn("Post left publishing state during platform call",
				"post_id", post.ID.Hex(), "platform_post_id", result.PlatformPostID)
			return nil
		}
		return fmt.Errorf("mark post published: %w", err)
	}

	logger.Info("Post published", "post_id", post.ID.Hex(),
		"platform", post.Platform, "platform_post_id", result.PlatformPostID)
	return nil
}

// failCredential records a credential-class failure. Queue retries will
// not help without a reconnect, so the job is acknowledged as skipped.
func (p *Publisher) failCredential(ctx context.Context, post *models.Post, reason string) error {
	return p.failPost(ctx, post, platform.Credential(reason, nil))
}

func (p *Publisher) failPost(ctx context.Context, post *models.Post, cause error) error {
	if err := p.posts.MarkFailed(ctx, post.ID.Hex(), cause.Error()); err != nil {
		if errors.Is(err, store.ErrStateConflict) {
			logger.Debug("Post no longer failable, acking", "post_id", post.ID.Hex())
			return nil
		}
		return fmt.Errorf("mark post failed: %w", err)
	}

	logger.Warn("Post failed", "post_id", post.ID.Hex(),
		"platform", post.Platform, "reason", cause.Error())
	return fmt.Errorf("%s: %w", cause.Error(), asynq.SkipRetry)
}
