package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/internal/telemetry"
	"social-publisher-platform/models"
)

// SyncError is one post the sweep could not reconcile.
type SyncError struct {
	PostID string `json:"postId"`
	Error  string `json:"error"`
}

// SyncReport is the outcome of one reconciliation run.
type SyncReport struct {
	Synced int         `json:"synced"`
	Failed int         `json:"failed"`
	Errors []SyncError `json:"errors"`
}

// Sweeper heals drift between the post store and the job queue. It never
// propagates individual post failures; the queue is disposable and every
// run rebuilds whatever is missing. Enqueue idempotency makes the sweep
// safe to run arbitrarily often.
type Sweeper struct {
	posts      store.PostStore
	enqueuer   queue.Enqueuer
	metrics    *telemetry.Metrics
	staleAfter time.Duration
	now        func() time.Time
}

func NewSweeper(posts store.PostStore, enqueuer queue.Enqueuer, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		posts:      posts,
		enqueuer:   enqueuer,
		staleAfter: staleAfter,
		now:        time.Now,
	}
}

// WithMetrics attaches the OTEL metrics sink.
func (s *Sweeper) WithMetrics(m *telemetry.Metrics) *Sweeper {
	s.metrics = m
	return s
}

// WithClock overrides the time source, used by tests.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Run is the periodic entry point: recover crashed publishes first, then
// reconcile the queue.
func (s *Sweeper) Run(ctx context.Context) error {
	if _, err := s.RecoverStalePublishing(ctx); err != nil {
		logger.Error("Stale publishing recovery failed", "error", err)
	}
	report := s.SyncScheduledPosts(ctx)
	logger.Info("Reconciliation sweep finished",
		"synced", report.Synced, "failed", report.Failed)
	return nil
}

// SyncScheduledPosts re-enqueues every post the store says should be
// queued. Past-due posts run immediately; future posts keep their
// original due time. Stuck published records (published status, no
// published_at) are demoted back to scheduled and requeued.
func (s *Sweeper) SyncScheduledPosts(ctx context.Context) *SyncReport {
	report := &SyncReport{Errors: []SyncError{}}
	now := s.now()

	s.demoteStuckPublished(ctx, report)

	posts, err := s.posts.ListScheduled(ctx)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, SyncError{Error: fmt.Sprintf("list scheduled posts: %v", err)})
		return report
	}

	for _, post := range posts {
		runAt := now
		if post.ScheduledAt != nil && post.ScheduledAt.After(now) {
			runAt = *post.ScheduledAt
		}

		if _, err := s.enqueuer.EnqueuePublish(ctx, post.ID.Hex(), post.UserID.Hex(), runAt); err != nil {
			report.Failed++
			report.Errors = append(report.Errors, SyncError{PostID: post.ID.Hex(), Error: err.Error()})
			continue
		}
		report.Synced++
	}

	if s.metrics != nil {
		s.metrics.RecordSweep(int64(report.Synced), int64(report.Failed))
	}
	return report
}

// demoteStuckPublished repairs the legacy inconsistency of a published
// status with no published_at: the publish outcome was never recorded,
// so the post goes back through the queue.
func (s *Sweeper) demoteStuckPublished(ctx context.Context, report *SyncReport) {
	stuck, err := s.posts.ListStuckPublished(ctx)
	if err != nil {
		report.Failed++
		report.Errors = append(report.Errors, SyncError{Error: fmt.Sprintf("list stuck published posts: %v", err)})
		return
	}

	for _, post := range stuck {
		// A nil due time would hide the post from ListScheduled forever;
		// demote it as due now.
		scheduledAt := post.ScheduledAt
		if scheduledAt == nil {
			now := s.now()
			scheduledAt = &now
		}

		err := s.posts.SetScheduled(ctx, post.ID.Hex(), []string{models.PostStatusPublished}, scheduledAt)
		if err != nil {
			report.Failed++
			report.Errors = append(report.Errors, SyncError{PostID: post.ID.Hex(), Error: err.Error()})
			continue
		}
		logger.Warn("Demoted stuck published post back to scheduled", "post_id", post.ID.Hex())
	}
}

// RecoverStalePublishing force-fails posts stuck in publishing past the
// stale-lock threshold. The worker that claimed them crashed mid-call and
// the remote outcome is ambiguous, so they are never silently
// re-published; an operator or retry policy decides what happens next.
func (s *Sweeper) RecoverStalePublishing(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	stale, err := s.posts.ListStalePublishing(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list stale publishing posts: %w", err)
	}

	recovered := 0
	for _, post := range stale {
		reason := fmt.Sprintf("publish attempt abandoned after %s; worker likely crashed mid-publish", s.staleAfter)
		err := s.posts.FailStalePublishing(ctx, post.ID.Hex(), cutoff, reason)
		if errors.Is(err, store.ErrStateConflict) {
			// A worker finished or reverted the post between the scan and
			// this write; it is no longer stale.
			logger.Debug("Stale publishing post moved on, skipping", "post_id", post.ID.Hex())
			continue
		}
		if err != nil {
			logger.Error("Failed to recover stale publishing post", "post_id", post.ID.Hex(), "error", err)
			continue
		}
		recovered++
		logger.Warn("Recovered stale publishing post", "post_id", post.ID.Hex(),
			"publishing_at", post.PublishingAt)
	}
	return recovered, nil
}
