package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"social-publisher-platform/models"
)

func TestSyncScheduledPostsEnqueuesPastDueNow(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := fixed.Add(-2 * time.Hour)
	post := &models.Post{
		ID:          primitive.NewObjectID(),
		UserID:      primitive.NewObjectID(),
		Status:      models.PostStatusScheduled,
		ScheduledAt: &past,
	}
	posts := newFakePostStore(post)
	q := newFakeEnqueuer()

	sweeper := NewSweeper(posts, q, time.Hour).WithClock(func() time.Time { return fixed })
	report := sweeper.SyncScheduledPosts(context.Background())

	require.Equal(t, 1, report.Synced)
	require.Zero(t, report.Failed)
	require.Equal(t, fixed, q.enqueued[post.ID.Hex()])
}

func TestSyncScheduledPostsKeepsFutureDueTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	future := fixed.Add(3 * time.Hour)
	post := &models.Post{
		ID:          primitive.NewObjectID(),
		UserID:      primitive.NewObjectID(),
		Status:      models.PostStatusScheduled,
		ScheduledAt: &future,
	}
	posts := newFakePostStore(post)
	q := newFakeEnqueuer()

	sweeper := NewSweeper(posts, q, time.Hour).WithClock(func() time.Time { return fixed })
	report := sweeper.SyncScheduledPosts(context.Background())

	require.Equal(t, 1, report.Synced)
	require.Equal(t, future, q.enqueued[post.ID.Hex()])
}

func TestSyncScheduledPostsDemotesStuckPublished(t *testing.T) {
	at := time.Now().Add(time.Hour)
	stuck := &models.Post{
		ID:          primitive.NewObjectID(),
		UserID:      primitive.NewObjectID(),
		Status:      models.PostStatusPublished,
		ScheduledAt: &at,
		// no PublishedAt: the outcome was never recorded
	}
	posts := newFakePostStore(stuck)
	q := newFakeEnqueuer()

	sweeper := NewSweeper(posts, q, time.Hour)
	report := sweeper.SyncScheduledPosts(context.Background())

	got, err := posts.GetByID(context.Background(), stuck.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, models.PostStatusScheduled, got.Status)
	require.Equal(t, 1, report.Synced)
	require.Contains(t, q.enqueued, stuck.ID.Hex())
}

func TestSyncScheduledPostsDemotesStuckPublishedWithoutDueTime(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stuck := &models.Post{
		ID:     primitive.NewObjectID(),
		UserID: primitive.NewObjectID(),
		Status: models.PostStatusPublished,
		// no ScheduledAt and no PublishedAt
	}
	posts := newFakePostStore(stuck)
	q := newFakeEnqueuer()

	sweeper := NewSweeper(posts, q, time.Hour).WithClock(func() time.Time { return fixed })
	report := sweeper.SyncScheduledPosts(context.Background())

	got, err := posts.GetByID(context.Background(), stuck.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, models.PostStatusScheduled, got.Status)
	require.NotNil(t, got.ScheduledAt)
	require.Equal(t, fixed, *got.ScheduledAt)
	require.Equal(t, 1, report.Synced)
	require.Equal(t, fixed, q.enqueued[stuck.ID.Hex()])
}

func TestSyncScheduledPostsCollectsEnqueueErrors(t *testing.T) {
	post := scheduledPost(activeProfile())
	posts := newFakePostStore(post)
	q := newFakeEnqueuer()
	q.err = errors.New("redis unavailable")

	sweeper := NewSweeper(posts, q, time.Hour)
	report := sweeper.SyncScheduledPosts(context.Background())

	require.Zero(t, report.Synced)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Equal(t, post.ID.Hex(), report.Errors[0].PostID)
}

func TestRecoverStalePublishingFailsAbandonedPosts(t *testing.T) {
	fixed := time.Now()
	staleAt := fixed.Add(-30 * time.Minute)
	freshAt := fixed.Add(-time.Minute)
	stale := &models.Post{
		ID:           primitive.NewObjectID(),
		UserID:       primitive.NewObjectID(),
		Status:       models.PostStatusPublishing,
		PublishingAt: &staleAt,
	}
	fresh := &models.Post{
		ID:           primitive.NewObjectID(),
		UserID:       primitive.NewObjectID(),
		Status:       models.PostStatusPublishing,
		PublishingAt: &freshAt,
	}
	posts := newFakePostStore(stale, fresh)

	sweeper := NewSweeper(posts, newFakeEnqueuer(), 10*time.Minute).
		WithClock(func() time.Time { return fixed })
	recovered, err := sweeper.RecoverStalePublishing(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	gotStale, _ := posts.GetByID(context.Background(), stale.ID.Hex())
	require.Equal(t, models.PostStatusFailed, gotStale.Status)
	require.Contains(t, gotStale.ErrorMessage, "abandoned")

	gotFresh, _ := posts.GetByID(context.Background(), fresh.ID.Hex())
	require.Equal(t, models.PostStatusPublishing, gotFresh.Status)
}

// stalePostStore replays a stale scan snapshot while the live record has
// already moved on.
type stalePostStore struct {
	*fakePostStore
	snapshot []models.Post
}

func (s *stalePostStore) ListStalePublishing(ctx context.Context, before time.Time) ([]models.Post, error) {
	return s.snapshot, nil
}

func TestRecoverStalePublishingSkipsPostRevertedAfterScan(t *testing.T) {
	fixed := time.Now()
	at := fixed.Add(-time.Minute)
	post := &models.Post{
		ID:          primitive.NewObjectID(),
		UserID:      primitive.NewObjectID(),
		Status:      models.PostStatusScheduled, // reverted between scan and mark
		ScheduledAt: &at,
	}
	posts := newFakePostStore(post)

	staleAt := fixed.Add(-30 * time.Minute)
	snapshot := *post
	snapshot.Status = models.PostStatusPublishing
	snapshot.PublishingAt = &staleAt

	sweeper := NewSweeper(&stalePostStore{fakePostStore: posts, snapshot: []models.Post{snapshot}},
		newFakeEnqueuer(), 10*time.Minute).
		WithClock(func() time.Time { return fixed })

	recovered, err := sweeper.RecoverStalePublishing(context.Background())
	require.NoError(t, err)
	require.Zero(t, recovered)

	got, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusScheduled, got.Status)
}
