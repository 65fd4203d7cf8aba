package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
)

// fakePostStore mirrors the store's guarded-transition semantics in memory.
type fakePostStore struct {
	mu    sync.Mutex
	posts map[string]*models.Post
}

func newFakePostStore(posts ...*models.Post) *fakePostStore {
	s := &fakePostStore{posts: map[string]*models.Post{}}
	for _, p := range posts {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		s.posts[p.ID.Hex()] = p
	}
	return s
}

func (s *fakePostStore) get(id string) (*models.Post, error) {
	p, ok := s.posts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return p, nil
}

func (s *fakePostStore) Create(ctx context.Context, post *models.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.ID.IsZero() {
		post.ID = primitive.NewObjectID()
	}
	s.posts[post.ID.Hex()] = post
	return nil
}

func (s *fakePostStore) GetByID(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	clone := *p
	return &clone, nil
}

func (s *fakePostStore) UpdateContent(ctx context.Context, id string, content *string, mediaRefs []string, scheduledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if content != nil {
		p.Content = *content
	}
	if mediaRefs != nil {
		p.MediaRefs = mediaRefs
	}
	if scheduledAt != nil {
		p.ScheduledAt = scheduledAt
	}
	return nil
}

func (s *fakePostStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.get(id); err != nil {
		return err
	}
	delete(s.posts, id)
	return nil
}

func (s *fakePostStore) ListByUser(ctx context.Context, userID, status string, page, limit int) ([]models.Post, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.UserID.Hex() == userID && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakePostStore) ListScheduled(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.Status == models.PostStatusScheduled && p.ScheduledAt != nil && p.PublishedAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePostStore) ListStalePublishing(ctx context.Context, before time.Time) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.Status == models.PostStatusPublishing && p.PublishingAt != nil && p.PublishingAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePostStore) ListStuckPublished(ctx context.Context) ([]models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Post
	for _, p := range s.posts {
		if p.Status == models.PostStatusPublished && p.PublishedAt == nil {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePostStore) SetScheduled(ctx context.Context, id string, from []string, scheduledAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	allowed := false
	for _, f := range from {
		if p.Status == f {
			allowed = true
			break
		}
	}
	if !allowed {
		return store.ErrStateConflict
	}
	p.Status = models.PostStatusScheduled
	p.ScheduledAt = scheduledAt
	p.PublishingAt = nil
	return nil
}

func (s *fakePostStore) ClaimPublishing(ctx context.Context, id string) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.PostStatusScheduled {
		return nil, store.ErrStateConflict
	}
	now := time.Now()
	p.Status = models.PostStatusPublishing
	p.PublishingAt = &now
	clone := *p
	return &clone, nil
}

func (s *fakePostStore) MarkPublished(ctx context.Context, id, platformPostID string, metadata map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if p.Status != models.PostStatusPublishing {
		return store.ErrStateConflict
	}
	now := time.Now()
	p.Status = models.PostStatusPublished
	p.PublishedAt = &now
	p.PlatformPostID = platformPostID
	p.ErrorMessage = ""
	p.FailedAt = nil
	if len(metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = map[string]string{}
		}
		for k, v := range metadata {
			p.Metadata[k] = v
		}
	}
	return nil
}

func (s *fakePostStore) MarkFailed(ctx context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if p.Status == models.PostStatusPublished {
		return store.ErrStateConflict
	}
	now := time.Now()
	p.Status = models.PostStatusFailed
	p.FailedAt = &now
	p.ErrorMessage = reason
	return nil
}

func (s *fakePostStore) FailStalePublishing(ctx context.Context, id string, before time.Time, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if p.Status != models.PostStatusPublishing || p.PublishingAt == nil || !p.PublishingAt.Before(before) {
		return store.ErrStateConflict
	}
	now := time.Now()
	p.Status = models.PostStatusFailed
	p.FailedAt = &now
	p.ErrorMessage = reason
	p.PublishingAt = nil
	return nil
}

func (s *fakePostStore) RevertToScheduled(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if p.Status != models.PostStatusPublishing {
		return store.ErrStateConflict
	}
	p.Status = models.PostStatusScheduled
	p.PublishingAt = nil
	return nil
}

func (s *fakePostStore) SetDraft(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.get(id)
	if err != nil {
		return err
	}
	if p.Status != models.PostStatusScheduled {
		return store.ErrStateConflict
	}
	p.Status = models.PostStatusDraft
	p.ScheduledAt = nil
	return nil
}

// fakeProfileStore is an in-memory ProfileStore.
type fakeProfileStore struct {
	mu       sync.Mutex
	profiles map[string]*models.Profile
}

func newFakeProfileStore(profiles ...*models.Profile) *fakeProfileStore {
	s := &fakeProfileStore{profiles: map[string]*models.Profile{}}
	for _, p := range profiles {
		if p.ID.IsZero() {
			p.ID = primitive.NewObjectID()
		}
		s.profiles[p.ID.Hex()] = p
	}
	return s
}

func (s *fakeProfileStore) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *p
	return &clone, nil
}

func (s *fakeProfileStore) ListByUser(ctx context.Context, userID string) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, p := range s.profiles {
		if p.UserID.Hex() == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeProfileStore) ListExpiring(ctx context.Context, before time.Time) ([]models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Profile
	for _, p := range s.profiles {
		if p.IsActive && p.TokenExpiresAt != nil && p.TokenExpiresAt.Before(before) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeProfileStore) UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.AccessToken = accessToken
	if refreshToken != "" {
		p.RefreshToken = refreshToken
	}
	p.TokenExpiresAt = &expiresAt
	return nil
}

func (s *fakeProfileStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return store.ErrNotFound
	}
	p.IsActive = false
	return nil
}

func (s *fakeProfileStore) Upsert(ctx context.Context, profile *models.Profile) (*models.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if profile.ID.IsZero() {
		profile.ID = primitive.NewObjectID()
	}
	s.profiles[profile.ID.Hex()] = profile
	clone := *profile
	return &clone, nil
}

// fakeEnqueuer records enqueue and cancel calls.
type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued map[string]time.Time
	canceled []string
	err      error
}

func newFakeEnqueuer() *fakeEnqueuer {
	return &fakeEnqueuer{enqueued: map[string]time.Time{}}
}

func (q *fakeEnqueuer) EnqueuePublish(ctx context.Context, postID, userID string, runAt time.Time) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	q.enqueued[postID] = runAt
	return postID, nil
}

func (q *fakeEnqueuer) CancelPublish(ctx context.Context, postID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = append(q.canceled, postID)
	return nil
}

// fakePublisher is a scriptable platform client.
type fakePublisher struct {
	publishErr error
	refreshErr error
	result     *platform.Result
	tokens     *platform.TokenSet
	published  int
	refreshed  int
}

func (f *fakePublisher) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*platform.Result, error) {
	f.published++
	if f.publishErr != nil {
		return nil, f.publishErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &platform.Result{PlatformPostID: "ext-123"}, nil
}

func (f *fakePublisher) RefreshToken(ctx context.Context, profile *models.Profile) (*platform.TokenSet, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	if f.tokens != nil {
		return f.tokens, nil
	}
	return &platform.TokenSet{
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (f *fakePublisher) FetchAccount(ctx context.Context, accessToken string) (*platform.Account, error) {
	return &platform.Account{ID: "acct-1", Name: "Test Account"}, nil
}

func testRegistry(pub platform.Publisher) *platform.Registry {
	return platform.NewRegistryWith(map[string]platform.Publisher{
		models.PlatformTwitter: pub,
	})
}

func scheduledPost(profile *models.Profile) *models.Post {
	at := time.Now().Add(-time.Minute)
	return &models.Post{
		ID:          primitive.NewObjectID(),
		UserID:      profile.UserID,
		ProfileID:   profile.ID,
		Platform:    models.PlatformTwitter,
		Content:     "hello world",
		Status:      models.PostStatusScheduled,
		ScheduledAt: &at,
	}
}

func activeProfile() *models.Profile {
	expires := time.Now().Add(time.Hour)
	return &models.Profile{
		ID:             primitive.NewObjectID(),
		UserID:         primitive.NewObjectID(),
		Platform:       models.PlatformTwitter,
		AccountID:      "acct-1",
		AccessToken:    "access",
		RefreshToken:   "refresh",
		TokenExpiresAt: &expires,
		IsActive:       true,
	}
}

func publishTask(t *testing.T, postID, userID string) *asynq.Task {
	t.Helper()
	task, _, err := queue.NewPublishTask(postID, userID, time.Now(), 5, time.Minute, time.Hour)
	require.NoError(t, err)
	return task
}

func TestHandlePublishTaskPublishes(t *testing.T) {
	profile := activeProfile()
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	profiles := newFakeProfileStore(profile)
	pub := &fakePublisher{result: &platform.Result{
		PlatformPostID: "tw-42",
		Metadata:       map[string]string{"tweet_url": "https://example.com/42"},
	}}

	publisher := NewPublisher(posts, profiles, testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.NoError(t, err)

	got, err := posts.GetByID(context.Background(), post.ID.Hex())
	require.NoError(t, err)
	require.Equal(t, models.PostStatusPublished, got.Status)
	require.Equal(t, "tw-42", got.PlatformPostID)
	require.NotNil(t, got.PublishedAt)
	require.Equal(t, "https://example.com/42", got.Metadata["tweet_url"])
	require.Equal(t, 1, pub.published)
}

func TestHandlePublishTaskMissingPostAcks(t *testing.T) {
	posts := newFakePostStore()
	profiles := newFakeProfileStore()
	pub := &fakePublisher{}

	publisher := NewPublisher(posts, profiles, testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(),
		publishTask(t, primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex()))
	require.NoError(t, err)
	require.Zero(t, pub.published)
}

func TestHandlePublishTaskSkipsTerminalStates(t *testing.T) {
	for _, status := range []string{models.PostStatusPublished, models.PostStatusDraft} {
		profile := activeProfile()
		post := scheduledPost(profile)
		post.Status = status
		posts := newFakePostStore(post)
		pub := &fakePublisher{}

		publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
		err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
		require.NoError(t, err)

		got, _ := posts.GetByID(context.Background(), post.ID.Hex())
		require.Equal(t, status, got.Status)
		require.Zero(t, pub.published)
	}
}

func TestHandlePublishTaskInactiveProfileFailsWithoutRetry(t *testing.T) {
	profile := activeProfile()
	profile.IsActive = false
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	pub := &fakePublisher{}

	publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)

	got, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "disconnected")
	require.Zero(t, pub.published)
}

func TestHandlePublishTaskLostClaimAcks(t *testing.T) {
	profile := activeProfile()
	post := scheduledPost(profile)
	post.Status = models.PostStatusPublishing // another worker owns it
	posts := newFakePostStore(post)
	pub := &fakePublisher{}

	publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.NoError(t, err)
	require.Zero(t, pub.published)
}

func TestHandlePublishTaskTransientErrorReverts(t *testing.T) {
	profile := activeProfile()
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	pub := &fakePublisher{publishErr: platform.Transient("rate limited", nil)}

	publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.Error(t, err)
	require.False(t, errors.Is(err, asynq.SkipRetry))

	// Back to scheduled so the retry's claim succeeds
	got, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusScheduled, got.Status)
}

func TestHandlePublishTaskPermanentErrorFails(t *testing.T) {
	profile := activeProfile()
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	pub := &fakePublisher{publishErr: platform.Permanent("content rejected", nil)}

	publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)

	got, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusFailed, got.Status)
	require.Contains(t, got.ErrorMessage, "content rejected")
}

func TestHandlePublishTaskRefreshesStaleToken(t *testing.T) {
	profile := activeProfile()
	expired := time.Now().Add(-time.Minute) // stale but inside the recovery window
	profile.TokenExpiresAt = &expired
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	profiles := newFakeProfileStore(profile)
	pub := &fakePublisher{}

	publisher := NewPublisher(posts, profiles, testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.NoError(t, err)
	require.Equal(t, 1, pub.refreshed)

	gotProfile, _ := profiles.GetByID(context.Background(), profile.ID.Hex())
	require.Equal(t, "new-access", gotProfile.AccessToken)
	require.True(t, gotProfile.TokenExpiresAt.After(time.Now()))

	gotPost, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusPublished, gotPost.Status)
}

func TestHandlePublishTaskHardExpiredTokenFails(t *testing.T) {
	profile := activeProfile()
	expired := time.Now().Add(-48 * time.Hour) // beyond the recovery window
	profile.TokenExpiresAt = &expired
	post := scheduledPost(profile)
	posts := newFakePostStore(post)
	pub := &fakePublisher{}

	publisher := NewPublisher(posts, newFakeProfileStore(profile), testRegistry(pub), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), publishTask(t, post.ID.Hex(), profile.UserID.Hex()))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, pub.refreshed)

	got, _ := posts.GetByID(context.Background(), post.ID.Hex())
	require.Equal(t, models.PostStatusFailed, got.Status)
}

func TestHandlePublishTaskBadPayloadSkipsRetry(t *testing.T) {
	publisher := NewPublisher(newFakePostStore(), newFakeProfileStore(), testRegistry(&fakePublisher{}), time.Minute, 24*time.Hour)
	err := publisher.HandlePublishTask(context.Background(), asynq.NewTask(queue.TaskPublishPost, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}
