// Package store defines the persistence contracts for posts, profiles,
// OAuth handshake states and users. MongoDB is the writer-of-record for
// post and profile status; the job queue is disposable and can always be
// rebuilt from this layer.
package store

import (
	"context"
	"errors"
	"time"

	"social-publisher-platform/models"
)

// ErrNotFound is returned when the requested document does not exist.
var ErrNotFound = errors.New("not found")

// ErrStateConflict is returned when a guarded status transition does not
// match the document's current status. Callers treat it as "someone else
// got there first" and back off.
var ErrStateConflict = errors.New("state conflict")

// PostStore owns the post lifecycle. Status transitions are
// compare-and-set: the filter carries the expected current status so two
// workers can never both claim the same post.
type PostStore interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	UpdateContent(ctx context.Context, id string, content *string, mediaRefs []string, scheduledAt *time.Time) error
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID, status string, page, limit int) ([]models.Post, int64, error)

	// Sweeper scans.
	ListScheduled(ctx context.Context) ([]models.Post, error)
	ListStalePublishing(ctx context.Context, before time.Time) ([]models.Post, error)
	ListStuckPublished(ctx context.Context) ([]models.Post, error)

	// Guarded transitions.
	SetScheduled(ctx context.Context, id string, from []string, scheduledAt *time.Time) error
	ClaimPublishing(ctx context.Context, id string) (*models.Post, error)
	MarkPublished(ctx context.Context, id, platformPostID string, metadata map[string]string) error
	MarkFailed(ctx context.Context, id, reason string) error
	FailStalePublishing(ctx context.Context, id string, before time.Time, reason string) error
	RevertToScheduled(ctx context.Context, id string) error
	SetDraft(ctx context.Context, id string) error
}

// ProfileStore owns connected accounts and their credentials.
type ProfileStore interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	ListByUser(ctx context.Context, userID string) ([]models.Profile, error)
	ListExpiring(ctx context.Context, before time.Time) ([]models.Profile, error)
	UpdateTokens(ctx context.Context, id, accessToken, refreshToken string, expiresAt time.Time) error
	Deactivate(ctx context.Context, id string) error
	Upsert(ctx context.Context, profile *models.Profile) (*models.Profile, error)
}

// OAuthStateStore owns the ephemeral PKCE handshake records. Consume is
// one-shot: a state validates at most one callback, and never after its
// expiry.
type OAuthStateStore interface {
	Create(ctx context.Context, state *models.OAuthState) error
	Consume(ctx context.Context, userID, platform, state string) (codeVerifier string, err error)
	PurgeExpired(ctx context.Context, userID, platform string) (int64, error)
}

// UserStore owns operator accounts for the authoring and admin surfaces.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
}
