package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Post lifecycle statuses. PUBLISHED is terminal; FAILED may re-enter
// SCHEDULED through a manual or system retry.
const (
	PostStatusDraft      = "draft"
	PostStatusScheduled  = "scheduled"
	PostStatusPublishing = "publishing"
	PostStatusPublished  = "published"
	PostStatusFailed     = "failed"
)

// Supported target platforms.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
	PlatformTikTok    = "tiktok"
	PlatformTwitter   = "twitter"
	PlatformYouTube   = "youtube"
)

// AllPlatforms lists every platform the registry can serve.
var AllPlatforms = []string{
	PlatformFacebook,
	PlatformInstagram,
	PlatformTikTok,
	PlatformTwitter,
	PlatformYouTube,
}

// ValidPlatform reports whether p names a supported platform.
func ValidPlatform(p string) bool {
	for _, known := range AllPlatforms {
		if p == known {
			return true
		}
	}
	return false
}

// Post is a unit of content scheduled for one platform through one profile.
type Post struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	ProfileID      primitive.ObjectID `bson:"profile_id" json:"profile_id"`
	Platform       string             `bson:"platform" json:"platform"`
	Content        string             `bson:"content" json:"content"`
	MediaRefs      []string           `bson:"media_refs,omitempty" json:"media_refs,omitempty"`
	Status         string             `bson:"status" json:"status"` // draft, scheduled, publishing, published, failed
	ScheduledAt    *time.Time         `bson:"scheduled_at,omitempty" json:"scheduled_at,omitempty"`
	PublishingAt   *time.Time         `bson:"publishing_at,omitempty" json:"publishing_at,omitempty"`
	PublishedAt    *time.Time         `bson:"published_at,omitempty" json:"published_at,omitempty"`
	FailedAt       *time.Time         `bson:"failed_at,omitempty" json:"failed_at,omitempty"`
	ErrorMessage   string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	PlatformPostID string             `bson:"platform_post_id,omitempty" json:"platform_post_id,omitempty"`
	Metadata       map[string]string  `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// Metadata keys written by this service. Platform clients may add their own
// response fields on top of these.
const (
	MetaPreviewTitle       = "preview_title"
	MetaPreviewDescription = "preview_description"
	MetaPreviewImage       = "preview_image"
	MetaPreviewURL         = "preview_url"
)

// CreatePostRequest is the authoring API payload for a new draft.
type CreatePostRequest struct {
	ProfileID   string     `json:"profile_id" binding:"required"`
	Content     string     `json:"content" binding:"required"`
	MediaRefs   []string   `json:"media_refs,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// UpdatePostRequest edits a draft or failed post before (re)scheduling.
type UpdatePostRequest struct {
	Content     *string    `json:"content,omitempty"`
	MediaRefs   []string   `json:"media_refs,omitempty"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// SchedulePostRequest moves a draft or failed post into the queue.
type SchedulePostRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"` // nil means publish now
}
