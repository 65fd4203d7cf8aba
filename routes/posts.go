package routes

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/middleware"
	"social-publisher-platform/models"
	"social-publisher-platform/services"
	"social-publisher-platform/utils"

	"github.com/gin-gonic/gin"
)

// PostRoutesDeps carries everything the authoring surface needs.
type PostRoutesDeps struct {
	Posts    store.PostStore
	Profiles store.ProfileStore
	Queue    queue.Enqueuer
	Captions *services.CaptionService
}

func SetupPostRoutes(router *gin.Engine, cfg *config.Config, authMw *middleware.AuthMiddleware, deps PostRoutesDeps) {
	posts := router.Group("/posts")
	posts.Use(authMw.RequireAuth())

	// Create a post. With scheduled_at it goes straight into the queue;
	// without, it stays a draft.
	posts.POST("", func(c *gin.Context) {
		var req models.CreatePostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		userID := middleware.GetUserID(c)

		profile, err := deps.Profiles.GetByID(c.Request.Context(), req.ProfileID)
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithNotFound(c, "Profile not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load profile", nil)
			return
		}
		if profile.UserID.Hex() != userID {
			utils.RespondWithForbidden(c, "Profile belongs to another user")
			return
		}
		if !profile.IsActive {
			utils.RespondWithBadRequest(c, "Profile is disconnected; reconnect the account first", nil)
			return
		}

		if req.ScheduledAt != nil && req.ScheduledAt.Before(time.Now()) {
			utils.RespondWithBadRequest(c, "scheduled_at must be in the future", nil)
			return
		}

		post := &models.Post{
			UserID:    profile.UserID,
			ProfileID: profile.ID,
			Platform:  profile.Platform,
			Content:   req.Content,
			MediaRefs: req.MediaRefs,
			Status:    models.PostStatusDraft,
		}
		if req.ScheduledAt != nil {
			post.Status = models.PostStatusScheduled
			post.ScheduledAt = req.ScheduledAt
		}

		if err := deps.Posts.Create(c.Request.Context(), post); err != nil {
			utils.RespondWithInternalError(c, "Failed to create post", nil)
			return
		}

		if post.Status == models.PostStatusScheduled {
			if _, err := deps.Queue.EnqueuePublish(c.Request.Context(), post.ID.Hex(), userID, *post.ScheduledAt); err != nil {
				// The store is authoritative; the next sweep rebuilds the job.
				utils.RespondWithInternalError(c, "Post saved but queueing failed; it will be retried automatically", gin.H{"post_id": post.ID.Hex()})
				return
			}
		}

		c.JSON(http.StatusCreated, post)
	})

	// List the caller's posts with optional status filter
	posts.GET("", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		status := c.Query("status")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		items, total, err := deps.Posts.ListByUser(c.Request.Context(), userID, status, page, limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list posts", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"posts": items,
			"total": total,
			"page":  page,
			"limit": limit,
		})
	})

	posts.GET("/:id", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, post)
	})

	// Edit content. Only drafts and failed posts are editable; anything in
	// or past the queue must be unscheduled first.
	posts.PUT("/:id", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}
		if post.Status != models.PostStatusDraft && post.Status != models.PostStatusFailed {
			utils.RespondWithError(c, http.StatusConflict, "invalid_state",
				"Only draft and failed posts can be edited", gin.H{"status": post.Status})
			return
		}

		var req models.UpdatePostRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		if err := deps.Posts.UpdateContent(c.Request.Context(), post.ID.Hex(), req.Content, req.MediaRefs, req.ScheduledAt); err != nil {
			utils.RespondWithInternalError(c, "Failed to update post", nil)
			return
		}

		updated, err := deps.Posts.GetByID(c.Request.Context(), post.ID.Hex())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to reload post", nil)
			return
		}
		c.JSON(http.StatusOK, updated)
	})

	// Delete a post and its pending job. Publishing posts cannot be
	// deleted mid-flight.
	posts.DELETE("/:id", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}
		if post.Status == models.PostStatusPublishing {
			utils.RespondWithError(c, http.StatusConflict, "invalid_state",
				"Post is being published right now; try again shortly", nil)
			return
		}

		if err := deps.Queue.CancelPublish(c.Request.Context(), post.ID.Hex()); err != nil {
			utils.RespondWithInternalError(c, "Failed to cancel queued job", nil)
			return
		}
		if err := deps.Posts.Delete(c.Request.Context(), post.ID.Hex()); err != nil {
			utils.RespondWithInternalError(c, "Failed to delete post", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "post deleted"})
	})

	// Schedule a draft or failed post. Without scheduled_at it publishes
	// immediately.
	posts.POST("/:id/schedule", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}
		if !requireActiveProfile(c, deps.Profiles, post) {
			return
		}

		var req models.SchedulePostRequest
		if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		runAt := time.Now()
		if req.ScheduledAt != nil {
			if req.ScheduledAt.Before(time.Now()) {
				utils.RespondWithBadRequest(c, "scheduled_at must be in the future", nil)
				return
			}
			runAt = *req.ScheduledAt
		}
		scheduledAt := runAt

		err := deps.Posts.SetScheduled(c.Request.Context(), post.ID.Hex(),
			[]string{models.PostStatusDraft, models.PostStatusFailed, models.PostStatusScheduled}, &scheduledAt)
		if errors.Is(err, store.ErrStateConflict) {
			utils.RespondWithError(c, http.StatusConflict, "invalid_state",
				"Post cannot be scheduled from its current state", gin.H{"status": post.Status})
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to schedule post", nil)
			return
		}

		if _, err := deps.Queue.EnqueuePublish(c.Request.Context(), post.ID.Hex(), middleware.GetUserID(c), runAt); err != nil {
			utils.RespondWithInternalError(c, "Post scheduled but queueing failed; it will be retried automatically", gin.H{"post_id": post.ID.Hex()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message":      "post scheduled",
			"scheduled_at": scheduledAt,
		})
	})

	// Unschedule: scheduled → draft, pending job removed
	posts.POST("/:id/unschedule", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}

		if err := deps.Queue.CancelPublish(c.Request.Context(), post.ID.Hex()); err != nil {
			utils.RespondWithInternalError(c, "Failed to cancel queued job", nil)
			return
		}

		err := deps.Posts.SetDraft(c.Request.Context(), post.ID.Hex())
		if errors.Is(err, store.ErrStateConflict) {
			utils.RespondWithError(c, http.StatusConflict, "invalid_state",
				"Only scheduled posts can be unscheduled", gin.H{"status": post.Status})
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to unschedule post", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "post unscheduled"})
	})

	// Retry a failed post right away
	posts.POST("/:id/retry", func(c *gin.Context) {
		post, ok := loadOwnedPost(c, deps.Posts)
		if !ok {
			return
		}
		if !requireActiveProfile(c, deps.Profiles, post) {
			return
		}

		now := time.Now()
		err := deps.Posts.SetScheduled(c.Request.Context(), post.ID.Hex(),
			[]string{models.PostStatusFailed}, &now)
		if errors.Is(err, store.ErrStateConflict) {
			utils.RespondWithError(c, http.StatusConflict, "invalid_state",
				"Only failed posts can be retried", gin.H{"status": post.Status})
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to retry post", nil)
			return
		}

		if _, err := deps.Queue.EnqueuePublish(c.Request.Context(), post.ID.Hex(), middleware.GetUserID(c), now); err != nil {
			utils.RespondWithInternalError(c, "Post queued for retry but enqueue failed; it will be retried automatically", gin.H{"post_id": post.ID.Hex()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "post queued for retry"})
	})

	// Link preview for the composer
	posts.POST("/preview", func(c *gin.Context) {
		var req struct {
			Content string `json:"content" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		preview, err := services.FetchLinkPreview(c.Request.Context(), req.Content)
		if err != nil {
			utils.RespondWithError(c, http.StatusUnprocessableEntity, "preview_failed",
				"Could not build a link preview", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, preview)
	})

	// Caption suggestion for the composer
	posts.POST("/captions", func(c *gin.Context) {
		if deps.Captions == nil || !deps.Captions.Enabled() {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "captions_disabled",
				"Caption assistant is not configured", nil)
			return
		}

		var req services.CaptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		suggestion, err := deps.Captions.SuggestCaption(c.Request.Context(), &req)
		if err != nil {
			utils.RespondWithError(c, http.StatusBadGateway, "caption_failed",
				"Failed to generate a caption", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, suggestion)
	})
}

// requireActiveProfile rejects queue entry for a post whose profile is
// gone or disconnected. A deactivated profile would only fail at publish
// time with a credential error, so it is refused up front.
func requireActiveProfile(c *gin.Context, profiles store.ProfileStore, post *models.Post) bool {
	profile, err := profiles.GetByID(c.Request.Context(), post.ProfileID.Hex())
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithBadRequest(c, "Profile is no longer connected", nil)
		return false
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load profile", nil)
		return false
	}
	if !profile.IsActive {
		utils.RespondWithBadRequest(c, "Profile is disconnected; reconnect the account first", nil)
		return false
	}
	return true
}

// loadOwnedPost fetches the :id post and enforces ownership. Admins may
// touch any post.
func loadOwnedPost(c *gin.Context, posts store.PostStore) (*models.Post, bool) {
	post, err := posts.GetByID(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		utils.RespondWithNotFound(c, "Post not found")
		return nil, false
	}
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to load post", nil)
		return nil, false
	}

	if !middleware.CanAccessUser(c, post.UserID.Hex()) {
		utils.RespondWithForbidden(c, "Post belongs to another user")
		return nil, false
	}
	return post, true
}
