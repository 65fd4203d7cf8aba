package routes

import (
	"net/http"
	"strconv"

	"social-publisher-platform/internal/auth"
	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/queue"
	"social-publisher-platform/middleware"
	"social-publisher-platform/services"
	"social-publisher-platform/utils"

	"github.com/gin-gonic/gin"
)

// AdminRoutesDeps carries the operations surface dependencies.
type AdminRoutesDeps struct {
	Queue     *queue.PublishQueue
	Sweeper   *services.Sweeper
	Refresher *services.TokenRefresher
	Export    *services.ExportService
}

func SetupAdminRoutes(router *gin.Engine, cfg *config.Config, authMw *middleware.AuthMiddleware, roleMw *middleware.RoleMiddleware, deps AdminRoutesDeps) {
	admin := router.Group("/admin")
	admin.Use(authMw.RequireAuth())
	admin.Use(roleMw.AdminGuard())

	// Queue bucket counts
	admin.GET("/queue/stats", func(c *gin.Context) {
		stats, err := deps.Queue.Stats(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read queue stats", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	})

	// One bucket of jobs: waiting, active, delayed, completed, failed
	admin.GET("/queue/jobs", func(c *gin.Context) {
		kind := c.DefaultQuery("state", "waiting")
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		pageSize, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

		jobs, err := deps.Queue.ListJobs(c.Request.Context(), kind, page, pageSize)
		if err != nil {
			utils.RespondWithBadRequest(c, "Failed to list jobs", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"state": kind,
			"jobs":  jobs,
			"page":  page,
			"limit": pageSize,
		})
	})

	// Manual reconciliation sweep
	admin.POST("/sync", func(c *gin.Context) {
		report := deps.Sweeper.SyncScheduledPosts(c.Request.Context())
		c.JSON(http.StatusOK, report)
	})

	// Manual stale-publishing recovery
	admin.POST("/recover-stale", func(c *gin.Context) {
		recovered, err := deps.Sweeper.RecoverStalePublishing(c.Request.Context())
		if err != nil {
			utils.RespondWithInternalError(c, "Stale publishing recovery failed", gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"recovered": recovered})
	})

	// Manual token refresh run across all expiring profiles
	admin.POST("/tokens/refresh", func(c *gin.Context) {
		report := deps.Refresher.RefreshExpiringTokens(c.Request.Context())
		c.JSON(http.StatusOK, report)
	})

	// Manual refresh of one profile
	admin.POST("/tokens/refresh/:profileId", func(c *gin.Context) {
		result := deps.Refresher.RefreshProfileToken(c.Request.Context(), c.Param("profileId"))
		status := http.StatusOK
		if !result.Success {
			status = http.StatusBadGateway
		}
		c.JSON(status, result)
	})

	// Post history export (json, excel, or both as a zip)
	admin.POST("/export", func(c *gin.Context) {
		var req services.ExportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		claims := currentClaims(c)
		if claims == nil {
			utils.RespondWithUnauthorized(c, "Invalid session")
			return
		}

		resp, payload, err := deps.Export.ExportPosts(c.Request.Context(), &req, claims)
		if err != nil {
			utils.RespondWithInternalError(c, "Export failed", gin.H{"error": err.Error()})
			return
		}
		if payload == nil {
			c.JSON(http.StatusOK, resp)
			return
		}
		deps.Export.StreamExport(c, resp, payload, req.Format)
	})
}

func currentClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get("claims"); exists {
		if cl, ok := claims.(*auth.Claims); ok {
			return cl
		}
	}
	return nil
}
