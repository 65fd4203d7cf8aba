package routes

import (
	"errors"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/logger"
	"social-publisher-platform/internal/platform"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/middleware"
	"social-publisher-platform/models"
	"social-publisher-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OAuthRoutesDeps carries the connect-flow dependencies.
type OAuthRoutesDeps struct {
	Profiles store.ProfileStore
	States   store.OAuthStateStore
	Registry *platform.Registry
}

func SetupOAuthRoutes(router *gin.Engine, cfg *config.Config, authMw *middleware.AuthMiddleware, deps OAuthRoutesDeps) {
	oauthGroup := router.Group("/oauth")
	oauthGroup.Use(authMw.RequireAuth())

	// Start the PKCE handshake: mint state + verifier, persist them with a
	// TTL, hand back the provider's authorize URL.
	oauthGroup.GET("/:platform/connect", func(c *gin.Context) {
		platformName := c.Param("platform")
		if !models.ValidPlatform(platformName) {
			utils.RespondWithBadRequest(c, "Unsupported platform", gin.H{"platform": platformName})
			return
		}

		client, ok := cfg.OAuth[platformName]
		if !ok || client.ClientID == "" {
			utils.RespondWithError(c, http.StatusServiceUnavailable, "platform_not_configured",
				"Platform app credentials are not configured", gin.H{"platform": platformName})
			return
		}

		userID, err := primitive.ObjectIDFromHex(middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid session")
			return
		}

		// Best-effort cleanup of abandoned handshakes; the TTL index is the
		// backstop.
		if _, err := deps.States.PurgeExpired(c.Request.Context(), userID.Hex(), platformName); err != nil {
			logger.Warn("Failed to purge expired OAuth states", "platform", platformName, "error", err)
		}

		state, err := utils.GenerateStateToken()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to start authorization", nil)
			return
		}
		verifier, err := utils.GenerateCodeVerifier()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to start authorization", nil)
			return
		}

		record := &models.OAuthState{
			UserID:       userID,
			Platform:     platformName,
			State:        state,
			CodeVerifier: verifier,
			ExpiresAt:    time.Now().Add(cfg.OAuthStateTTL),
		}
		if err := deps.States.Create(c.Request.Context(), record); err != nil {
			utils.RespondWithInternalError(c, "Failed to start authorization", nil)
			return
		}

		conf := platform.OAuthConfig(platformName, client)
		authURL := conf.AuthCodeURL(state,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("code_challenge", utils.CodeChallengeS256(verifier)),
			oauth2.SetAuthURLParam("code_challenge_method", "S256"),
		)

		c.JSON(http.StatusOK, gin.H{
			"auth_url":   authURL,
			"expires_at": record.ExpiresAt,
		})
	})

	// Finish the handshake: the state validates exactly once, the code is
	// exchanged with the stored verifier, and the connected account is
	// upserted as a profile.
	oauthGroup.GET("/:platform/callback", func(c *gin.Context) {
		platformName := c.Param("platform")
		if !models.ValidPlatform(platformName) {
			utils.RespondWithBadRequest(c, "Unsupported platform", gin.H{"platform": platformName})
			return
		}

		if errParam := c.Query("error"); errParam != "" {
			utils.RespondWithError(c, http.StatusBadRequest, "authorization_denied",
				"Authorization was denied by the provider", gin.H{"error": errParam})
			return
		}

		code := c.Query("code")
		state := c.Query("state")
		if code == "" || state == "" {
			utils.RespondWithBadRequest(c, "Missing code or state", nil)
			return
		}

		userID := middleware.GetUserID(c)
		verifier, err := deps.States.Consume(c.Request.Context(), userID, platformName, state)
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithError(c, http.StatusBadRequest, "invalid_state",
				"Authorization state is invalid, expired, or already used", nil)
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to validate authorization state", nil)
			return
		}

		conf := platform.OAuthConfig(platformName, cfg.OAuth[platformName])
		token, err := conf.Exchange(c.Request.Context(), code,
			oauth2.SetAuthURLParam("code_verifier", verifier))
		if err != nil {
			logger.Warn("OAuth code exchange failed", "platform", platformName, "error", err)
			utils.RespondWithError(c, http.StatusBadGateway, "exchange_failed",
				"Failed to exchange authorization code", nil)
			return
		}

		pub, err := deps.Registry.Get(platformName)
		if err != nil {
			utils.RespondWithInternalError(c, "Platform client unavailable", nil)
			return
		}
		account, err := pub.FetchAccount(c.Request.Context(), token.AccessToken)
		if err != nil {
			logger.Warn("Account lookup after OAuth exchange failed", "platform", platformName, "error", err)
			utils.RespondWithError(c, http.StatusBadGateway, "account_lookup_failed",
				"Connected, but the account lookup failed", nil)
			return
		}

		ownerID, err := primitive.ObjectIDFromHex(userID)
		if err != nil {
			utils.RespondWithUnauthorized(c, "Invalid session")
			return
		}

		profile := &models.Profile{
			UserID:       ownerID,
			Platform:     platformName,
			AccountID:    account.ID,
			AccountName:  account.Name,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			IsActive:     true,
		}
		if !token.Expiry.IsZero() {
			expiry := token.Expiry
			profile.TokenExpiresAt = &expiry
		}

		saved, err := deps.Profiles.Upsert(c.Request.Context(), profile)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to save connected profile", nil)
			return
		}

		logger.Info("Profile connected", "profile_id", saved.ID.Hex(),
			"platform", platformName, "account", account.Name)
		c.JSON(http.StatusOK, saved)
	})

	// Connected profiles for the caller
	profiles := router.Group("/profiles")
	profiles.Use(authMw.RequireAuth())

	profiles.GET("", func(c *gin.Context) {
		items, err := deps.Profiles.ListByUser(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list profiles", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"profiles": items})
	})

	// Disconnect: the profile is deactivated, not deleted, so post history
	// keeps its reference.
	profiles.DELETE("/:id", func(c *gin.Context) {
		profile, err := deps.Profiles.GetByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			utils.RespondWithNotFound(c, "Profile not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load profile", nil)
			return
		}
		if !middleware.CanAccessUser(c, profile.UserID.Hex()) {
			utils.RespondWithForbidden(c, "Profile belongs to another user")
			return
		}

		if err := deps.Profiles.Deactivate(c.Request.Context(), profile.ID.Hex()); err != nil {
			utils.RespondWithInternalError(c, "Failed to disconnect profile", nil)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "profile disconnected"})
	})
}
