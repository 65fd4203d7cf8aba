package routes

import (
	"errors"
	"net/http"
	"time"

	"social-publisher-platform/internal/auth"
	"social-publisher-platform/internal/config"
	"social-publisher-platform/internal/store"
	"social-publisher-platform/models"
	"social-publisher-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func SetupAuthRoutes(router *gin.Engine, cfg *config.Config, users store.UserStore, rdb *redis.Client) {
	authGroup := router.Group("/auth")

	// Login endpoint
	authGroup.POST("/login", func(c *gin.Context) {
		var req models.LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error_code": "invalid_input",
				"message":    "Invalid request data",
				"details":    gin.H{"error": err.Error()},
			})
			return
		}

		user, err := users.GetByUsername(c.Request.Context(), req.Username)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_credentials",
				"message":    "Invalid username or password",
			})
			return
		}

		if !utils.CheckPassword(req.Password, user.PasswordHash) {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "invalid_credentials",
				"message":    "Invalid username or password",
			})
			return
		}

		tokenPair, err := auth.IssueTokenPair(user.ID.Hex(), user.Role, rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to issue tokens",
			})
			return
		}

		setTokenCookies(c, cfg, tokenPair)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"expires_at":    tokenPair.AccessExp,
			"user": gin.H{
				"id":       user.ID.Hex(),
				"username": user.Username,
				"role":     user.Role,
			},
		})
	})

	// Refresh token endpoint: rotates the refresh token and issues a new pair
	authGroup.POST("/refresh", func(c *gin.Context) {
		refreshToken := extractRefreshToken(c)
		if refreshToken == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "unauthorized",
				"message":    "Refresh token required",
			})
			return
		}

		claims, err := auth.ValidateRefreshToken(refreshToken, rdb)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error_code": "refresh_token_expired",
				"message":    "Your session has expired. Please log in again.",
			})
			return
		}

		// Rotate: old refresh token is dead the moment a new pair exists
		if err := auth.RevokeToken(claims.ID, true, rdb); err != nil {
			_ = err
		}

		tokenPair, err := auth.IssueTokenPair(claims.UserID, claims.Role, rdb)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error_code": "internal_error",
				"message":    "Failed to issue tokens",
			})
			return
		}

		setTokenCookies(c, cfg, tokenPair)

		c.JSON(http.StatusOK, gin.H{
			"access_token":  tokenPair.AccessToken,
			"refresh_token": tokenPair.RefreshToken,
			"expires_at":    tokenPair.AccessExp,
		})
	})

	// Logout endpoint: revokes both tokens and clears cookies
	authGroup.POST("/logout", func(c *gin.Context) {
		if tokenString := currentAccessToken(c); tokenString != "" {
			if claims, err := auth.ValidateAccessToken(tokenString, rdb); err == nil {
				_ = auth.RevokeToken(claims.ID, false, rdb)
			}
		}
		if refreshToken := extractRefreshToken(c); refreshToken != "" {
			if claims, err := auth.ValidateRefreshToken(refreshToken, rdb); err == nil {
				_ = auth.RevokeToken(claims.ID, true, rdb)
			}
		}

		secure := cfg.GinMode == "release"
		c.SetSameSite(http.SameSiteLaxMode)
		c.SetCookie("access_token", "", -1, "/", "", secure, true)
		c.SetCookie("refresh_token", "", -1, "/", "", secure, true)

		c.JSON(http.StatusOK, gin.H{"message": "logged out"})
	})
}

func setTokenCookies(c *gin.Context, cfg *config.Config, tokenPair *auth.TokenPair) {
	secure := cfg.GinMode == "release"
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(
		"access_token",
		tokenPair.AccessToken,
		int(time.Until(tokenPair.AccessExp).Seconds()),
		"/",
		"",
		secure,
		true,
	)
	c.SetCookie(
		"refresh_token",
		tokenPair.RefreshToken,
		int(time.Until(tokenPair.RefreshExp).Seconds()),
		"/",
		"",
		secure,
		true,
	)
}

func extractRefreshToken(c *gin.Context) string {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err == nil && req.RefreshToken != "" {
		return req.RefreshToken
	}
	if header := c.GetHeader("X-Refresh-Token"); header != "" {
		return header
	}
	cookie, err := c.Cookie("refresh_token")
	if err != nil && !errors.Is(err, http.ErrNoCookie) {
		return ""
	}
	return cookie
}

func currentAccessToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if token := utils.ExtractTokenFromHeader(header); token != "" {
			return token
		}
	}
	cookie, _ := c.Cookie("access_token")
	return cookie
}
