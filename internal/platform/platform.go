// Package platform holds the thin API clients that perform the actual
// publish call and token refresh for each supported network, behind a
// single Publisher contract the worker and token scheduler consume.
package platform

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

// Result is a successful publish outcome: the external post id plus any
// platform-specific response fields worth keeping on the post.
type Result struct {
	PlatformPostID string
	Metadata       map[string]string
}

// TokenSet is a rotated credential pair. RefreshToken may be empty when
// the platform does not rotate refresh tokens.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Account identifies the external account behind a freshly exchanged
// token, used by the OAuth callback to upsert the profile.
type Account struct {
	ID   string
	Name string
}

// Publisher is one platform's client. Publish and RefreshToken return
// classified *Error values so callers can apply the retry taxonomy.
type Publisher interface {
	Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error)
	RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error)
	FetchAccount(ctx context.Context, accessToken string) (*Account, error)
}

// Registry resolves a platform name to its client.
type Registry struct {
	publishers map[string]Publisher
}

func NewRegistry(cfg *config.Config) *Registry {
	return &Registry{
		publishers: map[string]Publisher{
			models.PlatformFacebook:  NewFacebookClient(cfg.OAuth[models.PlatformFacebook]),
			models.PlatformInstagram: NewInstagramClient(cfg.OAuth[models.PlatformInstagram]),
			models.PlatformTikTok:    NewTikTokClient(cfg.OAuth[models.PlatformTikTok]),
			models.PlatformTwitter:   NewTwitterClient(cfg.OAuth[models.PlatformTwitter]),
			models.PlatformYouTube:   NewYouTubeClient(cfg.OAuth[models.PlatformYouTube]),
		},
	}
}

// NewRegistryWith builds a registry from explicit publishers, used by
// tests to substitute fakes.
func NewRegistryWith(publishers map[string]Publisher) *Registry {
	return &Registry{publishers: publishers}
}

func (r *Registry) Get(platform string) (Publisher, error) {
	p, ok := r.publishers[platform]
	if !ok {
		return nil, Permanent(fmt.Sprintf("unsupported platform %q", platform), nil)
	}
	return p, nil
}

// OAuthEndpoint returns the authorize/token endpoint pair for the connect
// flow.
func OAuthEndpoint(platform string) oauth2.Endpoint {
	switch platform {
	case models.PlatformFacebook, models.PlatformInstagram:
		return oauth2.Endpoint{
			AuthURL:  "https://www.facebook.com/v19.0/dialog/oauth",
			TokenURL: "https://graph.facebook.com/v19.0/oauth/access_token",
		}
	case models.PlatformTikTok:
		return oauth2.Endpoint{
			AuthURL:  "https://www.tiktok.com/v2/auth/authorize/",
			TokenURL: "https://open.tiktokapis.com/v2/oauth/token/",
		}
	case models.PlatformTwitter:
		return oauth2.Endpoint{
			AuthURL:  "https://twitter.com/i/oauth2/authorize",
			TokenURL: "https://api.twitter.com/2/oauth2/token",
		}
	case models.PlatformYouTube:
		return google.Endpoint
	default:
		return oauth2.Endpoint{}
	}
}

// OAuthScopes returns the scopes the connect flow requests per platform.
func OAuthScopes(platform string) []string {
	switch platform {
	case models.PlatformFacebook:
		return []string{"pages_show_list", "pages_read_engagement", "pages_manage_posts", "public_profile"}
	case models.PlatformInstagram:
		return []string{"instagram_basic", "instagram_content_publish"}
	case models.PlatformTikTok:
		return []string{"user.info.basic", "video.publish"}
	case models.PlatformTwitter:
		return []string{"tweet.read", "tweet.write", "users.read", "offline.access"}
	case models.PlatformYouTube:
		return []string{"https://www.googleapis.com/auth/youtube.upload", "https://www.googleapis.com/auth/youtube.readonly"}
	default:
		return nil
	}
}

// OAuthConfig assembles the x/oauth2 config for one platform from its app
// credentials.
func OAuthConfig(platform string, client config.OAuthClient) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     client.ClientID,
		ClientSecret: client.ClientSecret,
		RedirectURL:  client.RedirectURL,
		Scopes:       OAuthScopes(platform),
		Endpoint:     OAuthEndpoint(platform),
	}
}

// refreshViaOAuth2 rotates a token pair through the platform's standard
// token endpoint using the x/oauth2 refresh grant.
func refreshViaOAuth2(ctx context.Context, conf *oauth2.Config, profile *models.Profile) (*TokenSet, error) {
	if profile.RefreshToken == "" {
		return nil, Credential("no refresh token on profile", nil)
	}

	src := conf.TokenSource(ctx, &oauth2.Token{
		RefreshToken: profile.RefreshToken,
		Expiry:       time.Now().Add(-1 * time.Minute), // force refresh
	})
	tok, err := src.Token()
	if err != nil {
		if rerr, ok := err.(*oauth2.RetrieveError); ok {
			return nil, statusError(rerr.Response.StatusCode, string(rerr.Body))
		}
		return nil, Transient("token refresh request failed", err)
	}

	return &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}, nil
}
