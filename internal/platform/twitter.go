package platform

import (
	"context"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

// TwitterClient publishes tweets through the v2 API with OAuth2 user
// context tokens.
type TwitterClient struct {
	app   config.OAuthClient
	guard *Guard
}

func NewTwitterClient(app config.OAuthClient) *TwitterClient {
	return &TwitterClient{
		app:   app,
		guard: NewGuard("TwitterAPI", 2, 3),
	}
}

func (c *TwitterClient) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error) {
	payload := map[string]interface{}{"text": post.Content}

	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		var resp struct {
			Data struct {
				ID   string `json:"id"`
				Text string `json:"text"`
			} `json:"data"`
		}
		if err := postJSON(ctx, "https://api.twitter.com/2/tweets", bearer(profile.AccessToken), payload, &resp); err != nil {
			return nil, err
		}
		return &Result{PlatformPostID: resp.Data.ID}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

// RefreshToken uses the standard OAuth2 refresh grant; Twitter rotates
// the refresh token on every use.
func (c *TwitterClient) RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error) {
	conf := OAuthConfig(models.PlatformTwitter, c.app)
	return refreshViaOAuth2(ctx, conf, profile)
}

func (c *TwitterClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	var resp struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
		} `json:"data"`
	}
	if err := getJSON(ctx, "https://api.twitter.com/2/users/me", bearer(accessToken), &resp); err != nil {
		return nil, err
	}
	return &Account{ID: resp.Data.ID, Name: resp.Data.Username}, nil
}
