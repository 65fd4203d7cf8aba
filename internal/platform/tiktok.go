package platform

import (
	"context"
	"net/url"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

const tiktokAPI = "https://open.tiktokapis.com/v2"

// TikTokClient publishes through the content posting API's direct-post
// flow using a media reference URL.
type TikTokClient struct {
	app   config.OAuthClient
	guard *Guard
}

func NewTikTokClient(app config.OAuthClient) *TikTokClient {
	return &TikTokClient{
		app:   app,
		guard: NewGuard("TikTokAPI", 2, 3),
	}
}

func (c *TikTokClient) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error) {
	if len(post.MediaRefs) == 0 {
		return nil, Permanent("tiktok posts require a video media reference", nil)
	}

	payload := map[string]interface{}{
		"post_info": map[string]interface{}{
			"title":        post.Content,
			"privacy_level": "PUBLIC_TO_EVERYONE",
		},
		"source_info": map[string]interface{}{
			"source":    "PULL_FROM_URL",
			"video_url": post.MediaRefs[0],
		},
	}

	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		var resp struct {
			Data struct {
				PublishID string `json:"publish_id"`
			} `json:"data"`
		}
		endpoint := tiktokAPI + "/post/publish/video/init/"
		if err := postJSON(ctx, endpoint, bearer(profile.AccessToken), payload, &resp); err != nil {
			return nil, err
		}
		return &Result{
			PlatformPostID: resp.Data.PublishID,
			Metadata:       map[string]string{"source": "pull_from_url"},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *TikTokClient) RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error) {
	if profile.RefreshToken == "" {
		return nil, Credential("no refresh token on profile", nil)
	}

	form := url.Values{}
	form.Set("client_key", c.app.ClientID)
	form.Set("client_secret", c.app.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", profile.RefreshToken)

	var resp struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int64  `json:"expires_in"`
		ErrorDescription string `json:"error_description"`
	}
	if err := postForm(ctx, tiktokAPI+"/oauth/token/", nil, form, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, Credential("tiktok refresh rejected: "+resp.ErrorDescription, nil)
	}

	return &TokenSet{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC(),
	}, nil
}

func (c *TikTokClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	var resp struct {
		Data struct {
			User struct {
				OpenID      string `json:"open_id"`
				DisplayName string `json:"display_name"`
			} `json:"user"`
		} `json:"data"`
	}
	endpoint := tiktokAPI + "/user/info/?fields=open_id,display_name"
	if err := getJSON(ctx, endpoint, bearer(accessToken), &resp); err != nil {
		return nil, err
	}
	return &Account{ID: resp.Data.User.OpenID, Name: resp.Data.User.DisplayName}, nil
}
