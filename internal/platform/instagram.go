package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

// InstagramClient publishes through the Graph API's two-step container
// flow: create a media container, then publish it.
type InstagramClient struct {
	app   config.OAuthClient
	guard *Guard
}

func NewInstagramClient(app config.OAuthClient) *InstagramClient {
	return &InstagramClient{
		app:   app,
		guard: NewGuard("InstagramAPI", 3, 3),
	}
}

func (c *InstagramClient) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error) {
	if len(post.MediaRefs) == 0 {
		return nil, Permanent("instagram posts require at least one media reference", nil)
	}

	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		// Step 1: media container.
		containerForm := url.Values{}
		containerForm.Set("image_url", post.MediaRefs[0])
		containerForm.Set("caption", post.Content)
		containerForm.Set("access_token", profile.AccessToken)

		var container struct {
			ID string `json:"id"`
		}
		endpoint := fmt.Sprintf("%s/%s/media", facebookGraph, profile.AccountID)
		if err := postForm(ctx, endpoint, nil, containerForm, &container); err != nil {
			return nil, err
		}

		// Step 2: publish the container.
		publishForm := url.Values{}
		publishForm.Set("creation_id", container.ID)
		publishForm.Set("access_token", profile.AccessToken)

		var published struct {
			ID string `json:"id"`
		}
		endpoint = fmt.Sprintf("%s/%s/media_publish", facebookGraph, profile.AccountID)
		if err := postForm(ctx, endpoint, nil, publishForm, &published); err != nil {
			return nil, err
		}

		return &Result{
			PlatformPostID: published.ID,
			Metadata:       map[string]string{"creation_id": container.ID},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

// RefreshToken extends a long-lived Instagram token. Like Facebook there
// is no refresh-token grant.
func (c *InstagramClient) RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error) {
	q := url.Values{}
	q.Set("grant_type", "ig_refresh_token")
	q.Set("access_token", profile.AccessToken)

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := getJSON(ctx, "https://graph.instagram.com/refresh_access_token?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	return &TokenSet{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC(),
	}, nil
}

func (c *InstagramClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	var resp struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	}
	q := url.Values{}
	q.Set("fields", "id,username")
	q.Set("access_token", accessToken)
	if err := getJSON(ctx, "https://graph.instagram.com/me?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &Account{ID: resp.ID, Name: resp.Username}, nil
}
