package platform

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

const facebookGraph = "https://graph.facebook.com/v19.0"

// FacebookClient publishes to a Facebook page feed through the Graph API.
type FacebookClient struct {
	app   config.OAuthClient
	guard *Guard
}

func NewFacebookClient(app config.OAuthClient) *FacebookClient {
	return &FacebookClient{
		app:   app,
		guard: NewGuard("FacebookAPI", 5, 5),
	}
}

func (c *FacebookClient) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error) {
	form := url.Values{}
	form.Set("message", post.Content)
	form.Set("access_token", profile.AccessToken)
	if len(post.MediaRefs) > 0 {
		form.Set("link", post.MediaRefs[0])
	}

	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		var resp struct {
			ID string `json:"id"`
		}
		endpoint := fmt.Sprintf("%s/%s/feed", facebookGraph, profile.AccountID)
		if err := postForm(ctx, endpoint, nil, form, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}

	resp := out.(*struct {
		ID string `json:"id"`
	})
	return &Result{
		PlatformPostID: resp.ID,
		Metadata:       map[string]string{"page_id": profile.AccountID},
	}, nil
}

// RefreshToken exchanges the current long-lived token for a fresh one.
// Facebook has no refresh-token grant; the access token itself is the
// exchange currency.
func (c *FacebookClient) RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error) {
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", c.app.ClientID)
	q.Set("client_secret", c.app.ClientSecret)
	q.Set("fb_exchange_token", profile.AccessToken)

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := getJSON(ctx, facebookGraph+"/oauth/access_token?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	return &TokenSet{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC(),
	}, nil
}

func (c *FacebookClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	var resp struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	q := url.Values{}
	q.Set("access_token", accessToken)
	if err := getJSON(ctx, facebookGraph+"/me?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return &Account{ID: resp.ID, Name: resp.Name}, nil
}
