package platform

import (
	"context"
	"os"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"social-publisher-platform/internal/config"
	"social-publisher-platform/models"
)

// YouTubeClient uploads videos through the Data API v3. The media
// reference must resolve to a local file produced by the (external)
// media storage layer.
type YouTubeClient struct {
	app   config.OAuthClient
	guard *Guard
}

func NewYouTubeClient(app config.OAuthClient) *YouTubeClient {
	return &YouTubeClient{
		app:   app,
		guard: NewGuard("YouTubeAPI", 1, 2),
	}
}

func (c *YouTubeClient) service(ctx context.Context, profile *models.Profile) (*youtube.Service, error) {
	conf := OAuthConfig(models.PlatformYouTube, c.app)
	token := &oauth2.Token{
		AccessToken:  profile.AccessToken,
		RefreshToken: profile.RefreshToken,
		TokenType:    "Bearer",
	}
	if profile.TokenExpiresAt != nil {
		token.Expiry = *profile.TokenExpiresAt
	}

	httpClient := conf.Client(ctx, token)
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, Transient("create youtube service", err)
	}
	return svc, nil
}

func (c *YouTubeClient) Publish(ctx context.Context, post *models.Post, profile *models.Profile) (*Result, error) {
	if len(post.MediaRefs) == 0 {
		return nil, Permanent("youtube posts require a video media reference", nil)
	}

	out, err := c.guard.Do(ctx, func() (interface{}, error) {
		svc, err := c.service(ctx, profile)
		if err != nil {
			return nil, err
		}

		file, err := os.Open(post.MediaRefs[0])
		if err != nil {
			return nil, Permanent("open video media reference", err)
		}
		defer file.Close()

		title := post.Content
		if len(title) > 100 {
			title = title[:100]
		}
		video := &youtube.Video{
			Snippet: &youtube.VideoSnippet{
				Title:       title,
				Description: post.Content,
			},
			Status: &youtube.VideoStatus{PrivacyStatus: "public"},
		}

		inserted, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
			Context(ctx).
			Media(file).
			Do()
		if err != nil {
			return nil, Transient("youtube insert failed", err)
		}

		return &Result{
			PlatformPostID: inserted.Id,
			Metadata:       map[string]string{"channel_id": profile.AccountID},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*Result), nil
}

func (c *YouTubeClient) RefreshToken(ctx context.Context, profile *models.Profile) (*TokenSet, error) {
	conf := OAuthConfig(models.PlatformYouTube, c.app)
	return refreshViaOAuth2(ctx, conf, profile)
}

func (c *YouTubeClient) FetchAccount(ctx context.Context, accessToken string) (*Account, error) {
	svc, err := youtube.NewService(ctx,
		option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})))
	if err != nil {
		return nil, Transient("create youtube service", err)
	}

	resp, err := svc.Channels.List([]string{"id", "snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, Transient("list own channel", err)
	}
	if len(resp.Items) == 0 {
		return nil, Permanent("no youtube channel on this account", nil)
	}

	ch := resp.Items[0]
	return &Account{ID: ch.Id, Name: ch.Snippet.Title}, nil
}
