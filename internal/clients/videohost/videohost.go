package videohost

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	youtube "google.golang.org/api/youtube/v3"

	"github.com/yungbote/reelforge/internal/pkg/logger"
)

/*
Client is the publish capability stage 11 depends on: a local file plus
metadata goes in, a hosted video id/url/status comes out. Built on
google.golang.org/api/youtube/v3 (videos.insert with snippet+status,
optional status.publishAt for scheduling), with golang.org/x/oauth2
managing token refresh from a persisted OAuth2 refresh token.
*/
type Client interface {
	Upload(ctx context.Context, filePath string, meta UploadMetadata) (*UploadResult, error)
	SetThumbnail(ctx context.Context, videoID string, thumbnailPath string) error
}

type UploadMetadata struct {
	Title       string
	Description string
	Tags        []string
	CategoryID  string // default "22" (People & Blogs)
	Privacy     string // "private", "unlisted", "public"
	PublishAt   *time.Time
	MadeForKids bool
}

type UploadResult struct {
	VideoID      string     `json:"video_id"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
}

type client struct {
	log     *logger.Logger
	service *youtube.Service
}

// New builds a Client from a long-lived OAuth2 refresh token. clientID,
// clientSecret and refreshToken are taken as plaintext (app.go reads them
// from the YOUTUBE_OAUTH_* environment variables); nothing is decrypted.
func New(ctx context.Context, log *logger.Logger, clientID, clientSecret, refreshToken string) (Client, error) {
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("videohost: OAuth2 client id, secret and refresh token all required")
	}
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes: []string{
			youtube.YoutubeUploadScope,
			youtube.YoutubeReadonlyScope,
			youtube.YoutubeForceSslScope,
		},
	}
	tok := &oauth2.Token{RefreshToken: refreshToken}
	ts := cfg.TokenSource(ctx, tok)

	svc, err := youtube.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("videohost: new youtube service: %w", err)
	}
	return &client{log: log.With("service", "videohost.Client"), service: svc}, nil
}

func (c *client) Upload(ctx context.Context, filePath string, meta UploadMetadata) (*UploadResult, error) {
	if filePath == "" {
		return nil, fmt.Errorf("filePath required")
	}
	categoryID := meta.CategoryID
	if categoryID == "" {
		categoryID = "22"
	}
	privacy := meta.Privacy
	if privacy == "" {
		privacy = "private"
	}

	status := &youtube.VideoStatus{
		PrivacyStatus:           privacy,
		SelfDeclaredMadeForKids: meta.MadeForKids,
	}
	var scheduledFor *time.Time
	if meta.PublishAt != nil && privacy == "public" {
		status.PrivacyStatus = "private"
		status.PublishAt = meta.PublishAt.UTC().Format("2006-01-02T15:04:05.000Z")
		t := *meta.PublishAt
		scheduledFor = &t
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       meta.Title,
			Description: meta.Description,
			Tags:        meta.Tags,
			CategoryId:  categoryID,
		},
		Status: status,
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	call := c.service.Videos.Insert([]string{"snippet", "status"}, video).Media(f)
	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("videos.insert: %w", err)
	}

	result := &UploadResult{
		VideoID:      resp.Id,
		URL:          "https://www.youtube.com/watch?v=" + resp.Id,
		ScheduledFor: scheduledFor,
	}
	if resp.Status != nil {
		result.Status = resp.Status.PrivacyStatus
	}
	return result, nil
}

func (c *client) SetThumbnail(ctx context.Context, videoID string, thumbnailPath string) error {
	if videoID == "" || thumbnailPath == "" {
		return fmt.Errorf("videoID and thumbnailPath required")
	}
	f, err := os.Open(thumbnailPath)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()

	_, err = c.service.Thumbnails.Set(videoID).Media(f).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("thumbnails.set: %w", err)
	}
	return nil
}
