// Package upload publishes a rendered video to YouTube via Data API v3.
package upload

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"story-video-pipeline/config"
	"story-video-pipeline/types"
)

type Uploader struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg}
}

// Run uploads the story's rendered video. Returns the published video
// URL. Disabled uploads are a no-op so the stage can stay in the
// pipeline unconditionally.
func (u *Uploader) Run(ctx context.Context, st *types.Story) (string, error) {
	if !u.cfg.Upload.Enabled {
		return "", nil
	}
	if st.VideoFilePath == "" {
		return "", fmt.Errorf("story %q has no rendered video", st.Title)
	}

	log.Println("[upload] authenticating with YouTube...")
	client, err := u.oauthClient(ctx)
	if err != nil {
		return "", fmt.Errorf("youtube auth: %w", err)
	}
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                st.Title,
			Description:          description(st),
			Tags:                 tags(st),
			CategoryId:           u.cfg.Upload.CategoryID,
			DefaultLanguage:      u.cfg.Upload.DefaultLanguage,
			DefaultAudioLanguage: u.cfg.Upload.DefaultLanguage,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           u.cfg.Upload.Visibility,
			SelfDeclaredMadeForKids: u.cfg.Upload.MadeForKids,
		},
	}

	f, err := os.Open(st.VideoFilePath)
	if err != nil {
		return "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	log.Printf("[upload] uploading %q...", st.Title)
	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).NotifySubscribers(u.cfg.Upload.NotifySubscribers).Media(f).Do()
	if err != nil {
		return "", fmt.Errorf("youtube upload: %w", err)
	}

	url := "https://www.youtube.com/watch?v=" + uploaded.Id
	log.Printf("[upload] published: %s", url)
	return url, nil
}

func description(st *types.Story) string {
	var sb strings.Builder
	sb.WriteString(st.Title)
	if st.Genre != "" {
		fmt.Fprintf(&sb, "\n\nA %s story.", st.Genre)
	}
	return sb.String()
}

func tags(st *types.Story) []string {
	tags := []string{"story", "audiobook"}
	if st.Genre != "" {
		tags = append(tags, st.Genre)
	}
	if st.VideoType == "short" {
		tags = append(tags, "shorts")
	}
	return tags
}

// oauthClient builds an HTTP client from env credentials. The refresh
// token is primed as expired so the first call always mints a fresh
// access token.
func (u *Uploader) oauthClient(ctx context.Context) (*http.Client, error) {
	clientID := os.Getenv("YOUTUBE_CLIENT_ID")
	clientSecret := os.Getenv("YOUTUBE_CLIENT_SECRET")
	refreshToken := os.Getenv("YOUTUBE_REFRESH_TOKEN")
	if clientID == "" || clientSecret == "" || refreshToken == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_ID, YOUTUBE_CLIENT_SECRET or YOUTUBE_REFRESH_TOKEN not set")
	}

	conf := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
	token := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	return oauth2.NewClient(ctx, conf.TokenSource(ctx, token)), nil
}
