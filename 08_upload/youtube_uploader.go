package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/types"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

var youtubeScopes = []string{youtube.YoutubeUploadScope, youtube.YoutubeScope}

// Uploader publishes finished runs through the YouTube Data API v3
type Uploader struct {
	cfg config.UploadConfig
	// clientOpts replace the refresh-token client when set
	clientOpts []option.ClientOption
}

func New(cfg *config.Config) *Uploader {
	return &Uploader{cfg: cfg.Upload}
}

// NewWithOptions skips the environment credentials, mostly for tests
func NewWithOptions(cfg *config.Config, opts ...option.ClientOption) *Uploader {
	return &Uploader{cfg: cfg.Upload, clientOpts: opts}
}

// Run uploads videoFile and returns the video ID and watch URL
func (u *Uploader) Run(ctx context.Context, videoFile string, md *types.VideoMetadata) (string, string, error) {
	if md == nil {
		return "", "", fmt.Errorf("no metadata for upload")
	}

	f, err := os.Open(videoFile)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	svc, err := u.service(ctx)
	if err != nil {
		return "", "", err
	}

	size := "?"
	if fi, err := f.Stat(); err == nil {
		size = fmt.Sprintf("%.1f MB", float64(fi.Size())/1024/1024)
	}
	log.Printf("[upload] Sending %q (%s, %s)...", md.Title, size, md.Visibility)

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, u.resource(md)).
		NotifySubscribers(u.cfg.NotifySubscribers).
		Media(f).
		Context(ctx).
		Do()
	if err != nil {
		return "", "", fmt.Errorf("insert video: %w", err)
	}

	watch := WatchURL(uploaded.Id)
	log.Printf("[upload] ✅ Published %s → %s", uploaded.Id, watch)
	return uploaded.Id, watch, nil
}

func (u *Uploader) service(ctx context.Context) (*youtube.Service, error) {
	opts := u.clientOpts
	if len(opts) == 0 {
		ts, err := TokenSourceFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("youtube auth: %w", err)
		}
		opts = []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, ts))}
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return svc, nil
}

func (u *Uploader) resource(md *types.VideoMetadata) *youtube.Video {
	lang := u.cfg.DefaultLanguage
	return &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                md.Title,
			Description:          md.Description,
			Tags:                 md.Tags,
			CategoryId:           md.CategoryID,
			DefaultLanguage:      lang,
			DefaultAudioLanguage: lang,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus:           md.Visibility,
			SelfDeclaredMadeForKids: u.cfg.MadeForKids,
		},
	}
}

// WatchURL is the public page of a video
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

// TokenSourceFromEnv exchanges the stored refresh token for access tokens
func TokenSourceFromEnv(ctx context.Context) (oauth2.TokenSource, error) {
	creds := make(map[string]string, 3)
	var missing []string
	for _, key := range []string{"YOUTUBE_CLIENT_ID", "YOUTUBE_CLIENT_SECRET", "YOUTUBE_REFRESH_TOKEN"} {
		creds[key] = config.Env(key, "")
		if creds[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}

	conf := &oauth2.Config{
		ClientID:     creds["YOUTUBE_CLIENT_ID"],
		ClientSecret: creds["YOUTUBE_CLIENT_SECRET"],
		Endpoint:     google.Endpoint,
		Scopes:       youtubeScopes,
	}
	// no access token, so the first request refreshes
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: creds["YOUTUBE_REFRESH_TOKEN"]}), nil
}

// UploadRecord is written next to the run's outputs after a publish
type UploadRecord struct {
	VideoID    string `json:"video_id"`
	VideoURL   string `json:"video_url"`
	Title      string `json:"title"`
	Visibility string `json:"visibility"`
	VideoFile  string `json:"video_file"`
	UploadedAt string `json:"uploaded_at"`
}

// LogUpload writes upload_<id>.json into dir and returns its path
func LogUpload(videoID, videoURL, videoFile, dir string, md *types.VideoMetadata) (string, error) {
	rec := UploadRecord{
		VideoID:    videoID,
		VideoURL:   videoURL,
		Title:      md.Title,
		Visibility: md.Visibility,
		VideoFile:  videoFile,
		UploadedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "upload_"+videoID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write upload log: %w", err)
	}
	log.Printf("[upload] Upload record: %s", path)
	return path, nil
}
