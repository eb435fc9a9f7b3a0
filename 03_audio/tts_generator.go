package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/media"
	"topic-video-pipeline/types"
)

// VoiceSynthesisError drops a single scene: the voice service gave no audio
// reference or the audio could not be fetched
type VoiceSynthesisError struct {
	SceneIndex int
	Err        error
}

func (e *VoiceSynthesisError) Error() string {
	return fmt.Sprintf("scene %d narration: %v", e.SceneIndex, e.Err)
}

func (e *VoiceSynthesisError) Unwrap() error { return e.Err }

// ClipCreator is the voice service used per scene
type ClipCreator interface {
	CreateClip(ctx context.Context, title, text string) (string, error)
}

// Generator handles narration synthesis for one scene at a time
type Generator struct {
	clips       ClipCreator
	ff          *media.FFmpeg
	httpClient  *http.Client
	ext         string
	maxAttempts int
	retryDelay  time.Duration
}

// New creates a Generator backed by Resemble, credentials from the
// environment
func New(cfg *config.Config, ff *media.FFmpeg) *Generator {
	client := &http.Client{Timeout: 120 * time.Second}
	resemble := &ResembleClient{
		BaseURL:     cfg.Audio.BaseURL,
		APIKey:      os.Getenv("RESEMBLE_API_KEY"),
		ProjectUUID: os.Getenv("RESEMBLE_PROJECT_UUID"),
		VoiceUUID:   os.Getenv("RESEMBLE_VOICE_UUID"),
		HTTPClient:  client,
	}
	return NewWithClient(resemble, ff, client, cfg.Audio.OutputExt, cfg.Audio.MaxAttempts)
}

// NewWithClient wires an arbitrary clip service
func NewWithClient(clips ClipCreator, ff *media.FFmpeg, httpClient *http.Client, ext string, maxAttempts int) *Generator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if ext == "" {
		ext = "mp3"
	}
	return &Generator{
		clips:       clips,
		ff:          ff,
		httpClient:  httpClient,
		ext:         ext,
		maxAttempts: maxAttempts,
		retryDelay:  2 * time.Second,
	}
}

// Synthesize voices one scene into dir/scene_NNN.<ext> and measures it
func (g *Generator) Synthesize(ctx context.Context, scene types.Scene, dir string) (*types.NarrationAsset, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create audio dir: %w", err)
	}
	outFile := filepath.Join(dir, fmt.Sprintf("scene_%03d.%s", scene.Index, g.ext))

	log.Printf("[audio] Scene %d: generating narration (%d chars)...", scene.Index, len(scene.Narration))

	var src string
	err := g.retry(ctx, fmt.Sprintf("scene %d clip", scene.Index), func() error {
		var err error
		src, err = g.clips.CreateClip(ctx, fmt.Sprintf("scene_%03d", scene.Index), scene.Narration)
		return err
	})
	if err != nil {
		return nil, &VoiceSynthesisError{SceneIndex: scene.Index, Err: err}
	}
	if src == "" {
		return nil, &VoiceSynthesisError{SceneIndex: scene.Index, Err: errors.New("voice service returned no audio reference")}
	}

	err = g.retry(ctx, fmt.Sprintf("scene %d download", scene.Index), func() error {
		return g.download(ctx, src, outFile)
	})
	if err != nil {
		return nil, &VoiceSynthesisError{SceneIndex: scene.Index, Err: fmt.Errorf("download audio: %w", err)}
	}

	dur, err := g.ff.Duration(ctx, outFile)
	if err != nil {
		return nil, &VoiceSynthesisError{SceneIndex: scene.Index, Err: fmt.Errorf("measure duration: %w", err)}
	}

	log.Printf("[audio] Scene %d: %.2fs → %s", scene.Index, dur, outFile)
	return &types.NarrationAsset{
		SceneIndex:  scene.Index,
		AudioFile:   outFile,
		SourceURL:   src,
		DurationSec: dur,
	}, nil
}

// retry runs fn up to maxAttempts times with a linear delay. Only transport
// failures and retryable HTTP statuses are retried.
func (g *Generator) retry(ctx context.Context, what string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			return err
		}
		if attempt == g.maxAttempts {
			break
		}
		log.Printf("[audio] %s attempt %d failed: %v — retrying...", what, attempt, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * g.retryDelay):
		}
	}
	return err
}

func (g *Generator) download(ctx context.Context, src, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &statusError{Code: resp.StatusCode}
	}

	tmp := outFile + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, outFile)
}
