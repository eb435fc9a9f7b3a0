package visuals

import (
	"context"
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

// Generator produces one continuous clip per scene from chained generations
type Generator struct {
	api         GenerationAPI
	poller      *Poller
	images      ImageFinder
	ff          *media.FFmpeg
	httpClient  *http.Client
	unit        float64
	aspectRatio string
	model       string
	retryDelay  time.Duration
}

// New creates a Generator. images may be nil to skip reference keyframes.
func New(cfg *config.Config, api GenerationAPI, images ImageFinder, ff *media.FFmpeg) *Generator {
	v := cfg.Visuals
	return &Generator{
		api:         api,
		poller:      &Poller{API: api, Interval: v.PollInterval, MaxPolls: v.MaxPolls},
		images:      images,
		ff:          ff,
		httpClient:  &http.Client{Timeout: 5 * time.Minute},
		unit:        v.SegmentUnitSeconds,
		aspectRatio: v.AspectRatio,
		model:       v.Model,
		retryDelay:  2 * time.Second,
	}
}

// GenerateSceneVideo covers targetSec of narration with
// SegmentsNeeded(targetSec) chained segments and joins them into
// dir/scene_NNN.mp4
func (g *Generator) GenerateSceneVideo(ctx context.Context, scene types.Scene, targetSec float64, dir string) (*types.VideoAsset, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create visuals dir: %w", err)
	}

	n := SegmentsNeeded(targetSec, g.unit)
	log.Printf("[visuals] Scene %d: %.2fs of narration → %d segment(s)", scene.Index, targetSec, n)

	var firstFrame *Keyframe
	if g.images != nil {
		if link, err := g.images.FindImage(ctx, scene.Visual); err != nil {
			log.Printf("[visuals] ⚠️  Scene %d: no reference image, generating from text only: %v", scene.Index, err)
		} else {
			firstFrame = &Keyframe{Type: "image", URL: link}
		}
	}

	jobs := make([]*SegmentJob, 0, n)
	for k := 0; k < n; k++ {
		req := GenerationRequest{Prompt: scene.Visual, AspectRatio: g.aspectRatio, Model: g.model}
		switch {
		case k > 0:
			req.Keyframes = &Keyframes{Frame0: &Keyframe{Type: "generation", ID: jobs[k-1].ID}}
		case firstFrame != nil:
			req.Keyframes = &Keyframes{Frame0: firstFrame}
		}

		gen, err := g.api.Create(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &VideoGenerationError{SceneIndex: scene.Index, Segment: k, Reason: fmt.Sprintf("submit: %v", err)}
		}
		job := NewSegmentJob(gen.ID, k)
		log.Printf("[visuals] Scene %d segment %d/%d: dreaming (generation %s)", scene.Index, k+1, n, job.ID)

		if err := g.poller.Await(ctx, scene.Index, job); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	asset := &types.VideoAsset{SceneIndex: scene.Index}
	for k, job := range jobs {
		segFile := filepath.Join(dir, fmt.Sprintf("scene_%03d_seg_%02d.mp4", scene.Index, k))
		if err := g.downloadWithRetry(ctx, job.AssetURL, segFile); err != nil {
			return nil, &VideoGenerationError{SceneIndex: scene.Index, Segment: k, JobID: job.ID, Reason: fmt.Sprintf("download: %v", err)}
		}
		asset.GenerationIDs = append(asset.GenerationIDs, job.ID)
		asset.Segments = append(asset.Segments, segFile)
	}

	asset.File = filepath.Join(dir, fmt.Sprintf("scene_%03d.mp4", scene.Index))
	listFile := filepath.Join(dir, fmt.Sprintf("scene_%03d_concat.txt", scene.Index))
	if err := g.ff.Concat(ctx, asset.Segments, listFile, asset.File, false); err != nil {
		return nil, fmt.Errorf("scene %d concat segments: %w", scene.Index, err)
	}
	_ = os.Remove(listFile)

	if dur, err := g.ff.Duration(ctx, asset.File); err != nil {
		log.Printf("[visuals] ⚠️  Scene %d: could not measure clip: %v", scene.Index, err)
	} else {
		asset.DurationSec = dur
	}

	log.Printf("[visuals] ✅ Scene %d clip ready: %s", scene.Index, asset.File)
	return asset, nil
}

func (g *Generator) downloadWithRetry(ctx context.Context, url, outFile string) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = g.download(ctx, url, outFile)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[visuals] Download attempt %d failed for %s: %v", attempt, filepath.Base(outFile), err)
		if attempt < 3 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * g.retryDelay):
			}
		}
	}
	return err
}

func (g *Generator) download(ctx context.Context, url, outFile string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
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
