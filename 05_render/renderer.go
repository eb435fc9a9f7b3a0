package render

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"topic-video-pipeline/config"
	"topic-video-pipeline/media"
	"topic-video-pipeline/types"
)

// AssemblyMismatchError means the video and narration lists handed to the
// assembler do not line up. It is never corrected here.
type AssemblyMismatchError struct {
	Videos     int
	Narrations int
	Position   int
	VideoScene int
	NarrScene  int
}

func (e *AssemblyMismatchError) Error() string {
	if e.Videos != e.Narrations {
		return fmt.Sprintf("assembly mismatch: %d videos but %d narrations", e.Videos, e.Narrations)
	}
	if e.Videos == 0 {
		return "assembly mismatch: nothing to assemble"
	}
	return fmt.Sprintf("assembly mismatch at position %d: video is scene %d, narration is scene %d",
		e.Position, e.VideoScene, e.NarrScene)
}

// Match modes for render.match_duration
const (
	MatchNarration = "narration"
	MatchNone      = "none"
)

// Renderer assembles the final video from per-scene assets
type Renderer struct {
	ff            *media.FFmpeg
	width         int
	height        int
	fps           int
	matchDuration string
}

// New creates a new Renderer
func New(cfg *config.Config, ff *media.FFmpeg) *Renderer {
	w, h := parseResolution(cfg.Render.Resolution)
	return &Renderer{
		ff:            ff,
		width:         w,
		height:        h,
		fps:           cfg.Render.FPS,
		matchDuration: cfg.Render.MatchDuration,
	}
}

// CheckPairs verifies videos[i] and narrations[i] belong to the same scene
func CheckPairs(videos []*types.VideoAsset, narrations []*types.NarrationAsset) error {
	if len(videos) != len(narrations) || len(videos) == 0 {
		return &AssemblyMismatchError{Videos: len(videos), Narrations: len(narrations)}
	}
	for i := range videos {
		if videos[i] == nil || narrations[i] == nil || videos[i].SceneIndex != narrations[i].SceneIndex {
			e := &AssemblyMismatchError{Videos: len(videos), Narrations: len(narrations), Position: i, VideoScene: -1, NarrScene: -1}
			if videos[i] != nil {
				e.VideoScene = videos[i].SceneIndex
			}
			if narrations[i] != nil {
				e.NarrScene = narrations[i].SceneIndex
			}
			return e
		}
	}
	return nil
}

// CombineSegments lays each narration over its scene clip, replacing the
// clip's own audio, then joins the scenes in the given order into
// dir/final_video.mp4. Per-scene intermediates go to dir/tmp.
func (r *Renderer) CombineSegments(ctx context.Context, videos []*types.VideoAsset, narrations []*types.NarrationAsset, dir string) (string, error) {
	if err := CheckPairs(videos, narrations); err != nil {
		return "", err
	}
	log.Printf("[render] Combining %d scenes...", len(videos))

	scratch := filepath.Join(dir, "tmp")
	if err := os.MkdirAll(scratch, 0755); err != nil {
		return "", fmt.Errorf("create scratch dir: %w", err)
	}

	muxed := make([]string, 0, len(videos))
	for i := range videos {
		out := filepath.Join(scratch, fmt.Sprintf("scene_%03d_av.mp4", videos[i].SceneIndex))
		if err := r.ff.Run(ctx, r.muxArgs(videos[i], narrations[i], out)...); err != nil {
			return "", fmt.Errorf("mux scene %d: %w", videos[i].SceneIndex, err)
		}
		muxed = append(muxed, out)
	}

	final := filepath.Join(dir, "final_video.mp4")
	if err := r.ff.Concat(ctx, muxed, filepath.Join(scratch, "scenes_concat.txt"), final, false); err != nil {
		return "", fmt.Errorf("concatenate scenes: %w", err)
	}
	log.Printf("[render] ✅ Final video ready: %s", final)
	return final, nil
}

// muxArgs normalizes one scene to the output format and cuts it to
// SceneLength. A clip shorter than the scene holds its last frame; in none
// mode a narration shorter than the clip is padded with silence.
func (r *Renderer) muxArgs(v *types.VideoAsset, n *types.NarrationAsset, out string) []string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", r.width, r.height),
		fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", r.width, r.height),
		"setsar=1",
		fmt.Sprintf("fps=%d", r.fps),
	}

	limit := SceneLength(r.matchDuration, v, n)
	if limit > 0 && n.DurationSec > 0 {
		if pad := limit - v.DurationSec; v.DurationSec <= 0 || pad > 0 {
			if v.DurationSec <= 0 {
				pad = limit
			}
			filters = append(filters, fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%s", seconds(pad)))
		}
	}

	args := []string{
		"-i", v.File,
		"-i", n.AudioFile,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", "192k",
		"-ar", "44100",
		"-ac", "2",
	}
	if limit > n.DurationSec && n.DurationSec > 0 {
		args = append(args, "-af", "apad")
	}
	if limit > 0 {
		args = append(args, "-t", seconds(limit))
	}
	return append(args, out)
}

func seconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

func parseResolution(res string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(strings.ToLower(res), "%dx%d", &w, &h); err != nil || w <= 0 || h <= 0 {
		return 1920, 1080
	}
	return w, h
}
