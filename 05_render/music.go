package render

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"strconv"
)

// MusicPlan says how a track of length M is fitted under a video of length D
type MusicPlan struct {
	Duration float64 // output length, always the video length
	Loops    int     // extra passes of the track (ffmpeg -stream_loop)
	Trim     bool    // the (looped) track is longer than the video
}

// PlanMusic loops a short track and trims a long one so it ends with the video
func PlanMusic(videoSec, musicSec float64) MusicPlan {
	plan := MusicPlan{Duration: videoSec}
	if musicSec <= 0 || videoSec <= 0 {
		return plan
	}
	if musicSec < videoSec {
		plan.Loops = int(math.Ceil(videoSec/musicSec)) - 1
	}
	plan.Trim = float64(plan.Loops+1)*musicSec > videoSec
	return plan
}

// AddBackgroundMusic mixes musicFile under the video's narration at volume
// and writes dir/final_video_music.mp4. The narration level is untouched.
func (r *Renderer) AddBackgroundMusic(ctx context.Context, musicFile, video string, volume float64, dir string) (string, error) {
	if volume < 0 {
		return "", fmt.Errorf("music volume must not be negative, got %v", volume)
	}
	if _, err := os.Stat(musicFile); err != nil {
		return "", fmt.Errorf("music track: %w", err)
	}

	videoSec, err := r.ff.Duration(ctx, video)
	if err != nil {
		return "", fmt.Errorf("measure video: %w", err)
	}
	musicSec, err := r.ff.Duration(ctx, musicFile)
	if err != nil {
		return "", fmt.Errorf("measure music: %w", err)
	}

	plan := PlanMusic(videoSec, musicSec)
	log.Printf("[render] Music %s: %.1fs under %.1fs of video (loops: %d, trim: %v, volume: %.2f)",
		filepath.Base(musicFile), musicSec, videoSec, plan.Loops, plan.Trim, volume)

	out := filepath.Join(dir, "final_video_music.mp4")
	if err := r.ff.Run(ctx, musicArgs(video, musicFile, volume, plan, out)...); err != nil {
		return "", fmt.Errorf("mix music: %w", err)
	}
	log.Printf("[render] ✅ Video with music ready: %s", out)
	return out, nil
}

func musicArgs(video, music string, volume float64, plan MusicPlan, out string) []string {
	d := seconds(plan.Duration)
	filter := fmt.Sprintf(
		"[1:a]volume=%s,atrim=0:%s,asetpts=PTS-STARTPTS[bg];"+
			"[0:a][bg]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		strconv.FormatFloat(volume, 'f', -1, 64), d,
	)

	args := []string{"-i", video}
	if plan.Loops > 0 {
		args = append(args, "-stream_loop", strconv.Itoa(plan.Loops))
	}
	args = append(args,
		"-i", music,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", d,
		"-movflags", "+faststart",
		out,
	)
	return args
}
