package subtitles

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"topic-video-pipeline/05_render"
	"topic-video-pipeline/config"
	"topic-video-pipeline/media"
	"topic-video-pipeline/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	calls [][]string
}

func (r *recordingRunner) Run(ctx context.Context, name string, args ...string) error {
	r.calls = append(r.calls, args)
	return nil
}

func (r *recordingRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, nil
}

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		sec  float64
		want string
	}{
		{0, "00:00:00,000"},
		{6, "00:00:06,000"},
		{17.25, "00:00:17,250"},
		{61.0004, "00:01:01,000"},
		{3725.5, "01:02:05,500"},
		{-1, "00:00:00,000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimestamp(tt.sec), "sec=%v", tt.sec)
	}
}

func TestWriteSRTFollowsTimeline(t *testing.T) {
	scenes := []types.Scene{
		{Index: 0, Visual: "The moon slides across the sun.", Narration: "A solar eclipse happens when the moon blocks the sun."},
		{Index: 1, Visual: "Crowds look up.", Narration: "Millions travel to see totality."},
	}
	tl := render.BuildTimeline([]*types.NarrationAsset{
		{SceneIndex: 0, DurationSec: 6},
		{SceneIndex: 1, DurationSec: 11},
	})

	path := filepath.Join(t.TempDir(), "subtitles.srt")
	require.NoError(t, WriteSRT(tl, scenes, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	want := "1\n00:00:00,000 --> 00:00:06,000\nA solar eclipse happens when the moon blocks the sun.\n\n" +
		"2\n00:00:06,000 --> 00:00:17,000\nMillions travel to see totality.\n\n"
	assert.Equal(t, want, string(data))
	assert.NoError(t, ValidateSRT(path))
}

func TestBuildCuesSplitsLongNarration(t *testing.T) {
	long := strings.Repeat("eclipse ", 30)
	tl := render.Timeline{Entries: []render.TimelineEntry{{SceneIndex: 0, Start: 2, End: 12}}, Total: 12}

	cues := BuildCues(tl, []types.Scene{{Index: 0, Narration: long}})
	require.Greater(t, len(cues), 1)
	assert.Equal(t, 2.0, cues[0].Start)
	assert.Equal(t, 12.0, cues[len(cues)-1].End)
	for i, c := range cues {
		assert.LessOrEqual(t, len(c.Text), maxCueChars)
		if i > 0 {
			assert.Equal(t, cues[i-1].End, c.Start)
		}
	}
}

func TestWriteSRTEmpty(t *testing.T) {
	err := WriteSRT(render.Timeline{}, nil, filepath.Join(t.TempDir(), "x.srt"))
	assert.Error(t, err)
}

func TestBurnIntoVideoStyle(t *testing.T) {
	r := &recordingRunner{}
	g := New(config.Default(), media.New(r))

	out, err := g.BurnIntoVideo(context.Background(), "final_video.mp4", `C:\runs\subtitles.srt`, "out")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "video_subtitled.mp4"), out)

	require.Len(t, r.calls, 1)
	vf := strings.Join(r.calls[0], " ")
	assert.Contains(t, vf, `subtitles=C\:/runs/subtitles.srt`)
	assert.Contains(t, vf, "FontName=Arial,FontSize=22,Bold=1")
	assert.Contains(t, vf, "MarginV=40")
}
