package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanMusic(t *testing.T) {
	tests := []struct {
		name      string
		video     float64
		music     float64
		wantLoops int
		wantTrim  bool
	}{
		{"short track loops", 17, 5, 3, true},
		{"long track trimmed", 17, 60, 0, true},
		{"exact fit", 17, 17, 0, false},
		{"exact multiple", 20, 5, 3, false},
		{"unknown music length", 17, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := PlanMusic(tt.video, tt.music)
			assert.Equal(t, tt.video, plan.Duration)
			assert.Equal(t, tt.wantLoops, plan.Loops)
			assert.Equal(t, tt.wantTrim, plan.Trim)
			if tt.music > 0 {
				// looped track always covers the video
				assert.GreaterOrEqual(t, float64(plan.Loops+1)*tt.music, tt.video)
			}
		})
	}
}

func writeFile(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestAddBackgroundMusicLoopsShortTrack(t *testing.T) {
	dir := t.TempDir()
	music := filepath.Join(dir, "calm.mp3")
	video := filepath.Join(dir, "final_video.mp4")
	writeFile(t, music)
	writeFile(t, video)

	r := &fakeRunner{durations: map[string]float64{"calm.mp3": 5, "final_video.mp4": 17}}
	out, err := newRenderer(t, r, MatchNarration).AddBackgroundMusic(context.Background(), music, video, 0.3, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "final_video_music.mp4"), out)

	require.Len(t, r.calls, 1)
	args := r.calls[0]
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-stream_loop 3 -i "+music)
	assert.Equal(t, "17.000", argValue(args, "-t"))

	filter := argValue(args, "-filter_complex")
	assert.Contains(t, filter, "volume=0.3")
	assert.Contains(t, filter, "atrim=0:17.000")
	assert.Contains(t, filter, "normalize=0")
	assert.Contains(t, filter, "duration=first")
}

func TestAddBackgroundMusicTrimsLongTrack(t *testing.T) {
	dir := t.TempDir()
	music := filepath.Join(dir, "epic.mp3")
	video := filepath.Join(dir, "final_video.mp4")
	writeFile(t, music)
	writeFile(t, video)

	r := &fakeRunner{durations: map[string]float64{"epic.mp3": 240, "final_video.mp4": 17}}
	_, err := newRenderer(t, r, MatchNarration).AddBackgroundMusic(context.Background(), music, video, 0.3, dir)
	require.NoError(t, err)

	assert.NotContains(t, r.calls[0], "-stream_loop")
	assert.Equal(t, "17.000", argValue(r.calls[0], "-t"))
}

func TestAddBackgroundMusicRejectsBadInput(t *testing.T) {
	dir := t.TempDir()
	rd := newRenderer(t, &fakeRunner{}, MatchNarration)

	_, err := rd.AddBackgroundMusic(context.Background(), filepath.Join(dir, "missing.mp3"), "v.mp4", 0.3, dir)
	assert.Error(t, err)

	music := filepath.Join(dir, "m.mp3")
	writeFile(t, music)
	_, err = rd.AddBackgroundMusic(context.Background(), music, "v.mp4", -1, dir)
	assert.Error(t, err)
}

func TestMusicLibraryPick(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{"ambient_space.mp3", "upbeat.mp3", "piano.wav", "notes.txt"} {
		writeFile(t, filepath.Join(dir, f))
	}
	tags := `{
		"_instructions": "map file names to tags",
		"ambient_space.mp3": ["space", "eclipses", "calm"],
		"upbeat.mp3": ["technology", "energy"],
		"piano.wav": "not a list"
	}`
	tagsPath := filepath.Join(dir, "tags.json")
	require.NoError(t, os.WriteFile(tagsPath, []byte(tags), 0644))

	lib, err := NewMusicLibrary(dir, tagsPath)
	require.NoError(t, err)
	assert.Equal(t, 3, lib.Len())
	lib.intn = func(n int) int { return n - 1 }

	got, err := lib.Pick("Solar Eclipses")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ambient_space.mp3"), got)

	got, err = lib.Pick("new technology")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "upbeat.mp3"), got)
}

func TestMusicLibraryWithoutTags(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "only.mp3"))

	lib, err := NewMusicLibrary(dir, filepath.Join(dir, "tags.json"))
	require.NoError(t, err)
	got, err := lib.Pick("anything")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "only.mp3"), got)

	empty, err := NewMusicLibrary(filepath.Join(dir, "nope"), filepath.Join(dir, "tags.json"))
	require.NoError(t, err)
	_, err = empty.Pick("anything")
	assert.Error(t, err)
}
