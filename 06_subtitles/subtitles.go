package subtitles

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"topic-video-pipeline/05_render"
	"topic-video-pipeline/config"
	"topic-video-pipeline/media"
	"topic-video-pipeline/types"
)

// maxCueChars keeps a cue to about two lines on screen
const maxCueChars = 84

// Cue is one SRT entry
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// Generator writes subtitles from the narration timeline and burns them in
type Generator struct {
	cfg *config.Config
	ff  *media.FFmpeg
}

// New creates a new subtitle Generator
func New(cfg *config.Config, ff *media.FFmpeg) *Generator {
	return &Generator{cfg: cfg, ff: ff}
}

// BuildCues splits each scene's narration across that scene's window on the
// timeline. Long lines become several cues timed by character share.
func BuildCues(tl render.Timeline, scenes []types.Scene) []Cue {
	byIndex := make(map[int]string, len(scenes))
	for _, s := range scenes {
		byIndex[s.Index] = s.Narration
	}

	var cues []Cue
	for _, entry := range tl.Entries {
		chunks := splitText(byIndex[entry.SceneIndex], maxCueChars)
		if len(chunks) == 0 {
			continue
		}
		total := 0
		for _, c := range chunks {
			total += len(c)
		}
		span := entry.End - entry.Start
		at := entry.Start
		for i, c := range chunks {
			end := at + span*float64(len(c))/float64(total)
			if i == len(chunks)-1 {
				end = entry.End
			}
			cues = append(cues, Cue{Start: at, End: end, Text: c})
			at = end
		}
	}
	return cues
}

// WriteSRT writes the narration of every timeline entry as SRT cues
func WriteSRT(tl render.Timeline, scenes []types.Scene, path string) error {
	cues := BuildCues(tl, scenes)
	if len(cues) == 0 {
		return fmt.Errorf("no narration to subtitle")
	}

	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, FormatTimestamp(c.Start), FormatTimestamp(c.End), c.Text)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// Run writes dir/subtitles.srt and, when enabled, burns it into video
func (g *Generator) Run(ctx context.Context, tl render.Timeline, scenes []types.Scene, video, dir string) (srt, subtitled string, err error) {
	srt = filepath.Join(dir, "subtitles.srt")
	if err := WriteSRT(tl, scenes, srt); err != nil {
		return "", "", fmt.Errorf("write srt: %w", err)
	}
	if err := ValidateSRT(srt); err != nil {
		return "", "", err
	}
	log.Printf("[subtitles] ✅ SRT generated: %s", srt)

	subtitled, err = g.BurnIntoVideo(ctx, video, srt, dir)
	if err != nil {
		return srt, "", err
	}
	return srt, subtitled, nil
}

// BurnIntoVideo renders srtFile onto the frames of videoFile, keeping its
// audio stream untouched
func (g *Generator) BurnIntoVideo(ctx context.Context, videoFile, srtFile, outputDir string) (string, error) {
	out := filepath.Join(outputDir, "video_subtitled.mp4")
	log.Printf("[subtitles] Burning %s onto %s...", filepath.Base(srtFile), filepath.Base(videoFile))

	args := []string{"-i", videoFile, "-vf", g.filter(srtFile), "-c:v", "libx264", "-preset", "fast", "-crf", "20", "-c:a", "copy", out}
	if err := g.ff.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("burn subtitles: %w", err)
	}

	log.Printf("[subtitles] ✅ Subtitled cut: %s", out)
	return out, nil
}

// filter is the libass subtitles filter with the configured style
func (g *Generator) filter(srtFile string) string {
	st := g.cfg.Subtitles
	bold := 0
	if st.FontWeight == "bold" {
		bold = 1
	}
	style := []string{
		"FontName=" + st.Font,
		fmt.Sprintf("FontSize=%d", st.FontSize),
		fmt.Sprintf("Bold=%d", bold),
		"PrimaryColour=&H00FFFFFF",
		"OutlineColour=&H00000000",
		fmt.Sprintf("Outline=%.0f", st.StrokeWidth),
		"Alignment=2",
		fmt.Sprintf("MarginV=%d", st.MarginBottom),
	}
	return fmt.Sprintf("subtitles=%s:force_style='%s'", escapeSubtitlePath(srtFile), strings.Join(style, ","))
}

// FormatTimestamp renders seconds as HH:MM:SS,mmm
func FormatTimestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	ms := int64(sec*1000 + 0.5)
	h := ms / 3_600_000
	ms -= h * 3_600_000
	m := ms / 60_000
	ms -= m * 60_000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// splitText packs words into chunks of at most max characters
func splitText(text string, max int) []string {
	var chunks []string
	var cur strings.Builder
	for _, w := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(w) > max {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// ValidateSRT rejects a file without at least one timed cue
func ValidateSRT(srtFile string) error {
	f, err := os.Open(srtFile)
	if err != nil {
		return err
	}
	defer f.Close()

	cues := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.Contains(sc.Text(), " --> ") {
			cues++
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if cues == 0 {
		return fmt.Errorf("%s has no subtitle cues", filepath.Base(srtFile))
	}
	return nil
}

// escapeSubtitlePath makes a path safe inside an ffmpeg filter argument
func escapeSubtitlePath(path string) string {
	return strings.NewReplacer("\\", "/", ":", "\\:").Replace(path)
}
