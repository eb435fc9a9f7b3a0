package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Runner executes an external binary. ExecRunner is the real one; tests
// substitute a recorder.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner shells out with exec.CommandContext and reports the last
// stderr line on failure
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(ctx, name, err, stderr.String())
	}
	return nil
}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, commandError(ctx, name, err, stderr.String())
	}
	return out, nil
}

func commandError(ctx context.Context, name string, err error, stderr string) error {
	if errors.Is(ctx.Err(), context.Canceled) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ctx.Err()
	}
	if line := lastLine(stderr); line != "" {
		return fmt.Errorf("%s failed: %s: %w", name, line, err)
	}
	return fmt.Errorf("%s failed: %w", name, err)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

// FFmpeg wraps the ffmpeg/ffprobe calls shared by every stage
type FFmpeg struct {
	runner Runner
}

// New returns an FFmpeg backed by r; nil means the real binaries
func New(r Runner) *FFmpeg {
	if r == nil {
		r = ExecRunner{}
	}
	return &FFmpeg{runner: r}
}

// Run invokes ffmpeg with -y prepended
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	return f.runner.Run(ctx, "ffmpeg", append([]string{"-y"}, args...)...)
}

// Duration measures a media file in seconds with ffprobe
func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	out, err := f.runner.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", filepath.Base(path), err)
	}
	val := strings.TrimSpace(string(out))
	if val == "" || val == "N/A" {
		return 0, fmt.Errorf("ffprobe %s: empty duration", filepath.Base(path))
	}
	dur, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration from ffprobe: %w", err)
	}
	return dur, nil
}

// WriteConcatList writes an ffmpeg concat demuxer list for files, in order
func WriteConcatList(listPath string, files []string) error {
	var b strings.Builder
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		// single quotes inside a concat entry are written as '\''
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return os.WriteFile(listPath, []byte(b.String()), 0644)
}

// Concat joins files in order with the concat demuxer. Stream copy needs
// identical codecs; reencode otherwise.
func (f *FFmpeg) Concat(ctx context.Context, files []string, listPath, output string, reencode bool) error {
	if len(files) == 0 {
		return fmt.Errorf("concat: no input files")
	}
	if err := WriteConcatList(listPath, files); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	args := []string{"-f", "concat", "-safe", "0", "-i", listPath}
	if reencode {
		args = append(args, "-c:v", "libx264", "-preset", "fast", "-crf", "20", "-pix_fmt", "yuv420p", "-c:a", "aac", "-b:a", "192k")
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, output)
	return f.Run(ctx, args...)
}
