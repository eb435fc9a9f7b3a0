package script

import (
	"fmt"
	"regexp"
	"strings"

	"topic-video-pipeline/types"
)

// Both patterns need a line terminator after the captured text, so
// ExtractScenes appends one when the script lacks it. Leading bullets and
// markdown bold around the label are tolerated.
var (
	scenePattern    = regexp.MustCompile(`(?im)^[ \t]*(?:[-*•][ \t]*)?(?:\*\*)?Scene[ \t]+\d+[ \t]*(?:\*\*)?[ \t]*:[ \t]*(?:\*\*)?[ \t]*(\S.*?)[ \t]*\r?\n`)
	narratorPattern = regexp.MustCompile(`(?im)^[ \t]*(?:[-*•][ \t]*)?(?:\*\*)?Narrator[ \t]+\d+[ \t]*(?:\*\*)?[ \t]*:[ \t]*(?:\*\*)?[ \t]*(\S.*?)[ \t]*\r?\n`)
)

// ScriptStructureError means the script cannot be split into matching
// scene/narration pairs
type ScriptStructureError struct {
	Scenes     int
	Narrations int
}

func (e *ScriptStructureError) Error() string {
	if e.Scenes == 0 && e.Narrations == 0 {
		return "script contains no Scene/Narrator lines"
	}
	return fmt.Sprintf("script has %d scene descriptions but %d narration lines", e.Scenes, e.Narrations)
}

// ExtractScenes pairs the Scene and Narrator lines of a script by position.
// The numeric labels are ignored.
func ExtractScenes(s *types.Script) ([]types.Scene, error) {
	text := s.Text
	if !strings.HasSuffix(text, "\n") {
		text += "\n"
	}

	visuals := captureLines(scenePattern, text)
	narrations := captureLines(narratorPattern, text)
	if len(visuals) != len(narrations) || len(visuals) == 0 {
		return nil, &ScriptStructureError{Scenes: len(visuals), Narrations: len(narrations)}
	}

	scenes := make([]types.Scene, len(visuals))
	for i := range visuals {
		scenes[i] = types.Scene{Index: i, Visual: visuals[i], Narration: narrations[i]}
	}
	return scenes, nil
}

func captureLines(re *regexp.Regexp, text string) []string {
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		line := strings.TrimSpace(strings.TrimRight(m[1], "*"))
		line = strings.Trim(line, `"`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
