package script

import (
	"testing"

	"topic-video-pipeline/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractScenes(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		wantVisual []string
		wantNarr   []string
	}{
		{
			name: "reference format with trailing newline",
			text: "- Scene 1: The moon slides across the sun.\n- Narrator 1: A total eclipse begins.\n" +
				"- Scene 2: Crowds look up wearing glasses.\n- Narrator 2: Millions watched.\n",
			wantVisual: []string{"The moon slides across the sun.", "Crowds look up wearing glasses."},
			wantNarr:   []string{"A total eclipse begins.", "Millions watched."},
		},
		{
			name: "last line without terminator is kept",
			text: "- Scene 1: Corona glows.\n- Narrator 1: The corona appears.\n" +
				"- Scene 2: Diamond ring effect.\n- Narrator 2: Then the light returns.",
			wantVisual: []string{"Corona glows.", "Diamond ring effect."},
			wantNarr:   []string{"The corona appears.", "Then the light returns."},
		},
		{
			name:       "crlf and markdown bold",
			text:       "**Scene 1:** Wide shot of a desert.\r\n**Narrator 1:** Deserts are dry.\r\n",
			wantVisual: []string{"Wide shot of a desert."},
			wantNarr:   []string{"Deserts are dry."},
		},
		{
			name:       "no bullets and preamble text",
			text:       "Here is your script!\n\nScene 1: Sunrise.\nNarrator 1: Morning.\n\nHope you like it.",
			wantVisual: []string{"Sunrise."},
			wantNarr:   []string{"Morning."},
		},
		{
			name:       "labels out of order are ignored",
			text:       "- Scene 7: First.\n- Narrator 3: One.\n- Scene 2: Second.\n- Narrator 9: Two.",
			wantVisual: []string{"First.", "Second."},
			wantNarr:   []string{"One.", "Two."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenes, err := ExtractScenes(&types.Script{Text: tt.text})
			require.NoError(t, err)
			require.Len(t, scenes, len(tt.wantVisual))
			for i, sc := range scenes {
				assert.Equal(t, i, sc.Index)
				assert.Equal(t, tt.wantVisual[i], sc.Visual)
				assert.Equal(t, tt.wantNarr[i], sc.Narration)
			}
		})
	}
}

func TestExtractScenesCountMismatch(t *testing.T) {
	text := "- Scene 1: a\n- Narrator 1: b\n- Scene 2: c\n- Narrator 2: d\n- Scene 3: e\n"
	scenes, err := ExtractScenes(&types.Script{Text: text})
	require.Nil(t, scenes)

	var se *ScriptStructureError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Scenes)
	assert.Equal(t, 2, se.Narrations)
}

func TestExtractScenesNoPairs(t *testing.T) {
	_, err := ExtractScenes(&types.Script{Text: "Error generating video scenes: rate limited"})
	var se *ScriptStructureError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "no Scene/Narrator lines")
}

func TestExtractScenesDoesNotMutateScript(t *testing.T) {
	s := &types.Script{Text: "Scene 1: a\nNarrator 1: b"}
	_, err := ExtractScenes(s)
	require.NoError(t, err)
	assert.Equal(t, "Scene 1: a\nNarrator 1: b", s.Text)
}
