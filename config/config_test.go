package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMusicVolume(t *testing.T) {
	tests := []struct {
		name string
		body string
		want float64
	}{
		{"absent uses default", "render:\n  fps: 30\n", 0.3},
		{"explicit zero mutes", "render:\n  music_volume: 0\n", 0},
		{"explicit value", "render:\n  music_volume: 0.5\n", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeConfig(t, tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Render.MusicVolume)
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "script:\n  model: llama-3.3-70b-versatile\n"))
	require.NoError(t, err)

	assert.Equal(t, "narration", cfg.Render.MatchDuration)
	assert.Equal(t, 100, cfg.Research.MinCitations)
	assert.Equal(t, "llama-3.3-70b-versatile", cfg.Metadata.Model)
	assert.Equal(t, 0.3, Default().Render.MusicVolume)
}

func TestLoadRejectsInvalid(t *testing.T) {
	for _, body := range []string{
		"render:\n  match_duration: stretch\n",
		"render:\n  music_volume: -1\n",
		"research:\n  min_citations: 10\n",
	} {
		_, err := Load(writeConfig(t, body))
		assert.Error(t, err, body)
	}
}
