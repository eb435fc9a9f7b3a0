package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"topic-video-pipeline/config"
	"topic-video-pipeline/types"

	"github.com/google/uuid"
)

// NormalizeQuery fills defaults from config and rejects out-of-range input
func NormalizeQuery(cfg *config.Config, q types.Query) (types.Query, error) {
	q.Topic = strings.TrimSpace(q.Topic)
	if q.Topic == "" {
		return q, fmt.Errorf("topic is required")
	}

	if q.Source == "" {
		q.Source = types.SourceNews
	} else {
		kind, err := types.ParseSourceKind(string(q.Source))
		if err != nil {
			return q, err
		}
		q.Source = kind
	}

	var err error
	if q.Count, err = bounded("count", q.Count, cfg.Research.DefaultCount, cfg.Research.MaxCount); err != nil {
		return q, err
	}
	if q.Scenes, err = bounded("scenes", q.Scenes, cfg.Script.DefaultScenes, cfg.Script.MaxScenes); err != nil {
		return q, err
	}
	if q.WordLimit, err = bounded("word_limit", q.WordLimit, cfg.Script.DefaultWordLimit, cfg.Script.MaxWordLimit); err != nil {
		return q, err
	}
	return q, nil
}

func bounded(name string, v, def, max int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < 0 || v > max {
		return 0, fmt.Errorf("%s must be between 1 and %d, got %d", name, max, v)
	}
	return v, nil
}

// NewRun normalizes q and creates the run's output directory
func NewRun(cfg *config.Config, q types.Query) (*types.PipelineRun, error) {
	q, err := NormalizeQuery(cfg, q)
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()[:8]
	runDir := filepath.Join(cfg.Paths.Output, runID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}
	return types.NewRun(runID, runDir, q), nil
}
