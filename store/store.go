package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"topic-video-pipeline/types"
)

// ErrNotFound is returned for unknown run IDs
var ErrNotFound = errors.New("run not found")

// RunSummary is the list view of a run
type RunSummary struct {
	ID        string          `json:"run_id"`
	Topic     string          `json:"topic"`
	Source    string          `json:"source"`
	Status    types.RunStatus `json:"status"`
	Stage     string          `json:"stage"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunStore persists PipelineRun checkpoints
type RunStore interface {
	Save(ctx context.Context, run *types.PipelineRun) error
	Get(ctx context.Context, id string) (*types.PipelineRun, error)
	List(ctx context.Context, limit int) ([]RunSummary, error)
}

// MemoryStore keeps encoded snapshots so callers never share live runs
type MemoryStore struct {
	mu      sync.RWMutex
	runs    map[string][]byte
	summary map[string]RunSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[string][]byte), summary: make(map[string]RunSummary)}
}

func (m *MemoryStore) Save(ctx context.Context, run *types.PipelineRun) error {
	data, err := run.Snapshot()
	if err != nil {
		return err
	}
	sum, err := summarize(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[sum.ID] = data
	m.summary[sum.ID] = sum
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*types.PipelineRun, error) {
	m.mu.RLock()
	data, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	var run types.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]RunSummary, error) {
	m.mu.RLock()
	out := make([]RunSummary, 0, len(m.summary))
	for _, s := range m.summary {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// summarize reads the list fields back out of a snapshot
func summarize(snapshot []byte) (RunSummary, error) {
	var run types.PipelineRun
	if err := json.Unmarshal(snapshot, &run); err != nil {
		return RunSummary{}, err
	}
	return RunSummary{
		ID:        run.ID,
		Topic:     run.Query.Topic,
		Source:    string(run.Query.Source),
		Status:    run.Status,
		Stage:     run.Stage,
		Error:     run.Error,
		UpdatedAt: time.Now().UTC(),
	}, nil
}
