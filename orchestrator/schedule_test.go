package orchestrator

import (
	"context"
	"sync"
	"testing"

	"topic-video-pipeline/config"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	runs []*types.PipelineRun
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, run *types.PipelineRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return nil
}

func TestScheduleJobs(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.Output = t.TempDir()
	cfg.Schedule.Jobs = []config.ScheduledJob{
		{Cron: "0 9 * * *", Topic: "solar eclipses", Source: "news", Scenes: 2},
		{Cron: "@daily", Topic: "coral reefs", Source: "papers"},
	}

	c := cron.New()
	st := store.NewMemoryStore()
	d := &recordingDispatcher{}
	require.NoError(t, ScheduleJobs(context.Background(), c, cfg, st, d))

	entries := c.Entries()
	require.Len(t, entries, 2)

	// fire the first job by hand
	entries[0].Job.Run()

	require.Len(t, d.runs, 1)
	run := d.runs[0]
	assert.Equal(t, "solar eclipses", run.Query.Topic)
	assert.Equal(t, 2, run.Query.Scenes)
	assert.Equal(t, cfg.Research.DefaultCount, run.Query.Count)

	stored, err := st.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunPending, stored.Status)
}

func TestScheduleJobsRejectsBadEntries(t *testing.T) {
	cfg := config.Default()

	cfg.Schedule.Jobs = []config.ScheduledJob{{Cron: "not a spec", Topic: "tides"}}
	assert.Error(t, ScheduleJobs(context.Background(), cron.New(), cfg, store.NewMemoryStore(), &recordingDispatcher{}))

	cfg.Schedule.Jobs = []config.ScheduledJob{{Cron: "@hourly", Topic: "tides", Source: "radio"}}
	assert.Error(t, ScheduleJobs(context.Background(), cron.New(), cfg, store.NewMemoryStore(), &recordingDispatcher{}))
}
