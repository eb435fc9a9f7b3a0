package orchestrator

import (
	"context"
	"fmt"
	"log"

	"topic-video-pipeline/config"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"

	"github.com/robfig/cron/v3"
)

// ScheduleJobs adds one cron entry per configured job. Each tick creates a
// pending run, saves it and hands it to d.
func ScheduleJobs(ctx context.Context, c *cron.Cron, cfg *config.Config, st store.RunStore, d Dispatcher) error {
	for i, job := range cfg.Schedule.Jobs {
		q := types.Query{
			Topic:     job.Topic,
			Source:    types.SourceKind(job.Source),
			Count:     job.Count,
			Scenes:    job.Scenes,
			WordLimit: job.WordLimit,
			Music:     job.Music,
		}
		if _, err := NormalizeQuery(cfg, q); err != nil {
			return fmt.Errorf("schedule job %d: %w", i, err)
		}

		_, err := c.AddFunc(job.Cron, func() {
			run, err := NewRun(cfg, q)
			if err != nil {
				log.Printf("[scheduler] ❌ %q: %v", q.Topic, err)
				return
			}
			if err := st.Save(ctx, run); err != nil {
				log.Printf("[scheduler] ❌ save run %s: %v", run.ID, err)
				return
			}
			if err := d.Dispatch(ctx, run); err != nil {
				log.Printf("[scheduler] ❌ dispatch run %s: %v", run.ID, err)
				return
			}
			log.Printf("[scheduler] Queued run %s for %q", run.ID, q.Topic)
		})
		if err != nil {
			return fmt.Errorf("schedule job %d (%q): %w", i, job.Cron, err)
		}
		log.Printf("[scheduler] %q scheduled at %q", job.Topic, job.Cron)
	}
	return nil
}
