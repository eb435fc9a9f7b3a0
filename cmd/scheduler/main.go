package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"topic-video-pipeline/config"
	"topic-video-pipeline/internal/platform"
	"topic-video-pipeline/orchestrator"
	"topic-video-pipeline/queue"

	"github.com/robfig/cron/v3"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if len(cfg.Schedule.Jobs) == 0 {
		log.Fatalf("No schedule.jobs configured in %s", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := platform.NewRunStore()
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	rdb, err := platform.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	dispatcher := &queue.Dispatcher{Processor: queue.NewProcessor(rdb), QueueName: cfg.Pipeline.QueueName}

	// Only one scheduler instance should run, or every job is queued twice.
	c := cron.New()
	if err := orchestrator.ScheduleJobs(ctx, c, cfg, st, dispatcher); err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	c.Start()
	log.Printf("[scheduler] Scheduler started with %d jobs", len(cfg.Schedule.Jobs))

	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("[scheduler] Scheduler stopped")
}
