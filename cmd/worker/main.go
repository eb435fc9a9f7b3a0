package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/internal/platform"
	"topic-video-pipeline/orchestrator"
	"topic-video-pipeline/queue"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
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

	pub := events.Multi{events.LogPublisher{}}
	if amqpURL := config.Env("AMQP_URL", ""); amqpURL != "" {
		amqpPub, err := events.NewAMQPPublisher(amqpURL, cfg.Pipeline.EventsExchange)
		if err != nil {
			log.Fatalf("Failed to connect event publisher: %v", err)
		}
		defer amqpPub.Close()
		pub = append(pub, amqpPub)
	}

	pipeline, err := orchestrator.NewFromConfig(ctx, cfg, st, pub)
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	processor := queue.NewProcessor(rdb)
	processor.Register(cfg.Pipeline.QueueName, func(ctx context.Context, payload string) error {
		task, err := queue.DecodeRunTask(payload)
		if err != nil {
			return fmt.Errorf("decode task: %w", err)
		}
		run, err := loadRun(ctx, cfg, st, task)
		if err != nil {
			return err
		}
		return pipeline.Execute(ctx, run)
	})

	log.Println("[worker] Worker started, waiting for runs...")
	if err := processor.Listen(ctx, cfg.Pipeline.QueueName); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Worker stopped: %v", err)
	}
	log.Println("[worker] Worker stopped")
}

// loadRun picks up the run the API saved, or rebuilds it from the task when
// the store does not have it
func loadRun(ctx context.Context, cfg *config.Config, st store.RunStore, task queue.RunTask) (*types.PipelineRun, error) {
	run, err := st.Get(ctx, task.RunID)
	if err == nil {
		return run, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load run %s: %w", task.RunID, err)
	}

	q, err := orchestrator.NormalizeQuery(cfg, task.Query)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.Paths.Output, task.RunID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return types.NewRun(task.RunID, dir, q), nil
}
