package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/internal/platform"
	"topic-video-pipeline/orchestrator"
	"topic-video-pipeline/queue"
	"topic-video-pipeline/server"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := os.MkdirAll(cfg.Paths.Output, 0755); err != nil {
		log.Fatalf("Failed to create dir %s: %v", cfg.Paths.Output, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := platform.NewRunStore()
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	hub := events.NewHub()

	// With Redis the API only queues runs and relays worker events from
	// RabbitMQ; without it runs execute in this process.
	var dispatcher orchestrator.Dispatcher
	var local *orchestrator.LocalDispatcher
	if config.Env("REDIS_URL", "") != "" {
		rdb, err := platform.NewRedisClient(ctx)
		if err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		dispatcher = &queue.Dispatcher{Processor: queue.NewProcessor(rdb), QueueName: cfg.Pipeline.QueueName}

		if amqpURL := config.Env("AMQP_URL", ""); amqpURL != "" {
			consumer, err := events.NewAMQPConsumer(amqpURL, cfg.Pipeline.EventsExchange)
			if err != nil {
				log.Fatalf("Failed to start event consumer: %v", err)
			}
			defer consumer.Close()
			go func() {
				if err := consumer.Forward(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
					log.Printf("[api] ⚠️  event relay stopped: %v", err)
				}
			}()
		} else {
			log.Println("[api] ⚠️  AMQP_URL not set — worker progress is not streamed")
		}
	} else {
		p, err := orchestrator.NewFromConfig(ctx, cfg, st, events.Multi{events.LogPublisher{}, hub})
		if err != nil {
			log.Fatalf("Failed to build pipeline: %v", err)
		}
		local = &orchestrator.LocalDispatcher{Pipeline: p}
		dispatcher = local
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(cfg, st, dispatcher, hub).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Printf("[api] Server started on %s", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[api] Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[api] Graceful shutdown failed: %v", err)
		_ = srv.Close()
	}
	if local != nil {
		log.Println("[api] Waiting for in-process runs to finish...")
		local.Wait()
	}
	log.Println("[api] Server stopped")
}
