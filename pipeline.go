package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/internal/platform"
	"topic-video-pipeline/orchestrator"
	"topic-video-pipeline/types"
)

// One-shot run from the command line. The API and worker under cmd/ serve
// the same pipeline over HTTP and Redis.
func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	topic := flag.String("topic", "", "topic to research and narrate")
	source := flag.String("source", "news", "corpus to search: news, papers or reddit")
	count := flag.Int("count", 0, "number of records to retrieve (0 = config default)")
	scenes := flag.Int("scenes", 0, "number of scenes in the script (0 = config default)")
	words := flag.Int("words", 0, "script word limit (0 = config default)")
	music := flag.Bool("music", false, "mix a background track under the narration")
	resume := flag.String("resume", "", "run directory to resume from its pipeline_state.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Logs} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create dir %s: %v", dir, err)
		}
	}

	var run *types.PipelineRun
	if *resume != "" {
		run, err = orchestrator.LoadState(*resume)
		if err != nil {
			log.Fatalf("Failed to load run state from %s: %v", *resume, err)
		}
		log.Printf("🔁 Resuming run %s at stage %q", run.ID, run.Stage)
	} else {
		run, err = orchestrator.NewRun(cfg, types.Query{
			Topic:     *topic,
			Source:    types.SourceKind(*source),
			Count:     *count,
			Scenes:    *scenes,
			WordLimit: *words,
			Music:     *music,
		})
		if err != nil {
			flag.Usage()
			log.Fatalf("Invalid query: %v", err)
		}
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.Paths.Logs, run.ID+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("⚠️  could not open run log: %v", err)
	} else {
		defer logFile.Close()
		log.SetOutput(io.MultiWriter(os.Stderr, logFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := platform.NewRunStore()
	if err != nil {
		log.Fatalf("Failed to open run store: %v", err)
	}
	pipeline, err := orchestrator.NewFromConfig(ctx, cfg, st, events.LogPublisher{})
	if err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	if err := pipeline.Execute(ctx, run); err != nil {
		stop()
		os.Exit(1)
	}
}
