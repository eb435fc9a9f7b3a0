package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"topic-video-pipeline/01_research"
	"topic-video-pipeline/02_script"
	"topic-video-pipeline/03_audio"
	"topic-video-pipeline/04_visuals"
	"topic-video-pipeline/05_render"
	"topic-video-pipeline/06_subtitles"
	"topic-video-pipeline/07_metadata"
	"topic-video-pipeline/08_upload"
	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/media"
	"topic-video-pipeline/store"
)

// requiredEnv are the credentials every run needs
var requiredEnv = []string{
	"OPENAI_API_KEY",
	"RESEMBLE_API_KEY",
	"RESEMBLE_PROJECT_UUID",
	"RESEMBLE_VOICE_UUID",
	"LUMAAI_API_KEY",
}

// CheckEnv reports every required credential that is unset
func CheckEnv() error {
	var missing []string
	for _, key := range requiredEnv {
		if os.Getenv(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing environment variables: %s", strings.Join(missing, ", "))
	}
	return nil
}

// NewFromConfig wires the production stage implementations
func NewFromConfig(ctx context.Context, cfg *config.Config, st store.RunStore, pub events.Publisher) (*Pipeline, error) {
	if err := CheckEnv(); err != nil {
		return nil, err
	}
	ff := media.New(nil)
	apiKey := os.Getenv("OPENAI_API_KEY")

	completer := script.NewOpenAICompleter(apiKey, cfg.Script.BaseURL, cfg.Script.Model, cfg.Script.Temperature, cfg.Script.MaxTokens)

	var images visuals.ImageFinder
	if cfg.Visuals.ImageKeyframes {
		finder, err := visuals.NewSearchImages(ctx, os.Getenv("GOOGLE_API_KEY"), os.Getenv("GOOGLE_CSE_ID"))
		if err != nil {
			log.Printf("[pipeline] ⚠️  reference keyframes disabled: %v", err)
		} else {
			images = finder
		}
	}

	deps := Deps{
		Retriever: research.New(cfg),
		Writer:    script.New(completer, cfg.Script.Model),
		Narrator:  audio.New(cfg, ff),
		Visuals:   visuals.New(cfg, visuals.NewLumaClient(cfg.Visuals.BaseURL, os.Getenv("LUMAAI_API_KEY")), images, ff),
		Assembler: render.New(cfg, ff),
		Subtitles: subtitles.New(cfg, ff),
		Metadata:  metadata.New(cfg, metadata.NewOpenAIStructured(apiKey, cfg.Script.BaseURL, cfg.Metadata.Model)),
		Uploader:  upload.New(cfg),
		Store:     st,
		Events:    pub,
	}

	lib, err := render.NewMusicLibrary(cfg.Paths.MusicDir, cfg.Paths.MusicTags)
	if err != nil {
		log.Printf("[pipeline] ⚠️  music library unavailable: %v", err)
	} else {
		deps.Music = lib
	}

	return New(cfg, deps), nil
}
