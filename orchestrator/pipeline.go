package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"topic-video-pipeline/01_research"
	"topic-video-pipeline/02_script"
	"topic-video-pipeline/03_audio"
	"topic-video-pipeline/04_visuals"
	"topic-video-pipeline/05_render"
	"topic-video-pipeline/08_upload"
	"topic-video-pipeline/config"
	"topic-video-pipeline/events"
	"topic-video-pipeline/store"
	"topic-video-pipeline/types"

	"golang.org/x/sync/errgroup"
)

// ErrNoScenes means every scene was dropped
var ErrNoScenes = errors.New("no scene produced both narration and video")

type Retriever interface {
	Run(ctx context.Context, q types.Query) (*types.Corpus, error)
}

type ScriptWriter interface {
	Synthesize(ctx context.Context, records []types.CorpusRecord, topic string, sceneCount, wordLimit int) (*types.Script, error)
}

type Narrator interface {
	Synthesize(ctx context.Context, scene types.Scene, dir string) (*types.NarrationAsset, error)
}

type SceneVideoGenerator interface {
	GenerateSceneVideo(ctx context.Context, scene types.Scene, targetSec float64, dir string) (*types.VideoAsset, error)
}

type Assembler interface {
	CombineSegments(ctx context.Context, videos []*types.VideoAsset, narrations []*types.NarrationAsset, dir string) (string, error)
	AddBackgroundMusic(ctx context.Context, musicFile, video string, volume float64, dir string) (string, error)
}

type MusicPicker interface {
	Pick(topic string) (string, error)
}

type Subtitler interface {
	Run(ctx context.Context, tl render.Timeline, scenes []types.Scene, video, dir string) (string, string, error)
}

type MetadataWriter interface {
	Run(ctx context.Context, topic string, scenes []types.Scene, tl render.Timeline, corpus *types.Corpus) (*types.VideoMetadata, error)
}

type VideoPublisher interface {
	Run(ctx context.Context, videoFile string, metadata *types.VideoMetadata) (string, string, error)
}

// Deps are the stage implementations. The last five are optional.
type Deps struct {
	Retriever Retriever
	Writer    ScriptWriter
	Narrator  Narrator
	Visuals   SceneVideoGenerator
	Assembler Assembler

	Music     MusicPicker
	Subtitles Subtitler
	Metadata  MetadataWriter
	Uploader  VideoPublisher

	Store  store.RunStore
	Events events.Publisher
}

// Pipeline drives a PipelineRun through every stage
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	// saveMu serializes checkpoints written by concurrent scene workers
	saveMu sync.Mutex
}

func New(cfg *config.Config, deps Deps) *Pipeline {
	if deps.Events == nil {
		deps.Events = events.LogPublisher{}
	}
	return &Pipeline{cfg: cfg, deps: deps}
}

// Execute runs (or resumes) run to completion. Stages already recorded on
// the run are skipped; scene assets whose files still exist are reused.
func (p *Pipeline) Execute(ctx context.Context, run *types.PipelineRun) (err error) {
	if err := os.MkdirAll(run.Dir, 0755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	log.Printf("🎬 Pipeline starting — Run ID: %s", run.ID)
	log.Printf("📁 Output dir: %s", run.Dir)

	p.update(run, func() {
		run.Status = types.RunRunning
		run.Error = ""
		run.CompletedAt = ""
		// each attempt reports its own scene failures and warnings
		run.Failures = nil
		run.Warnings = nil
	})
	p.checkpoint(ctx, run)
	defer func() { p.finish(ctx, run, err) }()

	if err := p.stage(ctx, run, 1, "research", "Research", p.research); err != nil {
		return err
	}
	if err := p.stage(ctx, run, 2, "script", "Script Writing", p.writeScript); err != nil {
		return err
	}
	if err := p.stage(ctx, run, 3, "parse", "Scene Breakdown", p.parseScenes); err != nil {
		return err
	}
	if err := p.stage(ctx, run, 4, "scenes", "Narration & Visuals", p.produceScenes); err != nil {
		return err
	}
	if err := p.stage(ctx, run, 5, "render", "Assembly", p.assemble); err != nil {
		return err
	}

	tl := p.timeline(run)

	if run.Query.Music {
		p.optional(ctx, run, 6, "music", "Background Music", p.addMusic)
	} else {
		p.skip(ctx, run, "music", "not requested")
	}
	if p.cfg.Subtitles.Enabled && p.deps.Subtitles != nil {
		p.optional(ctx, run, 7, "subtitles", "Subtitles", func(ctx context.Context, run *types.PipelineRun) error {
			return p.subtitle(ctx, run, tl)
		})
	} else {
		p.skip(ctx, run, "subtitles", "disabled")
	}
	if p.cfg.Metadata.Enabled && p.deps.Metadata != nil {
		p.optional(ctx, run, 8, "metadata", "Metadata Generation", func(ctx context.Context, run *types.PipelineRun) error {
			return p.describe(ctx, run, tl)
		})
	} else {
		p.skip(ctx, run, "metadata", "disabled")
	}
	if p.cfg.Upload.Enabled && p.deps.Uploader != nil {
		p.optional(ctx, run, 9, "upload", "YouTube Upload", p.upload)
	} else {
		p.skip(ctx, run, "upload", "disabled")
	}
	return ctx.Err()
}

type stageFunc func(ctx context.Context, run *types.PipelineRun) error

func (p *Pipeline) stage(ctx context.Context, run *types.PipelineRun, n int, name, title string, fn stageFunc) error {
	log.Printf("\n━━━ STAGE %d: %s ━━━", n, title)
	run.SetStage(name)
	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.StageStarted, Stage: name})

	if err := fn(ctx, run); err != nil {
		p.emit(ctx, events.Event{RunID: run.ID, Kind: events.StageFailed, Stage: name, Error: err.Error()})
		return fmt.Errorf("stage %d %s: %w", n, title, err)
	}

	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.StageCompleted, Stage: name})
	p.checkpoint(ctx, run)
	return nil
}

// optional stages only warn on failure; the assembled video stands
func (p *Pipeline) optional(ctx context.Context, run *types.PipelineRun, n int, name, title string, fn stageFunc) {
	if ctx.Err() != nil {
		return
	}
	if err := p.stage(ctx, run, n, name, title, fn); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.warn(ctx, run, fmt.Sprintf("%s skipped: %v", title, err))
	}
}

func (p *Pipeline) skip(ctx context.Context, run *types.PipelineRun, name, reason string) {
	if ctx.Err() != nil {
		return
	}
	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.StageSkipped, Stage: name, Message: reason})
}

func (p *Pipeline) research(ctx context.Context, run *types.PipelineRun) error {
	if run.Corpus != nil {
		log.Printf("[pipeline] Reusing %d retrieved records", run.Corpus.Len())
		if run.Corpus.Len() == 0 {
			p.warnEmptyCorpus(ctx, run)
		}
		return nil
	}
	corpus, err := p.deps.Retriever.Run(ctx, run.Query)
	if err != nil {
		return err
	}
	p.update(run, func() { run.Corpus = corpus })

	if corpus.Len() == 0 {
		p.warnEmptyCorpus(ctx, run)
		return nil
	}
	csvPath := filepath.Join(run.Dir, "results.csv")
	wrote, err := research.WriteCSV(csvPath, corpus.Records())
	if err != nil {
		return err
	}
	if wrote {
		p.update(run, func() { run.Outputs.ResultsCSV = csvPath })
	}
	return nil
}

func (p *Pipeline) warnEmptyCorpus(ctx context.Context, run *types.PipelineRun) {
	p.warn(ctx, run, fmt.Sprintf("no %s records found for %q; the script is written without source material", run.Query.Source, run.Query.Topic))
}

func (p *Pipeline) writeScript(ctx context.Context, run *types.PipelineRun) error {
	if run.Script != nil {
		log.Println("[pipeline] Reusing generated script")
		return nil
	}
	q := run.Query
	s, err := p.deps.Writer.Synthesize(ctx, run.Corpus.Records(), q.Topic, q.Scenes, q.WordLimit)
	if err != nil {
		return err
	}
	p.update(run, func() { run.Script = s })
	saveJSON(filepath.Join(run.Dir, "script.json"), s)
	return nil
}

// parseScenes runs before any paid per-scene call, so a malformed script
// costs nothing beyond the script itself
func (p *Pipeline) parseScenes(ctx context.Context, run *types.PipelineRun) error {
	scenes, err := script.ExtractScenes(run.Script)
	if err != nil {
		return err
	}
	if want := run.Query.Scenes; want > 0 && len(scenes) != want {
		p.warn(ctx, run, fmt.Sprintf("asked for %d scenes, script has %d", want, len(scenes)))
	}
	run.SetScenes(scenes)
	log.Printf("[pipeline] ✅ %d scenes parsed", len(scenes))
	return nil
}

func (p *Pipeline) produceScenes(ctx context.Context, run *types.PipelineRun) error {
	run.Lock()
	scenes := append([]types.Scene(nil), run.Scenes...)
	run.Unlock()

	limit := p.cfg.Pipeline.SceneConcurrency
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, sc := range scenes {
		sc := sc
		g.Go(func() error { return p.produceScene(gctx, run, sc) })
	}
	if err := g.Wait(); err != nil {
		return err
	}

	videos, _ := run.CompletedPairs()
	if len(videos) == 0 {
		return ErrNoScenes
	}
	if dropped := len(scenes) - len(videos); dropped > 0 {
		p.warn(ctx, run, fmt.Sprintf("%d of %d scenes failed; the video is shorter than the script", dropped, len(scenes)))
	}
	return nil
}

// produceScene voices one scene and then generates video covering the
// narration. A scene failure drops the scene; only cancellation is returned.
func (p *Pipeline) produceScene(ctx context.Context, run *types.PipelineRun, sc types.Scene) error {
	narr := run.Narration(sc.Index)
	if narr != nil && fileExists(narr.AudioFile) {
		log.Printf("[pipeline] Scene %d: reusing narration %s", sc.Index, narr.AudioFile)
	} else {
		var err error
		narr, err = p.deps.Narrator.Synthesize(ctx, sc, filepath.Join(run.Dir, "audio"))
		if err != nil {
			return p.sceneFailed(ctx, run, sc.Index, "audio", err)
		}
		if err := run.SetNarration(narr); err != nil {
			return p.sceneFailed(ctx, run, sc.Index, "audio", err)
		}
		p.checkpoint(ctx, run)
	}

	vid := run.Video(sc.Index)
	if vid != nil && fileExists(vid.File) {
		log.Printf("[pipeline] Scene %d: reusing video %s", sc.Index, vid.File)
	} else {
		var err error
		vid, err = p.deps.Visuals.GenerateSceneVideo(ctx, sc, narr.DurationSec, filepath.Join(run.Dir, "visuals"))
		if err != nil {
			return p.sceneFailed(ctx, run, sc.Index, "visuals", err)
		}
		if err := run.SetVideo(vid); err != nil {
			return p.sceneFailed(ctx, run, sc.Index, "visuals", err)
		}
		p.checkpoint(ctx, run)
	}

	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.SceneReady, Stage: "scenes", SceneIndex: events.Scene(sc.Index)})
	return nil
}

func (p *Pipeline) sceneFailed(ctx context.Context, run *types.PipelineRun, index int, stage string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var voiceErr *audio.VoiceSynthesisError
	var videoErr *visuals.VideoGenerationError
	switch {
	case errors.As(err, &voiceErr):
		log.Printf("[pipeline] ❌ Scene %d narration failed: %v", index, voiceErr.Err)
	case errors.As(err, &videoErr):
		log.Printf("[pipeline] ❌ Scene %d video failed on segment %d: %s", index, videoErr.Segment, videoErr.Reason)
	default:
		log.Printf("[pipeline] ❌ Scene %d failed in %s: %v", index, stage, err)
	}

	run.AddFailure(types.SceneFailure{SceneIndex: index, Stage: stage, Reason: err.Error()})
	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.SceneFailed, Stage: stage, SceneIndex: events.Scene(index), Error: err.Error()})
	p.checkpoint(ctx, run)
	return nil
}

func (p *Pipeline) assemble(ctx context.Context, run *types.PipelineRun) error {
	videos, narrations := run.CompletedPairs()
	final, err := p.deps.Assembler.CombineSegments(ctx, videos, narrations, run.Dir)
	if err != nil {
		return err
	}
	total := render.BuildSceneTimeline(p.cfg.Render.MatchDuration, videos, narrations).Total
	p.update(run, func() {
		run.Outputs.FinalVideo = final
		run.DurationSec = total
	})
	log.Printf("[pipeline] ✅ %d scenes, %.1fs → %s", len(videos), total, final)
	return nil
}

func (p *Pipeline) addMusic(ctx context.Context, run *types.PipelineRun) error {
	track := p.cfg.Render.MusicFile
	if track == "" {
		if p.deps.Music == nil {
			return fmt.Errorf("no music track configured")
		}
		var err error
		if track, err = p.deps.Music.Pick(run.Query.Topic); err != nil {
			return err
		}
	}
	out, err := p.deps.Assembler.AddBackgroundMusic(ctx, track, run.Outputs.FinalVideo, p.cfg.Render.MusicVolume, run.Dir)
	if err != nil {
		return err
	}
	p.update(run, func() {
		run.Outputs.MusicTrack = track
		run.Outputs.FinalWithMusic = out
	})
	return nil
}

func (p *Pipeline) subtitle(ctx context.Context, run *types.PipelineRun, tl render.Timeline) error {
	srt, burned, err := p.deps.Subtitles.Run(ctx, tl, run.Scenes, run.Outputs.FinalVideo, run.Dir)
	p.update(run, func() {
		run.Outputs.Subtitles = srt
		run.Outputs.Subtitled = burned
	})
	return err
}

func (p *Pipeline) describe(ctx context.Context, run *types.PipelineRun, tl render.Timeline) error {
	md, err := p.deps.Metadata.Run(ctx, run.Query.Topic, run.Scenes, tl, run.Corpus)
	if err != nil {
		return err
	}
	p.update(run, func() { run.Metadata = md })
	saveJSON(filepath.Join(run.Dir, "metadata.json"), md)
	return nil
}

func (p *Pipeline) upload(ctx context.Context, run *types.PipelineRun) error {
	if run.Metadata == nil {
		return fmt.Errorf("no metadata to upload with")
	}
	video := latestVideo(run)
	id, url, err := p.deps.Uploader.Run(ctx, video, run.Metadata)
	if err != nil {
		return err
	}
	p.update(run, func() {
		run.Outputs.YouTubeID = id
		run.Outputs.YouTubeURL = url
	})
	if _, err := upload.LogUpload(id, url, video, run.Dir, run.Metadata); err != nil {
		log.Printf("[pipeline] ⚠️  could not write upload log: %v", err)
	}
	return nil
}

// latestVideo is the most finished cut available
func latestVideo(run *types.PipelineRun) string {
	run.Lock()
	defer run.Unlock()
	o := run.Outputs
	switch {
	case o.Subtitled != "":
		return o.Subtitled
	case o.FinalWithMusic != "":
		return o.FinalWithMusic
	}
	return o.FinalVideo
}

// timeline places scenes at their assembled lengths
func (p *Pipeline) timeline(run *types.PipelineRun) render.Timeline {
	videos, narrations := run.CompletedPairs()
	return render.BuildSceneTimeline(p.cfg.Render.MatchDuration, videos, narrations)
}

func (p *Pipeline) finish(ctx context.Context, run *types.PipelineRun, err error) {
	p.update(run, func() {
		run.CompletedAt = time.Now().UTC().Format(time.RFC3339)
		switch {
		case err != nil:
			run.Status = types.RunFailed
			run.Error = err.Error()
		case len(run.Failures) > 0:
			run.Status = types.RunDegraded
		default:
			run.Status = types.RunCompleted
		}
	})

	if !p.cfg.Pipeline.KeepIntermediates {
		_ = os.RemoveAll(filepath.Join(run.Dir, "tmp"))
	}

	// the caller's context may be cancelled; the final state must still land
	final := context.WithoutCancel(ctx)
	p.checkpoint(final, run)
	p.emit(final, events.Event{RunID: run.ID, Kind: events.RunFinished, Status: string(run.Status), Error: run.Error})

	if err != nil {
		log.Printf("❌ Pipeline failed: %v", err)
		return
	}
	log.Printf("✅ Pipeline complete! Status: %s, video: %s", run.Status, latestVideo(run))
}

func (p *Pipeline) warn(ctx context.Context, run *types.PipelineRun, msg string) {
	log.Printf("[pipeline] ⚠️  %s", msg)
	run.AddWarning(msg)
	p.emit(ctx, events.Event{RunID: run.ID, Kind: events.Warning, Message: msg})
}

func (p *Pipeline) emit(ctx context.Context, evt events.Event) {
	evt.Time = time.Now().UTC()
	if err := p.deps.Events.Publish(ctx, evt); err != nil {
		log.Printf("[pipeline] ⚠️  event %s not delivered: %v", evt.Kind, err)
	}
}

func (p *Pipeline) update(run *types.PipelineRun, fn func()) {
	run.Lock()
	defer run.Unlock()
	fn()
}

// checkpoint writes pipeline_state.json and saves to the run store
func (p *Pipeline) checkpoint(ctx context.Context, run *types.PipelineRun) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	data, err := run.Snapshot()
	if err != nil {
		log.Printf("Warning: could not snapshot run %s: %v", run.ID, err)
		return
	}
	if err := os.WriteFile(filepath.Join(run.Dir, "pipeline_state.json"), data, 0644); err != nil {
		log.Printf("Warning: could not save state: %v", err)
	}
	if p.deps.Store != nil {
		if err := p.deps.Store.Save(ctx, run); err != nil {
			log.Printf("Warning: could not store run %s: %v", run.ID, err)
		}
	}
}

// LoadState reads a run back from its pipeline_state.json
func LoadState(dir string) (*types.PipelineRun, error) {
	data, err := os.ReadFile(filepath.Join(dir, "pipeline_state.json"))
	if err != nil {
		return nil, err
	}
	var run types.PipelineRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	run.Dir = dir
	return &run, nil
}

func saveJSON(path string, v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Printf("Warning: could not marshal JSON for %s: %v", path, err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		log.Printf("Warning: could not save %s: %v", path, err)
	}
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}
