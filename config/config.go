package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Research  ResearchConfig  `yaml:"research"`
	Script    ScriptConfig    `yaml:"script"`
	Audio     AudioConfig     `yaml:"audio"`
	Visuals   VisualsConfig   `yaml:"visuals"`
	Render    RenderConfig    `yaml:"render"`
	Subtitles SubtitlesConfig `yaml:"subtitles"`
	Metadata  MetadataConfig  `yaml:"metadata"`
	Upload    UploadConfig    `yaml:"upload"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
}

type ResearchConfig struct {
	NewsFeedURL       string   `yaml:"news_feed_url"`
	PapersAPIURL      string   `yaml:"papers_api_url"`
	PapersPageSize    int      `yaml:"papers_page_size"`
	MinCitations      int      `yaml:"min_citations"`
	Subreddits        []string `yaml:"subreddits"`
	MinRedditScore    int      `yaml:"min_reddit_score"`
	DefaultCount      int      `yaml:"default_count"`
	MaxCount          int      `yaml:"max_count"`
	RequestTimeoutSec int      `yaml:"request_timeout_sec"`
}

type ScriptConfig struct {
	Model            string  `yaml:"model"`
	BaseURL          string  `yaml:"base_url"`
	Temperature      float64 `yaml:"temperature"`
	MaxTokens        int     `yaml:"max_tokens"`
	DefaultScenes    int     `yaml:"default_scenes"`
	MaxScenes        int     `yaml:"max_scenes"`
	DefaultWordLimit int     `yaml:"default_word_limit"`
	MaxWordLimit     int     `yaml:"max_word_limit"`
}

type AudioConfig struct {
	BaseURL     string `yaml:"base_url"`
	OutputExt   string `yaml:"output_ext"`
	MaxAttempts int    `yaml:"max_attempts"`
}

type VisualsConfig struct {
	BaseURL            string        `yaml:"base_url"`
	Model              string        `yaml:"model"`
	AspectRatio        string        `yaml:"aspect_ratio"`
	SegmentUnitSeconds float64       `yaml:"segment_unit_seconds"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	MaxPolls           int           `yaml:"max_polls"`
	ImageKeyframes     bool          `yaml:"image_keyframes"`
}

type RenderConfig struct {
	Resolution    string  `yaml:"resolution"`
	FPS           int     `yaml:"fps"`
	MatchDuration string  `yaml:"match_duration"` // narration | none
	MusicFile     string  `yaml:"music_file"`
	MusicVolume   float64 `yaml:"music_volume"`
}

type SubtitlesConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Font         string  `yaml:"font"`
	FontSize     int     `yaml:"font_size"`
	FontWeight   string  `yaml:"font_weight"`
	StrokeWidth  float64 `yaml:"stroke_width"`
	MarginBottom int     `yaml:"margin_bottom"`
}

type MetadataConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Model             string `yaml:"model"`
	TitleMaxChars     int    `yaml:"title_max_chars"`
	TagsCount         int    `yaml:"tags_count"`
	YouTubeCategoryID string `yaml:"youtube_category_id"`
}

type UploadConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Visibility        string `yaml:"visibility"`
	NotifySubscribers bool   `yaml:"notify_subscribers"`
	MadeForKids       bool   `yaml:"made_for_kids"`
	DefaultLanguage   string `yaml:"default_language"`
}

// ScheduleConfig lists the topics the scheduler queues on a cron spec
type ScheduleConfig struct {
	Jobs []ScheduledJob `yaml:"jobs"`
}

type ScheduledJob struct {
	Cron      string `yaml:"cron"`
	Topic     string `yaml:"topic"`
	Source    string `yaml:"source"`
	Count     int    `yaml:"count"`
	Scenes    int    `yaml:"scenes"`
	WordLimit int    `yaml:"word_limit"`
	Music     bool   `yaml:"music"`
}

type PipelineConfig struct {
	SceneConcurrency  int    `yaml:"scene_concurrency"`
	KeepIntermediates bool   `yaml:"keep_intermediates"`
	QueueName         string `yaml:"queue_name"`
	EventsExchange    string `yaml:"events_exchange"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type PathsConfig struct {
	Output    string `yaml:"output"`
	Logs      string `yaml:"logs"`
	MusicDir  string `yaml:"music_dir"`
	MusicTags string `yaml:"music_tags"`
}

// Load reads config.yaml (plus .env for secrets) and returns a Config with
// defaults applied
func Load(path string) (*Config, error) {
	// .env is optional; deployments inject the environment directly
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := presets()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config populated only with defaults
func Default() *Config {
	cfg := presets()
	cfg.ApplyDefaults()
	return &cfg
}

// presets holds defaults for settings where zero is a valid choice; yaml
// only overwrites them when the key is present
func presets() Config {
	return Config{Render: RenderConfig{MusicVolume: 0.3}}
}

// ApplyDefaults fills zero-valued settings; presets covers those where zero
// is meaningful
func (c *Config) ApplyDefaults() {
	r := &c.Research
	setString(&r.NewsFeedURL, "https://news.google.com/rss/search")
	setString(&r.PapersAPIURL, "https://api.semanticscholar.org/graph/v1/paper/search")
	setInt(&r.PapersPageSize, 100)
	setInt(&r.MinCitations, 100)
	if len(r.Subreddits) == 0 {
		r.Subreddits = []string{"all"}
	}
	setInt(&r.DefaultCount, 5)
	setInt(&r.MaxCount, 10)
	setInt(&r.RequestTimeoutSec, 20)

	s := &c.Script
	setString(&s.Model, "gpt-4o")
	setFloat(&s.Temperature, 0.7)
	setInt(&s.MaxTokens, 4096)
	setInt(&s.DefaultScenes, 10)
	setInt(&s.MaxScenes, 20)
	setInt(&s.DefaultWordLimit, 500)
	setInt(&s.MaxWordLimit, 2000)

	a := &c.Audio
	setString(&a.BaseURL, "https://app.resemble.ai/api/v2")
	setString(&a.OutputExt, "mp3")
	setInt(&a.MaxAttempts, 3)

	v := &c.Visuals
	setString(&v.BaseURL, "https://api.lumalabs.ai/dream-machine/v1")
	setString(&v.AspectRatio, "16:9")
	setFloat(&v.SegmentUnitSeconds, 5)
	if v.PollInterval <= 0 {
		v.PollInterval = 5 * time.Second
	}
	setInt(&v.MaxPolls, 120)

	rd := &c.Render
	setString(&rd.Resolution, "1920x1080")
	setInt(&rd.FPS, 24)
	setString(&rd.MatchDuration, "narration")

	st := &c.Subtitles
	setString(&st.Font, "Arial")
	setInt(&st.FontSize, 22)
	setString(&st.FontWeight, "bold")
	setFloat(&st.StrokeWidth, 2)
	setInt(&st.MarginBottom, 40)

	m := &c.Metadata
	setString(&m.Model, c.Script.Model)
	setInt(&m.TitleMaxChars, 100)
	setInt(&m.TagsCount, 15)
	setString(&m.YouTubeCategoryID, "27")

	u := &c.Upload
	setString(&u.Visibility, "private")
	setString(&u.DefaultLanguage, "en")

	p := &c.Pipeline
	setInt(&p.SceneConcurrency, 2)
	setString(&p.QueueName, "q_pipeline_run")
	setString(&p.EventsExchange, "pipeline.events")

	setString(&c.Server.Addr, ":8080")

	pa := &c.Paths
	setString(&pa.Output, "output")
	setString(&pa.Logs, "logs")
	setString(&pa.MusicDir, "assets/music")
	setString(&pa.MusicTags, "assets/music/tags.json")
}

// Validate checks the settings that would otherwise fail deep inside a run
func (c *Config) Validate() error {
	switch c.Render.MatchDuration {
	case "narration", "none":
	default:
		return fmt.Errorf("render.match_duration must be narration or none, got %q", c.Render.MatchDuration)
	}
	if c.Visuals.SegmentUnitSeconds <= 0 {
		return fmt.Errorf("visuals.segment_unit_seconds must be positive")
	}
	if c.Render.MusicVolume < 0 {
		return fmt.Errorf("render.music_volume must not be negative")
	}
	if c.Research.MinCitations < 100 {
		return fmt.Errorf("research.min_citations must be at least 100, got %d", c.Research.MinCitations)
	}
	if c.Research.DefaultCount > c.Research.MaxCount {
		return fmt.Errorf("research.default_count (%d) exceeds research.max_count (%d)", c.Research.DefaultCount, c.Research.MaxCount)
	}
	if c.Script.DefaultScenes > c.Script.MaxScenes {
		return fmt.Errorf("script.default_scenes (%d) exceeds script.max_scenes (%d)", c.Script.DefaultScenes, c.Script.MaxScenes)
	}
	return nil
}

// Env returns an environment variable or a fallback
func Env(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}

func setFloat(dst *float64, def float64) {
	if *dst == 0 {
		*dst = def
	}
}
