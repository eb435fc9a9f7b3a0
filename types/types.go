package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// NotAvailable replaces optional record fields the source did not provide
const NotAvailable = "N/A"

// SourceKind selects the corpus a run retrieves from
type SourceKind string

const (
	SourceNews   SourceKind = "news"
	SourcePapers SourceKind = "papers"
	SourceReddit SourceKind = "reddit"
)

// ParseSourceKind accepts the user-facing names of the corpus kinds
func ParseSourceKind(s string) (SourceKind, error) {
	switch SourceKind(strings.ToLower(strings.TrimSpace(s))) {
	case SourceNews:
		return SourceNews, nil
	case SourcePapers:
		return SourcePapers, nil
	case SourceReddit:
		return SourceReddit, nil
	}
	return "", fmt.Errorf("unknown source kind %q (want news, papers or reddit)", s)
}

// Query is the user input for one run
type Query struct {
	Topic     string     `json:"topic"`
	Source    SourceKind `json:"source"`
	Count     int        `json:"count"`
	Scenes    int        `json:"scenes"`
	WordLimit int        `json:"word_limit"`
	Music     bool       `json:"music"`
}

// CorpusRecord is one retrieved item, serialized into the script context
// and into the results table
type CorpusRecord interface {
	Kind() SourceKind
	ContextEntry() string
	CSVHeader() []string
	CSVRow() []string
}

// NewsRecord is a single news feed entry
type NewsRecord struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	Source      string `json:"source"`
	PublishedAt string `json:"published_at"`
	Link        string `json:"link"`
}

func (n NewsRecord) Kind() SourceKind { return SourceNews }

func (n NewsRecord) ContextEntry() string {
	return fmt.Sprintf("Title: %s\nSource: %s\nLink: %s", n.Title, n.Source, n.Link)
}

func (n NewsRecord) CSVHeader() []string {
	return []string{"Title", "Summary", "Source", "Published", "Link"}
}

func (n NewsRecord) CSVRow() []string {
	return []string{n.Title, n.Summary, n.Source, n.PublishedAt, n.Link}
}

// PaperRecord is a single academic search result
type PaperRecord struct {
	Title     string   `json:"title"`
	Authors   []string `json:"authors"`
	Abstract  string   `json:"abstract"`
	Year      string   `json:"year"`
	Citations int      `json:"citations"`
	Link      string   `json:"link"`
	PDFLink   string   `json:"pdf_link"`
}

func (p PaperRecord) Kind() SourceKind { return SourcePapers }

func (p PaperRecord) ContextEntry() string {
	return fmt.Sprintf("Title: %s\nAbstract: %s\nLink: %s", p.Title, p.Abstract, p.Link)
}

func (p PaperRecord) CSVHeader() []string {
	return []string{"Title", "Authors", "Abstract", "Year", "Citations", "Link", "PDF Link"}
}

func (p PaperRecord) CSVRow() []string {
	return []string{
		p.Title,
		strings.Join(p.Authors, ", "),
		p.Abstract,
		p.Year,
		fmt.Sprintf("%d", p.Citations),
		p.Link,
		p.PDFLink,
	}
}

// DiscussionRecord is a Reddit post matching the topic
type DiscussionRecord struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	Subreddit string `json:"subreddit"`
	Author    string `json:"author"`
	Score     int    `json:"score"`
	Comments  int    `json:"comments"`
	PostedAt  string `json:"posted_at"`
	Link      string `json:"link"`
}

func (d DiscussionRecord) Kind() SourceKind { return SourceReddit }

func (d DiscussionRecord) ContextEntry() string {
	body := d.Body
	if len(body) > 600 {
		body = body[:600] + "..."
	}
	return fmt.Sprintf("Title: %s\nSubreddit: r/%s\nPost: %s\nLink: %s", d.Title, d.Subreddit, body, d.Link)
}

func (d DiscussionRecord) CSVHeader() []string {
	return []string{"Title", "Body", "Subreddit", "Author", "Score", "Comments", "Posted", "Link"}
}

func (d DiscussionRecord) CSVRow() []string {
	return []string{
		d.Title, d.Body, d.Subreddit, d.Author,
		fmt.Sprintf("%d", d.Score), fmt.Sprintf("%d", d.Comments),
		d.PostedAt, d.Link,
	}
}

// Corpus keeps retrieved records typed so a run survives a JSON round trip
type Corpus struct {
	News        []NewsRecord       `json:"news,omitempty"`
	Papers      []PaperRecord      `json:"papers,omitempty"`
	Discussions []DiscussionRecord `json:"discussions,omitempty"`
}

// Records returns every record in retrieval order
func (c *Corpus) Records() []CorpusRecord {
	if c == nil {
		return nil
	}
	out := make([]CorpusRecord, 0, len(c.News)+len(c.Papers)+len(c.Discussions))
	for _, n := range c.News {
		out = append(out, n)
	}
	for _, p := range c.Papers {
		out = append(out, p)
	}
	for _, d := range c.Discussions {
		out = append(out, d)
	}
	return out
}

// Len is the number of records held
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.News) + len(c.Papers) + len(c.Discussions)
}

// Script is the raw text returned by the text-generation service
type Script struct {
	Topic       string `json:"topic"`
	Text        string `json:"text"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generated_at"`
}

// Scene is one unit of the timeline: one visual prompt and one narration line
type Scene struct {
	Index     int    `json:"index"`
	Visual    string `json:"visual"`
	Narration string `json:"narration"`
}

// NarrationAsset is the synthesized voice-over of one scene
type NarrationAsset struct {
	SceneIndex  int     `json:"scene_index"`
	AudioFile   string  `json:"audio_file"`
	SourceURL   string  `json:"source_url"`
	DurationSec float64 `json:"duration_sec"`
}

// VideoAsset holds the downloaded segments of one scene in chain order
type VideoAsset struct {
	SceneIndex    int      `json:"scene_index"`
	GenerationIDs []string `json:"generation_ids"`
	Segments      []string `json:"segments"`
	File          string   `json:"file"`
	DurationSec   float64  `json:"duration_sec"`
}

// SceneFailure records a scene dropped from the final cut
type SceneFailure struct {
	SceneIndex int    `json:"scene_index"`
	Stage      string `json:"stage"`
	Reason     string `json:"reason"`
}

// VideoMetadata holds all YouTube upload metadata
type VideoMetadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}

// Outputs lists the files a run leaves behind for download
type Outputs struct {
	ResultsCSV     string `json:"results_csv,omitempty"`
	FinalVideo     string `json:"final_video,omitempty"`
	Subtitles      string `json:"subtitles,omitempty"`
	Subtitled      string `json:"subtitled,omitempty"`
	MusicTrack     string `json:"music_track,omitempty"`
	FinalWithMusic string `json:"final_with_music,omitempty"`
	YouTubeID      string `json:"youtube_id,omitempty"`
	YouTubeURL     string `json:"youtube_url,omitempty"`
}

// RunStatus is the lifecycle of a PipelineRun
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunDegraded  RunStatus = "completed_degraded"
	RunFailed    RunStatus = "failed"
)

// PipelineRun tracks the full state of one pipeline run. Scene slots are
// written through the Set* methods so concurrent scene workers never race.
type PipelineRun struct {
	mu sync.Mutex

	ID          string            `json:"run_id"`
	Dir         string            `json:"dir"`
	Query       Query             `json:"query"`
	Status      RunStatus         `json:"status"`
	Stage       string            `json:"stage"`
	StartedAt   string            `json:"started_at"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Corpus      *Corpus           `json:"corpus,omitempty"`
	Script      *Script           `json:"script,omitempty"`
	Scenes      []Scene           `json:"scenes,omitempty"`
	Narrations  []*NarrationAsset `json:"narrations,omitempty"`
	Videos      []*VideoAsset     `json:"videos,omitempty"`
	Failures    []SceneFailure    `json:"failures,omitempty"`
	Warnings    []string          `json:"warnings,omitempty"`
	Metadata    *VideoMetadata    `json:"metadata,omitempty"`
	DurationSec float64           `json:"duration_sec,omitempty"`
	Outputs     Outputs           `json:"outputs"`
	Error       string            `json:"error,omitempty"`
}

// NewRun creates a pending run for a query
func NewRun(id, dir string, q Query) *PipelineRun {
	return &PipelineRun{
		ID:        id,
		Dir:       dir,
		Query:     q,
		Status:    RunPending,
		StartedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// SetScenes installs the parsed scenes and sizes one slot per scene. Slots
// already filled by an earlier attempt are kept when the scene count matches.
func (r *PipelineRun) SetScenes(scenes []Scene) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Scenes = scenes
	if len(r.Narrations) != len(scenes) {
		r.Narrations = make([]*NarrationAsset, len(scenes))
	}
	if len(r.Videos) != len(scenes) {
		r.Videos = make([]*VideoAsset, len(scenes))
	}
}

// SetNarration fills the narration slot of a scene
func (r *PipelineRun) SetNarration(a *NarrationAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.SceneIndex < 0 || a.SceneIndex >= len(r.Narrations) {
		return fmt.Errorf("narration for unknown scene %d", a.SceneIndex)
	}
	r.Narrations[a.SceneIndex] = a
	return nil
}

// SetVideo fills the video slot of a scene
func (r *PipelineRun) SetVideo(v *VideoAsset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v.SceneIndex < 0 || v.SceneIndex >= len(r.Videos) {
		return fmt.Errorf("video for unknown scene %d", v.SceneIndex)
	}
	r.Videos[v.SceneIndex] = v
	return nil
}

// Narration returns the narration slot of a scene, nil when empty
func (r *PipelineRun) Narration(i int) *NarrationAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.Narrations) {
		return nil
	}
	return r.Narrations[i]
}

// Video returns the video slot of a scene, nil when empty
func (r *PipelineRun) Video(i int) *VideoAsset {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i < 0 || i >= len(r.Videos) {
		return nil
	}
	return r.Videos[i]
}

// AddFailure records a dropped scene
func (r *PipelineRun) AddFailure(f SceneFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Failures = append(r.Failures, f)
}

// AddWarning records a non-fatal problem surfaced to the user
func (r *PipelineRun) AddWarning(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warnings = append(r.Warnings, msg)
}

// SetStage marks the stage currently executing
func (r *PipelineRun) SetStage(stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stage = stage
}

// CompletedPairs returns the narration and video assets of every scene that
// has both, in scene order
func (r *PipelineRun) CompletedPairs() ([]*VideoAsset, []*NarrationAsset) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var videos []*VideoAsset
	var narrations []*NarrationAsset
	for i := range r.Scenes {
		if i >= len(r.Narrations) || i >= len(r.Videos) {
			break
		}
		if r.Narrations[i] == nil || r.Videos[i] == nil {
			continue
		}
		videos = append(videos, r.Videos[i])
		narrations = append(narrations, r.Narrations[i])
	}
	return videos, narrations
}

// Snapshot encodes the whole run under its mutex
func (r *PipelineRun) Snapshot() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return json.MarshalIndent(r, "", "  ")
}

// Lock exposes the run mutex for callers that snapshot the whole aggregate
func (r *PipelineRun) Lock() { r.mu.Lock() }

// Unlock releases the run mutex
func (r *PipelineRun) Unlock() { r.mu.Unlock() }
