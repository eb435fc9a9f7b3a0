package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"topic-video-pipeline/05_render"
	"topic-video-pipeline/config"
	"topic-video-pipeline/types"
)

const metadataSystemPrompt = `You are an expert YouTube SEO strategist for educational explainer videos.
Generate metadata that is accurate to the narration, search friendly and honest.
Never promise content the video does not contain.`

// metadataResponse is the structured reply of the model
type metadataResponse struct {
	Title       string   `json:"title" jsonschema_description:"Engaging, accurate video title"`
	Description string   `json:"description" jsonschema_description:"Two or three paragraphs describing what the video covers"`
	Tags        []string `json:"tags" jsonschema_description:"Search tags, broad and specific"`
	Chapters    []string `json:"chapters" jsonschema_description:"One short chapter title per scene, in scene order"`
}

var metadataResponseSchema = GenerateSchema[metadataResponse]()

// Generator creates YouTube metadata from the finished script
type Generator struct {
	cfg *config.Config
	llm StructuredCompleter
}

// New creates a new metadata Generator
func New(cfg *config.Config, llm StructuredCompleter) *Generator {
	return &Generator{cfg: cfg, llm: llm}
}

// Run generates title, description (with chapters and sources) and tags
func (g *Generator) Run(ctx context.Context, topic string, scenes []types.Scene, tl render.Timeline, corpus *types.Corpus) (*types.VideoMetadata, error) {
	log.Println("[metadata] Generating YouTube metadata...")

	raw, err := g.llm.CompleteJSON(ctx, metadataSystemPrompt, buildMetadataPrompt(topic, scenes, g.cfg.Metadata), "video_metadata", metadataResponseSchema)
	if err != nil {
		return nil, fmt.Errorf("metadata completion: %w", err)
	}

	var resp metadataResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("parse metadata JSON: %w\ncontent: %s", err, truncate(raw, 300))
	}
	title := strings.TrimSpace(resp.Title)
	if title == "" {
		return nil, fmt.Errorf("model returned an empty title")
	}

	metadata := &types.VideoMetadata{
		Title:       clampRunes(title, g.cfg.Metadata.TitleMaxChars),
		Description: buildDescription(resp, tl, corpus),
		Tags:        cleanTags(resp.Tags, g.cfg.Metadata.TagsCount),
		CategoryID:  g.cfg.Metadata.YouTubeCategoryID,
		Visibility:  g.cfg.Upload.Visibility,
	}

	log.Printf("[metadata] ✅ Title: %q", metadata.Title)
	log.Printf("[metadata] Tags: %d generated", len(metadata.Tags))
	return metadata, nil
}

func buildMetadataPrompt(topic string, scenes []types.Scene, cfg config.MetadataConfig) string {
	var sb strings.Builder
	sb.WriteString("Generate YouTube metadata for this narrated educational video.\n\n")
	sb.WriteString(fmt.Sprintf("TOPIC: %s\n", topic))
	sb.WriteString(fmt.Sprintf("TITLE: at most %d characters\n", cfg.TitleMaxChars))
	sb.WriteString(fmt.Sprintf("TAGS: %d tags\n", cfg.TagsCount))
	sb.WriteString(fmt.Sprintf("CHAPTERS: exactly %d, one per scene\n\n", len(scenes)))
	sb.WriteString("NARRATION BY SCENE:\n")
	for _, s := range scenes {
		sb.WriteString(fmt.Sprintf("%d. %s\n", s.Index+1, truncate(s.Narration, 200)))
	}
	return sb.String()
}

// buildDescription appends chapter timestamps from the timeline and the
// retrieved source links to the model's text
func buildDescription(resp metadataResponse, tl render.Timeline, corpus *types.Corpus) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(resp.Description))

	if len(tl.Entries) > 0 {
		sb.WriteString("\n\nChapters:\n")
		for i, e := range tl.Entries {
			label := fmt.Sprintf("Part %d", i+1)
			if len(resp.Chapters) == len(tl.Entries) && strings.TrimSpace(resp.Chapters[i]) != "" {
				label = strings.TrimSpace(resp.Chapters[i])
			}
			sb.WriteString(fmt.Sprintf("%s %s\n", chapterStamp(e.Start), label))
		}
	}

	if links := sourceLinks(corpus, 5); len(links) > 0 {
		sb.WriteString("\nSources:\n")
		for _, l := range links {
			sb.WriteString("- " + l + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// chapterStamp formats seconds the way YouTube parses chapter markers
func chapterStamp(sec float64) string {
	s := int(sec)
	if s >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
	}
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func sourceLinks(corpus *types.Corpus, max int) []string {
	var links []string
	seen := map[string]bool{}
	for _, rec := range corpus.Records() {
		var link string
		switch r := rec.(type) {
		case types.NewsRecord:
			link = r.Link
		case types.PaperRecord:
			link = r.Link
		case types.DiscussionRecord:
			link = r.Link
		}
		if link == "" || link == types.NotAvailable || seen[link] {
			continue
		}
		seen[link] = true
		links = append(links, link)
		if len(links) == max {
			break
		}
	}
	return links
}

func cleanTags(tags []string, max int) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

func clampRunes(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	if max <= 3 {
		return string(r[:max])
	}
	return strings.TrimSpace(string(r[:max-3])) + "..."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
