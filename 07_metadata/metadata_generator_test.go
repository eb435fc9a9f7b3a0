package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"topic-video-pipeline/05_render"
	"topic-video-pipeline/config"
	"topic-video-pipeline/types"

	"github.com/openai/openai-go/v3/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLLM struct {
	reply  string
	err    error
	user   string
	name   string
	schema interface{}
}

func (f *fakeLLM) CompleteJSON(ctx context.Context, system, user, name string, schema interface{}) (string, error) {
	f.user, f.name, f.schema = user, name, schema
	return f.reply, f.err
}

var eclipseScenes = []types.Scene{
	{Index: 0, Visual: "The moon slides across the sun.", Narration: "A solar eclipse happens when the moon blocks the sun."},
	{Index: 1, Visual: "Crowds look up.", Narration: "Millions travel to see totality."},
}

func eclipseTimeline() render.Timeline {
	return render.BuildTimeline([]*types.NarrationAsset{
		{SceneIndex: 0, DurationSec: 6},
		{SceneIndex: 1, DurationSec: 71},
	})
}

func TestRunBuildsMetadata(t *testing.T) {
	llm := &fakeLLM{reply: `{
		"title": "Why Solar Eclipses Happen",
		"description": "How the moon hides the sun.",
		"tags": ["eclipse", "#space", "Eclipse", " astronomy "],
		"chapters": ["The alignment", "Chasing totality"]
	}`}
	corpus := &types.Corpus{News: []types.NewsRecord{
		{Title: "a", Link: "https://news.example/a"},
		{Title: "b", Link: types.NotAvailable},
		{Title: "c", Link: "https://news.example/a"},
	}}

	md, err := New(config.Default(), llm).Run(context.Background(), "solar eclipses", eclipseScenes, eclipseTimeline(), corpus)
	require.NoError(t, err)

	assert.Equal(t, "Why Solar Eclipses Happen", md.Title)
	assert.Equal(t, []string{"eclipse", "space", "astronomy"}, md.Tags)
	assert.Equal(t, "27", md.CategoryID)
	assert.Equal(t, "private", md.Visibility)
	assert.Equal(t, "How the moon hides the sun.\n\nChapters:\n0:00 The alignment\n0:06 Chasing totality\n\nSources:\n- https://news.example/a", md.Description)

	assert.Equal(t, "video_metadata", llm.name)
	assert.NotNil(t, llm.schema)
	assert.Contains(t, llm.user, "TOPIC: solar eclipses")
	assert.Contains(t, llm.user, "CHAPTERS: exactly 2")
}

func TestRunChapterFallbackAndClamp(t *testing.T) {
	cfg := config.Default()
	cfg.Metadata.TitleMaxChars = 10
	cfg.Metadata.TagsCount = 1
	llm := &fakeLLM{reply: `{"title":"A very long eclipse title","description":"d","tags":["x","y"],"chapters":["only one"]}`}

	md, err := New(cfg, llm).Run(context.Background(), "solar eclipses", eclipseScenes, eclipseTimeline(), nil)
	require.NoError(t, err)
	assert.Equal(t, "A very...", md.Title)
	assert.Equal(t, []string{"x"}, md.Tags)
	assert.Contains(t, md.Description, "0:00 Part 1\n0:06 Part 2")
	assert.NotContains(t, md.Description, "Sources")
}

func TestRunErrors(t *testing.T) {
	gen := New(config.Default(), &fakeLLM{err: errors.New("rate limited")})
	_, err := gen.Run(context.Background(), "t", eclipseScenes, eclipseTimeline(), nil)
	assert.ErrorContains(t, err, "rate limited")

	gen = New(config.Default(), &fakeLLM{reply: "not json"})
	_, err = gen.Run(context.Background(), "t", eclipseScenes, eclipseTimeline(), nil)
	assert.ErrorContains(t, err, "parse metadata JSON")

	gen = New(config.Default(), &fakeLLM{reply: `{"title":" ","description":"","tags":[],"chapters":[]}`})
	_, err = gen.Run(context.Background(), "t", eclipseScenes, eclipseTimeline(), nil)
	assert.ErrorContains(t, err, "empty title")
}

func TestChapterStamp(t *testing.T) {
	assert.Equal(t, "0:00", chapterStamp(0))
	assert.Equal(t, "1:17", chapterStamp(77.9))
	assert.Equal(t, "1:00:05", chapterStamp(3605))
}

func TestOpenAIStructuredSendsSchema(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(data, &body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"title\":\"t\"}"}
			}]
		}`)
	}))
	defer srv.Close()

	c := NewOpenAIStructured("test-key", srv.URL+"/v1/", "gpt-4o", option.WithMaxRetries(0))
	out, err := c.CompleteJSON(context.Background(), "sys", "user", "video_metadata", metadataResponseSchema)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"t"}`, out)

	assert.Equal(t, "gpt-4o", body["model"])
	format, ok := body["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	schema := format["json_schema"].(map[string]interface{})
	assert.Equal(t, "video_metadata", schema["name"])
	assert.Equal(t, true, schema["strict"])
}
