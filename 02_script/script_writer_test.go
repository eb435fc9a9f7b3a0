package script

import (
	"context"
	"errors"
	"testing"

	"topic-video-pipeline/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
	calls  int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.system = system
	f.user = user
	return f.reply, f.err
}

func eclipseNews() []types.CorpusRecord {
	return []types.CorpusRecord{
		types.NewsRecord{Title: "Total eclipse crosses North America", Source: "Daily Sky", Link: "https://news.example/1"},
		types.NewsRecord{Title: "Why eclipses happen", Source: types.NotAvailable, Link: "https://news.example/2"},
	}
}

func TestSynthesizeBuildsPrompt(t *testing.T) {
	fc := &fakeCompleter{reply: "  - Scene 1: a\n- Narrator 1: b  \n"}
	w := New(fc, "gpt-4o")

	s, err := w.Synthesize(context.Background(), eclipseNews(), "solar eclipses", 2, 120)
	require.NoError(t, err)
	assert.Equal(t, 1, fc.calls)

	assert.Equal(t, systemPrompt, fc.system)
	assert.Contains(t, fc.user, "'solar eclipses'")
	assert.Contains(t, fc.user, "a series of 2 scenes")
	assert.Contains(t, fc.user, "limit of 120 words")
	assert.Contains(t, fc.user, "Title: Total eclipse crosses North America\nSource: Daily Sky\nLink: https://news.example/1")
	assert.Contains(t, fc.user, "- Scene [Number]:")
	assert.Contains(t, fc.user, "- Narrator [Number]:")

	assert.Equal(t, "- Scene 1: a\n- Narrator 1: b", s.Text)
	assert.Equal(t, "solar eclipses", s.Topic)
	assert.Equal(t, "gpt-4o", s.Model)
	assert.NotEmpty(t, s.GeneratedAt)
}

func TestSynthesizeServiceFailureIsFatal(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("429 rate limited")}
	s, err := New(fc, "m").Synthesize(context.Background(), eclipseNews(), "x", 2, 100)
	require.Nil(t, s)

	var se *SynthesisError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "x", se.Topic)
	assert.Contains(t, err.Error(), "429")
}

func TestSynthesizeEmptyReply(t *testing.T) {
	fc := &fakeCompleter{reply: "  \n "}
	_, err := New(fc, "m").Synthesize(context.Background(), nil, "x", 2, 100)
	var se *SynthesisError
	require.ErrorAs(t, err, &se)
}

func TestBuildContextPapers(t *testing.T) {
	ctx := BuildContext([]types.CorpusRecord{
		types.PaperRecord{Title: "Corona", Abstract: "About the corona.", Link: "https://s2/1"},
	})
	assert.Equal(t, "Title: Corona\nAbstract: About the corona.\nLink: https://s2/1", ctx)
}

func TestBuildPromptEmptyContext(t *testing.T) {
	p := BuildPrompt("", "x", 3, 50)
	assert.Contains(t, p, "no source material was found")
	assert.Contains(t, p, "Write exactly 3 scenes")
}
