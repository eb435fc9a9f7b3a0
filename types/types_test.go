package types

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeScenes() []Scene {
	return []Scene{{Index: 0, Visual: "a", Narration: "x"}, {Index: 1, Visual: "b", Narration: "y"}, {Index: 2, Visual: "c", Narration: "z"}}
}

func TestParseSourceKind(t *testing.T) {
	k, err := ParseSourceKind(" Papers ")
	require.NoError(t, err)
	assert.Equal(t, SourcePapers, k)

	_, err = ParseSourceKind("tv")
	assert.Error(t, err)
}

func TestSceneSlots(t *testing.T) {
	run := NewRun("r1", t.TempDir(), Query{Topic: "tides"})
	run.SetScenes(threeScenes())

	require.NoError(t, run.SetNarration(&NarrationAsset{SceneIndex: 2, DurationSec: 4}))
	require.NoError(t, run.SetNarration(&NarrationAsset{SceneIndex: 0, DurationSec: 6}))
	require.NoError(t, run.SetVideo(&VideoAsset{SceneIndex: 0}))
	assert.Error(t, run.SetNarration(&NarrationAsset{SceneIndex: 3}))
	assert.Error(t, run.SetVideo(&VideoAsset{SceneIndex: -1}))

	// only scene 0 has both halves
	videos, narrations := run.CompletedPairs()
	require.Len(t, videos, 1)
	assert.Equal(t, 0, narrations[0].SceneIndex)

	// same scene count keeps filled slots
	run.SetScenes(threeScenes())
	assert.NotNil(t, run.Narration(2))
	assert.Nil(t, run.Narration(5))

	// a different count resets them
	run.SetScenes(threeScenes()[:2])
	assert.Nil(t, run.Narration(0))
	assert.Nil(t, run.Video(0))
}

func TestConcurrentSlotWrites(t *testing.T) {
	run := NewRun("r1", t.TempDir(), Query{Topic: "tides"})
	scenes := make([]Scene, 20)
	for i := range scenes {
		scenes[i] = Scene{Index: i}
	}
	run.SetScenes(scenes)

	var wg sync.WaitGroup
	for i := range scenes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = run.SetNarration(&NarrationAsset{SceneIndex: i})
			_ = run.SetVideo(&VideoAsset{SceneIndex: i})
			_, _ = run.Snapshot()
		}(i)
	}
	wg.Wait()

	videos, _ := run.CompletedPairs()
	require.Len(t, videos, 20)
	for i, v := range videos {
		assert.Equal(t, i, v.SceneIndex)
	}
}

func TestSnapshotKeepsCorpusTyped(t *testing.T) {
	run := NewRun("r1", "out/r1", Query{Topic: "coral reefs", Source: SourcePapers})
	run.Corpus = &Corpus{Papers: []PaperRecord{{Title: "Bleaching", Authors: []string{"A", "B"}, Citations: 250}}}
	run.AddFailure(SceneFailure{SceneIndex: 1, Stage: "visuals", Reason: "moderation"})
	run.AddWarning("1 of 3 scenes failed")

	data, err := run.Snapshot()
	require.NoError(t, err)

	var back PipelineRun
	require.NoError(t, json.Unmarshal(data, &back))
	require.Equal(t, 1, back.Corpus.Len())
	rec := back.Corpus.Records()[0]
	assert.Equal(t, SourcePapers, rec.Kind())
	assert.Equal(t, []string{"Bleaching", "A, B", "", "", "250", "", ""}, rec.CSVRow())
	assert.Len(t, back.Failures, 1)
	assert.Equal(t, RunPending, back.Status)
}

func TestCorpusRecordOrder(t *testing.T) {
	c := &Corpus{
		News:        []NewsRecord{{Title: "n"}},
		Discussions: []DiscussionRecord{{Title: "d", Subreddit: "space"}},
	}
	recs := c.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, SourceNews, recs[0].Kind())
	assert.Contains(t, recs[1].ContextEntry(), "r/space")

	var nilCorpus *Corpus
	assert.Zero(t, nilCorpus.Len())
	assert.Nil(t, nilCorpus.Records())
}
