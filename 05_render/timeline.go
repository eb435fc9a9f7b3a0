package render

import (
	"math"
	"sort"

	"topic-video-pipeline/types"
)

// TimelineEntry is where a scene sits in the assembled video
type TimelineEntry struct {
	SceneIndex int     `json:"scene_index"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

type Timeline struct {
	Entries []TimelineEntry `json:"entries"`
	Total   float64         `json:"total"`
}

// BuildTimeline accumulates narration durations in scene index order
func BuildTimeline(narrations []*types.NarrationAsset) Timeline {
	lengths := make(map[int]float64, len(narrations))
	for _, n := range narrations {
		if n != nil {
			lengths[n.SceneIndex] = n.DurationSec
		}
	}
	return accumulate(lengths)
}

// BuildSceneTimeline lays out scenes at the length CombineSegments gives
// them under the match mode
func BuildSceneTimeline(match string, videos []*types.VideoAsset, narrations []*types.NarrationAsset) Timeline {
	lengths := make(map[int]float64, len(narrations))
	for i, n := range narrations {
		if n == nil {
			continue
		}
		var v *types.VideoAsset
		if i < len(videos) {
			v = videos[i]
		}
		lengths[n.SceneIndex] = SceneLength(match, v, n)
	}
	return accumulate(lengths)
}

// SceneLength is a muxed scene's duration: the narration in narration mode,
// otherwise the longer of clip and narration
func SceneLength(match string, v *types.VideoAsset, n *types.NarrationAsset) float64 {
	var vd, nd float64
	if v != nil {
		vd = v.DurationSec
	}
	if n != nil {
		nd = n.DurationSec
	}
	if match == MatchNarration && nd > 0 {
		return nd
	}
	return math.Max(vd, nd)
}

func accumulate(lengths map[int]float64) Timeline {
	indices := make([]int, 0, len(lengths))
	for i := range lengths {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var tl Timeline
	for _, i := range indices {
		entry := TimelineEntry{SceneIndex: i, Start: tl.Total, End: tl.Total + lengths[i]}
		tl.Entries = append(tl.Entries, entry)
		tl.Total = entry.End
	}
	return tl
}
