package render

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var musicExts = map[string]bool{".mp3": true, ".wav": true, ".m4a": true, ".ogg": true, ".aac": true}

// MusicLibrary picks a background track from a local folder. tags.json maps
// file names to mood/topic tags; keys starting with "_" are notes.
type MusicLibrary struct {
	dir   string
	tags  map[string][]string
	intn  func(int) int
	files []string
}

// NewMusicLibrary loads the folder and its tags file. A missing tags file
// leaves every track untagged.
func NewMusicLibrary(dir, tagsPath string) (*MusicLibrary, error) {
	tags, err := loadTagsJSON(tagsPath)
	if err != nil {
		return nil, fmt.Errorf("load music tags: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read music dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && musicExts[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	return &MusicLibrary{dir: dir, tags: tags, intn: rand.Intn, files: files}, nil
}

// Len is the number of tracks on disk
func (ml *MusicLibrary) Len() int { return len(ml.files) }

// Pick scores every track against the topic's words and returns one of the
// three best
func (ml *MusicLibrary) Pick(topic string) (string, error) {
	if len(ml.files) == 0 {
		return "", fmt.Errorf("no music tracks found in %s", ml.dir)
	}

	words := topicWords(topic)
	type scored struct {
		file  string
		score int
	}
	candidates := make([]scored, 0, len(ml.files))
	for _, f := range ml.files {
		candidates = append(candidates, scored{f, matchScore(words, ml.tags[f])})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	topN := 3
	if len(candidates) < topN {
		topN = len(candidates)
	}
	// only tracks sharing the best score compete when something matched
	if best := candidates[0].score; best > 0 {
		n := 0
		for n < topN && candidates[n].score == best {
			n++
		}
		topN = n
	}
	pick := candidates[ml.intn(topN)]

	log.Printf("[music] Picked %q for %q (score: %d)", pick.file, topic, pick.score)
	return filepath.Join(ml.dir, pick.file), nil
}

func topicWords(topic string) []string {
	return strings.FieldsFunc(strings.ToLower(topic), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// matchScore counts topic words found among a track's tags
func matchScore(words, trackTags []string) int {
	set := make(map[string]bool, len(trackTags))
	for _, t := range trackTags {
		set[strings.ToLower(t)] = true
	}
	score := 0
	for _, w := range words {
		if set[w] {
			score += 10
		}
	}
	return score
}

func loadTagsJSON(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("[music] ⚠️ tags.json not found at %s — tracks are picked untagged", path)
			return make(map[string][]string), nil
		}
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	result := make(map[string][]string)
	for k, v := range raw {
		if strings.HasPrefix(k, "_") {
			continue
		}
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			continue
		}
		result[k] = tags
	}
	return result, nil
}
