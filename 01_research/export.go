package research

import (
	"encoding/csv"
	"fmt"
	"os"

	"topic-video-pipeline/types"
)

// WriteCSV writes the results table. The header comes from the first
// record; an empty slice writes nothing and reports false.
func WriteCSV(path string, records []types.CorpusRecord) (bool, error) {
	if len(records) == 0 {
		return false, nil
	}

	f, err := os.Create(path)
	if err != nil {
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(records[0].CSVHeader()); err != nil {
		return false, err
	}
	for _, r := range records {
		if err := w.Write(r.CSVRow()); err != nil {
			return false, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}
