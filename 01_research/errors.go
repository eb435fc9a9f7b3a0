package research

import (
	"errors"
	"fmt"

	"topic-video-pipeline/types"
)

// ErrStreamDone signals that a PaperStream has no more records
var ErrStreamDone = errors.New("paper stream exhausted")

// RetrievalError is returned when a retrieval service cannot be reached or
// answers with something unusable
type RetrievalError struct {
	Source types.SourceKind
	Err    error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve %s: %v", e.Source, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// RecordError marks a single malformed record inside an otherwise healthy
// stream. FetchPapers counts and skips these.
type RecordError struct {
	Position int
	Err      error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record %d: %v", e.Position, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
