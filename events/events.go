package events

import (
	"context"
	"log"
	"sync"
	"time"
)

// Kind of a pipeline event
type Kind string

const (
	StageStarted   Kind = "stage_started"
	StageCompleted Kind = "stage_completed"
	StageFailed    Kind = "stage_failed"
	StageSkipped   Kind = "stage_skipped"
	SceneReady     Kind = "scene_ready"
	SceneFailed    Kind = "scene_failed"
	Warning        Kind = "warning"
	RunFinished    Kind = "run_finished"
)

// Event is one progress notification of a run. Failures are reported here
// per stage instead of through exit codes.
type Event struct {
	RunID      string    `json:"run_id"`
	Kind       Kind      `json:"kind"`
	Stage      string    `json:"stage,omitempty"`
	SceneIndex *int      `json:"scene_index,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	Time       time.Time `json:"time"`
}

// Scene returns a pointer for Event.SceneIndex
func Scene(i int) *int { return &i }

// Publisher delivers events to whoever is watching a run
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// LogPublisher writes events to the standard logger
type LogPublisher struct{}

func (LogPublisher) Publish(ctx context.Context, evt Event) error {
	switch evt.Kind {
	case StageFailed, SceneFailed:
		log.Printf("[events] ❌ run %s %s %s: %s", evt.RunID, evt.Kind, evt.Stage, evt.Error)
	case Warning:
		log.Printf("[events] ⚠️  run %s: %s", evt.RunID, evt.Message)
	}
	return nil
}

// Multi fans an event out to several publishers. Every publisher is tried;
// the first error is returned.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, evt Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, evt); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Recorder keeps every event in memory
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(ctx context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of what was published so far
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}
