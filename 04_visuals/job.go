package visuals

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"
)

// ErrTerminalJob is returned when something tries to move a finished job
var ErrTerminalJob = errors.New("segment job already in a terminal state")

type JobState string

const (
	JobSubmitted JobState = "submitted"
	JobPolling   JobState = "polling"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// SegmentJob tracks one generation call of a scene
type SegmentJob struct {
	ID            string
	Segment       int
	State         JobState
	AssetURL      string
	FailureReason string
	Polls         int
}

func NewSegmentJob(id string, segment int) *SegmentJob {
	return &SegmentJob{ID: id, Segment: segment, State: JobSubmitted}
}

func (j *SegmentJob) Terminal() bool {
	return j.State == JobCompleted || j.State == JobFailed
}

// Observe applies a state reported by the service
func (j *SegmentJob) Observe(g *Generation) error {
	if j.Terminal() {
		return ErrTerminalJob
	}
	j.Polls++
	switch g.State {
	case "completed":
		if g.VideoURL() == "" {
			j.State = JobFailed
			j.FailureReason = "completed without a video asset"
			return nil
		}
		j.State = JobCompleted
		j.AssetURL = g.VideoURL()
	case "failed":
		j.State = JobFailed
		j.FailureReason = g.FailureReason
		if j.FailureReason == "" {
			j.FailureReason = "unknown failure"
		}
	default:
		// queued, dreaming and anything newer keep the job waiting
		j.State = JobPolling
	}
	return nil
}

// VideoGenerationError aborts one scene: a segment job failed or never
// finished
type VideoGenerationError struct {
	SceneIndex int
	Segment    int
	JobID      string
	Reason     string
}

func (e *VideoGenerationError) Error() string {
	return fmt.Sprintf("scene %d segment %d (generation %s) failed: %s", e.SceneIndex, e.Segment, e.JobID, e.Reason)
}

// Poller waits for jobs on a fixed interval
type Poller struct {
	API      GenerationAPI
	Interval time.Duration
	MaxPolls int
}

// maxGetErrors is how many consecutive status lookups may fail before the
// job is given up
const maxGetErrors = 3

// Await polls until job is terminal, MaxPolls is reached or ctx ends. A
// failed job returns *VideoGenerationError.
func (p *Poller) Await(ctx context.Context, sceneIndex int, job *SegmentJob) error {
	getErrors := 0
	for polls := 0; ; polls++ {
		if p.MaxPolls > 0 && polls >= p.MaxPolls {
			return &VideoGenerationError{SceneIndex: sceneIndex, Segment: job.Segment, JobID: job.ID,
				Reason: fmt.Sprintf("not finished after %d polls", p.MaxPolls)}
		}

		gen, err := p.API.Get(ctx, job.ID)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			getErrors++
			log.Printf("[visuals] Scene %d segment %d: status lookup failed (%d/%d): %v", sceneIndex, job.Segment, getErrors, maxGetErrors, err)
			if getErrors >= maxGetErrors {
				return &VideoGenerationError{SceneIndex: sceneIndex, Segment: job.Segment, JobID: job.ID, Reason: err.Error()}
			}
		default:
			getErrors = 0
			if err := job.Observe(gen); err != nil {
				return err
			}
		}

		switch job.State {
		case JobCompleted:
			return nil
		case JobFailed:
			return &VideoGenerationError{SceneIndex: sceneIndex, Segment: job.Segment, JobID: job.ID, Reason: job.FailureReason}
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// SegmentsNeeded is how many chained generations cover target seconds
func SegmentsNeeded(target, unit float64) int {
	if unit <= 0 || target <= 0 {
		return 1
	}
	n := int(math.Ceil(target/unit - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}
