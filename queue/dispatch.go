package queue

import (
	"context"
	"fmt"

	"topic-video-pipeline/types"
)

// Dispatcher hands runs to the worker process through a Redis list
type Dispatcher struct {
	Processor *Processor
	QueueName string
}

func (d *Dispatcher) Dispatch(ctx context.Context, run *types.PipelineRun) error {
	if err := d.Processor.Enqueue(ctx, d.QueueName, RunTask{RunID: run.ID, Query: run.Query}); err != nil {
		return fmt.Errorf("enqueue run %s: %w", run.ID, err)
	}
	return nil
}
