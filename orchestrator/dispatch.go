package orchestrator

import (
	"context"
	"log"
	"sync"

	"topic-video-pipeline/types"
)

// Dispatcher starts a saved run somewhere: in-process or on a worker
type Dispatcher interface {
	Dispatch(ctx context.Context, run *types.PipelineRun) error
}

// LocalDispatcher executes runs in-process, one goroutine per run
type LocalDispatcher struct {
	Pipeline *Pipeline
	wg       sync.WaitGroup
}

func (d *LocalDispatcher) Dispatch(ctx context.Context, run *types.PipelineRun) error {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		// the request context ends with the response; the run must not
		if err := d.Pipeline.Execute(context.WithoutCancel(ctx), run); err != nil {
			log.Printf("[pipeline] run %s: %v", run.ID, err)
		}
	}()
	return nil
}

// Wait blocks until every dispatched run has returned
func (d *LocalDispatcher) Wait() { d.wg.Wait() }
