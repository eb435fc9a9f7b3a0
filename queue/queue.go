package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"topic-video-pipeline/types"

	"github.com/go-redis/redis/v8"
)

// RunTask is the payload that asks a worker to execute a run
type RunTask struct {
	RunID string      `json:"run_id"`
	Query types.Query `json:"query"`
}

// TaskHandler is a function that processes a task payload.
type TaskHandler func(ctx context.Context, payload string) error

// redisList is the part of *redis.Client the processor uses
type redisList interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Processor holds the Redis client and registered task handlers.
type Processor struct {
	rdb      redisList
	handlers map[string]TaskHandler
	// popTimeout bounds each BRPop so cancellation is noticed
	popTimeout time.Duration
	backoff    time.Duration
}

// NewProcessor creates a new worker processor.
func NewProcessor(rdb redisList) *Processor {
	return &Processor{
		rdb:        rdb,
		handlers:   make(map[string]TaskHandler),
		popTimeout: 5 * time.Second,
		backoff:    time.Second,
	}
}

// Register maps a queue name (task type) to a handler function.
func (p *Processor) Register(queueName string, handler TaskHandler) {
	p.handlers[queueName] = handler
	log.Printf("[queue] Registered handler for queue: %s", queueName)
}

// Enqueue is a helper to add a new task to a queue.
func (p *Processor) Enqueue(ctx context.Context, queueName string, payload interface{}) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.rdb.LPush(ctx, queueName, string(b)).Err()
}

// Listen blocks on the registered queues until ctx is cancelled. Handler
// errors are logged; the task is not retried.
func (p *Processor) Listen(ctx context.Context, queueNames ...string) error {
	log.Printf("[queue] Worker listening on %d queues: %v", len(queueNames), queueNames)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result, err := p.rdb.BRPop(ctx, p.popTimeout, queueNames...).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[queue] Error popping from queue: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff):
			}
			continue
		}

		// result[0] is the queue name, result[1] is the payload
		queueName, payload := result[0], result[1]
		handler, ok := p.handlers[queueName]
		if !ok {
			log.Printf("[queue] No handler registered for queue %s", queueName)
			continue
		}

		log.Printf("[queue] Received task from queue %s", queueName)
		if err := handler(ctx, payload); err != nil {
			log.Printf("[queue] ❌ Error processing task from %s: %v", queueName, err)
		}
	}
}

// DecodeRunTask parses a RunTask payload
func DecodeRunTask(payload string) (RunTask, error) {
	var task RunTask
	if err := json.Unmarshal([]byte(payload), &task); err != nil {
		return RunTask{}, err
	}
	if task.RunID == "" {
		return RunTask{}, errors.New("run task without run_id")
	}
	return task, nil
}
