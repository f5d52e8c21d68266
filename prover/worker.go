package prover

import (
	"context"
	"fmt"

	"github.com/provideplatform/fold/common"
	"golang.org/x/sync/semaphore"
)

// Job is a long-running fold, verify or compress operation
type Job func(ctx context.Context) (interface{}, error)

// Result is the outcome of a job
type Result struct {
	Value interface{}
	Err   error
}

// Worker runs jobs off the caller's goroutine, at most n at a time. The
// caller's context only gates admission; a job that has started runs to
// completion.
type Worker struct {
	sem *semaphore.Weighted
	log common.Logger
}

// NewWorker returns a worker admitting up to n concurrent jobs
func NewWorker(n int, log common.Logger) *Worker {
	if n < 1 {
		n = 1
	}

	return &Worker{
		sem: semaphore.NewWeighted(int64(n)),
		log: common.LoggerOrDefault(log),
	}
}

// Submit waits for a free slot and starts job in the background
func (w *Worker) Submit(ctx context.Context, job Job) (<-chan *Result, error) {
	err := w.sem.Acquire(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to admit job; %s", err.Error())
	}

	ch := make(chan *Result, 1)
	jobsInFlight.Inc()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				w.log.Warningf("recovered during background job; %s", r)
				ch <- &Result{Err: common.Wrap(common.ErrEngine, nil, "job panicked; %v", r)}
			}
			jobsInFlight.Dec()
			w.sem.Release(1)
			close(ch)
		}()

		val, err := job(context.WithoutCancel(ctx))
		ch <- &Result{Value: val, Err: err}
	}()

	return ch, nil
}

// Run submits job and waits for its result
func (w *Worker) Run(ctx context.Context, job Job) (interface{}, error) {
	ch, err := w.Submit(ctx, job)
	if err != nil {
		return nil, err
	}

	res := <-ch
	return res.Value, res.Err
}
