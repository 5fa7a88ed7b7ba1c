// Package worker offloads pipeline execution from the HTTP request path onto
// a bounded pool, so health and query endpoints stay responsive while long
// uploads are in flight. Jobs are served first-come first-served.
package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"speechforge/internal/pipeline"
)

// ErrQueueFull is returned when the job queue cannot accept more work.
var ErrQueueFull = errors.New("worker queue is full")

// ErrShuttingDown is returned for submissions after Stop.
var ErrShuttingDown = errors.New("dispatcher is shutting down")

// Job is one pipeline run request. Result is delivered on the Done channel
// exactly once.
type Job struct {
	ID       string
	Filename string
	Data     []byte

	// ctx follows the submitting request; cancellation stops segment
	// dispatch inside the pipeline.
	ctx  context.Context
	done chan JobResult
}

type JobResult struct {
	Result *pipeline.Result
	Err    error
}

// Dispatcher owns the worker pool and the job queue.
type Dispatcher struct {
	pipeline *pipeline.Pipeline
	log      *logrus.Logger

	queue   chan *Job
	quit    chan struct{}
	wg      sync.WaitGroup
	workers int

	mu      sync.Mutex
	stopped bool
}

func NewDispatcher(pl *pipeline.Pipeline, workers, queueSize int, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		pipeline: pl,
		log:      log,
		queue:    make(chan *Job, queueSize),
		quit:     make(chan struct{}),
		workers:  workers,
	}
}

// Run starts the workers. It returns immediately.
func (d *Dispatcher) Run() {
	d.log.WithField("workers", d.workers).Info("Dispatcher starting")
	for i := 1; i <= d.workers; i++ {
		d.wg.Add(1)
		go d.work(i)
	}
}

func (d *Dispatcher) work(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.queue:
			d.log.WithFields(logrus.Fields{"worker": id, "job_id": job.ID}).Info("Job started")
			res, err := d.pipeline.Process(job.ctx, job.Filename, job.Data)
			if err != nil {
				d.log.WithFields(logrus.Fields{"worker": id, "job_id": job.ID}).WithError(err).Error("Job failed")
			} else {
				d.log.WithFields(logrus.Fields{"worker": id, "job_id": job.ID, "file_id": res.File.ID}).Info("Job finished")
			}
			job.done <- JobResult{Result: res, Err: err}
		case <-d.quit:
			return
		}
	}
}

// RunJob processes one upload through the pool and waits for its result,
// honoring ctx for both queue wait and pipeline execution. This gives upload
// handlers a synchronous contract while execution happens off the request
// goroutine.
func (d *Dispatcher) RunJob(ctx context.Context, id, filename string, data []byte) (*pipeline.Result, error) {
	job := &Job{
		ID:       id,
		Filename: filename,
		Data:     data,
		ctx:      ctx,
		done:     make(chan JobResult, 1),
	}

	// The stopped check and the enqueue happen under one lock so a job can
	// never land in the queue after Stop has started draining; every
	// accepted job gets a result delivered.
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil, ErrShuttingDown
	}
	select {
	case d.queue <- job:
		d.mu.Unlock()
	default:
		d.mu.Unlock()
		return nil, ErrQueueFull
	}

	select {
	case res := <-job.done:
		return res.Result, res.Err
	case <-ctx.Done():
		// The worker will still observe cancellation through job.ctx and
		// deliver a result nobody reads; the buffered channel lets it move on.
		return nil, ctx.Err()
	}
}

// Stop drains the pool: running jobs finish, queued-but-unstarted jobs are
// rejected, and new submissions fail.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.quit)
	d.wg.Wait()

	for {
		select {
		case job := <-d.queue:
			job.done <- JobResult{Err: ErrShuttingDown}
		default:
			d.log.Info("Dispatcher stopped")
			return
		}
	}
}
