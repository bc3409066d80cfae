// Package jobs runs background work on a bounded pool of workers, retrying failed jobs
// with exponential backoff and reporting progress periodically.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the queue is at capacity.
	ErrQueueFull = errors.New("job queue is full")
	// ErrStopped is returned by Submit after the dispatcher has been stopped.
	ErrStopped = errors.New("job dispatcher is stopped")
)

// maxTracked bounds how many jobs are kept for status lookups.
const maxTracked = 1024

// Dispatcher handles background jobs with concurrent workers and retry logic.
// Jobs may be submitted before Execute starts the workers; they wait in the queue.
type Dispatcher struct {
	config *Config
	logger *logrus.Logger
	queue  chan *Job
	jobs   map[string]*Job
	status DispatcherStatus
	mu     sync.RWMutex

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// JobOption customizes a submitted job.
type JobOption func(*Job)

// WithMaxRetries overrides the configured retry count for one job.
func WithMaxRetries(n int) JobOption {
	return func(j *Job) {
		j.MaxRetries = n
	}
}

// NewDispatcher creates a dispatcher. Workers start when Execute is called.
func NewDispatcher(config *Config) *Dispatcher {
	config.Logger.WithFields(logrus.Fields{
		"workers":    config.WorkerCount,
		"queue_size": config.QueueSize,
	}).Debug("Creating new job dispatcher")

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		config: config,
		logger: config.Logger,
		queue:  make(chan *Job, config.QueueSize),
		jobs:   make(map[string]*Job),
		status: DispatcherStatus{StartTime: time.Now()},
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Name implements actions.Action.
func (d *Dispatcher) Name() string {
	return "job_dispatcher"
}

// Submit queues run under name and returns the job id.
func (d *Dispatcher) Submit(name string, run func(ctx context.Context) error, opts ...JobOption) (string, error) {
	job := &Job{
		ID:         uuid.New().String(),
		Name:       name,
		Run:        run,
		MaxRetries: d.config.MaxRetries,
		Status:     StatusPending,
	}
	for _, opt := range opts {
		opt(job)
	}

	select {
	case <-d.done:
		return "", ErrStopped
	default:
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	select {
	case d.queue <- job:
	default:
		d.logger.WithFields(logrus.Fields{
			"job":      name,
			"queued":   len(d.queue),
			"capacity": cap(d.queue),
		}).Warn("Job queue is full")
		return "", ErrQueueFull
	}

	d.track(job)
	d.status.Submitted++
	d.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"job":    name,
	}).Debug("Job queued")
	return job.ID, nil
}

// Execute starts the workers and the status reporter, then blocks until ctx is done or Stop is called.
// Running jobs are canceled and waited for before it returns.
func (d *Dispatcher) Execute(ctx context.Context) error {
	d.logger.WithField("workers", d.config.WorkerCount).Info("Starting job workers")

	go d.reportStatus(d.config.StatusInterval)

	for i := 0; i < d.config.WorkerCount; i++ {
		d.wg.Add(1)
		go func(id int) {
			defer d.wg.Done()
			d.worker(id)
		}(i)
	}

	select {
	case <-ctx.Done():
		d.Stop()
	case <-d.done:
	}

	d.wg.Wait()
	d.logger.Info("Job workers stopped")
	return nil
}

// Stop cancels running jobs and stops accepting new ones. It is safe to call more than once.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.done)
		d.cancel()
	})
}

// Status returns a copy of the current dispatcher counters.
func (d *Dispatcher) Status() DispatcherStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// Job returns a copy of the tracked job with id.
func (d *Dispatcher) Job(id string) (Job, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	job, ok := d.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// worker processes jobs from the queue until the dispatcher stops.
func (d *Dispatcher) worker(id int) {
	d.logger.WithField("worker_id", id).Debug("Worker started")

	for {
		select {
		case <-d.done:
			return
		case job := <-d.queue:
			d.run(id, job)
		}
	}
}

func (d *Dispatcher) run(workerID int, job *Job) {
	d.mu.Lock()
	if job.Status == StatusRetrying {
		d.status.Retrying = max(0, d.status.Retrying-1)
	}
	job.Status = StatusRunning
	job.LastAttempt = time.Now()
	d.status.Running++
	d.mu.Unlock()

	log := d.logger.WithFields(logrus.Fields{
		"worker_id":   workerID,
		"job_id":      job.ID,
		"job":         job.Name,
		"retry_count": job.RetryCount,
	})
	log.Debug("Processing job")

	err := safeRun(d.ctx, job.Run)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Running--

	if err == nil {
		job.Status = StatusComplete
		job.LastError = ""
		d.status.Completed++
		log.Debug("Job completed")
		return
	}

	job.LastError = err.Error()
	if d.ctx.Err() != nil || job.RetryCount >= job.MaxRetries {
		job.Status = StatusFailed
		d.status.Failed++
		log.WithError(err).Error("Job failed")
		return
	}

	job.Status = StatusRetrying
	job.RetryCount++
	d.status.Retrying++
	backoff := calculateBackoff(job.RetryCount, d.config.RetryBackoffMs)
	log.WithFields(logrus.Fields{
		"error":   err,
		"retry":   job.RetryCount,
		"backoff": backoff.String(),
	}).Info("Scheduling job retry")

	time.AfterFunc(backoff, func() { d.requeue(job) })
}

func (d *Dispatcher) requeue(job *Job) {
	select {
	case <-d.done:
		d.abandon(job, ErrStopped)
	case d.queue <- job:
	default:
		d.abandon(job, ErrQueueFull)
	}
}

func (d *Dispatcher) abandon(job *Job, reason error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	job.Status = StatusFailed
	job.LastError = reason.Error()
	d.status.Retrying = max(0, d.status.Retrying-1)
	d.status.Failed++
	d.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"error":  reason,
	}).Warn("Dropping job retry")
}

// track records job for lookups, forgetting finished jobs once too many are held. Callers hold mu.
func (d *Dispatcher) track(job *Job) {
	if len(d.jobs) >= maxTracked {
		for id, j := range d.jobs {
			if j.terminal() {
				delete(d.jobs, id)
			}
		}
	}
	d.jobs[job.ID] = job
}

func safeRun(ctx context.Context, run func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return run(ctx)
}

// calculateBackoff determines the retry delay duration using exponential backoff.
// It ensures the backoff duration stays within defined minimum and maximum bounds.
func calculateBackoff(retryCount, baseBackoffMs int) time.Duration {
	const (
		minBackoff = 100 * time.Millisecond
		maxBackoff = 30 * time.Second
	)

	backoff := time.Duration(baseBackoffMs) *
		time.Millisecond * time.Duration(1<<retryCount)

	if backoff < minBackoff {
		return minBackoff
	}
	if backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// reportStatus periodically logs the dispatcher counters until the dispatcher stops.
func (d *Dispatcher) reportStatus(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s := d.Status()
			d.logger.WithFields(logrus.Fields{
				"submitted": s.Submitted,
				"running":   s.Running,
				"completed": s.Completed,
				"failed":    s.Failed,
				"retrying":  s.Retrying,
				"uptime":    time.Since(s.StartTime).String(),
			}).Info("Job dispatcher status update")
		case <-d.done:
			return
		}
	}
}
