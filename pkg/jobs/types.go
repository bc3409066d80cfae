package jobs

import (
	"context"
	"time"
)

// DispatcherStatus is a snapshot of the dispatcher counters.
type DispatcherStatus struct {
	// Submitted is the number of jobs accepted by Submit
	Submitted int
	// Running is the number of jobs currently executing
	Running int
	// Completed is the number of jobs that finished successfully
	Completed int
	// Failed is the number of jobs that failed and exhausted their retries
	Failed int
	// Retrying is the number of jobs waiting for a retry
	Retrying int
	// StartTime is when the dispatcher was created
	StartTime time.Time
}

// Status represents the current state of a job.
type Status string

const (
	// StatusPending indicates the job is queued but not yet started
	StatusPending Status = "pending"
	// StatusRunning indicates the job is currently executing
	StatusRunning Status = "running"
	// StatusComplete indicates the job has finished successfully
	StatusComplete Status = "complete"
	// StatusFailed indicates the job has failed and won't be retried
	StatusFailed Status = "failed"
	// StatusRetrying indicates the job failed but will be retried
	StatusRetrying Status = "retrying"
)

// Job is one unit of background work, usually a single retrieval and delivery for a chat.
type Job struct {
	// ID uniquely identifies the job
	ID string `json:"id"`
	// Name describes the job in logs
	Name string `json:"name"`
	// Run does the work. A returned error makes the job eligible for a retry.
	Run func(ctx context.Context) error `json:"-"`
	// MaxRetries is how many times a failed run is retried
	MaxRetries int `json:"maxRetries"`
	// Status indicates the current state of the job
	Status Status `json:"status"`
	// RetryCount tracks how many times this job has been retried
	RetryCount int `json:"retryCount"`
	// LastError contains the error message from the most recent failure
	LastError string `json:"lastError,omitempty"`
	// LastAttempt records when the job was last attempted
	LastAttempt time.Time `json:"lastAttempt,omitempty"`
}

func (j *Job) terminal() bool {
	return j.Status == StatusComplete || j.Status == StatusFailed
}
