package model

import (
	"math"
	"time"
)

// JobStatus is the lifecycle state of a bulk job.
type JobStatus string

const (
	JobQueued  JobStatus = "QUEUED"
	JobRunning JobStatus = "RUNNING"
	JobDone    JobStatus = "DONE"
	JobFailed  JobStatus = "FAILED"
)

// JobKindBulkSend is currently the only job kind.
const JobKindBulkSend = "bulk_send"

// BulkJob tracks one asynchronous batch-send operation. Counters are
// bumped atomically with each processed item, so a poller always
// observes processed == success + failed once the job is running.
type BulkJob struct {
	ID     string
	UserID string
	Kind   string

	Total     int
	Processed int
	Success   int
	Failed    int

	Status    JobStatus
	LastError string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobResult is the outcome of a single item within a bulk job, in
// input order.
type JobResult struct {
	MessageID string `json:"emailId"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

// JobProgress is the snapshot returned to pollers.
type JobProgress struct {
	JobID     string      `json:"jobId"`
	Status    JobStatus   `json:"status"`
	Total     int         `json:"total"`
	Processed int         `json:"processed"`
	Success   int         `json:"success"`
	Failed    int         `json:"failed"`
	Percent   int         `json:"percent"`
	LastError string      `json:"lastError"`
	Results   []JobResult `json:"results,omitempty"`
}

// ProgressOf builds the snapshot for a job, rounding percent to the
// nearest integer and defining 0/0 as 0.
func ProgressOf(job BulkJob, results []JobResult) JobProgress {
	percent := 0
	if job.Total > 0 {
		percent = int(math.Round(float64(job.Processed) / float64(job.Total) * 100))
	}
	return JobProgress{
		JobID:     job.ID,
		Status:    job.Status,
		Total:     job.Total,
		Processed: job.Processed,
		Success:   job.Success,
		Failed:    job.Failed,
		Percent:   percent,
		LastError: job.LastError,
		Results:   results,
	}
}
