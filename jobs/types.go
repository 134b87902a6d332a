package jobs

import (
	"context"
	"time"

	"github.com/ramworld21/sda-auditor/scanner"
)

// JobStatus represents the current state of a job
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Active reports whether the job still holds its visitor's slot.
func (s JobStatus) Active() bool {
	return s == JobStatusQueued || s == JobStatusPending || s == JobStatusRunning
}

// AuditFunc runs one audit. (*scanner.Engine).RunAudit satisfies it.
type AuditFunc func(ctx context.Context, url string, opts scanner.Options) *scanner.AuditResult

// Job represents an audit job with its full lifecycle state
type Job struct {
	ID            string               `json:"id"`
	URL           string               `json:"url"`
	FastMode      bool                 `json:"fast_mode"`
	VisitorIP     string               `json:"-"` // Don't expose in API responses
	Status        JobStatus            `json:"status"`
	QueuePosition int                  `json:"queue_position,omitempty"`
	Progress      *Progress            `json:"progress,omitempty"`
	Result        *scanner.AuditResult `json:"result,omitempty"`
	Error         string               `json:"error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	EndedAt       *time.Time           `json:"ended_at,omitempty"`
}

// Progress represents audit progress state
type Progress struct {
	Stage   string `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// CreateJobRequest is the request body for creating a new job
type CreateJobRequest struct {
	URL      string `json:"url"`
	FastMode bool   `json:"fast_mode"`
}

// CreateJobResponse is returned when a job is successfully created
type CreateJobResponse struct {
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	QueuePosition int       `json:"queue_position,omitempty"`
	Message       string    `json:"message"`
}

// QueueStatsResponse is returned by the queue stats endpoint
type QueueStatsResponse struct {
	Running       int `json:"running"`
	Queued        int `json:"queued"`
	MaxConcurrent int `json:"max_concurrent"`
}

// ErrorResponse represents an API error
type ErrorResponse struct {
	Error       string `json:"error"`
	Code        string `json:"code,omitempty"`
	ActiveJobID string `json:"active_job_id,omitempty"`
}
