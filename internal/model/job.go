package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Job represents one request to group a fixed set of uploaded images
// into albums. A job is created in status "pending", picked up by the
// pipeline through the queue, and ends in "completed" or "failed".
// Jobs are never deleted; they double as an audit trail.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	UserID       int64           `json:"user_id"`
	Status       JobStatus       `json:"status"`
	ImageKeys    []string        `json:"image_keys"` // fixed at creation
	ResultData   json.RawMessage `json:"result_data,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// Task is the queue message handed to the webhook bridge for delivery.
// The job ID is used as the message key for partitioning and ordering.
type Task struct {
	JobID     uuid.UUID `json:"job_id"`
	UserID    int64     `json:"user_id"`
	ImageKeys []string  `json:"image_keys"`
}
