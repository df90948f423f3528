package model

import "time"

type JobStatus string

const (
	JobStatusSubmitted JobStatus = "submitted"
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status ends a job's delivery session.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// Job is a unit of asynchronous AI work tracked from submission to a
// terminal outcome. Result is set iff completed; LastError iff failed.
type Job struct {
	ID             string
	Query          string
	SessionID      string
	ConversationID string
	ExecutionMode  string
	Status         JobStatus
	Result         string
	LastError      string
	SubmittedAt    time.Time
	UpdatedAt      time.Time
}
