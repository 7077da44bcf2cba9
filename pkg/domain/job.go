package domain

import (
	"encoding"
	"time"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusDone       JobStatus = "done"
	StatusError      JobStatus = "error"
)

var (
	_ encoding.BinaryMarshaler = JobStatus("")
	_ encoding.TextMarshaler   = JobStatus("")
)

func (s JobStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s JobStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// IsTerminal reports whether no further status change is expected.
func (s JobStatus) IsTerminal() bool {
	return s == StatusDone || s == StatusError
}

// Valid reports whether s is one of the known job statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case StatusQueued, StatusProcessing, StatusDone, StatusError:
		return true
	}
	return false
}

type UploadResponse struct {
	JobID  string    `json:"job_id"`
	Status JobStatus `json:"status,omitempty"`
}

// ScoreResult is one snapshot of a job as returned by GET /results/{id}.
// Every poll yields a fresh snapshot; snapshots are never merged.
type ScoreResult struct {
	JobID        string        `json:"job_id"`
	Status       JobStatus     `json:"status"`
	OverallScore *int          `json:"overall_score,omitempty"`
	Metrics      []MetricScore `json:"metrics"`
	Tips         []string      `json:"tips"`
	OverlayPath  *string       `json:"overlay_path,omitempty"`
	Error        *string       `json:"error,omitempty"`
}

// Placeholder is the snapshot a client shows right after upload, before the
// first poll returns.
func Placeholder(jobID string) *ScoreResult {
	return &ScoreResult{
		JobID:   jobID,
		Status:  StatusQueued,
		Metrics: []MetricScore{},
		Tips:    []string{},
	}
}

func (r *ScoreResult) IsTerminal() bool {
	return r != nil && r.Status.IsTerminal()
}

func (r *ScoreResult) IsDone() bool {
	return r != nil && r.Status == StatusDone
}

func (r *ScoreResult) IsFailed() bool {
	return r != nil && r.Status == StatusError
}

// ErrorMessage returns the backend error text, or "" when absent.
func (r *ScoreResult) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return *r.Error
}

// JobRecord is the backend-side bookkeeping for one uploaded video.
type JobRecord struct {
	ID           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type HealthResponse struct {
	OK bool `json:"ok"`
}
