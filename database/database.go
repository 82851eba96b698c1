// Package database stores render-job history. The core render path does not
// depend on it; jobs exist so the API and watch folder can report what was
// rendered, when, and at what size.
package database

import (
	"log/slog"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// JobStatus represents the status of a render job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// RenderJob records one render request and its outcome
type RenderJob struct {
	ID        ulid.ULID  `json:"id"`
	InputName string     `json:"inputName"`
	Format    string     `json:"format"`      // canonical format tag
	ImageType string     `json:"imageType"`   // output codec (png, jpeg, webp)
	Page      int        `json:"page"`        // requested page selector
	Status    JobStatus  `json:"status"`
	Width     int        `json:"width"`       // realized pixel width
	Height    int        `json:"height"`      // realized pixel height
	PageCount int        `json:"pageCount"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	DoneAt    *time.Time `json:"doneAt,omitempty"`
}

// Repository defines render-job persistence operations
type Repository interface {
	Close() error
	CreateJob(inputName, formatTag, imageType string, page int) (*RenderJob, error)
	MarkJobRunning(jobID ulid.ULID) error
	CompleteJob(jobID ulid.ULID, width, height, pageCount int) error
	FailJob(jobID ulid.ULID, errorMsg string) error
	GetJob(jobID ulid.ULID) (*RenderJob, error)
	GetRecentJobs(limit, offset int) ([]RenderJob, error)
	GetActiveJobs() ([]RenderJob, error)
	DeleteOldJobs(olderThan time.Duration) (int, error)
}

// CalculateUUID for an incoming render request
func CalculateUUID(time time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.UnixNano())), 0)
	newULID, err := ulid.New(ulid.Timestamp(time), entropy)
	if err != nil {
		return newULID, err
	}
	return newULID, nil
}
