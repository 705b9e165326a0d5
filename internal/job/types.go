package job

import (
	"fmt"
	"time"
)

type Type string

const (
	TypeRestaurantCrawl Type = "restaurant_crawl"
	TypeReviewCrawl     Type = "review_crawl"
	TypeReviewSummary   Type = "review_summary"
)

// Valid reports whether t is one of the known work kinds.
func (t Type) Valid() bool {
	switch t {
	case TypeRestaurantCrawl, TypeReviewCrawl, TypeReviewSummary:
		return true
	}
	return false
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether s is a final state. No transition leaves a
// terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Progress tracks how far a job has advanced. Percentage is always
// floor(current/total*100); Current never decreases within one job.
type Progress struct {
	Current    int `json:"current"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// NewProgress computes the derived percentage. A zero total yields zero
// percent rather than a division panic.
func NewProgress(current, total int) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		p.Percentage = current * 100 / total
	}
	return p
}

// Job is a trackable unit of asynchronous work. Records are retained for
// audit after reaching a terminal state, never deleted by the engine.
type Job struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	SubjectID   int64          `json:"subject_id"`
	Status      Status         `json:"status"`
	Progress    Progress       `json:"progress"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`

	// Interrupted is derived on read: the durable record says active but no
	// live entry exists in this process, meaning the job was mid-flight when
	// the previous process died. Never persisted, never auto-resolved.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Event names pushed to the notification sink.
const (
	EventStarted   = "job:started"
	EventProgress  = "job:progress"
	EventCompleted = "job:completed"
	EventFailed    = "job:failed"
	EventCancelled = "job:cancelled"
)

// Event is the payload emitted to the notification sink on every job state
// transition.
type Event struct {
	JobID     string         `json:"job_id"`
	Type      Type           `json:"type"`
	SubjectID int64          `json:"subject_id"`
	Status    Status         `json:"status"`
	Progress  Progress       `json:"progress"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Channel returns the sink channel key for a subject, so only observers of
// that restaurant receive its job events.
func Channel(subjectID int64) string {
	return fmt.Sprintf("restaurant:%d:jobs", subjectID)
}
