package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a transition is attempted from a status that
// does not permit it (e.g. completing an entry that is not claimed).
var ErrConflict = errors.New("invalid status transition")

// Status is the lifecycle state of a queue entry. An entry has exactly one
// status at any instant; completed, failed and skipped are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusClaimed   Status = "claimed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusSkipped
}

// JobLead is the approved job listing a queue entry applies to. It is copied
// into the entry at enqueue time so the entry stays self-contained even if
// the originating lead is later mutated or removed.
type JobLead struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Company     string  `json:"company"`
	ApplyURL    string  `json:"applyUrl"`
	Description string  `json:"description"`
	MatchScore  float64 `json:"matchScore"`
}

// Result records the outcome of a terminal attempt.
type Result struct {
	Success      bool   `json:"success"`
	Method       string `json:"method"`
	Confirmation string `json:"confirmation,omitempty"`
	Error        string `json:"error,omitempty"`
	DurationMs   int64  `json:"durationMs"`
}

// Entry is one unit of auto-apply work.
type Entry struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"ownerId"`
	Job              JobLead   `json:"job"`
	Status           Status    `json:"status"`
	ClaimedSessionID string    `json:"claimedSessionId,omitempty"`
	Result           *Result   `json:"result,omitempty"`
	RetryCount       int       `json:"retryCount"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// QueueStats is a per-owner status breakdown.
type QueueStats struct {
	Pending   int `json:"pending"`
	Claimed   int `json:"claimed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}
