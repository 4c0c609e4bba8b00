package pipeline

import (
	"time"

	"github.com/rs/xid"
)

// Status is the lifecycle state of a single pipeline run
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusRunning   Status = "RUNNING"
	StatusSucceeded Status = "SUCCEEDED"
	StatusPartial   Status = "PARTIAL"
	StatusFailed    Status = "FAILED"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the status is a terminal outcome
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusPartial, StatusFailed:
		return true
	default:
		return false
	}
}

// Outcome is the aggregate result of one orchestrator execution
type Outcome struct {
	Status       Status
	RatesWritten int

	// Errors collects everything recovered during the run:
	// per-adapter failures, skipped derivations and rejected candidates
	Errors []error
}

// Report is the externally visible state of a run, polled by
// the manual-trigger caller
type Report struct {
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at,omitzero"`
	ID           xid.ID    `json:"id"`
	Status       Status    `json:"status"`
	Errors       []string  `json:"errors,omitempty"`
	RatesWritten int       `json:"rates_written"`
}

// scheduledRun is a single queued pipeline run
type scheduledRun struct {
	at       time.Time
	id       xid.ID
	periodic bool
}

// Less is utilized to sort scheduled runs by their due-time (earliest == first)
func (a scheduledRun) Less(b scheduledRun) bool {
	return a.at.Before(b.at)
}
