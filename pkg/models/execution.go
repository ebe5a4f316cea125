package models

import (
	"fmt"
	"time"
	"unicode/utf8"
)

// ExecutionStatus is the reported outcome of one handler invocation.
type ExecutionStatus string

// ExecutionStatus constants
const (
	ExecutionStatusSuccess ExecutionStatus = "success"
	ExecutionStatusFailed  ExecutionStatus = "failed"
)

// ExecutionEvent is one reported outcome of a single handler
// invocation, with timing and diagnostic payload.
//
// Lifecycle: created at trigger time, enriched at completion time.
// Once enqueued for flushing the flusher owns the event exclusively;
// callers must not mutate it afterwards.
type ExecutionEvent struct {
	ID        string          `json:"id"`                  // Execution id derived from job id + start timestamp
	JobID     string          `json:"jobId"`               // Job the execution belongs to
	TriggerID string          `json:"triggerId,omitempty"` // Coordinator trigger that caused this execution
	Status    ExecutionStatus `json:"status"`              // "success" or "failed"

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	DurationMs int64     `json:"durationMs"`
	ExitCode   *int      `json:"exitCode,omitempty"`

	// Failure diagnostics
	Error     string `json:"error,omitempty"`     // Error message
	ErrorType string `json:"errorType,omitempty"` // Go type of the error or "panic"
	Stack     string `json:"stack,omitempty"`     // Stack trace, if one was available

	// Captured process output, each independently truncated
	Stdout string `json:"stdout,omitempty"`
	Stderr string `json:"stderr,omitempty"`

	// Best-effort source snippet around the failing frame
	CodeSnippet  string `json:"codeSnippet,omitempty"`
	CodeLanguage string `json:"codeLanguage,omitempty"`

	JobVersion string `json:"jobVersion,omitempty"`
	AppVersion string `json:"appVersion,omitempty"`

	Metadata Labels `json:"metadata,omitempty"`
}

// NewExecutionEvent creates an execution event at trigger time.
// The id is derived from the job id and the start timestamp so retries
// of the same trigger produce distinct executions.
func NewExecutionEvent(jobID, triggerID string, startedAt time.Time) *ExecutionEvent {
	return &ExecutionEvent{
		ID:        fmt.Sprintf("%s-%d", jobID, startedAt.UnixMilli()),
		JobID:     jobID,
		TriggerID: triggerID,
		StartedAt: startedAt,
	}
}

// Complete fills the completion-time fields common to both outcomes.
func (e *ExecutionEvent) Complete(status ExecutionStatus, finishedAt time.Time, exitCode int) {
	e.Status = status
	e.FinishedAt = finishedAt
	e.DurationMs = finishedAt.Sub(e.StartedAt).Milliseconds()
	e.ExitCode = &exitCode
}

// IsTerminal reports whether the event carries a final status.
func (e *ExecutionEvent) IsTerminal() bool {
	return e.Status == ExecutionStatusSuccess || e.Status == ExecutionStatusFailed
}

// TriggerEvent is a coordinator-originated notification that a job
// should execute now.
type TriggerEvent struct {
	JobID     string `json:"jobId"`
	TriggerID string `json:"triggerId"`
}

// Truncate caps s at max bytes, appending a marker when it was cut.
// The cut backs up to a rune boundary so the result stays valid UTF-8.
// A non-positive max disables truncation.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "... [truncated]"
}
