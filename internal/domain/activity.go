package domain

import "time"

// DefaultMaxLogEntries bounds the activity log.
const DefaultMaxLogEntries = 100

// Severity classifies an activity log entry.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// LogEntry is one user-visible activity record.
type LogEntry struct {
	Time     time.Time
	Message  string
	Severity Severity
}

// ActivityRepository persists the activity log.
type ActivityRepository interface {
	// Append stores entry and evicts the oldest entries beyond max
	Append(entry LogEntry, max int) error

	// List returns entries newest first
	List() ([]LogEntry, error)

	// Clear removes every entry
	Clear() error
}
