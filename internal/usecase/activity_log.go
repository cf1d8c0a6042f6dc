package usecase

import (
	"time"

	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

// ActivityLog is the bounded, user-visible event log. Entries are mirrored
// to the process log; a failing store never fails the caller.
type ActivityLog struct {
	repo       domain.ActivityRepository
	maxEntries int
	now        func() time.Time
}

// NewActivityLog creates an ActivityLog keeping at most maxEntries entries.
func NewActivityLog(repo domain.ActivityRepository, maxEntries int) *ActivityLog {
	if maxEntries <= 0 {
		maxEntries = domain.DefaultMaxLogEntries
	}
	return &ActivityLog{
		repo:       repo,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Add records message with severity, prefixed with "[label] " when label is set.
func (l *ActivityLog) Add(severity domain.Severity, label, message string) {
	if label != "" {
		message = "[" + label + "] " + message
	}

	if severity == domain.SeverityError {
		logger.Error().Print(message)
	} else {
		logger.Info().Print(message)
	}

	entry := domain.LogEntry{Time: l.now(), Message: message, Severity: severity}
	if err := l.repo.Append(entry, l.maxEntries); err != nil {
		logger.Error().Printf("failed to store activity entry: %v", err)
	}
}

// Info records an informational entry.
func (l *ActivityLog) Info(label, message string) {
	l.Add(domain.SeverityInfo, label, message)
}

// Success records a success entry.
func (l *ActivityLog) Success(label, message string) {
	l.Add(domain.SeveritySuccess, label, message)
}

// Failure records an error entry.
func (l *ActivityLog) Failure(label, message string) {
	l.Add(domain.SeverityError, label, message)
}

// List returns the entries newest first.
func (l *ActivityLog) List() ([]domain.LogEntry, error) {
	return l.repo.List()
}

// Clear drops every entry.
func (l *ActivityLog) Clear() error {
	return l.repo.Clear()
}
