package memory

import (
	"sync"
	"time"

	"token_renewer/internal/domain"
)

// ActivityRepository keeps the activity log in memory, newest first.
type ActivityRepository struct {
	mu      sync.RWMutex
	entries []domain.LogEntry
}

// NewActivityRepository creates an empty activity log.
func NewActivityRepository() *ActivityRepository {
	return &ActivityRepository{}
}

// Append prepends entry and drops entries beyond max.
func (r *ActivityRepository) Append(entry domain.LogEntry, max int) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append([]domain.LogEntry{entry}, r.entries...)
	if max > 0 && len(r.entries) > max {
		r.entries = r.entries[:max]
	}
	return nil
}

// List returns a copy of the entries, newest first.
func (r *ActivityRepository) List() ([]domain.LogEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.LogEntry, len(r.entries))
	copy(out, r.entries)
	return out, nil
}

// Clear removes every entry.
func (r *ActivityRepository) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = nil
	return nil
}
