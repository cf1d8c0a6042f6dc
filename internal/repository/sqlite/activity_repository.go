package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"token_renewer/internal/domain"
)

// ActivityRepository stores the activity log in SQLite.
type ActivityRepository struct {
	db *sql.DB
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// Append inserts entry and trims the table to the newest max rows.
func (r *ActivityRepository) Append(entry domain.LogEntry, max int) error {
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin append log: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO activity_log (logged_at, message, severity) VALUES (?, ?, ?)`,
		entry.Time.UTC(), entry.Message, string(entry.Severity)); err != nil {
		return fmt.Errorf("insert log entry: %w", err)
	}

	if max > 0 {
		if _, err := tx.Exec(`DELETE FROM activity_log WHERE id NOT IN
			(SELECT id FROM activity_log ORDER BY id DESC LIMIT ?)`, max); err != nil {
			return fmt.Errorf("trim log: %w", err)
		}
	}

	return tx.Commit()
}

// List returns entries newest first.
func (r *ActivityRepository) List() ([]domain.LogEntry, error) {
	rows, err := r.db.Query(`SELECT logged_at, message, severity FROM activity_log ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			entry    domain.LogEntry
			severity string
		)
		if err := rows.Scan(&entry.Time, &entry.Message, &severity); err != nil {
			return nil, err
		}
		entry.Severity = domain.Severity(severity)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Clear removes every entry.
func (r *ActivityRepository) Clear() error {
	_, err := r.db.Exec(`DELETE FROM activity_log`)
	return err
}
