package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"token_renewer/internal/domain"
)

const accountColumns = `id, alias, admin_url, login_type, kbn_version, user_name, password,
		enabled, interval_minutes, status_state, status_message, status_updated_at,
		current_token, token_expires_at, last_renewed_at, created_at, updated_at`

// AccountRepository is a SQLite implementation of domain.AccountRepository.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository backed by SQLite.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// GetAll returns all accounts in store order.
func (r *AccountRepository) GetAll() ([]*domain.Account, error) {
	return r.query(`SELECT ` + accountColumns + ` FROM accounts ORDER BY position ASC, created_at ASC`)
}

// GetAllEnabled returns enabled accounts in store order.
func (r *AccountRepository) GetAllEnabled() ([]*domain.Account, error) {
	return r.query(`SELECT ` + accountColumns + ` FROM accounts WHERE enabled = 1 ORDER BY position ASC, created_at ASC`)
}

func (r *AccountRepository) query(q string, args ...any) ([]*domain.Account, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*domain.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetByID returns an account by ID.
func (r *AccountRepository) GetByID(id string) (*domain.Account, error) {
	row := r.db.QueryRow(`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	return scanAccount(row)
}

// Save inserts or updates an account. New accounts are appended to the end
// of the store order.
func (r *AccountRepository) Save(account *domain.Account) error {
	prepareForWrite(account)

	_, err := r.db.Exec(`INSERT INTO accounts
		(`+accountColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			COALESCE((SELECT MAX(position) + 1 FROM accounts), 0))
		ON CONFLICT(id) DO UPDATE SET
			alias = excluded.alias,
			admin_url = excluded.admin_url,
			login_type = excluded.login_type,
			kbn_version = excluded.kbn_version,
			user_name = excluded.user_name,
			password = excluded.password,
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			status_state = excluded.status_state,
			status_message = excluded.status_message,
			status_updated_at = excluded.status_updated_at,
			current_token = excluded.current_token,
			token_expires_at = excluded.token_expires_at,
			last_renewed_at = excluded.last_renewed_at,
			updated_at = excluded.updated_at`, accountArgs(account)...)
	return err
}

// ReplaceAll swaps the stored collection for accounts inside one transaction.
func (r *AccountRepository) ReplaceAll(accounts []*domain.Account) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin replace accounts: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM accounts`); err != nil {
		return fmt.Errorf("clear accounts: %w", err)
	}

	for i, account := range accounts {
		prepareForWrite(account)
		args := append(accountArgs(account), i)
		if _, err := tx.Exec(`INSERT INTO accounts (`+accountColumns+`, position)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...); err != nil {
			return fmt.Errorf("insert account %s: %w", account.ID, err)
		}
	}

	return tx.Commit()
}

// UpdateStatus writes the status columns of one account.
func (r *AccountRepository) UpdateStatus(id string, status domain.Status) error {
	_, err := r.db.Exec(`UPDATE accounts SET status_state = ?, status_message = ?, status_updated_at = ?
		WHERE id = ?`, string(status.State), status.Message, nullableTime(status.UpdatedAt), id)
	return err
}

// UpdateCredential records the credential of a successful renewal.
func (r *AccountRepository) UpdateCredential(id string, token string, renewedAt time.Time, expiresAt *time.Time) error {
	_, err := r.db.Exec(`UPDATE accounts SET current_token = ?, last_renewed_at = ?, token_expires_at = ?, updated_at = ?
		WHERE id = ?`, nullableString(token), nullableTime(renewedAt), nullableTimePtr(expiresAt), time.Now().UTC(), id)
	return err
}

// Delete removes an account.
func (r *AccountRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM accounts WHERE id = ?`, id)
	return err
}

func prepareForWrite(account *domain.Account) {
	now := time.Now().UTC()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
}

func accountArgs(account *domain.Account) []any {
	return []any{
		account.ID, account.Alias, account.AdminURL, string(account.LoginType), account.KibanaVersion,
		account.UserName, account.Password, boolToInt(account.Enabled), account.IntervalMinutes,
		string(account.Status.State), account.Status.Message, nullableTime(account.Status.UpdatedAt),
		nullableString(account.CurrentToken), nullableTimePtr(account.TokenExpiresAt), nullableTimePtr(account.LastRenewedAt),
		account.CreatedAt.UTC(), account.UpdatedAt.UTC(),
	}
}

func scanAccount(scanner interface {
	Scan(dest ...any) error
}) (*domain.Account, error) {
	var (
		loginType       string
		enabled         int
		statusState     string
		statusUpdatedAt sql.NullTime
		currentToken    sql.NullString
		tokenExpiresAt  sql.NullTime
		lastRenewedAt   sql.NullTime
		account         domain.Account
	)

	if err := scanner.Scan(
		&account.ID,
		&account.Alias,
		&account.AdminURL,
		&loginType,
		&account.KibanaVersion,
		&account.UserName,
		&account.Password,
		&enabled,
		&account.IntervalMinutes,
		&statusState,
		&account.Status.Message,
		&statusUpdatedAt,
		&currentToken,
		&tokenExpiresAt,
		&lastRenewedAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	account.LoginType = domain.LoginType(loginType)
	account.Enabled = enabled == 1
	account.Status.State = domain.StatusState(statusState)
	if statusUpdatedAt.Valid {
		account.Status.UpdatedAt = statusUpdatedAt.Time
	}
	if currentToken.Valid {
		account.CurrentToken = currentToken.String
	}
	if tokenExpiresAt.Valid {
		t := tokenExpiresAt.Time
		account.TokenExpiresAt = &t
	}
	if lastRenewedAt.Valid {
		t := lastRenewedAt.Time
		account.LastRenewedAt = &t
	}
	return &account, nil
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableTimePtr(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
