package usecase

import (
	"context"
	"fmt"
	"time"

	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

// Alarm describes a scheduled renewal entry.
type Alarm struct {
	Name      string
	AccountID string
	Period    time.Duration
	Next      time.Time
}

// AlarmScheduler owns the renewal timers.
type AlarmScheduler interface {
	Resync(ctx context.Context) error
	Schedule(account *domain.Account) error
	Cancel(accountID string)
	Alarms() []Alarm
}

// Snapshot is the full state shown to a control client.
type Snapshot struct {
	Accounts []*domain.Account
	Logs     []domain.LogEntry
}

// ControlService implements the actions available to control clients.
// Every mutation has updated the timers by the time it returns.
type ControlService struct {
	accounts  *AccountManager
	renewer   *Renewer
	activity  *ActivityLog
	scheduler AlarmScheduler
}

// NewControlService creates a ControlService.
func NewControlService(accounts *AccountManager, renewer *Renewer, activity *ActivityLog, scheduler AlarmScheduler) *ControlService {
	return &ControlService{
		accounts:  accounts,
		renewer:   renewer,
		activity:  activity,
		scheduler: scheduler,
	}
}

// Start records the daemon start and restores every timer.
func (s *ControlService) Start(ctx context.Context) error {
	s.activity.Info("", "daemon started, restoring scheduled renewals")
	return s.scheduler.Resync(ctx)
}

// RenewAccount renews one account immediately.
func (s *ControlService) RenewAccount(ctx context.Context, accountID string) Result {
	return s.renewer.Renew(ctx, accountID)
}

// RenewAll renews every enabled account in store order, one at a time.
func (s *ControlService) RenewAll(ctx context.Context) ([]Result, error) {
	accounts, err := s.accounts.ListEnabledAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	results := make([]Result, 0, len(accounts))
	for _, account := range accounts {
		results = append(results, s.renewer.Renew(ctx, account.ID))
	}
	return results, nil
}

// SaveAccounts replaces the account collection and resyncs all timers.
func (s *ControlService) SaveAccounts(ctx context.Context, accounts []*domain.Account) error {
	if err := s.accounts.ReplaceAll(accounts); err != nil {
		return err
	}
	return s.scheduler.Resync(ctx)
}

// DeleteAccount cancels the timer of an account and removes it.
func (s *ControlService) DeleteAccount(accountID string) error {
	s.scheduler.Cancel(accountID)
	return s.accounts.DeleteAccount(accountID)
}

// SetupAlarms resyncs all timers with the store.
func (s *ControlService) SetupAlarms(ctx context.Context) error {
	return s.scheduler.Resync(ctx)
}

// GetData returns every account and the activity log.
func (s *ControlService) GetData() (*Snapshot, error) {
	accounts, err := s.accounts.ListAccounts()
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	logs, err := s.activity.List()
	if err != nil {
		return nil, fmt.Errorf("failed to list logs: %w", err)
	}
	return &Snapshot{Accounts: accounts, Logs: logs}, nil
}

// GetAccount returns one account or ErrAccountNotFound.
func (s *ControlService) GetAccount(accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetAccount(accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	return account, nil
}

// ClearLogs empties the activity log.
func (s *ControlService) ClearLogs() error {
	return s.activity.Clear()
}

// CreateAccount stores a new account and schedules it.
func (s *ControlService) CreateAccount(cfg AccountConfig) (*domain.Account, error) {
	account, err := s.accounts.CreateAccount(cfg)
	if err != nil {
		return nil, err
	}
	return s.reschedule(account)
}

// UpdateAccount edits an account and recreates its timer.
func (s *ControlService) UpdateAccount(accountID string, patch AccountPatch) (*domain.Account, error) {
	account, err := s.accounts.UpdateAccount(accountID, patch)
	if err != nil {
		return nil, err
	}
	return s.reschedule(account)
}

func (s *ControlService) reschedule(account *domain.Account) (*domain.Account, error) {
	if err := s.scheduler.Schedule(account); err != nil {
		return nil, fmt.Errorf("failed to schedule account: %w", err)
	}
	fresh, err := s.accounts.GetAccount(account.ID)
	if err != nil || fresh == nil {
		logger.Error().Printf("reload account %s after scheduling: %v", account.ID, err)
		return account, nil
	}
	return fresh, nil
}

// ExportAccounts returns the configuration of every account.
func (s *ControlService) ExportAccounts() ([]AccountConfig, error) {
	return s.accounts.Export()
}

// ImportAccounts adds new accounts from configs and resyncs all timers.
func (s *ControlService) ImportAccounts(ctx context.Context, configs []AccountConfig) (int, error) {
	added, err := s.accounts.Import(configs)
	if err != nil {
		return added, err
	}
	if added > 0 {
		s.activity.Info("", fmt.Sprintf("imported %d accounts", added))
	}
	if err := s.scheduler.Resync(ctx); err != nil {
		return added, err
	}
	return added, nil
}

// Alarms returns the scheduled renewal entries.
func (s *ControlService) Alarms() []Alarm {
	return s.scheduler.Alarms()
}
