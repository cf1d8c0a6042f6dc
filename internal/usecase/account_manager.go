package usecase

import (
	"fmt"
	"strings"
	"time"

	"token_renewer/internal/domain"
)

// AccountConfig is the user-editable part of an account, as exchanged by
// import and export.
type AccountConfig struct {
	LoginType       string `json:"loginType"`
	Alias           string `json:"alias"`
	AdminURL        string `json:"adminUrl"`
	KibanaVersion   string `json:"kbnVersion"`
	UserName        string `json:"userName"`
	Password        string `json:"password"`
	IntervalMinutes int    `json:"intervalMinutes"`
	Enabled         *bool  `json:"enabled,omitempty"`
}

// AccountPatch holds the fields of an account update. Nil fields are kept.
type AccountPatch struct {
	LoginType       *string
	Alias           *string
	AdminURL        *string
	KibanaVersion   *string
	UserName        *string
	Password        *string
	IntervalMinutes *int
	Enabled         *bool
}

// AccountManager manages the configured accounts
type AccountManager struct {
	accountRepo     domain.AccountRepository
	defaultInterval int
}

// NewAccountManager creates a new account manager. defaultInterval replaces
// missing or non-positive intervals.
func NewAccountManager(accountRepo domain.AccountRepository, defaultInterval int) *AccountManager {
	if defaultInterval <= 0 {
		defaultInterval = domain.DefaultIntervalMinutes
	}
	return &AccountManager{
		accountRepo:     accountRepo,
		defaultInterval: defaultInterval,
	}
}

// CreateAccount validates cfg and stores it as a new idle account.
func (m *AccountManager) CreateAccount(cfg AccountConfig) (*domain.Account, error) {
	account := m.fromConfig(cfg)
	if err := validateAccount(account); err != nil {
		return nil, err
	}

	if err := m.accountRepo.Save(account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}
	return account, nil
}

// UpdateAccount applies patch to an existing account.
func (m *AccountManager) UpdateAccount(id string, patch AccountPatch) (*domain.Account, error) {
	account, err := m.accountRepo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	if patch.LoginType != nil {
		account.LoginType = domain.LoginType(*patch.LoginType).OrDefault()
	}
	if patch.Alias != nil {
		account.Alias = strings.TrimSpace(*patch.Alias)
	}
	if patch.AdminURL != nil {
		account.AdminURL = strings.TrimSpace(*patch.AdminURL)
	}
	if patch.KibanaVersion != nil {
		account.KibanaVersion = strings.TrimSpace(*patch.KibanaVersion)
	}
	if patch.UserName != nil {
		account.UserName = strings.TrimSpace(*patch.UserName)
	}
	if patch.Password != nil {
		account.Password = *patch.Password
	}
	if patch.IntervalMinutes != nil {
		account.IntervalMinutes = m.interval(*patch.IntervalMinutes)
	}
	if patch.Enabled != nil {
		account.Enabled = *patch.Enabled
	}

	if err := validateAccount(account); err != nil {
		return nil, err
	}
	if err := m.accountRepo.Save(account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}
	return account, nil
}

// GetAccount returns an account or nil when it does not exist.
func (m *AccountManager) GetAccount(id string) (*domain.Account, error) {
	return m.accountRepo.GetByID(id)
}

// ListAccounts returns every account in store order.
func (m *AccountManager) ListAccounts() ([]*domain.Account, error) {
	return m.accountRepo.GetAll()
}

// ListEnabledAccounts returns enabled accounts in store order.
func (m *AccountManager) ListEnabledAccounts() ([]*domain.Account, error) {
	return m.accountRepo.GetAllEnabled()
}

// DeleteAccount removes an account. Unknown ids are ignored.
func (m *AccountManager) DeleteAccount(id string) error {
	if err := m.accountRepo.Delete(id); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}

// ReplaceAll stores accounts as the whole collection. Accounts without an id
// are new and start idle; for known ids the stored runtime state is kept
// unless the incoming record carries its own.
func (m *AccountManager) ReplaceAll(accounts []*domain.Account) error {
	existing, err := m.accountRepo.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load accounts: %w", err)
	}
	byID := make(map[string]*domain.Account, len(existing))
	for _, acc := range existing {
		byID[acc.ID] = acc
	}

	now := time.Now()
	for _, acc := range accounts {
		acc.LoginType = acc.LoginType.OrDefault()
		acc.IntervalMinutes = m.interval(acc.IntervalMinutes)

		prev, known := byID[acc.ID]
		if acc.ID == "" || !known {
			if acc.Status.State == "" {
				acc.Status = domain.Status{State: domain.StatusIdle, Message: "not renewed yet", UpdatedAt: now}
			}
			continue
		}
		mergeRuntimeState(acc, prev)
	}

	if err := m.accountRepo.ReplaceAll(accounts); err != nil {
		return fmt.Errorf("failed to save accounts: %w", err)
	}
	return nil
}

func mergeRuntimeState(acc, prev *domain.Account) {
	if acc.Status.State == "" {
		acc.Status = prev.Status
	}
	if acc.CurrentToken == "" {
		acc.CurrentToken = prev.CurrentToken
		acc.TokenExpiresAt = prev.TokenExpiresAt
	}
	if acc.LastRenewedAt == nil {
		acc.LastRenewedAt = prev.LastRenewedAt
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = prev.CreatedAt
	}
}

// Import appends the complete entries of configs that are not present yet,
// matching on (adminUrl, userName). It returns the number of accounts added.
func (m *AccountManager) Import(configs []AccountConfig) (int, error) {
	existing, err := m.accountRepo.GetAll()
	if err != nil {
		return 0, fmt.Errorf("failed to load accounts: %w", err)
	}

	seen := make(map[string]struct{}, len(existing)+len(configs))
	for _, acc := range existing {
		seen[importKey(acc.AdminURL, acc.UserName)] = struct{}{}
	}

	added := 0
	for _, cfg := range configs {
		account := m.fromConfig(cfg)
		if !account.IsComplete() {
			continue
		}
		key := importKey(account.AdminURL, account.UserName)
		if _, dup := seen[key]; dup {
			continue
		}
		if err := m.accountRepo.Save(account); err != nil {
			return added, fmt.Errorf("failed to save imported account: %w", err)
		}
		seen[key] = struct{}{}
		added++
	}
	return added, nil
}

// Export returns the configuration of every account in store order.
func (m *AccountManager) Export() ([]AccountConfig, error) {
	accounts, err := m.accountRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load accounts: %w", err)
	}

	configs := make([]AccountConfig, 0, len(accounts))
	for _, acc := range accounts {
		enabled := acc.Enabled
		configs = append(configs, AccountConfig{
			LoginType:       string(acc.LoginType.OrDefault()),
			Alias:           acc.Alias,
			AdminURL:        acc.AdminURL,
			KibanaVersion:   acc.KibanaVersion,
			UserName:        acc.UserName,
			Password:        acc.Password,
			IntervalMinutes: acc.Interval(),
			Enabled:         &enabled,
		})
	}
	return configs, nil
}

func (m *AccountManager) fromConfig(cfg AccountConfig) *domain.Account {
	enabled := true
	if cfg.Enabled != nil {
		enabled = *cfg.Enabled
	}
	return &domain.Account{
		Alias:           strings.TrimSpace(cfg.Alias),
		AdminURL:        strings.TrimSpace(cfg.AdminURL),
		LoginType:       domain.LoginType(cfg.LoginType).OrDefault(),
		KibanaVersion:   strings.TrimSpace(cfg.KibanaVersion),
		UserName:        strings.TrimSpace(cfg.UserName),
		Password:        cfg.Password,
		Enabled:         enabled,
		IntervalMinutes: m.interval(cfg.IntervalMinutes),
		Status: domain.Status{
			State:     domain.StatusIdle,
			Message:   "not renewed yet",
			UpdatedAt: time.Now(),
		},
	}
}

func (m *AccountManager) interval(minutes int) int {
	if minutes <= 0 {
		return m.defaultInterval
	}
	return minutes
}

func validateAccount(account *domain.Account) error {
	if account.AdminURL == "" {
		return fmt.Errorf("%w: admin url is required", ErrInvalidAccount)
	}
	if _, err := account.Origin(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if account.UserName == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidAccount)
	}
	if account.Password == "" {
		return fmt.Errorf("%w: password is required", ErrInvalidAccount)
	}
	return nil
}

func importKey(adminURL, userName string) string {
	return strings.TrimSpace(adminURL) + "\x00" + strings.TrimSpace(userName)
}
