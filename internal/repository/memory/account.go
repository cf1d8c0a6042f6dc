package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"token_renewer/internal/domain"
)

// AccountRepository is an in-memory implementation of AccountRepository.
// Accounts keep insertion order; callers always receive copies.
type AccountRepository struct {
	mu       sync.RWMutex
	order    []string
	accounts map[string]*domain.Account
}

// NewAccountRepository creates a new in-memory account repository
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

// GetAll returns all accounts in store order.
func (r *AccountRepository) GetAll() ([]*domain.Account, error) {
	return r.collect(func(*domain.Account) bool { return true }), nil
}

// GetAllEnabled returns enabled accounts in store order.
func (r *AccountRepository) GetAllEnabled() ([]*domain.Account, error) {
	return r.collect(func(a *domain.Account) bool { return a.Enabled }), nil
}

func (r *AccountRepository) collect(keep func(*domain.Account) bool) []*domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var accounts []*domain.Account
	for _, id := range r.order {
		if account := r.accounts[id]; keep(account) {
			accounts = append(accounts, account.Clone())
		}
	}
	return accounts
}

// GetByID returns an account by its ID
func (r *AccountRepository) GetByID(id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil, nil
	}
	return account.Clone(), nil
}

// Save creates or updates an account
func (r *AccountRepository) Save(account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stamp(account)
	if _, exists := r.accounts[account.ID]; !exists {
		r.order = append(r.order, account.ID)
	}
	r.accounts[account.ID] = account.Clone()
	return nil
}

// ReplaceAll swaps the whole collection.
func (r *AccountRepository) ReplaceAll(accounts []*domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = make([]string, 0, len(accounts))
	r.accounts = make(map[string]*domain.Account, len(accounts))
	for _, account := range accounts {
		stamp(account)
		if _, exists := r.accounts[account.ID]; !exists {
			r.order = append(r.order, account.ID)
		}
		r.accounts[account.ID] = account.Clone()
	}
	return nil
}

// UpdateStatus writes the status of one account.
func (r *AccountRepository) UpdateStatus(id string, status domain.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if account, exists := r.accounts[id]; exists {
		account.Status = status
	}
	return nil
}

// UpdateCredential records a successful renewal.
func (r *AccountRepository) UpdateCredential(id string, token string, renewedAt time.Time, expiresAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, exists := r.accounts[id]
	if !exists {
		return nil
	}
	account.CurrentToken = token
	t := renewedAt
	account.LastRenewedAt = &t
	account.TokenExpiresAt = nil
	if expiresAt != nil {
		e := *expiresAt
		account.TokenExpiresAt = &e
	}
	account.UpdatedAt = time.Now()
	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[id]; !exists {
		return nil
	}
	delete(r.accounts, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func stamp(account *domain.Account) {
	now := time.Now()
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
}
