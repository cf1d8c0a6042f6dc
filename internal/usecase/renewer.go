package usecase

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

const tokenPreviewLength = 20

// StrategyResolver finds the login strategy of a login type.
type StrategyResolver interface {
	Resolve(t domain.LoginType) (domain.LoginStrategy, error)
}

// Result is the outcome of one renewal.
type Result struct {
	AccountID  string
	Success    bool
	Token      string
	Credential *domain.Credential
	Error      string
}

// Renewer runs the login of an account and records the outcome.
type Renewer struct {
	accountRepo domain.AccountRepository
	strategies  StrategyResolver
	injector    *TabInjector
	activity    *ActivityLog
	group       singleflight.Group
	now         func() time.Time
}

// NewRenewer creates a Renewer. injector may be nil.
func NewRenewer(accountRepo domain.AccountRepository, strategies StrategyResolver, injector *TabInjector, activity *ActivityLog) *Renewer {
	return &Renewer{
		accountRepo: accountRepo,
		strategies:  strategies,
		injector:    injector,
		activity:    activity,
		now:         time.Now,
	}
}

// Renew renews one account. Concurrent calls for the same account share a
// single login. Every failure is recorded and returned in the Result.
func (r *Renewer) Renew(ctx context.Context, accountID string) Result {
	v, _, _ := r.group.Do(accountID, func() (any, error) {
		return r.renew(ctx, accountID), nil
	})
	return v.(Result)
}

func (r *Renewer) renew(ctx context.Context, accountID string) (result Result) {
	label := accountID
	defer func() {
		if p := recover(); p != nil {
			logger.Error().Printf("renewal of %s panicked: %v", accountID, p)
			result = r.fail(accountID, label, fmt.Sprintf("internal error: %v", p))
		}
	}()

	account, err := r.accountRepo.GetByID(accountID)
	if err != nil {
		return r.fail(accountID, label, err.Error())
	}
	if account != nil {
		label = account.Label()
	}
	if account == nil || !account.IsComplete() {
		reason := ErrIncompleteConfiguration.Error()
		r.setStatus(accountID, domain.StatusError, reason)
		r.activity.Failure(label, "renewal failed: "+reason)
		return Result{AccountID: accountID, Error: reason}
	}

	strategy, err := r.strategies.Resolve(account.LoginType)
	if err != nil {
		return r.fail(accountID, label, err.Error())
	}
	loginURL, err := strategy.LoginURL(account)
	if err != nil {
		return r.fail(accountID, label, err.Error())
	}

	r.activity.Info(label, "requesting "+loginURL)

	cred, err := strategy.Authenticate(ctx, account)
	if err != nil {
		return r.fail(accountID, label, err.Error())
	}

	now := r.now()
	if err := r.accountRepo.UpdateCredential(accountID, cred.Value, now, cred.ExpiresAt); err != nil {
		return r.fail(accountID, label, fmt.Sprintf("store credential: %v", err))
	}
	r.setStatus(accountID, domain.StatusActive, fmt.Sprintf("renewed successfully (%s)", now.Format("2006-01-02 15:04:05")))

	if cred.Injectable {
		r.activity.Success(label, "renewed successfully, token: "+preview(cred.Value)+"...")
	} else {
		r.activity.Success(label, "renewed successfully (cookie session)")
	}

	if r.injector != nil {
		if cred.Injectable {
			r.injector.InjectToken(ctx, account, cred.Value)
		}
		r.injector.ApplyCookies(ctx, account, cred.Cookies)
	}

	return Result{AccountID: accountID, Success: true, Token: cred.Value, Credential: cred}
}

func (r *Renewer) fail(accountID, label, reason string) Result {
	message := "renewal failed: " + reason
	r.setStatus(accountID, domain.StatusError, message)
	r.activity.Failure(label, message)
	return Result{AccountID: accountID, Error: reason}
}

func (r *Renewer) setStatus(accountID string, state domain.StatusState, message string) {
	status := domain.Status{State: state, Message: message, UpdatedAt: r.now()}
	if err := r.accountRepo.UpdateStatus(accountID, status); err != nil {
		logger.Error().Printf("update status of %s: %v", accountID, err)
	}
}

func preview(token string) string {
	if len(token) > tokenPreviewLength {
		return token[:tokenPreviewLength]
	}
	return token
}
