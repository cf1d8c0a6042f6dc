package usecase

import (
	"context"
	"net/http"

	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

// TabInjector writes credentials into open browser tabs of a service.
type TabInjector struct {
	host        domain.TabHost
	accountRepo domain.AccountRepository
	activity    *ActivityLog
	tokenKey    string
	usernameKey string
}

// NewTabInjector creates a TabInjector. Empty storage keys default to
// "token" and "username".
func NewTabInjector(host domain.TabHost, accountRepo domain.AccountRepository, activity *ActivityLog, tokenKey, usernameKey string) *TabInjector {
	if tokenKey == "" {
		tokenKey = "token"
	}
	if usernameKey == "" {
		usernameKey = "username"
	}
	return &TabInjector{
		host:        host,
		accountRepo: accountRepo,
		activity:    activity,
		tokenKey:    tokenKey,
		usernameKey: usernameKey,
	}
}

// InjectToken writes token into every tab on the account's origin and
// returns the number of tabs written. Failures are logged, never returned.
func (i *TabInjector) InjectToken(ctx context.Context, account *domain.Account, token string) int {
	origin, err := account.Origin()
	if err != nil {
		logger.Warn().Printf("skip token injection for %s: %v", account.Label(), err)
		i.activity.Failure(account.Label(), "token injection skipped: "+err.Error())
		return 0
	}

	tabs, err := i.host.Tabs(ctx)
	if err != nil {
		logger.Warn().Printf("list tabs for %s: %v", origin, err)
		i.activity.Failure(account.Label(), "token injection failed: "+err.Error())
		return 0
	}

	items := i.storageItems(token, account.UserName)
	written := 0
	for _, tab := range tabs {
		if !domain.MatchesOrigin(tab.URL, origin) {
			continue
		}
		if err := i.host.SetLocalStorage(ctx, tab.ID, items); err != nil {
			logger.Warn().Printf("inject token into tab %s: %v", tab.ID, err)
			i.activity.Failure(account.Label(), "tab injection failed ("+tab.ID+"): "+err.Error())
			continue
		}
		written++
		i.activity.Success(account.Label(), "injected token into tab: "+tabName(tab))
	}
	return written
}

// ApplyCookies stores session cookies in the browser for the account's origin.
func (i *TabInjector) ApplyCookies(ctx context.Context, account *domain.Account, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	origin, err := account.Origin()
	if err != nil {
		logger.Warn().Printf("skip cookie sync for %s: %v", account.Label(), err)
		return
	}
	if err := i.host.SetCookies(ctx, origin, cookies); err != nil {
		logger.Warn().Printf("sync cookies for %s: %v", origin, err)
	}
}

// HandleTabLoaded writes the credential of the first matching account into
// a tab that finished loading. A failed write falls through to the next
// matching account. Errors only reach the process log.
func (i *TabInjector) HandleTabLoaded(ctx context.Context, tab domain.Tab) {
	if tab.URL == "" {
		return
	}

	accounts, err := i.accountRepo.GetAll()
	if err != nil {
		logger.Error().Printf("load accounts for tab %s: %v", tab.ID, err)
		return
	}

	for _, account := range accounts {
		if !account.HasInjectableToken() || account.AdminURL == "" {
			continue
		}
		origin, err := account.Origin()
		if err != nil || !domain.MatchesOrigin(tab.URL, origin) {
			continue
		}
		if err := i.host.SetLocalStorage(ctx, tab.ID, i.storageItems(account.CurrentToken, account.UserName)); err != nil {
			logger.Warn().Printf("inject token on load into tab %s: %v", tab.ID, err)
			continue
		}
		i.activity.Success(account.Label(), "injected token on tab load")
		return
	}
}

func (i *TabInjector) storageItems(token, userName string) []domain.StorageItem {
	items := []domain.StorageItem{{Key: i.tokenKey, Value: token}}
	if userName != "" {
		items = append(items, domain.StorageItem{Key: i.usernameKey, Value: userName})
	}
	return items
}

func tabName(tab domain.Tab) string {
	if tab.Title != "" {
		return tab.Title
	}
	return tab.URL
}
