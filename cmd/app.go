package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"token_renewer/config"
	"token_renewer/internal/delivery/cron"
	"token_renewer/internal/domain"
	"token_renewer/internal/infrastructure/auth"
	"token_renewer/internal/infrastructure/browser"
	httpclient "token_renewer/internal/infrastructure/http"
	"token_renewer/internal/logger"
	"token_renewer/internal/repository/memory"
	sqliterepo "token_renewer/internal/repository/sqlite"
	"token_renewer/internal/usecase"
)

// app holds the wired components of one process.
type app struct {
	cfg       *config.Config
	db        *sql.DB
	accounts  domain.AccountRepository
	manager   *usecase.AccountManager
	activity  *usecase.ActivityLog
	host      browser.Host
	injector  *usecase.TabInjector
	renewer   *usecase.Renewer
	scheduler *cron.Scheduler
	control   *usecase.ControlService
}

// loadConfig reads the configuration and starts the process log.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.NewManager(path).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if _, err := logger.Initialize(cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	return cfg, nil
}

// buildApp wires stores, strategies, the browser host and the services.
// withBrowser controls whether a browser connection is attempted at all.
func buildApp(ctx context.Context, cfg *config.Config, withBrowser bool) (*app, error) {
	a := &app{cfg: cfg}

	var activityRepo domain.ActivityRepository
	if strings.EqualFold(strings.TrimSpace(cfg.DatabaseURL), "memory") {
		logger.Warn().Println("Using in-memory storage, accounts are lost on exit")
		a.accounts = memory.NewAccountRepository()
		activityRepo = memory.NewActivityRepository()
	} else {
		db, err := sqliterepo.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.db = db
		a.accounts = sqliterepo.NewAccountRepository(db)
		activityRepo = sqliterepo.NewActivityRepository(db)
	}

	client, err := httpclient.NewHTTPClient(cfg)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}
	strategies := auth.NewRegistry(
		auth.NewFormTokenStrategy(client),
		auth.NewCookieSessionStrategy(client, cfg.KibanaVersion),
	)

	a.host = browser.Noop{}
	if withBrowser && cfg.BrowserEnabled {
		host, err := browser.NewChromeHost(ctx, cfg)
		if err != nil {
			logger.Warn().Printf("Browser unavailable, tab injection disabled: %v", err)
		} else {
			a.host = host
		}
	}

	a.activity = usecase.NewActivityLog(activityRepo, cfg.MaxLogEntries)
	a.manager = usecase.NewAccountManager(a.accounts, cfg.DefaultIntervalMinutes)
	a.injector = usecase.NewTabInjector(a.host, a.accounts, a.activity, cfg.TokenStorageKey, cfg.UsernameStorageKey)
	a.renewer = usecase.NewRenewer(a.accounts, strategies, a.injector, a.activity)
	a.scheduler = cron.NewScheduler(cfg, a.accounts, a.renewer, a.activity)
	a.control = usecase.NewControlService(a.manager, a.renewer, a.activity, a.scheduler)
	return a, nil
}

// bootstrapAccounts imports the accounts listed in the config file. Entries
// already present are skipped.
func (a *app) bootstrapAccounts() {
	if len(a.cfg.BootstrapAccounts) == 0 {
		return
	}

	configs := make([]usecase.AccountConfig, 0, len(a.cfg.BootstrapAccounts))
	for _, acc := range a.cfg.BootstrapAccounts {
		if acc.AdminURL == "" || acc.UserName == "" || acc.Password == "" {
			logger.Warn().Printf("Skipping incomplete bootstrap account %q (%s)", acc.Alias, acc.AdminURL)
			continue
		}
		configs = append(configs, usecase.AccountConfig{
			LoginType:       acc.LoginType,
			Alias:           acc.Alias,
			AdminURL:        acc.AdminURL,
			KibanaVersion:   acc.KibanaVersion,
			UserName:        acc.UserName,
			Password:        acc.Password,
			IntervalMinutes: acc.IntervalMinutes,
			Enabled:         acc.Enabled,
		})
	}

	added, err := a.manager.Import(configs)
	if err != nil {
		logger.Error().Printf("Failed to bootstrap accounts: %v", err)
		return
	}
	if added > 0 {
		logger.Info().Printf("Bootstrapped %d accounts from config", added)
	}
}

func (a *app) close() {
	if a.host != nil {
		if err := a.host.Close(); err != nil {
			logger.Error().Printf("Failed to close browser: %v", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error().Printf("Failed to close database: %v", err)
		}
	}
}
