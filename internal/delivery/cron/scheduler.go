package cron

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	cron "github.com/robfig/cron/v3"

	"token_renewer/config"
	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
	"token_renewer/internal/usecase"
)

// Renewer renews one account.
type Renewer interface {
	Renew(ctx context.Context, accountID string) usecase.Result
}

// Scheduler keeps one cron entry per enabled account.
type Scheduler struct {
	cron            *cron.Cron
	accountRepo     domain.AccountRepository
	renewer         Renewer
	activity        *usecase.ActivityLog
	initialDelay    time.Duration
	renewTimeout    time.Duration
	defaultInterval int
	ctx             context.Context
	cancel          context.CancelFunc

	mu      sync.Mutex
	entries map[string]alarm
}

type alarm struct {
	id     cron.EntryID
	period time.Duration
}

// NewScheduler creates a new cron scheduler
func NewScheduler(
	cfg *config.Config,
	accountRepo domain.AccountRepository,
	renewer Renewer,
	activity *usecase.ActivityLog,
) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	cronLogger := cron.PrintfLogger(logger.Info())
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	s := &Scheduler{
		cron:            c,
		accountRepo:     accountRepo,
		renewer:         renewer,
		activity:        activity,
		initialDelay:    cfg.InitialDelay,
		renewTimeout:    cfg.RenewTimeout,
		defaultInterval: cfg.DefaultIntervalMinutes,
		ctx:             ctx,
		cancel:          cancel,
		entries:         make(map[string]alarm),
	}
	if s.initialDelay <= 0 {
		s.initialDelay = 6 * time.Second
	}
	if s.renewTimeout <= 0 {
		s.renewTimeout = 2 * time.Minute
	}
	if s.defaultInterval <= 0 {
		s.defaultInterval = domain.DefaultIntervalMinutes
	}
	return s
}

// Start starts the cron scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info().Println("Cron scheduler started")
}

// Stop stops the scheduler and waits for running renewals until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	logger.Info().Println("Stopping cron scheduler...")
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Error().Println("Cron scheduler stop timed out, cancelling running renewals")
	}
	s.cancel()
	logger.Info().Println("Cron scheduler stopped")
}

// Resync drops every renewal entry and recreates them from the store. The
// rebuild always runs to completion, even when the caller has gone away.
func (s *Scheduler) Resync(_ context.Context) error {
	accounts, err := s.accountRepo.GetAll()
	if err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range s.entries {
		s.cron.Remove(a.id)
		delete(s.entries, id)
	}
	for _, account := range accounts {
		s.applyLocked(account)
	}
	logger.Info().Printf("Renewal schedule synced: %d active entries", len(s.entries))
	return nil
}

// Schedule recreates the entry of one account, or removes it when the
// account is disabled.
func (s *Scheduler) Schedule(account *domain.Account) error {
	if account == nil || account.ID == "" {
		return fmt.Errorf("schedule: %w", usecase.ErrAccountNotFound)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(account.ID)
	s.applyLocked(account)
	return nil
}

// Cancel removes the entry of an account. Unknown ids are ignored.
func (s *Scheduler) Cancel(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(accountID)
}

// Alarms returns the current entries ordered by name.
func (s *Scheduler) Alarms() []usecase.Alarm {
	s.mu.Lock()
	defer s.mu.Unlock()

	alarms := make([]usecase.Alarm, 0, len(s.entries))
	for accountID, a := range s.entries {
		alarms = append(alarms, usecase.Alarm{
			Name:      domain.AlarmName(accountID),
			AccountID: accountID,
			Period:    a.period,
			Next:      s.cron.Entry(a.id).Next,
		})
	}
	sort.Slice(alarms, func(i, j int) bool { return alarms[i].Name < alarms[j].Name })
	return alarms
}

func (s *Scheduler) applyLocked(account *domain.Account) {
	if !account.Enabled {
		if account.Status.State != domain.StatusDisabled {
			s.setStatus(account.ID, domain.StatusDisabled, "auto renewal is off")
			s.activity.Info(account.Label(), "auto renewal is off")
		}
		return
	}

	minutes := account.IntervalMinutes
	if minutes <= 0 {
		minutes = s.defaultInterval
	}
	period := time.Duration(minutes) * time.Minute

	accountID := account.ID
	id := s.cron.Schedule(newAlarmSchedule(s.initialDelay, period), cron.FuncJob(func() {
		s.fire(accountID)
	}))
	s.entries[accountID] = alarm{id: id, period: period}

	s.setStatus(accountID, domain.StatusActive, fmt.Sprintf("renews every %d minutes", minutes))
	s.activity.Info(account.Label(), fmt.Sprintf("scheduled renewal every %d minutes", minutes))
}

func (s *Scheduler) removeLocked(accountID string) {
	if a, ok := s.entries[accountID]; ok {
		s.cron.Remove(a.id)
		delete(s.entries, accountID)
	}
}

func (s *Scheduler) setStatus(accountID string, state domain.StatusState, message string) {
	status := domain.Status{State: state, Message: message, UpdatedAt: time.Now()}
	if err := s.accountRepo.UpdateStatus(accountID, status); err != nil {
		logger.Error().Printf("update status of %s: %v", accountID, err)
	}
}

// fire runs when the entry of accountID is due.
func (s *Scheduler) fire(accountID string) {
	account, err := s.accountRepo.GetByID(accountID)
	if err != nil {
		logger.Error().Printf("scheduled renewal of %s: %v", accountID, err)
		return
	}
	if account == nil {
		s.Cancel(accountID)
		return
	}

	s.activity.Info(account.Label(), "scheduled renewal triggered")
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(s.ctx, s.renewTimeout)
	defer cancel()

	result := s.renewer.Renew(ctx, accountID)
	if !result.Success {
		logger.Error().Printf("Scheduled renewal of %s failed: %s", domain.AlarmName(accountID), result.Error)
		return
	}
	logger.Info().Printf("Scheduled renewal of %s completed in %v", domain.AlarmName(accountID), time.Since(startTime))
}

// alarmSchedule fires once after delay, then every period.
type alarmSchedule struct {
	delay   time.Duration
	period  time.Duration
	started atomic.Bool
}

func newAlarmSchedule(delay, period time.Duration) *alarmSchedule {
	return &alarmSchedule{delay: delay, period: period}
}

// Next implements cron.Schedule.
func (a *alarmSchedule) Next(t time.Time) time.Time {
	if a.started.CompareAndSwap(false, true) {
		return t.Add(a.delay)
	}
	return t.Add(a.period)
}
