package usecase

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"

	"token_renewer/internal/domain"
	"token_renewer/internal/repository/memory"
)

type fakeStrategy struct {
	loginType domain.LoginType
	calls     atomic.Int32
	auth      func(ctx context.Context, account *domain.Account) (*domain.Credential, error)
}

func (s *fakeStrategy) Type() domain.LoginType { return s.loginType }

func (s *fakeStrategy) LoginURL(account *domain.Account) (string, error) {
	if account.BaseURL() == "" {
		return "", domain.ErrInvalidServiceURL
	}
	return account.BaseURL() + "/login", nil
}

func (s *fakeStrategy) Authenticate(ctx context.Context, account *domain.Account) (*domain.Credential, error) {
	s.calls.Add(1)
	return s.auth(ctx, account)
}

type fakeResolver map[domain.LoginType]domain.LoginStrategy

func (r fakeResolver) Resolve(t domain.LoginType) (domain.LoginStrategy, error) {
	if s, ok := r[t.OrDefault()]; ok {
		return s, nil
	}
	return nil, errors.New("unknown login type")
}

type storageWrite struct {
	TabID string
	Items []domain.StorageItem
}

type fakeHost struct {
	mu       sync.Mutex
	tabs     []domain.Tab
	tabsErr  error
	failTabs map[string]error
	cookies  map[string][]*http.Cookie
	writes   []storageWrite

	// failWrites fails that many SetLocalStorage calls before any succeeds
	failWrites int
}

func (h *fakeHost) Tabs(context.Context) ([]domain.Tab, error) {
	return h.tabs, h.tabsErr
}

func (h *fakeHost) SetLocalStorage(_ context.Context, tabID string, items []domain.StorageItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.failTabs[tabID]; err != nil {
		return err
	}
	if h.failWrites > 0 {
		h.failWrites--
		return errors.New("evaluate failed")
	}
	h.writes = append(h.writes, storageWrite{TabID: tabID, Items: items})
	return nil
}

func (h *fakeHost) SetCookies(_ context.Context, origin string, cookies []*http.Cookie) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cookies == nil {
		h.cookies = make(map[string][]*http.Cookie)
	}
	h.cookies[origin] = append(h.cookies[origin], cookies...)
	return nil
}

func (h *fakeHost) written() []storageWrite {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]storageWrite(nil), h.writes...)
}

type fakeScheduler struct {
	mu        sync.Mutex
	resyncs   int
	scheduled []string
	cancelled []string
}

func (s *fakeScheduler) Resync(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs++
	return nil
}

func (s *fakeScheduler) Schedule(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, account.ID)
	return nil
}

func (s *fakeScheduler) Cancel(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, accountID)
}

func (s *fakeScheduler) Alarms() []Alarm { return nil }

type fixture struct {
	accounts *memory.AccountRepository
	logs     *memory.ActivityRepository
	activity *ActivityLog
	host     *fakeHost
	injector *TabInjector
	dubbo    *fakeStrategy
	kibana   *fakeStrategy
	renewer  *Renewer
}

func newFixture() *fixture {
	f := &fixture{
		accounts: memory.NewAccountRepository(),
		logs:     memory.NewActivityRepository(),
		host:     &fakeHost{},
		dubbo: &fakeStrategy{loginType: domain.LoginTypeDubbo, auth: func(context.Context, *domain.Account) (*domain.Credential, error) {
			return &domain.Credential{Value: "token-abcdefghijklmnopqrstuvwxyz", Injectable: true}, nil
		}},
		kibana: &fakeStrategy{loginType: domain.LoginTypeKibana, auth: func(context.Context, *domain.Account) (*domain.Credential, error) {
			return &domain.Credential{
				Value:   domain.SessionCookieCredential,
				Cookies: []*http.Cookie{{Name: "sid", Value: "s"}},
			}, nil
		}},
	}
	f.activity = NewActivityLog(f.logs, 100)
	f.injector = NewTabInjector(f.host, f.accounts, f.activity, "", "")
	f.renewer = NewRenewer(f.accounts, fakeResolver{
		domain.LoginTypeDubbo:  f.dubbo,
		domain.LoginTypeKibana: f.kibana,
	}, f.injector, f.activity)
	return f
}

func (f *fixture) addAccount(acc *domain.Account) *domain.Account {
	if err := f.accounts.Save(acc); err != nil {
		panic(err)
	}
	return acc
}

func (f *fixture) messages() []string {
	entries, _ := f.logs.List()
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message)
	}
	return out
}
