package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_renewer/config"
	"token_renewer/internal/domain"
	"token_renewer/internal/repository/memory"
	"token_renewer/internal/usecase"
)

type stubStrategy struct{}

func (stubStrategy) Type() domain.LoginType { return domain.LoginTypeDubbo }

func (stubStrategy) LoginURL(account *domain.Account) (string, error) {
	return account.BaseURL() + "/api/dev/user/login", nil
}

func (stubStrategy) Authenticate(_ context.Context, account *domain.Account) (*domain.Credential, error) {
	if account.Password == "wrong" {
		return nil, errors.New("HTTP 401 Unauthorized: bad credentials")
	}
	return &domain.Credential{Value: "tok-" + account.UserName, Injectable: true}, nil
}

type stubResolver struct{}

func (stubResolver) Resolve(domain.LoginType) (domain.LoginStrategy, error) {
	return stubStrategy{}, nil
}

type recordingScheduler struct {
	mu         sync.Mutex
	resyncs    int
	resyncErrs []error
	scheduled  []string
	cancelled  []string
}

func (s *recordingScheduler) Resync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resyncs++
	s.resyncErrs = append(s.resyncErrs, ctx.Err())
	return ctx.Err()
}

func (s *recordingScheduler) Schedule(account *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, account.ID)
	return nil
}

func (s *recordingScheduler) Cancel(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, accountID)
}

func (s *recordingScheduler) Alarms() []usecase.Alarm {
	return []usecase.Alarm{{
		Name:      domain.AlarmName("a1"),
		AccountID: "a1",
		Period:    25 * time.Minute,
		Next:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}}
}

type testAPI struct {
	handler  http.Handler
	accounts *memory.AccountRepository
	sched    *recordingScheduler
}

func newTestAPI(t *testing.T, cfg *config.Config) *testAPI {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{ServerPort: "0"}
	}
	accounts := memory.NewAccountRepository()
	activity := usecase.NewActivityLog(memory.NewActivityRepository(), 100)
	renewer := usecase.NewRenewer(accounts, stubResolver{}, nil, activity)
	sched := &recordingScheduler{}
	control := usecase.NewControlService(usecase.NewAccountManager(accounts, 25), renewer, activity, sched)

	srv := NewServer(cfg, control)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testAPI{handler: srv.Handler(), accounts: accounts, sched: sched}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) seed(t *testing.T, acc *domain.Account) *domain.Account {
	t.Helper()
	require.NoError(t, a.accounts.Save(acc))
	return acc
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMessage_RenewAccount(t *testing.T) {
	api := newTestAPI(t, nil)
	ok := api.seed(t, &domain.Account{AdminURL: "https://a.example.com", UserName: "root", Password: "pw"})
	bad := api.seed(t, &domain.Account{AdminURL: "https://a.example.com", UserName: "root", Password: "wrong"})

	rec := api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "renewAccount", "accountId": ok.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "tok-root", body["token"])

	rec = api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "renewAccount", "accountId": bad.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "HTTP 401 Unauthorized: bad credentials", body["error"])
	assert.NotContains(t, body, "token")
}

func TestMessage_UnknownActionAndBadBody(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, `unknown action "explode"`, decode(t, rec)["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/messages", bytes.NewBufferString("{"))
	out := httptest.NewRecorder()
	api.handler.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)

	rec = api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "saveAccounts"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessage_SaveAccountsAndGetData(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/messages", map[string]any{
		"action": "saveAccounts",
		"accounts": []map[string]any{
			{"adminUrl": "https://a.example.com", "userName": "u", "password": "p", "enabled": true},
			{"adminUrl": "https://kibana.example.com", "loginType": "kibana", "userName": "e", "password": "p"},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	assert.Equal(t, 1, api.sched.resyncs)

	rec = api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "getData"})
	require.Equal(t, http.StatusOK, rec.Code)

	var data struct {
		Accounts []accountResponse `json:"accounts"`
		Logs     []logEntryResponse `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &data))
	require.Len(t, data.Accounts, 2)
	assert.NotEmpty(t, data.Accounts[0].ID)
	assert.Equal(t, "dubbo", data.Accounts[0].LoginType)
	assert.Equal(t, "kibana", data.Accounts[1].LoginType)
	assert.Equal(t, 25, data.Accounts[1].IntervalMinutes)
	assert.Equal(t, "idle", data.Accounts[1].Status.State)
	assert.Nil(t, data.Accounts[0].CurrentToken)
	assert.NotNil(t, data.Logs)
}

func TestSaveAccountsSurvivesDroppedClient(t *testing.T) {
	api := newTestAPI(t, nil)

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode([]map[string]any{
		{"adminUrl": "https://a.example.com", "userName": "u", "password": "p", "enabled": true},
	}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPut, "/api/accounts", &buf).WithContext(ctx)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []error{nil}, api.sched.resyncErrs)

	rec = api.do(t, http.MethodPost, "/api/alarms/setup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAccountsREST(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/accounts", map[string]any{
		"alias": "prod", "adminUrl": "https://a.example.com", "userName": "u", "password": "p",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "prod", created.Alias)
	assert.True(t, created.Enabled)
	assert.Equal(t, []string{created.ID}, api.sched.scheduled)

	rec = api.do(t, http.MethodPatch, "/api/accounts/"+created.ID, map[string]any{"intervalMinutes": 10, "enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	var updated accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, 10, updated.IntervalMinutes)
	assert.False(t, updated.Enabled)

	rec = api.do(t, http.MethodGet, "/api/accounts/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodPost, "/api/accounts/"+created.ID+"/renew", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "tok-u", decode(t, rec)["token"])

	rec = api.do(t, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	require.NotNil(t, list[0].CurrentToken)
	assert.Equal(t, "tok-u", *list[0].CurrentToken)
	assert.NotNil(t, list[0].LastRenewTime)

	rec = api.do(t, http.MethodDelete, "/api/accounts/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{created.ID}, api.sched.cancelled)

	rec = api.do(t, http.MethodGet, "/api/accounts/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAccountsREST_ErrorMapping(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/accounts", map[string]any{"adminUrl": "https://a.example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["error"], "invalid account")

	rec = api.do(t, http.MethodPatch, "/api/accounts/missing", map[string]any{"alias": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/accounts/a/b/c", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/accounts/x/renew", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRenewAll(t *testing.T) {
	api := newTestAPI(t, nil)
	a := api.seed(t, &domain.Account{AdminURL: "https://a.example.com", UserName: "a", Password: "p", Enabled: true})
	api.seed(t, &domain.Account{AdminURL: "https://b.example.com", UserName: "b", Password: "p"})
	c := api.seed(t, &domain.Account{AdminURL: "https://c.example.com", UserName: "c", Password: "wrong", Enabled: true})

	rec := api.do(t, http.MethodPost, "/api/renew-all", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool            `json:"success"`
		Results []renewResponse `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	require.Len(t, body.Results, 2)
	assert.Equal(t, renewResponse{ID: a.ID, Success: true, Token: "tok-a"}, body.Results[0])
	assert.Equal(t, c.ID, body.Results[1].ID)
	assert.False(t, body.Results[1].Success)
	assert.NotEmpty(t, body.Results[1].Error)
}

func TestImportExport(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodPost, "/api/accounts/import", []map[string]any{
		{"adminUrl": "https://a.example.com", "userName": "u", "password": "p"},
		{"adminUrl": "https://a.example.com", "userName": "u", "password": "again"},
		{"adminUrl": "https://b.example.com", "userName": "u"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"added":1}`, rec.Body.String())
	assert.Equal(t, 1, api.sched.resyncs)

	rec = api.do(t, http.MethodGet, "/api/accounts/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var configs []usecase.AccountConfig
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &configs))
	require.Len(t, configs, 1)
	assert.Equal(t, "dubbo", configs[0].LoginType)
	assert.Equal(t, 25, configs[0].IntervalMinutes)
	require.NotNil(t, configs[0].Enabled)
	assert.True(t, *configs[0].Enabled)

	rec = api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "exportAccounts"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAlarmsAndLogs(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.do(t, http.MethodGet, "/api/alarms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name":"token-renew-a1","accountId":"a1","periodMinutes":25,"next":"2024-05-01T10:00:00Z"}]`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/alarms/setup", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, api.sched.resyncs)

	api.seed(t, &domain.Account{AdminURL: "https://a.example.com"})
	rec = api.do(t, http.MethodPost, "/api/messages", map[string]any{"action": "renewAll"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["logs"])
}

func TestRateLimit(t *testing.T) {
	api := newTestAPI(t, &config.Config{ServerPort: "0", APIRateLimit: 0.001, APIRateBurst: 2})

	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/health", nil).Code)
	assert.Equal(t, http.StatusOK, api.do(t, http.MethodGet, "/api/health", nil).Code)

	rec := api.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestClientLimiterEvictsIdle(t *testing.T) {
	l := newClientLimiter(1, 1)
	require.True(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.2"))

	l.evictIdle(time.Now().Add(time.Minute))
	assert.Empty(t, l.clients)

	l.stop()
	l.stop()
}
