package usecase

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_renewer/internal/domain"
)

func TestTabInjector_InjectToken(t *testing.T) {
	f := newFixture()
	f.host.tabs = []domain.Tab{
		{ID: "t1", URL: "https://a.example.com/#/service", Title: "Services"},
		{ID: "t2", URL: "https://a.example.com"},
		{ID: "t3", URL: "https://a.example.com.evil.net/"},
		{ID: "t4", URL: "http://a.example.com/"},
	}
	acc := &domain.Account{ID: "a1", Alias: "prod", AdminURL: "https://a.example.com/admin", UserName: "root"}

	n := f.injector.InjectToken(context.Background(), acc, "tok")
	assert.Equal(t, 2, n)

	writes := f.host.written()
	require.Len(t, writes, 2)
	assert.Equal(t, "t1", writes[0].TabID)
	assert.Equal(t, "t2", writes[1].TabID)
	assert.Equal(t, []string{
		"[prod] injected token into tab: https://a.example.com",
		"[prod] injected token into tab: Services",
	}, f.messages())
}

func TestTabInjector_CustomKeysWithoutUserName(t *testing.T) {
	f := newFixture()
	f.host.tabs = []domain.Tab{{ID: "t1", URL: "https://a.example.com/"}}
	injector := NewTabInjector(f.host, f.accounts, f.activity, "authToken", "user")

	injector.InjectToken(context.Background(), &domain.Account{AdminURL: "https://a.example.com"}, "tok")

	writes := f.host.written()
	require.Len(t, writes, 1)
	assert.Equal(t, []domain.StorageItem{{Key: "authToken", Value: "tok"}}, writes[0].Items)
}

func TestTabInjector_TabFailureDoesNotStopOthers(t *testing.T) {
	f := newFixture()
	f.host.tabs = []domain.Tab{
		{ID: "t1", URL: "https://a.example.com/"},
		{ID: "t2", URL: "https://a.example.com/x"},
	}
	f.host.failTabs = map[string]error{"t1": errors.New("tab crashed")}
	acc := &domain.Account{Alias: "prod", AdminURL: "https://a.example.com"}

	n := f.injector.InjectToken(context.Background(), acc, "tok")
	assert.Equal(t, 1, n)

	msgs := f.messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "[prod] injected token into tab: https://a.example.com/x", msgs[0])
	assert.Equal(t, "[prod] tab injection failed (t1): tab crashed", msgs[1])

	entries, err := f.activity.List()
	require.NoError(t, err)
	assert.Equal(t, domain.SeverityError, entries[1].Severity)
}

func TestTabInjector_InvalidOrigin(t *testing.T) {
	f := newFixture()
	f.host.tabs = []domain.Tab{{ID: "t1", URL: "https://a.example.com/"}}

	n := f.injector.InjectToken(context.Background(), &domain.Account{Alias: "bad", AdminURL: "not a url"}, "tok")
	assert.Zero(t, n)
	assert.Empty(t, f.host.written())

	msgs := f.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "[bad] token injection skipped: invalid service url")
}

func TestTabInjector_ListTabsFails(t *testing.T) {
	f := newFixture()
	f.host.tabsErr = errors.New("browser gone")

	n := f.injector.InjectToken(context.Background(), &domain.Account{Alias: "prod", AdminURL: "https://a.example.com"}, "tok")
	assert.Zero(t, n)
	assert.Equal(t, []string{"[prod] token injection failed: browser gone"}, f.messages())
}

func TestTabInjector_ApplyCookies(t *testing.T) {
	f := newFixture()
	acc := &domain.Account{AdminURL: "https://kibana.example.com:5601/app"}

	f.injector.ApplyCookies(context.Background(), acc, nil)
	assert.Empty(t, f.host.cookies)

	f.injector.ApplyCookies(context.Background(), acc, []*http.Cookie{{Name: "sid", Value: "v"}})
	require.Len(t, f.host.cookies["https://kibana.example.com:5601"], 1)
	assert.Equal(t, "sid", f.host.cookies["https://kibana.example.com:5601"][0].Name)
}

func TestTabInjector_HandleTabLoaded(t *testing.T) {
	f := newFixture()
	f.addAccount(&domain.Account{Alias: "no-token", AdminURL: "https://a.example.com", UserName: "x"})
	f.addAccount(&domain.Account{Alias: "cookie", AdminURL: "https://a.example.com", CurrentToken: domain.SessionCookieCredential})
	f.addAccount(&domain.Account{Alias: "first", AdminURL: "https://a.example.com", UserName: "root", CurrentToken: "tok-1"})
	f.addAccount(&domain.Account{Alias: "second", AdminURL: "https://a.example.com", UserName: "other", CurrentToken: "tok-2"})

	f.injector.HandleTabLoaded(context.Background(), domain.Tab{ID: "t9", URL: "https://a.example.com/#/home"})

	writes := f.host.written()
	require.Len(t, writes, 1)
	assert.Equal(t, "t9", writes[0].TabID)
	assert.Equal(t, []domain.StorageItem{
		{Key: "token", Value: "tok-1"},
		{Key: "username", Value: "root"},
	}, writes[0].Items)
	assert.Equal(t, []string{"[first] injected token on tab load"}, f.messages())
}

func TestTabInjector_HandleTabLoadedFallsThroughOnFailure(t *testing.T) {
	f := newFixture()
	f.addAccount(&domain.Account{Alias: "first", AdminURL: "https://a.example.com", UserName: "root", CurrentToken: "tok-1"})
	f.addAccount(&domain.Account{Alias: "second", AdminURL: "https://a.example.com", UserName: "other", CurrentToken: "tok-2"})
	f.addAccount(&domain.Account{Alias: "third", AdminURL: "https://a.example.com", CurrentToken: "tok-3"})
	f.host.failWrites = 1

	f.injector.HandleTabLoaded(context.Background(), domain.Tab{ID: "t1", URL: "https://a.example.com/"})

	writes := f.host.written()
	require.Len(t, writes, 1)
	assert.Equal(t, []domain.StorageItem{
		{Key: "token", Value: "tok-2"},
		{Key: "username", Value: "other"},
	}, writes[0].Items)
	assert.Equal(t, []string{"[second] injected token on tab load"}, f.messages())
}

func TestTabInjector_HandleTabLoadedNoMatch(t *testing.T) {
	f := newFixture()
	f.addAccount(&domain.Account{Alias: "prod", AdminURL: "https://a.example.com", CurrentToken: "tok"})

	f.injector.HandleTabLoaded(context.Background(), domain.Tab{ID: "t1", URL: "https://b.example.com/"})
	f.injector.HandleTabLoaded(context.Background(), domain.Tab{ID: "t2"})

	assert.Empty(t, f.host.written())
	assert.Empty(t, f.messages())
}
