package browser

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token_renewer/internal/domain"
)

func TestPageTabsFiltersTargets(t *testing.T) {
	infos := []*target.Info{
		{TargetID: "own", Type: "page", URL: "about:blank"},
		{TargetID: "t1", Type: "page", URL: "https://a.example.com/", Title: "A"},
		{TargetID: "sw", Type: "service_worker", URL: "https://a.example.com/sw.js"},
		nil,
		{TargetID: "t2", Type: "page", URL: "https://b.example.com/"},
	}

	tabs := pageTabs(infos, "own")
	assert.Equal(t, []domain.Tab{
		{ID: "t1", URL: "https://a.example.com/", Title: "A"},
		{ID: "t2", URL: "https://b.example.com/"},
	}, tabs)
}

func TestStorageScriptQuotesValues(t *testing.T) {
	script := storageScript([]domain.StorageItem{
		{Key: "token", Value: `ab"c`},
		{Key: "username", Value: "admin"},
	})

	assert.Contains(t, script, `localStorage.setItem("token", "ab\"c");`)
	assert.Contains(t, script, `localStorage.setItem("username", "admin");`)
	assert.Contains(t, script, "return true;")
	assert.Contains(t, script, "catch (e) { return false; }")
}

func TestSameSite(t *testing.T) {
	assert.Equal(t, network.CookieSameSiteStrict, sameSite(http.SameSiteStrictMode))
	assert.Equal(t, network.CookieSameSiteNone, sameSite(http.SameSiteNoneMode))
	assert.Equal(t, network.CookieSameSiteLax, sameSite(http.SameSiteDefaultMode))
}

func TestNoopHost(t *testing.T) {
	var host Host = Noop{}

	tabs, err := host.Tabs(t.Context())
	assert.NoError(t, err)
	assert.Empty(t, tabs)
	assert.ErrorIs(t, host.SetLocalStorage(t.Context(), "x", nil), ErrBrowserDisabled)
	assert.NoError(t, host.SetCookies(t.Context(), "https://a.example.com", []*http.Cookie{{Name: "a"}}))
	assert.NoError(t, host.Close())
}

func newDetachedHost(describe func(context.Context, target.ID) (domain.Tab, error)) *ChromeHost {
	return &ChromeHost{
		browserCtx: context.Background(),
		ownTarget:  "own",
		timeout:    time.Second,
		describe:   describe,
		tabs:       make(map[target.ID]tabHandle),
		watched:    make(map[target.ID]bool),
	}
}

func TestLoadListenerReportsEveryLoad(t *testing.T) {
	h := newDetachedHost(func(_ context.Context, id target.ID) (domain.Tab, error) {
		return domain.Tab{ID: string(id), URL: "https://a.example.com/#/home", Title: "Home"}, nil
	})
	loaded := make(chan domain.Tab, 4)
	listen := h.loadListener("t1", func(tab domain.Tab) { loaded <- tab })

	// a reload keeps url and title, and must still be reported
	listen(&page.EventLoadEventFired{})
	listen(&page.EventLoadEventFired{})
	listen(&page.EventFrameStartedLoading{})
	listen(&target.EventTargetInfoChanged{TargetInfo: &target.Info{TargetID: "t1", Type: "page"}})

	want := domain.Tab{ID: "t1", URL: "https://a.example.com/#/home", Title: "Home"}
	for i := 0; i < 2; i++ {
		select {
		case tab := <-loaded:
			assert.Equal(t, want, tab)
		case <-time.After(time.Second):
			t.Fatalf("load %d not reported", i+1)
		}
	}
	select {
	case tab := <-loaded:
		t.Fatalf("unexpected report %+v", tab)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLoadListenerSkipsUnreadableTab(t *testing.T) {
	h := newDetachedHost(func(context.Context, target.ID) (domain.Tab, error) {
		return domain.Tab{}, errors.New("target closed")
	})
	called := make(chan struct{}, 1)
	h.loadListener("t1", func(domain.Tab) { called <- struct{}{} })(&page.EventLoadEventFired{})

	select {
	case <-called:
		t.Fatal("handler called for unreadable tab")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestAttachSkipsOwnAndWatchedTargets(t *testing.T) {
	h := newDetachedHost(nil)
	h.watched["t1"] = true

	h.attach("own", func(domain.Tab) {})
	h.attach("t1", func(domain.Tab) {})

	assert.Empty(t, h.tabs)
	require.Len(t, h.watched, 1)
}
