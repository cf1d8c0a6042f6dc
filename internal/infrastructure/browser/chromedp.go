package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"token_renewer/config"
	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
)

// Host is a TabHost that can report finished navigations.
type Host interface {
	domain.TabHost
	Watch(handler func(tab domain.Tab))
	Close() error
}

// ChromeHost drives a Chrome/Chromium instance over the DevTools protocol.
// It either attaches to a running browser or launches its own.
type ChromeHost struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	ownBrowser    bool
	ownTarget     target.ID
	timeout       time.Duration

	// describe reads the current url and title of a tab
	describe func(ctx context.Context, id target.ID) (domain.Tab, error)

	mu      sync.Mutex
	tabs    map[target.ID]tabHandle
	watched map[target.ID]bool
}

type tabHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChromeHost connects to cfg.DevToolsURL when set, otherwise starts a
// browser with the configured profile directory.
func NewChromeHost(ctx context.Context, cfg *config.Config) (*ChromeHost, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
		ownBrowser  bool
	)

	if cfg.DevToolsURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(ctx, cfg.DevToolsURL)
	} else {
		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", cfg.BrowserHeadless),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
		if cfg.BrowserUserDataDir != "" {
			opts = append(opts, chromedp.UserDataDir(cfg.BrowserUserDataDir))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(ctx, opts...)
		ownBrowser = true
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logger.Error().Printf),
	)

	// The first Run connects and opens the blank control tab.
	if err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.SetDiscoverTargets(true).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	})); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	timeout := cfg.BrowserTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	h := &ChromeHost{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		ownBrowser:    ownBrowser,
		timeout:       timeout,
		tabs:          make(map[target.ID]tabHandle),
		watched:       make(map[target.ID]bool),
	}
	h.describe = h.describeTab
	if c := chromedp.FromContext(browserCtx); c != nil && c.Target != nil {
		h.ownTarget = c.Target.TargetID
	}
	return h, nil
}

// Tabs lists the open pages, excluding the control tab.
func (h *ChromeHost) Tabs(ctx context.Context) ([]domain.Tab, error) {
	callCtx, cancel := h.bounded(h.browserCtx, ctx)
	defer cancel()

	infos, err := chromedp.Targets(callCtx)
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return pageTabs(infos, h.ownTarget), nil
}

// SetLocalStorage writes items into the localStorage of a tab.
func (h *ChromeHost) SetLocalStorage(ctx context.Context, tabID string, items []domain.StorageItem) error {
	tabCtx := h.tabContext(target.ID(tabID))

	callCtx, cancel := h.bounded(tabCtx, ctx)
	defer cancel()

	var ok bool
	if err := chromedp.Run(callCtx, chromedp.Evaluate(storageScript(items), &ok)); err != nil {
		return fmt.Errorf("evaluate in tab %s: %w", tabID, err)
	}
	if !ok {
		return fmt.Errorf("tab %s: localStorage is not writable", tabID)
	}
	return nil
}

// SetCookies stores cookies in the browser for origin.
func (h *ChromeHost) SetCookies(ctx context.Context, origin string, cookies []*http.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	callCtx, cancel := h.bounded(h.browserCtx, ctx)
	defer cancel()

	return chromedp.Run(callCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			path := c.Path
			if path == "" {
				path = "/"
			}
			action := network.SetCookie(c.Name, c.Value).
				WithURL(origin).
				WithPath(path).
				WithHTTPOnly(c.HttpOnly).
				WithSecure(c.Secure).
				WithSameSite(sameSite(c.SameSite))
			if c.Domain != "" {
				action = action.WithDomain(c.Domain)
			}
			if !c.Expires.IsZero() {
				expires := cdp.TimeSinceEpoch(c.Expires)
				action = action.WithExpires(&expires)
			}
			if err := action.Do(ctx); err != nil {
				return fmt.Errorf("set cookie %s: %w", c.Name, err)
			}
		}
		return nil
	}))
}

// Watch calls handler every time a page finishes loading, reloads
// included. Pages open at call time and pages opened later are both
// covered. The handler runs on its own goroutine.
func (h *ChromeHost) Watch(handler func(tab domain.Tab)) {
	chromedp.ListenBrowser(h.browserCtx, func(ev any) {
		switch e := ev.(type) {
		case *target.EventTargetCreated:
			if info := e.TargetInfo; info != nil && info.Type == "page" {
				go h.attach(info.TargetID, handler)
			}
		case *target.EventTargetDestroyed:
			h.forget(e.TargetID)
		}
	})

	go func() {
		tabs, err := h.Tabs(h.browserCtx)
		if err != nil {
			logger.Warn().Printf("list tabs to watch: %v", err)
			return
		}
		for _, tab := range tabs {
			h.attach(target.ID(tab.ID), handler)
		}
	}()
}

// attach subscribes to the load events of a page target once.
func (h *ChromeHost) attach(id target.ID, handler func(tab domain.Tab)) {
	h.mu.Lock()
	if id == h.ownTarget || h.watched[id] {
		h.mu.Unlock()
		return
	}
	h.watched[id] = true
	h.mu.Unlock()

	tabCtx := h.tabContext(id)
	chromedp.ListenTarget(tabCtx, h.loadListener(id, handler))

	callCtx, cancel := h.bounded(tabCtx, h.browserCtx)
	defer cancel()
	if err := chromedp.Run(callCtx); err != nil {
		logger.Warn().Printf("attach to tab %s: %v", id, err)
		h.mu.Lock()
		delete(h.watched, id)
		h.mu.Unlock()
	}
}

// loadListener returns a target listener that reports the tab after every
// load event of its main frame.
func (h *ChromeHost) loadListener(id target.ID, handler func(tab domain.Tab)) func(ev any) {
	return func(ev any) {
		if _, ok := ev.(*page.EventLoadEventFired); !ok {
			return
		}
		go func() {
			tab, err := h.describe(h.browserCtx, id)
			if err != nil {
				logger.Warn().Printf("read loaded tab %s: %v", id, err)
				return
			}
			handler(tab)
		}()
	}
}

func (h *ChromeHost) describeTab(ctx context.Context, id target.ID) (domain.Tab, error) {
	callCtx, cancel := h.bounded(h.tabContext(id), ctx)
	defer cancel()

	tab := domain.Tab{ID: string(id)}
	if err := chromedp.Run(callCtx, chromedp.Location(&tab.URL), chromedp.Title(&tab.Title)); err != nil {
		return domain.Tab{}, err
	}
	return tab, nil
}

// Close shuts down a browser this host launched. An attached browser is
// left running with its tabs untouched.
func (h *ChromeHost) Close() error {
	if !h.ownBrowser {
		return nil
	}
	h.browserCancel()
	h.allocCancel()
	return nil
}

// tabContext returns the cached context attached to a tab. Tab contexts are
// only cancelled once the tab is gone, since cancelling closes the target.
func (h *ChromeHost) tabContext(id target.ID) context.Context {
	h.mu.Lock()
	defer h.mu.Unlock()

	if handle, ok := h.tabs[id]; ok {
		return handle.ctx
	}
	ctx, cancel := chromedp.NewContext(h.browserCtx, chromedp.WithTargetID(id))
	h.tabs[id] = tabHandle{ctx: ctx, cancel: cancel}
	return ctx
}

func (h *ChromeHost) forget(id target.ID) {
	h.mu.Lock()
	handle, ok := h.tabs[id]
	delete(h.tabs, id)
	delete(h.watched, id)
	h.mu.Unlock()

	if ok {
		handle.cancel()
	}
}

// bounded derives a call context from a chromedp context that also ends
// when the caller's ctx does.
func (h *ChromeHost) bounded(chromeCtx, ctx context.Context) (context.Context, context.CancelFunc) {
	callCtx, cancel := context.WithTimeout(chromeCtx, h.timeout)
	stop := context.AfterFunc(ctx, cancel)
	return callCtx, func() {
		stop()
		cancel()
	}
}

func pageTabs(infos []*target.Info, own target.ID) []domain.Tab {
	tabs := make([]domain.Tab, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" || info.TargetID == own {
			continue
		}
		tabs = append(tabs, domain.Tab{ID: string(info.TargetID), URL: info.URL, Title: info.Title})
	}
	return tabs
}

func storageScript(items []domain.StorageItem) string {
	var b strings.Builder
	b.WriteString("(() => { try { ")
	for _, item := range items {
		key, _ := json.Marshal(item.Key)
		value, _ := json.Marshal(item.Value)
		fmt.Fprintf(&b, "localStorage.setItem(%s, %s); ", key, value)
	}
	b.WriteString("return true; } catch (e) { return false; } })()")
	return b.String()
}

func sameSite(s http.SameSite) network.CookieSameSite {
	switch s {
	case http.SameSiteStrictMode:
		return network.CookieSameSiteStrict
	case http.SameSiteNoneMode:
		return network.CookieSameSiteNone
	default:
		return network.CookieSameSiteLax
	}
}
