package domain

import (
	"context"
	"net/http"
)

// Tab is an open browser page.
type Tab struct {
	ID    string
	URL   string
	Title string
}

// StorageItem is a localStorage key/value pair.
type StorageItem struct {
	Key   string
	Value string
}

// TabHost gives access to the tabs of a running browser.
type TabHost interface {
	Tabs(ctx context.Context) ([]Tab, error)
	SetLocalStorage(ctx context.Context, tabID string, items []StorageItem) error
	SetCookies(ctx context.Context, origin string, cookies []*http.Cookie) error
}
