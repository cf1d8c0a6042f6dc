package browser

import (
	"context"
	"errors"
	"net/http"

	"token_renewer/internal/domain"
)

// ErrBrowserDisabled is returned when writing into a tab without a browser.
var ErrBrowserDisabled = errors.New("browser integration disabled")

// Noop is the Host used when browser integration is off. It has no tabs.
type Noop struct{}

// Tabs implements domain.TabHost.
func (Noop) Tabs(context.Context) ([]domain.Tab, error) { return nil, nil }

// SetLocalStorage implements domain.TabHost.
func (Noop) SetLocalStorage(context.Context, string, []domain.StorageItem) error {
	return ErrBrowserDisabled
}

// SetCookies drops the cookies.
func (Noop) SetCookies(context.Context, string, []*http.Cookie) error { return nil }

// Watch never calls handler.
func (Noop) Watch(func(domain.Tab)) {}

// Close implements Host.
func (Noop) Close() error { return nil }
