package domain

import (
	"context"
	"net/http"
	"time"
)

// SessionCookieCredential marks a renewal whose session lives in a cookie.
const SessionCookieCredential = "session-cookie"

// Credential is the outcome of a successful login.
type Credential struct {
	Value string

	// Injectable is true when Value can be written into page storage
	Injectable bool

	// Cookies set by the service during login
	Cookies []*http.Cookie

	ExpiresAt *time.Time
}

// LoginStrategy authenticates an account against its service.
type LoginStrategy interface {
	Type() LoginType
	LoginURL(account *Account) (string, error)
	Authenticate(ctx context.Context, account *Account) (*Credential, error)
}
