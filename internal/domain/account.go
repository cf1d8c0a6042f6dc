package domain

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// AlarmPrefix prefixes the name of every renewal timer.
const AlarmPrefix = "token-renew-"

// DefaultIntervalMinutes is used when an account carries no usable interval.
const DefaultIntervalMinutes = 25

// DefaultKibanaVersion is sent as the kbn-version header when an account has none.
const DefaultKibanaVersion = "7.10.2"

// ErrInvalidServiceURL is returned when an account's admin URL cannot yield an origin.
var ErrInvalidServiceURL = errors.New("invalid service url")

// LoginType selects the authentication strategy of an account.
type LoginType string

const (
	// LoginTypeDubbo authenticates with a GET form login returning a token.
	LoginTypeDubbo LoginType = "dubbo"
	// LoginTypeKibana authenticates with a JSON POST that sets a session cookie.
	LoginTypeKibana LoginType = "kibana"
)

// OrDefault maps the empty tag to LoginTypeDubbo.
func (t LoginType) OrDefault() LoginType {
	if strings.TrimSpace(string(t)) == "" {
		return LoginTypeDubbo
	}
	return t
}

// StatusState is the coarse renewal state shown for an account.
type StatusState string

const (
	StatusIdle     StatusState = "idle"
	StatusActive   StatusState = "active"
	StatusError    StatusState = "error"
	StatusDisabled StatusState = "disabled"
)

// Status is the last recorded renewal status of an account.
type Status struct {
	State     StatusState
	Message   string
	UpdatedAt time.Time
}

// Account is a remote admin console whose session is kept alive.
type Account struct {
	// ID is the unique identifier for the account
	ID string

	// Alias is an optional display name
	Alias string

	// AdminURL is the base URL of the service
	AdminURL string

	// LoginType selects the authentication strategy
	LoginType LoginType

	// KibanaVersion is the client version hint for cookie-session logins
	KibanaVersion string

	UserName string
	Password string

	// Enabled indicates if scheduled renewal is on
	Enabled bool

	// IntervalMinutes is the renewal period
	IntervalMinutes int

	Status Status

	// CurrentToken is the last credential obtained, empty if none
	CurrentToken string

	// TokenExpiresAt is decoded from the credential when it is a JWT
	TokenExpiresAt *time.Time

	// LastRenewedAt is the time of the last successful renewal
	LastRenewedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.TokenExpiresAt != nil {
		t := *a.TokenExpiresAt
		c.TokenExpiresAt = &t
	}
	if a.LastRenewedAt != nil {
		t := *a.LastRenewedAt
		c.LastRenewedAt = &t
	}
	return &c
}

// IsComplete reports whether the account has everything needed to log in.
func (a *Account) IsComplete() bool {
	return strings.TrimSpace(a.AdminURL) != "" && a.UserName != "" && a.Password != ""
}

// Interval returns the renewal period in minutes, falling back to the default.
func (a *Account) Interval() int {
	if a.IntervalMinutes <= 0 {
		return DefaultIntervalMinutes
	}
	return a.IntervalMinutes
}

// BaseURL is the admin URL without trailing slashes.
func (a *Account) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.AdminURL), "/")
}

// Label is the name used to prefix log entries about the account.
func (a *Account) Label() string {
	if a.Alias != "" {
		return a.Alias
	}
	if u, err := url.Parse(a.AdminURL); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}
	if a.AdminURL != "" {
		return a.AdminURL
	}
	return a.ID
}

// Origin returns scheme://host[:port] of the admin URL.
func (a *Account) Origin() (string, error) {
	return Origin(a.AdminURL)
}

// HasInjectableToken reports whether the stored credential can be written into a page.
func (a *Account) HasInjectableToken() bool {
	return a.CurrentToken != "" && a.CurrentToken != SessionCookieCredential
}

// AlarmName returns the timer name for an account id.
func AlarmName(accountID string) string {
	return AlarmPrefix + accountID
}

// Origin returns the browser origin of raw: scheme://host[:port] with the
// scheme and host lowercased and the scheme's default port dropped.
func Origin(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidServiceURL, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidServiceURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == defaultPorts[scheme] {
		port = ""
	}
	if port != "" {
		return scheme + "://" + net.JoinHostPort(host, port), nil
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	return scheme + "://" + host, nil
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
}

// MatchesOrigin reports whether tabURL belongs to origin.
func MatchesOrigin(tabURL, origin string) bool {
	tabOrigin, err := Origin(tabURL)
	if err != nil {
		return false
	}
	return tabOrigin == origin
}

// AccountRepository defines the interface for account data operations
type AccountRepository interface {
	// GetAll returns all accounts in store order
	GetAll() ([]*Account, error)

	// GetAllEnabled returns enabled accounts in store order
	GetAllEnabled() ([]*Account, error)

	// GetByID returns an account by its ID, or nil if it does not exist
	GetByID(id string) (*Account, error)

	// Save creates or updates an account
	Save(account *Account) error

	// ReplaceAll swaps the whole collection, keeping the given order
	ReplaceAll(accounts []*Account) error

	// UpdateStatus writes the status of one account
	UpdateStatus(id string, status Status) error

	// UpdateCredential records a successful renewal
	UpdateCredential(id string, token string, renewedAt time.Time, expiresAt *time.Time) error

	// Delete removes an account
	Delete(id string) error
}
