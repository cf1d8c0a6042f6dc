package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"token_renewer/internal/domain"
)

var (
	// ErrUnexpectedStatus is matched by every StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrTokenNotFound means a 2xx login response carried no usable token.
	ErrTokenNotFound = errors.New("no token found in response")
	// ErrUnknownLoginType is returned by Registry.Resolve.
	ErrUnknownLoginType = errors.New("unknown login type")
)

// Doer sends HTTP requests. *infrastructure.HTTPClient and *http.Client satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-2xx login response.
type StatusError struct {
	Code    int
	Excerpt string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
	if e.Excerpt != "" {
		msg += ": " + e.Excerpt
	}
	return msg
}

// Is lets errors.Is match ErrUnexpectedStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnexpectedStatus
}

// Registry maps login types to strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies map[domain.LoginType]domain.LoginStrategy
}

// NewRegistry registers the given strategies.
func NewRegistry(strategies ...domain.LoginStrategy) *Registry {
	r := &Registry{strategies: make(map[domain.LoginType]domain.LoginStrategy)}
	for _, s := range strategies {
		r.Register(s)
	}
	return r
}

// Register adds or replaces the strategy for its type.
func (r *Registry) Register(s domain.LoginStrategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[s.Type()] = s
}

// Resolve returns the strategy for t. The empty type resolves to dubbo.
func (r *Registry) Resolve(t domain.LoginType) (domain.LoginStrategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.strategies[t.OrDefault()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLoginType, t)
	}
	return s, nil
}

// previewBody trims body to at most limit characters for error messages.
func previewBody(body []byte, limit int) string {
	bodyStr := strings.TrimSpace(string(body))
	if runes := []rune(bodyStr); len(runes) > limit {
		bodyStr = string(runes[:limit]) + "..."
	}
	return bodyStr
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}
