package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"token_renewer/internal/domain"
)

const (
	cookieLoginPath     = "/internal/security/login"
	cookieErrorExcerpt  = 100
	cookieLoginNextPath = "/login?next=%2Fapp%2Fdev_tools"
)

type cookieLoginRequest struct {
	ProviderType string            `json:"providerType"`
	ProviderName string            `json:"providerName"`
	CurrentURL   string            `json:"currentURL"`
	Params       cookieLoginParams `json:"params"`
}

type cookieLoginParams struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// CookieSessionStrategy logs in with a JSON POST; the service keeps the
// session in a cookie, so no token is returned.
type CookieSessionStrategy struct {
	client         Doer
	defaultVersion string
}

// NewCookieSessionStrategy creates the kibana login strategy. defaultVersion
// is sent as kbn-version for accounts without one.
func NewCookieSessionStrategy(client Doer, defaultVersion string) *CookieSessionStrategy {
	if defaultVersion == "" {
		defaultVersion = domain.DefaultKibanaVersion
	}
	return &CookieSessionStrategy{client: client, defaultVersion: defaultVersion}
}

// Type implements domain.LoginStrategy.
func (s *CookieSessionStrategy) Type() domain.LoginType {
	return domain.LoginTypeKibana
}

// LoginURL implements domain.LoginStrategy.
func (s *CookieSessionStrategy) LoginURL(account *domain.Account) (string, error) {
	base := account.BaseURL()
	if base == "" {
		return "", domain.ErrInvalidServiceURL
	}
	return base + cookieLoginPath, nil
}

// Authenticate implements domain.LoginStrategy.
func (s *CookieSessionStrategy) Authenticate(ctx context.Context, account *domain.Account) (*domain.Credential, error) {
	endpoint, err := s.LoginURL(account)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(cookieLoginRequest{
		ProviderType: "basic",
		ProviderName: "basic",
		CurrentURL:   account.BaseURL() + cookieLoginNextPath,
		Params: cookieLoginParams{
			Username: account.UserName,
			Password: account.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	version := account.KibanaVersion
	if version == "" {
		version = s.defaultVersion
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("kbn-version", version)
	req.Header.Set("Accept", "*/*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
		return nil, &StatusError{Code: resp.StatusCode, Excerpt: previewBody(body, cookieErrorExcerpt)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return &domain.Credential{
		Value:      domain.SessionCookieCredential,
		Injectable: false,
		Cookies:    resp.Cookies(),
	}, nil
}
