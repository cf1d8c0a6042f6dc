package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"token_renewer/internal/domain"
)

const (
	formLoginPath      = "/api/dev/user/login"
	formErrorExcerpt   = 100
	formMissingExcerpt = 200
	maxLoginBody       = 1 << 20
)

// FormTokenStrategy logs in with a GET request carrying the credentials as
// query parameters and reads a token from the response body.
type FormTokenStrategy struct {
	client Doer
}

// NewFormTokenStrategy creates the dubbo login strategy.
func NewFormTokenStrategy(client Doer) *FormTokenStrategy {
	return &FormTokenStrategy{client: client}
}

// Type implements domain.LoginStrategy.
func (s *FormTokenStrategy) Type() domain.LoginType {
	return domain.LoginTypeDubbo
}

// LoginURL returns the login endpoint without credentials.
func (s *FormTokenStrategy) LoginURL(account *domain.Account) (string, error) {
	base := account.BaseURL()
	if base == "" {
		return "", domain.ErrInvalidServiceURL
	}
	return base + formLoginPath, nil
}

// Authenticate implements domain.LoginStrategy.
func (s *FormTokenStrategy) Authenticate(ctx context.Context, account *domain.Account) (*domain.Credential, error) {
	endpoint, err := s.LoginURL(account)
	if err != nil {
		return nil, err
	}
	endpoint += "?userName=" + url.QueryEscape(account.UserName) + "&password=" + url.QueryEscape(account.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain, */*")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLoginBody))
	if err != nil {
		return nil, fmt.Errorf("read login response: %w", err)
	}

	if !isSuccess(resp.StatusCode) {
		return nil, &StatusError{Code: resp.StatusCode, Excerpt: previewBody(body, formErrorExcerpt)}
	}

	token := ExtractToken(body)
	if token == "" {
		return nil, fmt.Errorf("%w (HTTP %d): %s", ErrTokenNotFound, resp.StatusCode, previewBody(body, formMissingExcerpt))
	}

	return &domain.Credential{
		Value:      token,
		Injectable: true,
		ExpiresAt:  TokenExpiry(token),
	}, nil
}

// ExtractToken pulls a token out of a login response body. JSON bodies may
// be a bare string, carry a "token" field, or a "data" field holding either
// the token or an object with a "token" field. Anything that is not JSON is
// taken as the token itself.
func ExtractToken(body []byte) string {
	text := strings.TrimSpace(string(body))

	var payload any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return text
	}

	switch v := payload.(type) {
	case string:
		return v
	case map[string]any:
		if token, ok := v["token"].(string); ok && token != "" {
			return token
		}
		switch data := v["data"].(type) {
		case string:
			return data
		case map[string]any:
			if token, ok := data["token"].(string); ok {
				return token
			}
		}
	}
	return ""
}

// TokenExpiry returns the exp claim of a JWT, or nil when token is not a JWT
// or has no expiry. The signature is not verified.
func TokenExpiry(token string) *time.Time {
	if strings.Count(token, ".") != 2 {
		return nil
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time
	return &t
}
