package httpapi

import (
	"encoding/json"
	"time"

	"token_renewer/internal/domain"
	"token_renewer/internal/usecase"
)

type messageRequest struct {
	Action    string          `json:"action"`
	AccountID string          `json:"accountId"`
	Account   json.RawMessage `json:"account"`
	Accounts  json.RawMessage `json:"accounts"`
}

type statusPayload struct {
	State     string    `json:"state"`
	Message   string    `json:"message"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// accountPayload is an account as sent by a client saving the whole list.
// Runtime fields are optional and kept from the store when absent.
type accountPayload struct {
	ID              string         `json:"id"`
	LoginType       string         `json:"loginType"`
	Alias           string         `json:"alias"`
	AdminURL        string         `json:"adminUrl"`
	KibanaVersion   string         `json:"kbnVersion"`
	UserName        string         `json:"userName"`
	Password        string         `json:"password"`
	IntervalMinutes int            `json:"intervalMinutes"`
	Enabled         bool           `json:"enabled"`
	Status          *statusPayload `json:"status,omitempty"`
	CurrentToken    string         `json:"currentToken,omitempty"`
	TokenExpiresAt  *time.Time     `json:"tokenExpiresAt,omitempty"`
	LastRenewTime   *time.Time     `json:"lastRenewTime,omitempty"`
}

func (p accountPayload) toDomain() *domain.Account {
	account := &domain.Account{
		ID:              p.ID,
		Alias:           p.Alias,
		AdminURL:        p.AdminURL,
		LoginType:       domain.LoginType(p.LoginType),
		KibanaVersion:   p.KibanaVersion,
		UserName:        p.UserName,
		Password:        p.Password,
		Enabled:         p.Enabled,
		IntervalMinutes: p.IntervalMinutes,
		CurrentToken:    p.CurrentToken,
		TokenExpiresAt:  p.TokenExpiresAt,
		LastRenewedAt:   p.LastRenewTime,
	}
	if p.Status != nil {
		account.Status = domain.Status{
			State:     domain.StatusState(p.Status.State),
			Message:   p.Status.Message,
			UpdatedAt: p.Status.UpdatedAt,
		}
	}
	return account
}

type accountPatchPayload struct {
	LoginType       *string `json:"loginType"`
	Alias           *string `json:"alias"`
	AdminURL        *string `json:"adminUrl"`
	KibanaVersion   *string `json:"kbnVersion"`
	UserName        *string `json:"userName"`
	Password        *string `json:"password"`
	IntervalMinutes *int    `json:"intervalMinutes"`
	Enabled         *bool   `json:"enabled"`
}

func (p accountPatchPayload) toPatch() usecase.AccountPatch {
	return usecase.AccountPatch{
		LoginType:       p.LoginType,
		Alias:           p.Alias,
		AdminURL:        p.AdminURL,
		KibanaVersion:   p.KibanaVersion,
		UserName:        p.UserName,
		Password:        p.Password,
		IntervalMinutes: p.IntervalMinutes,
		Enabled:         p.Enabled,
	}
}

type accountResponse struct {
	ID              string        `json:"id"`
	LoginType       string        `json:"loginType"`
	Alias           string        `json:"alias"`
	AdminURL        string        `json:"adminUrl"`
	KibanaVersion   string        `json:"kbnVersion"`
	UserName        string        `json:"userName"`
	Password        string        `json:"password"`
	IntervalMinutes int           `json:"intervalMinutes"`
	Enabled         bool          `json:"enabled"`
	Status          statusPayload `json:"status"`
	CurrentToken    *string       `json:"currentToken"`
	TokenExpiresAt  *time.Time    `json:"tokenExpiresAt"`
	LastRenewTime   *time.Time    `json:"lastRenewTime"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

func toAccountResponse(account *domain.Account) *accountResponse {
	resp := &accountResponse{
		ID:              account.ID,
		LoginType:       string(account.LoginType.OrDefault()),
		Alias:           account.Alias,
		AdminURL:        account.AdminURL,
		KibanaVersion:   account.KibanaVersion,
		UserName:        account.UserName,
		Password:        account.Password,
		IntervalMinutes: account.Interval(),
		Enabled:         account.Enabled,
		Status: statusPayload{
			State:     string(account.Status.State),
			Message:   account.Status.Message,
			UpdatedAt: account.Status.UpdatedAt,
		},
		TokenExpiresAt: account.TokenExpiresAt,
		LastRenewTime:  account.LastRenewedAt,
		CreatedAt:      account.CreatedAt,
		UpdatedAt:      account.UpdatedAt,
	}
	if account.CurrentToken != "" {
		token := account.CurrentToken
		resp.CurrentToken = &token
	}
	return resp
}

type logEntryResponse struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
	Type    string    `json:"type"`
}

type renewResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

func toRenewResponse(result usecase.Result) renewResponse {
	return renewResponse{
		ID:      result.AccountID,
		Success: result.Success,
		Token:   result.Token,
		Error:   result.Error,
	}
}

type alarmResponse struct {
	Name          string     `json:"name"`
	AccountID     string     `json:"accountId"`
	PeriodMinutes int        `json:"periodMinutes"`
	Next          *time.Time `json:"next,omitempty"`
}

func nonZeroTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
