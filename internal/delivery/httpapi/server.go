package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"token_renewer/config"
	"token_renewer/internal/domain"
	"token_renewer/internal/logger"
	"token_renewer/internal/usecase"
)

// Server exposes the control surface of the daemon as a JSON API.
type Server struct {
	cfg     *config.Config
	control *usecase.ControlService
	limiter *clientLimiter
	handler http.Handler
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, control *usecase.ControlService) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:     cfg,
		control: control,
		limiter: newClientLimiter(cfg.APIRateLimit, cfg.APIRateBurst),
	}

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/messages", s.handleMessage)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/accounts/", s.handleAccountActions)
	mux.HandleFunc("/api/renew-all", s.handleRenewAll)
	mux.HandleFunc("/api/alarms", s.handleAlarms)
	mux.HandleFunc("/api/alarms/setup", s.handleSetupAlarms)
	mux.HandleFunc("/api/data", s.handleData)
	mux.HandleFunc("/api/logs", s.handleLogs)

	s.handler = loggingMiddleware(s.limiter.middleware(mux))
	s.server = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests in a separate goroutine.
func (s *Server) Start() error {
	if s.cfg.ServerPort == "" {
		return fmt.Errorf("server port is not configured")
	}

	go s.limiter.sweep()
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Printf("http api server stopped with error: %v", err)
		}
	}()
	logger.Info().Printf("HTTP API server listening on %s", s.server.Addr)
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.stop()
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMessage dispatches the action-style requests of the extension UI.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var msg messageRequest
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	switch msg.Action {
	case "renewAccount":
		if msg.AccountID == "" {
			respondError(w, http.StatusBadRequest, "accountId is required")
			return
		}
		s.renewAccount(ctx, w, msg.AccountID)
	case "renewAll":
		s.renewAll(ctx, w)
	case "saveAccounts":
		var payload []accountPayload
		if !decodeRaw(w, msg.Accounts, &payload) {
			return
		}
		s.saveAccounts(ctx, w, payload)
	case "deleteAccount":
		if msg.AccountID == "" {
			respondError(w, http.StatusBadRequest, "accountId is required")
			return
		}
		s.deleteAccount(w, msg.AccountID)
	case "setupAlarms":
		s.setupAlarms(ctx, w)
	case "getData":
		s.getData(w)
	case "clearLogs":
		s.clearLogs(w)
	case "createAccount":
		var payload usecase.AccountConfig
		if !decodeRaw(w, msg.Account, &payload) {
			return
		}
		s.createAccount(w, payload)
	case "updateAccount":
		var payload accountPatchPayload
		if !decodeRaw(w, msg.Account, &payload) {
			return
		}
		s.updateAccount(w, msg.AccountID, payload)
	case "exportAccounts":
		s.exportAccounts(w)
	case "importAccounts":
		var payload []usecase.AccountConfig
		if !decodeRaw(w, msg.Accounts, &payload) {
			return
		}
		s.importAccounts(ctx, w, payload)
	default:
		respondError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", msg.Action))
	}
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listAccounts(w)
	case http.MethodPost:
		var payload usecase.AccountConfig
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.createAccount(w, payload)
	case http.MethodPut:
		var payload []accountPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		s.saveAccounts(r.Context(), w, payload)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleAccountActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/accounts/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch id {
		case "export":
			if r.Method != http.MethodGet {
				methodNotAllowed(w)
				return
			}
			s.exportAccounts(w)
			return
		case "import":
			if r.Method != http.MethodPost {
				methodNotAllowed(w)
				return
			}
			var payload []usecase.AccountConfig
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			s.importAccounts(r.Context(), w, payload)
			return
		}

		switch r.Method {
		case http.MethodGet:
			s.getAccount(w, id)
		case http.MethodPatch:
			var payload accountPatchPayload
			if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
				respondError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			s.updateAccount(w, id, payload)
		case http.MethodDelete:
			s.deleteAccount(w, id)
		default:
			methodNotAllowed(w)
		}
		return
	}

	if len(parts) == 2 && parts[1] == "renew" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}
		s.renewAccount(r.Context(), w, id)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleRenewAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.renewAll(r.Context(), w)
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	alarms := s.control.Alarms()
	resp := make([]alarmResponse, 0, len(alarms))
	for _, a := range alarms {
		resp = append(resp, alarmResponse{
			Name:          a.Name,
			AccountID:     a.AccountID,
			PeriodMinutes: int(a.Period / time.Minute),
			Next:          nonZeroTime(a.Next),
		})
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetupAlarms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	s.setupAlarms(r.Context(), w)
}

func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	s.getData(w)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	s.clearLogs(w)
}

func (s *Server) renewAccount(ctx context.Context, w http.ResponseWriter, id string) {
	// work started for a request outlives a dropped client
	result := s.control.RenewAccount(context.WithoutCancel(ctx), id)
	respondJSON(w, http.StatusOK, toRenewResponse(result))
}

func (s *Server) renewAll(ctx context.Context, w http.ResponseWriter) {
	results, err := s.control.RenewAll(context.WithoutCancel(ctx))
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	resp := make([]renewResponse, 0, len(results))
	for _, result := range results {
		resp = append(resp, toRenewResponse(result))
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "results": resp})
}

func (s *Server) saveAccounts(ctx context.Context, w http.ResponseWriter, payload []accountPayload) {
	accounts := make([]*domain.Account, 0, len(payload))
	for _, p := range payload {
		accounts = append(accounts, p.toDomain())
	}
	if err := s.control.SaveAccounts(context.WithoutCancel(ctx), accounts); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondSuccess(w)
}

func (s *Server) deleteAccount(w http.ResponseWriter, id string) {
	if err := s.control.DeleteAccount(id); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondSuccess(w)
}

func (s *Server) setupAlarms(ctx context.Context, w http.ResponseWriter) {
	if err := s.control.SetupAlarms(context.WithoutCancel(ctx)); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondSuccess(w)
}

func (s *Server) getData(w http.ResponseWriter) {
	snap, err := s.control.GetData()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	accounts := make([]*accountResponse, 0, len(snap.Accounts))
	for _, account := range snap.Accounts {
		accounts = append(accounts, toAccountResponse(account))
	}
	logs := make([]logEntryResponse, 0, len(snap.Logs))
	for _, entry := range snap.Logs {
		logs = append(logs, logEntryResponse{Time: entry.Time, Message: entry.Message, Type: string(entry.Severity)})
	}
	respondJSON(w, http.StatusOK, map[string]any{"accounts": accounts, "logs": logs})
}

func (s *Server) clearLogs(w http.ResponseWriter) {
	if err := s.control.ClearLogs(); err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondSuccess(w)
}

func (s *Server) listAccounts(w http.ResponseWriter) {
	snap, err := s.control.GetData()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}

	resp := make([]*accountResponse, 0, len(snap.Accounts))
	for _, account := range snap.Accounts {
		resp = append(resp, toAccountResponse(account))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) getAccount(w http.ResponseWriter, id string) {
	account, err := s.control.GetAccount(id)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) createAccount(w http.ResponseWriter, payload usecase.AccountConfig) {
	account, err := s.control.CreateAccount(payload)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, toAccountResponse(account))
}

func (s *Server) updateAccount(w http.ResponseWriter, id string, payload accountPatchPayload) {
	if id == "" {
		respondError(w, http.StatusBadRequest, "accountId is required")
		return
	}
	account, err := s.control.UpdateAccount(id, payload.toPatch())
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) exportAccounts(w http.ResponseWriter) {
	configs, err := s.control.ExportAccounts()
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) importAccounts(ctx context.Context, w http.ResponseWriter, payload []usecase.AccountConfig) {
	added, err := s.control.ImportAccounts(context.WithoutCancel(ctx), payload)
	if err != nil {
		respondError(w, statusFor(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"success": true, "added": added})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrAccountNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func decodeRaw(w http.ResponseWriter, raw json.RawMessage, v any) bool {
	if len(raw) == 0 {
		respondError(w, http.StatusBadRequest, "missing payload")
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return false
	}
	return true
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "error": message})
}

func respondSuccess(w http.ResponseWriter) {
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info().Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
