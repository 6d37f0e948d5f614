// Package httpapi serves the provider webhook and the operator API.
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driving"
	"github.com/custodia-labs/calsync/internal/logger"
)

// Config configures the HTTP adapter.
type Config struct {
	// AdminToken, when set, is required as a bearer token on /v1 routes.
	AdminToken string

	// MaxBodyBytes caps request bodies. Defaults to 1 MiB.
	MaxBodyBytes int64
}

// Services are the driving ports the API calls into.
type Services struct {
	Sync     driving.SyncOrchestrator
	FullSync driving.FullSyncRunner
	Channels driving.ChannelService
	Status   driving.StatusService
}

// Server routes webhook deliveries and operator requests.
type Server struct {
	svc Services
	cfg Config
	mux *http.ServeMux
}

// NewServer creates the HTTP handler.
func NewServer(svc Services, cfg Config) *Server {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	s := &Server{svc: svc, cfg: cfg, mux: http.NewServeMux()}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /webhooks/google/", s.handleWebhook)

	s.mux.HandleFunc("POST /v1/users/{userID}/channels", s.admin(s.handleRegisterChannel))
	s.mux.HandleFunc("GET /v1/users/{userID}/channels", s.admin(s.handleListChannels))
	s.mux.HandleFunc("DELETE /v1/users/{userID}/channels/{channelID}", s.admin(s.handleUnregisterChannel))
	s.mux.HandleFunc("POST /v1/users/{userID}/full-sync", s.admin(s.handleFullSync))
	s.mux.HandleFunc("GET /v1/users/{userID}/status", s.admin(s.handleStatus))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// NewHTTPServer wraps handler in an http.Server with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

// admin enforces the bearer token on operator routes.
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(s.cfg.AdminToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeOptionalJSON decodes the body into dst. An empty body is allowed.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds configured limit")
		return false
	}
	writeError(w, http.StatusBadRequest, "bad_request", "invalid json body")
	return false
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"code":    code,
		"message": message,
	})
}

// writeServiceError maps domain errors to HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrChannelNotOwned):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeError(w, http.StatusConflict, "in_progress", err.Error())
	case domain.IsAuthError(err):
		writeError(w, http.StatusConflict, "reauthorization_required", err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusServiceUnavailable, "rate_limited", err.Error())
	default:
		logger.Error("request failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
