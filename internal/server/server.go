package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"researchreg/internal/app"
	"researchreg/internal/ratelimit"
	"researchreg/internal/util"
	"researchreg/pkg/domain"
)

const sessionCookieName = "researchreg_session"

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                            *app.App
	RedisAddr                      string
	RedisPassword                  string
	RegistrationRateLimitPerMinute int
	LoginRateLimitPerMinute        int
	MaxUploadBytes                 int64
	CORSOrigin                     string
	SessionTTL                     time.Duration
	SecureCookies                  bool
	TrustedProxies                 *util.TrustedProxies
}

// Server exposes the HTTP endpoints for project and IPR registration.
type Server struct {
	app                 *app.App
	mux                 *http.ServeMux
	maxUploadBytes      int64
	corsOrigin          string
	sessionTTL          time.Duration
	secureCookies       bool
	trustedProxies      *util.TrustedProxies
	registrationLimiter *ratelimit.FixedWindowLimiter
	loginLimiter        *ratelimit.FixedWindowLimiter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	registrationLimit := cfg.RegistrationRateLimitPerMinute
	if registrationLimit <= 0 {
		registrationLimit = 10
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	rateWindow := time.Minute
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "researchreg:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, rateWindow)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	registrationLimiter, err := newLimiter("registration", registrationLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	sessionTTL := cfg.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	s := &Server{
		app:                 cfg.App,
		mux:                 http.NewServeMux(),
		maxUploadBytes:      normalizeMaxBytes(cfg.MaxUploadBytes),
		corsOrigin:          cfg.CORSOrigin,
		sessionTTL:          sessionTTL,
		secureCookies:       cfg.SecureCookies,
		trustedProxies:      cfg.TrustedProxies,
		registrationLimiter: registrationLimiter,
		loginLimiter:        loginLimiter,
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(
		util.WithCORS(s.corsOrigin,
			util.WithRequestID(
				util.WithRequestLog("api", s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)

	// research projects
	s.mux.HandleFunc("/research/registration", s.handleRegistration)
	s.mux.HandleFunc("/research/login", s.handleLogin)
	s.mux.HandleFunc("/research/logout", s.handleLogout)
	s.mux.Handle("/research/profile", s.authenticated(s.handleProfile))
	s.mux.HandleFunc("/research/update", s.handleUpdate)
	s.mux.HandleFunc("/research/search", s.handleSearch)
	s.mux.HandleFunc("/research/latest", s.handleLatest)
	s.mux.HandleFunc("/research/projectDetail/", s.handleProjectDetail)
	s.mux.HandleFunc("/open/file/", s.handleOpenFile)

	// ipr
	s.mux.HandleFunc("/ipr/addIPR", s.handleAddIPR)
	s.mux.HandleFunc("/ipr/getIPRs", s.handleGetIPRs)
	s.mux.HandleFunc("/ipr/search", s.handleSearchIPRs)
	s.mux.HandleFunc("/ipr/open/file/", s.handleOpenIPRFile)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.Project)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		project, ok := s.authorize(r)
		if !ok {
			s.audit(r, "session.authorize", "fail")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r, project)
	})
}

func (s *Server) authorize(r *http.Request) (domain.Project, bool) {
	token, ok := sessionToken(r)
	if !ok {
		return domain.Project{}, false
	}
	return s.app.ProjectFromToken(token)
}

// sessionToken extracts the session token from the cookie, or from a
// bearer header for non-browser clients.
func sessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(sessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token != "" {
			return token, true
		}
	}
	return "", false
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, event string) bool {
	if limiter == nil {
		return false
	}
	if limiter.Allow(util.ClientIP(r, s.trustedProxies)) {
		return false
	}
	s.audit(r, event, "rate_limited")
	writeError(w, http.StatusTooManyRequests, "too many requests")
	return true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trustedProxies),
	}
	logAttrs = append(logAttrs, attrs...)
	if outcome == "success" {
		slog.Info("security_event", logAttrs...)
		return
	}
	slog.Warn("security_event", logAttrs...)
}

// errorStatus maps application errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case isAny(err, app.ErrValidation, app.ErrDuplicateCredentials, app.ErrDuplicateApplicationNumber):
		return http.StatusBadRequest
	case isAny(err, app.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case isAny(err, app.ErrNotFound):
		return http.StatusNotFound
	case isAny(err, app.ErrFileUploadFailed, app.ErrFileDeletionFailed, app.ErrPartialWriteInconsistency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func isAny(err error, targets ...error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeAppError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 50 * 1024 * 1024
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
