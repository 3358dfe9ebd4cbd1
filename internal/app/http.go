package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"inkvault/api/internal/auth"
	"inkvault/api/internal/metrics"
	"inkvault/api/internal/response"
	"inkvault/api/internal/store"
)

const maxBodyBytes = 1 << 20

// HTTPConfig carries the HTTP surface settings.
type HTTPConfig struct {
	CORSOrigin   string
	ErrorDocsURL string
	Metrics      *metrics.Metrics
	Logger       zerolog.Logger
}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	writer     *response.Writer
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewHTTPServer(service *Service, cfg HTTPConfig) *HTTPServer {
	corsOrigin := cfg.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		writer:     response.NewWriter(cfg.ErrorDocsURL),
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.withRecovery(s.withGate(http.HandlerFunc(s.handle))))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		s.writer.NoContent(w)
		return
	}

	if r.URL.Path == "/api/health" {
		if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
			s.methodNotAllowed(w, r)
			return
		}
		s.writer.JSON(w, r, http.StatusOK, map[string]any{"ok": true}, nil)
		return
	}

	if r.URL.Path == "/api/ready" {
		if !allowMethod(w, r, http.MethodGet, http.MethodHead) {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleReady(w, r)
		return
	}

	if r.URL.Path == "/metrics" && s.metrics != nil {
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		s.metrics.Handler().ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "v1" {
		s.writeError(w, r, errNotFound)
		return
	}
	parts = parts[2:]

	switch {
	case len(parts) == 2 && parts[0] == "auth" && parts[1] == "register":
		if !allowMethod(w, r, http.MethodPost) {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleRegister(w, r)
	case len(parts) == 2 && parts[0] == "auth" && parts[1] == "login":
		if !allowMethod(w, r, http.MethodPost) {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleLogin(w, r)
	case len(parts) == 2 && parts[0] == "auth" && parts[1] == "logout":
		if !allowMethod(w, r, http.MethodPost) {
			s.methodNotAllowed(w, r)
			return
		}
		s.handleLogout(w, r)
	case len(parts) == 1 && parts[0] == "session":
		if !allowMethod(w, r, http.MethodGet) {
			s.methodNotAllowed(w, r)
			return
		}
		session := sessionFromContext(r.Context())
		s.writer.JSON(w, r, http.StatusOK, sessionView{
			PrincipalID: session.PrincipalID,
			Email:       session.Email,
			ExpiresAt:   session.ExpiresAt,
		}, nil)
	case parts[0] == "notes":
		s.handleNotes(w, r, sessionFromContext(r.Context()), parts[1:])
	default:
		s.writeError(w, r, errNotFound)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	if ok, err := s.service.PingSessions(ctx); ok {
		checks["sessions"] = map[string]any{"status": "ok"}
		if err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["sessions"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
	}

	payload := map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	}
	if statusCode != http.StatusOK {
		s.writer.Error(w, r, statusCode, response.APIError{
			Code:    CodeNotReady,
			Message: "Service dependencies are unavailable",
			Details: []any{payload},
		})
		return
	}
	s.writer.JSON(w, r, statusCode, payload, nil)
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.Register(r.Context(), body.Email, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writer.NoContent(w)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	session, err := s.service.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writer.JSON(w, r, http.StatusOK, loginView{
		Token:       session.Token,
		PrincipalID: session.PrincipalID,
		ExpiresAt:   session.ExpiresAt,
	}, nil)
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Logout(r.Context(), sessionFromContext(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writer.NoContent(w)
}

func (s *HTTPServer) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.writeError(w, r, domainError(http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed"))
}

// writeError maps err to exactly one failure envelope. Internal details are
// logged and never sent to the client.
func (s *HTTPServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, apiErr := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", response.RequestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	s.writer.Error(w, r, status, apiErr)
}

func mapError(err error) (int, response.APIError) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.apiError()
	}
	var conflict *store.ConflictError
	if errors.As(err, &conflict) {
		return http.StatusConflict, versionConflict(noteView(conflict.Current)).apiError()
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, errNotFound.apiError()
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, store.ErrSessionNotFound) {
		return http.StatusUnauthorized, errUnauthorized.apiError()
	}
	return http.StatusInternalServerError, response.APIError{Code: CodeInternal, Message: "Internal server error"}
}

// allowMethod reports whether r uses one of methods and sets Allow otherwise.
func allowMethod(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, method := range methods {
		if r.Method == method {
			return true
		}
	}
	w.Header().Set("Allow", strings.Join(methods, ", "))
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) error {
	if r.Body == nil {
		return invalidBody("Request body is required")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return domainError(http.StatusRequestEntityTooLarge, CodeInvalidBody, "Request body is too large")
		case errors.Is(err, io.EOF):
			return invalidBody("Request body is required")
		default:
			return invalidBody("Invalid JSON body")
		}
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
