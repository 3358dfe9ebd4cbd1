package app

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"inkvault/api/internal/auth"
	"inkvault/api/internal/response"
)

type sessionKey struct{}

func withSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

func sessionFromContext(ctx context.Context) Session {
	session, _ := ctx.Value(sessionKey{}).(Session)
	return session
}

// withMiddleware is the outermost layer. It assigns the request id before
// anything else runs, so every envelope carries one.
func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := response.NewRequestID()
		r = r.WithContext(response.WithRequestID(r.Context(), requestID))

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		elapsed := time.Since(started)
		s.metrics.ObserveRequest(r.Method, routeTemplate(r.URL.Path), writer.status, elapsed)

		event := s.logger.Info()
		if writer.status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		if clientID := r.Header.Get("X-Request-ID"); clientID != "" {
			event = event.Str("client_request_id", clientID)
		}
		event.
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", elapsed.Milliseconds()).
			Msg("request")
	})
}

// withRecovery turns a panic into an INTERNAL_ERROR envelope when nothing has
// been written yet.
func (s *HTTPServer) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}
			s.logger.Error().
				Str("request_id", response.RequestID(r.Context())).
				Str("panic", fmt.Sprint(recovered)).
				Str("stack", string(debug.Stack())).
				Msg("handler panic")
			if recorder, ok := w.(*statusRecorder); ok && recorder.wroteHeader {
				return
			}
			s.writer.Error(w, r, http.StatusInternalServerError, response.APIError{
				Code:    CodeInternal,
				Message: "Internal server error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// withGate enforces the route policy before any handler runs. Protected
// routes need a valid bearer token; auth-only routes send signed-in callers
// back to the notes list. Stale tokens on auth-only routes are ignored so
// the caller can sign in again.
func (s *HTTPServer) withGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		switch auth.Classify(r.URL.Path) {
		case auth.Protected:
			session, err := s.service.ValidateToken(r.Context(), bearerToken(r))
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			r = r.WithContext(withSession(r.Context(), session))
		case auth.AuthOnly:
			token := bearerToken(r)
			if token == "" {
				break
			}
			if _, err := s.service.ValidateToken(r.Context(), token); err == nil {
				s.writer.Redirect(w, r, auth.HomePath, response.APIError{
					Code:    CodeAlreadyAuthenticated,
					Message: "Already signed in",
				})
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Expose-Headers", "X-Request-ID, Location")
	header.Set("Cache-Control", "no-store")
}

// routeTemplate collapses ids out of a path so metric labels stay bounded.
func routeTemplate(path string) string {
	parts := splitPath(path)
	switch {
	case len(parts) == 0:
		return "other"
	case len(parts) == 2 && parts[0] == "api" && (parts[1] == "health" || parts[1] == "ready"):
		return "/api/" + parts[1]
	case len(parts) == 1 && parts[0] == "metrics":
		return "/metrics"
	case len(parts) < 3 || parts[0] != "api" || parts[1] != "v1":
		return "other"
	}

	rest := parts[2:]
	switch {
	case len(rest) == 1 && (rest[0] == "session" || rest[0] == "notes"):
		return "/api/v1/" + rest[0]
	case len(rest) == 2 && rest[0] == "auth" && (rest[1] == "login" || rest[1] == "register" || rest[1] == "logout"):
		return "/api/v1/auth/" + rest[1]
	case rest[0] != "notes":
		return "other"
	case len(rest) == 2 && rest[1] == "search":
		return "/api/v1/notes/search"
	case len(rest) == 2:
		return "/api/v1/notes/{id}"
	case len(rest) == 3 && (rest[2] == "versions" || rest[2] == "export"):
		return "/api/v1/notes/{id}/" + rest[2]
	case len(rest) == 4 && rest[2] == "versions":
		return "/api/v1/notes/{id}/versions/{hash}"
	}
	return "other"
}
