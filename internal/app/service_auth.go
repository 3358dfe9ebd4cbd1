package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkvault/api/internal/auth"
	"inkvault/api/internal/authpw"
	"inkvault/api/internal/store"
)

// Session is an authenticated principal. Token is only set right after Login.
type Session struct {
	Token       string
	TokenHash   string
	PrincipalID string
	Email       string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

func (s *Service) Register(ctx context.Context, email, password string) error {
	_, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{Email: email, Password: password})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authpw.ErrInvalidEmail):
		return validationError("email", "Email address is not valid")
	case errors.Is(err, authpw.ErrInvalidPassword):
		return validationError("password", fmt.Sprintf("Password must be %d to %d bytes", authpw.MinPasswordLength, authpw.MaxPasswordLength))
	case errors.Is(err, authpw.ErrUserExists):
		return errUserExists
	default:
		return err
	}
}

// Login checks credentials and issues a new opaque session token. Unknown
// emails and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if errors.Is(err, authpw.ErrInvalidCredentials) {
		return Session{}, errInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}

	token, err := auth.NewToken()
	if err != nil {
		return Session{}, err
	}
	now := s.now().UTC()
	record := store.Session{
		TokenHash:   auth.HashToken(token),
		PrincipalID: user.ID,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.sessionTTL),
	}
	if err := s.sessions.SaveSession(ctx, record); err != nil {
		return Session{}, fmt.Errorf("save session: %w", err)
	}

	s.logger.Info().Str("principal_id", user.ID).Msg("session issued")
	return Session{
		Token:       token,
		TokenHash:   record.TokenHash,
		PrincipalID: user.ID,
		Email:       user.Email,
		IssuedAt:    record.IssuedAt,
		ExpiresAt:   record.ExpiresAt,
	}, nil
}

// ValidateToken resolves a bearer token to its session. Absent, malformed,
// unknown, revoked and expired tokens all fail with UNAUTHORIZED.
func (s *Service) ValidateToken(ctx context.Context, token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" || auth.CheckFormat(token) != nil {
		return Session{}, errUnauthorized
	}

	hash := auth.HashToken(token)
	record, err := s.sessions.LookupSession(ctx, hash)
	if errors.Is(err, store.ErrSessionNotFound) {
		return Session{}, errUnauthorized
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup session: %w", err)
	}
	if err := auth.CheckExpiry(record.ExpiresAt, s.now()); err != nil {
		_ = s.sessions.RevokeSession(ctx, hash)
		return Session{}, errUnauthorized
	}

	user, err := s.store.GetUserByID(ctx, record.PrincipalID)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, errUnauthorized
	}
	if err != nil {
		return Session{}, fmt.Errorf("lookup principal: %w", err)
	}

	return Session{
		TokenHash:   hash,
		PrincipalID: record.PrincipalID,
		Email:       user.Email,
		IssuedAt:    record.IssuedAt,
		ExpiresAt:   record.ExpiresAt,
	}, nil
}

// Logout revokes the session so its token stops validating immediately.
func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.TokenHash == "" {
		return errUnauthorized
	}
	if err := s.sessions.RevokeSession(ctx, session.TokenHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
