// Package authpw provides email/password registration and sign-in.
package authpw

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"inkvault/api/internal/store"
	"inkvault/api/internal/util"
)

const (
	MinPasswordLength = 8
	// bcrypt ignores input past 72 bytes, so longer passwords are refused
	// rather than silently truncated.
	MaxPasswordLength = 72
)

var (
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrInvalidPassword    = fmt.Errorf("password must be %d to %d bytes", MinPasswordLength, MaxPasswordLength)
	ErrUserExists         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// Service provides email/password authentication
type Service struct {
	store UserStore
	cost  int
	now   func() time.Time

	dummyOnce sync.Once
	dummyHash []byte
}

// UserStore defines the storage interface for auth
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	CreateUser(ctx context.Context, user store.User) error
}

// NewService creates a new auth service. A cost outside bcrypt's range falls
// back to bcrypt.DefaultCost.
func NewService(userStore UserStore, cost int) *Service {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: userStore, cost: cost, now: time.Now}
}

// NormalizeEmail trims and lower-cases an address and rejects anything that is
// not a bare RFC 5322 address.
func NormalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", ErrInvalidEmail
	}
	parsed, err := mail.ParseAddress(email)
	if err != nil || parsed.Name != "" || parsed.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength || len(password) > MaxPasswordLength {
		return ErrInvalidPassword
	}
	return nil
}

// SignUpRequest contains sign-up parameters
type SignUpRequest struct {
	Email    string
	Password string
}

// SignUp creates a new user account
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (store.User, error) {
	email, err := NormalizeEmail(req.Email)
	if err != nil {
		return store.User{}, err
	}
	if err := validatePassword(req.Password); err != nil {
		return store.User{}, err
	}

	_, err = s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return store.User{}, ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return store.User{}, fmt.Errorf("hash password: %w", err)
	}

	user := store.User{
		ID:           util.NewID("usr"),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return store.User{}, ErrUserExists
		}
		return store.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// SignInRequest contains sign-in parameters
type SignInRequest struct {
	Email    string
	Password string
}

// SignIn authenticates a user. Unknown addresses and wrong passwords return
// the same error after the same amount of bcrypt work.
func (s *Service) SignIn(ctx context.Context, req SignInRequest) (store.User, error) {
	email, emailErr := NormalizeEmail(req.Email)
	if emailErr != nil || req.Password == "" {
		s.burnCompare(req.Password)
		return store.User{}, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		s.burnCompare(req.Password)
		return store.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return store.User{}, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return store.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) burnCompare(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("inkvault-timing-equaliser"), s.cost)
	})
	_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
}
