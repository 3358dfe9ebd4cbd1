package app

import (
	"context"
	"testing"
	"time"

	"inkvault/api/internal/auth"
)

func TestRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		code     string
		target   string
	}{
		{name: "malformed email", email: "not-an-email", password: testPassword, code: CodeValidation, target: "email"},
		{name: "display name", email: "Alice <alice@example.com>", password: testPassword, code: CodeValidation, target: "email"},
		{name: "short password", email: "alice@example.com", password: "short", code: CodeValidation, target: "password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			domainErr := requireDomainCode(t, app.svc.Register(ctx, tt.email, tt.password), tt.code)
			if domainErr.Target != tt.target {
				t.Fatalf("expected target %s, got %s", tt.target, domainErr.Target)
			}
		})
	}

	if err := app.svc.Register(ctx, "alice@example.com", testPassword); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	requireDomainCode(t, app.svc.Register(ctx, " ALICE@example.com ", testPassword), CodeUserExists)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice@example.com")
	ctx := context.Background()

	_, wrongPassword := app.svc.Login(ctx, "alice@example.com", "wrong password")
	_, unknownEmail := app.svc.Login(ctx, "nobody@example.com", testPassword)

	a := requireDomainCode(t, wrongPassword, CodeInvalidCredentials)
	b := requireDomainCode(t, unknownEmail, CodeInvalidCredentials)
	if a.Message != b.Message || a.Status != b.Status {
		t.Fatalf("login failures differ: %+v vs %+v", a, b)
	}
}

func TestSessionLifecycle(t *testing.T) {
	app := newTestApp(t)
	alice := app.signUp(t, "alice@example.com")
	ctx := context.Background()

	issuedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	app.svc.now = func() time.Time { return issuedAt }

	session, err := app.svc.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := auth.CheckFormat(session.Token); err != nil {
		t.Fatalf("token has unexpected shape: %v", err)
	}
	if !session.ExpiresAt.Equal(issuedAt.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}

	stored, err := app.sessions.LookupSession(ctx, auth.HashToken(session.Token))
	if err != nil {
		t.Fatalf("session not stored under token hash: %v", err)
	}
	if stored.PrincipalID != alice {
		t.Fatalf("unexpected principal %q", stored.PrincipalID)
	}

	validated, err := app.svc.ValidateToken(ctx, session.Token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if validated.PrincipalID != alice || validated.Email != "alice@example.com" {
		t.Fatalf("unexpected session %+v", validated)
	}

	if err := app.svc.Logout(ctx, validated); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	_, err = app.svc.ValidateToken(ctx, session.Token)
	requireDomainCode(t, err, CodeUnauthorized)
}

func TestValidateTokenRejects(t *testing.T) {
	app := newTestApp(t)
	app.signUp(t, "alice@example.com")
	ctx := context.Background()

	issuedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	app.svc.now = func() time.Time { return issuedAt }
	session, err := app.svc.Login(ctx, "alice@example.com", testPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	unknown, _ := auth.NewToken()

	tests := []struct {
		name  string
		token string
		now   time.Time
	}{
		{name: "absent", token: "", now: issuedAt},
		{name: "garbage", token: "not-a-token", now: issuedAt},
		{name: "unknown", token: unknown, now: issuedAt},
		{name: "at expiry", token: session.Token, now: issuedAt.Add(time.Hour)},
		{name: "past expiry", token: session.Token, now: issuedAt.Add(2 * time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app.svc.now = func() time.Time { return tt.now }
			_, err := app.svc.ValidateToken(ctx, tt.token)
			requireDomainCode(t, err, CodeUnauthorized)
		})
	}
}
