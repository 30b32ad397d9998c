package identity

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"tableflip.dev/shopdesk/pkg/store"
)

type testConfig string

func (t testConfig) BasePath() string { return string(t) }

func newLocal(t *testing.T) *Local {
	t.Helper()
	p, err := store.Load(testConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	l := NewLocal(p)
	l.Cost = bcrypt.MinCost
	return l
}

func TestRegisterAndSignIn(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)

	uid, err := l.Register(ctx, "Admin@Example.com ", "hunter22")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := l.Register(ctx, "admin@example.com", "other-pass"); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	cred, err := l.SignIn(ctx, "admin@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if cred.UserID != uid || cred.Email != "admin@example.com" {
		t.Fatalf("unexpected credential %+v", cred)
	}
	if _, ok := l.Current(); !ok {
		t.Fatal("expected current session")
	}

	if err := l.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if _, ok := l.Current(); ok {
		t.Fatal("expected session cleared")
	}
}

func TestSignInRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	l := newLocal(t)
	if _, err := l.Register(ctx, "admin@example.com", "hunter22"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := l.SignIn(ctx, "admin@example.com", "wrong-pass"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := l.SignIn(ctx, "nobody@example.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}
