package session

import (
	"context"
	"errors"
	"testing"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/identity"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

type testConfig string

func (t testConfig) BasePath() string { return string(t) }

type countingIdentity struct {
	signIns  int
	signOuts int
	cred     identity.Credential
	err      error
}

func (c *countingIdentity) SignIn(context.Context, string, string) (identity.Credential, error) {
	c.signIns++
	return c.cred, c.err
}

func (c *countingIdentity) SignOut(context.Context) error {
	c.signOuts++
	return nil
}

func newBoundary(t *testing.T, id identity.Service) (*Boundary, store.Persistence, *notice.Recorder) {
	t.Helper()
	p, err := store.Load(testConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	rec := &notice.Recorder{}
	return New(id, p, rec, nil), p, rec
}

func TestSignInValidatesLocally(t *testing.T) {
	tests := map[string]struct {
		email    string
		password string
	}{
		"no at":          {email: "admin.example.com", password: "hunter22"},
		"no dot":         {email: "admin@example", password: "hunter22"},
		"empty":          {email: "", password: "hunter22"},
		"short password": {email: "admin@example.com", password: "12345"},
	}
	for n, tc := range tests {
		t.Run(n, func(t *testing.T) {
			id := &countingIdentity{}
			b, _, rec := newBoundary(t, id)
			_, err := b.SignIn(context.Background(), tc.email, tc.password)
			if !errors.Is(err, apperr.ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
			if id.signIns != 0 {
				t.Fatalf("identity called %d times", id.signIns)
			}
			if _, ok := rec.Last(); !ok {
				t.Fatal("expected a notice")
			}
		})
	}
}

func TestSignInMapsIdentityErrors(t *testing.T) {
	id := &countingIdentity{err: identity.ErrInvalidCredentials}
	b, _, _ := newBoundary(t, id)
	_, err := b.SignIn(context.Background(), "admin@example.com", "hunter22")
	if !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	id.err = errors.New("connection reset")
	_, err = b.SignIn(context.Background(), "admin@example.com", "hunter22")
	if !errors.Is(err, apperr.ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", err)
	}
	if b.State().Authenticated {
		t.Fatal("state must stay signed out")
	}
}

func TestSignInMergesProfile(t *testing.T) {
	ctx := context.Background()
	id := &countingIdentity{cred: identity.Credential{UserID: "u1", Email: "admin@example.com"}}
	b, p, _ := newBoundary(t, id)
	if err := p.SetDocument(ctx, record.CollectionUsers, "u1", map[string]interface{}{
		"name":  "Ada",
		"admin": 1,
	}); err != nil {
		t.Fatalf("seed profile: %v", err)
	}

	user, err := b.SignIn(ctx, "admin@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.UID != "u1" || user.Name != "Ada" || !user.Admin {
		t.Fatalf("unexpected user %+v", user)
	}
	st := b.State()
	if !st.Authenticated || st.User != user {
		t.Fatalf("unexpected state %+v", st)
	}

	authed, err := b.Authorize(ctx)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if uid, ok := store.PrincipalFrom(authed); !ok || uid != "u1" {
		t.Fatalf("expected principal u1, got %q %v", uid, ok)
	}
}

func TestAuthorizeRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	id := &countingIdentity{cred: identity.Credential{UserID: "u2", Email: "clerk@example.com"}}
	b, _, _ := newBoundary(t, id)

	if _, err := b.Authorize(ctx); !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("signed out: expected ErrAuthRequired, got %v", err)
	}

	// No profile document: authenticated with an empty profile.
	user, err := b.SignIn(ctx, "clerk@example.com", "hunter22")
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if user.Admin || user.Name != "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if _, err := b.Authorize(ctx); !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("non admin: expected ErrAuthRequired, got %v", err)
	}
}

func TestSignOutCancelsTracked(t *testing.T) {
	ctx := context.Background()
	id := &countingIdentity{cred: identity.Credential{UserID: "u1", Email: "admin@example.com"}}
	b, _, _ := newBoundary(t, id)
	if _, err := b.SignIn(ctx, "admin@example.com", "hunter22"); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	cancelled := 0
	b.Track(func() { cancelled++ })
	b.Track(func() { cancelled++ })
	release := b.Track(func() { cancelled++ })
	release()
	if got := b.Tracked(); got != 2 {
		t.Fatalf("expected 2 tracked, got %d", got)
	}

	if err := b.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if cancelled != 2 {
		t.Fatalf("expected 2 cancellations, got %d", cancelled)
	}
	if b.State().Authenticated {
		t.Fatal("expected signed out state")
	}
	if id.signOuts != 1 {
		t.Fatalf("expected one identity sign out, got %d", id.signOuts)
	}
}
