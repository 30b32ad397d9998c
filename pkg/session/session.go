// Package session holds the single sign-in state of the console and gates
// every live subscription on it.
package session

import (
	"context"
	"errors"
	"regexp"
	"sync"

	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/identity"
	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

// MinPasswordLength is enforced locally before any backend call.
const MinPasswordLength = 6

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// User merges the identity credential with the profile document.
type User struct {
	UID      string
	Email    string
	Name     string
	PhotoURL string
	Admin    bool
}

// State is the pair exposed to views.
type State struct {
	Authenticated bool
	User          User
}

// Boundary owns sign in, sign out and the set of live subscriptions that
// must stop when the session ends.
type Boundary struct {
	Identity identity.Service
	Profiles store.Documents
	Notifier notice.Notifier
	Log      *zap.Logger

	mu      sync.Mutex
	state   State
	next    uint64
	tracked map[uint64]func()
}

// New returns a signed out Boundary.
func New(id identity.Service, profiles store.Documents, n notice.Notifier, log *zap.Logger) *Boundary {
	return &Boundary{
		Identity: id,
		Profiles: profiles,
		Notifier: n,
		Log:      log,
	}
}

// Validate runs the local credential checks.
func Validate(email, password string) error {
	if !emailPattern.MatchString(email) {
		return apperr.New("sign in", apperr.ErrInvalidInput, "Please enter a valid email address.")
	}
	if len(password) < MinPasswordLength {
		return apperr.New("sign in", apperr.ErrInvalidInput, "Password must be at least 6 characters.")
	}
	return nil
}

// SignIn authenticates, then loads the profile keyed by the user id.
func (b *Boundary) SignIn(ctx context.Context, email, password string) (User, error) {
	if err := Validate(email, password); err != nil {
		b.notify(notice.Error, "Invalid input", err)
		return User{}, err
	}

	if b.State().Authenticated {
		_ = b.SignOut(ctx)
	}

	cred, err := b.Identity.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			err = apperr.Wrap("sign in", apperr.ErrInvalidCredentials, err, "Invalid email or password.")
		} else {
			err = apperr.Wrap("sign in", apperr.ErrNetworkFailure, err, "Unable to sign in. Try again later.")
		}
		b.notify(notice.Error, "Login failed", err)
		return User{}, err
	}

	user := User{UID: cred.UserID, Email: cred.Email}
	doc, found, err := b.Profiles.GetDocument(ctx, record.CollectionUsers, cred.UserID)
	if err != nil {
		_ = b.Identity.SignOut(ctx)
		err = apperr.Wrap("sign in", apperr.ErrNetworkFailure, err, "Unable to load your profile.")
		b.notify(notice.Error, "Login failed", err)
		return User{}, err
	}
	if found {
		profile, err := record.DecodeProfile(doc.ID, doc.Fields)
		if err != nil {
			b.logger().Warn("profile decode failed", zap.String("uid", cred.UserID), zap.Error(err))
		} else {
			user = merge(user, profile)
		}
	}

	b.mu.Lock()
	b.state = State{Authenticated: true, User: user}
	b.mu.Unlock()
	b.logger().Info("signed in", zap.String("uid", user.UID), zap.Bool("admin", user.Admin))
	return user, nil
}

func merge(user User, p record.Profile) User {
	if p.Email != "" {
		user.Email = p.Email
	}
	user.Name = p.Name
	user.PhotoURL = p.PhotoURL
	user.Admin = p.IsAdmin()
	return user
}

// SignOut revokes the identity session, clears local state and cancels
// every tracked subscription before returning.
func (b *Boundary) SignOut(ctx context.Context) error {
	b.mu.Lock()
	b.state = State{}
	tracked := b.tracked
	b.tracked = nil
	b.mu.Unlock()

	for _, cancel := range tracked {
		cancel()
	}

	if err := b.Identity.SignOut(ctx); err != nil {
		err = apperr.Wrap("sign out", apperr.ErrNetworkFailure, err, "Unable to sign out cleanly.")
		b.notify(notice.Error, "Sign out failed", err)
		return err
	}
	return nil
}

// State returns the current session state.
func (b *Boundary) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Authorize returns a context acting for the signed in admin, or
// ErrAuthRequired.
func (b *Boundary) Authorize(ctx context.Context) (context.Context, error) {
	st := b.State()
	if !st.Authenticated {
		return ctx, apperr.New("authorize", apperr.ErrAuthRequired, "Please sign in to continue.")
	}
	if !st.User.Admin {
		return ctx, apperr.New("authorize", apperr.ErrAuthRequired, "This account does not have admin access.")
	}
	return store.WithPrincipal(ctx, st.User.UID), nil
}

// Track registers cancel to run on sign out. The returned release removes
// the registration once the caller cancelled on its own.
func (b *Boundary) Track(cancel func()) (release func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tracked == nil {
		b.tracked = make(map[uint64]func())
	}
	b.next++
	id := b.next
	b.tracked[id] = cancel
	return func() {
		b.mu.Lock()
		delete(b.tracked, id)
		b.mu.Unlock()
	}
}

// Tracked reports how many subscriptions are registered.
func (b *Boundary) Tracked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tracked)
}

func (b *Boundary) notify(level notice.Level, title string, err error) {
	if b.Notifier == nil {
		return
	}
	b.Notifier.Notify(notice.Notice{Level: level, Title: title, Text: apperr.Message(err)})
}

func (b *Boundary) logger() *zap.Logger {
	return logging.OrNop(b.Log)
}
