// Package identity authenticates console users against the credentials
// collection.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

// ErrInvalidCredentials is returned for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("identity: invalid credentials")

// ErrEmailTaken is returned by Register when the email already has an account.
var ErrEmailTaken = errors.New("identity: email already registered")

// Credential is the result of a successful sign in.
type Credential struct {
	UserID string
	Email  string
}

// Service is the identity provider contract.
type Service interface {
	SignIn(ctx context.Context, email, password string) (Credential, error)
	SignOut(ctx context.Context) error
}

// Local stores bcrypt hashes in the credentials collection.
type Local struct {
	Documents store.Documents
	// Cost defaults to bcrypt.DefaultCost.
	Cost int

	mu      sync.Mutex
	current *Credential
}

// NewLocal returns a Local identity service over docs.
func NewLocal(docs store.Documents) *Local {
	return &Local{Documents: docs}
}

// SignIn verifies email and password.
func (l *Local) SignIn(ctx context.Context, email, password string) (Credential, error) {
	doc, found, err := l.lookup(ctx, email)
	if err != nil {
		return Credential{}, err
	}
	if !found {
		return Credential{}, ErrInvalidCredentials
	}
	hash, _ := doc.Fields["passwordHash"].(string)
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return Credential{}, ErrInvalidCredentials
	}
	cred := Credential{UserID: doc.ID, Email: normalizeEmail(email)}
	l.mu.Lock()
	l.current = &cred
	l.mu.Unlock()
	return cred, nil
}

// SignOut ends the current identity session.
func (l *Local) SignOut(context.Context) error {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
	return nil
}

// Current returns the signed in credential.
func (l *Local) Current() (Credential, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return Credential{}, false
	}
	return *l.current, true
}

// Register creates an account and returns its user id.
func (l *Local) Register(ctx context.Context, email, password string) (string, error) {
	if _, found, err := l.lookup(ctx, email); err != nil {
		return "", err
	} else if found {
		return "", ErrEmailTaken
	}
	cost := l.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("identity: hash password: %w", err)
	}
	return l.Documents.AddDocument(ctx, record.CollectionCredentials, map[string]interface{}{
		"email":        normalizeEmail(email),
		"passwordHash": string(hash),
		"createdAt":    store.ServerTimestamp,
	})
}

func (l *Local) lookup(ctx context.Context, email string) (store.Document, bool, error) {
	docs, err := l.Documents.List(ctx, store.Query{
		Collection: record.CollectionCredentials,
		Where:      []store.Filter{{Field: "email", Value: normalizeEmail(email)}},
		Limit:      1,
	})
	if err != nil {
		return store.Document{}, false, fmt.Errorf("identity: lookup: %w", err)
	}
	if len(docs) == 0 {
		return store.Document{}, false, nil
	}
	return docs[0], true, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
