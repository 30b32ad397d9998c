package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/peterbourgon/diskv/v3"
)

// Objects is the object storage contract.
type Objects interface {
	Upload(ctx context.Context, path string, data []byte) error
	SignedURL(ctx context.Context, path string) (string, error)
}

const (
	signingKeyFile = ".signing-key"
	tokenIssuer    = "shopdesk"
)

// ObjectStore keeps uploaded files in diskv and hands out time limited,
// HMAC signed download URLs.
type ObjectStore struct {
	d         *diskv.Diskv
	key       []byte
	publicURL string
	ttl       time.Duration
	now       func() time.Time
}

// LoadObjects opens the object store. When no signing key is configured a
// random one is generated once and kept next to the objects.
func LoadObjects(cfg ObjectConfig) (*ObjectStore, error) {
	base := cfg.ObjectsPath()
	if base == "" {
		return nil, errors.New("store: objects path required")
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure objects path: %w", err)
	}
	key := cfg.SigningKey()
	if len(key) == 0 {
		var err error
		if key, err = loadOrCreateKey(filepath.Join(base, signingKeyFile)); err != nil {
			return nil, err
		}
	}
	ttl := cfg.URLTTL()
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &ObjectStore{
		d: diskv.New(diskv.Options{
			BasePath:          filepath.Join(base, "data"),
			AdvancedTransform: objectPathTransform,
			InverseTransform:  pathToKeyTransform,
		}),
		key:       key,
		publicURL: strings.TrimRight(cfg.PublicURL(), "/"),
		ttl:       ttl,
		now:       time.Now,
	}, nil
}

func loadOrCreateKey(path string) ([]byte, error) {
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		return b, nil
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("store: generate signing key: %w", err)
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, fmt.Errorf("store: save signing key: %w", err)
	}
	return key, nil
}

// Upload stores data under path.
func (o *ObjectStore) Upload(_ context.Context, path string, data []byte) error {
	key, err := normalizeObjectPath(path)
	if err != nil {
		return err
	}
	if err := o.d.Write(key, data); err != nil {
		return fmt.Errorf("store: upload %s: %w", key, err)
	}
	return nil
}

// SignedURL resolves path to a download URL valid for the configured TTL.
// The caller must carry a principal.
func (o *ObjectStore) SignedURL(ctx context.Context, path string) (string, error) {
	if _, ok := PrincipalFrom(ctx); !ok {
		return "", ErrPermissionDenied
	}
	key, err := normalizeObjectPath(path)
	if err != nil {
		return "", err
	}
	if !o.d.Has(key) {
		return "", fmt.Errorf("store: object %s: %w", key, ErrNotFound)
	}
	now := o.now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   key,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(o.ttl)),
	}).SignedString(o.key)
	if err != nil {
		return "", fmt.Errorf("store: sign %s: %w", key, err)
	}
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/assets/%s?token=%s", o.publicURL, strings.Join(segments, "/"), url.QueryEscape(token)), nil
}

// Verify checks that token grants access to path.
func (o *ObjectStore) Verify(path, token string) error {
	key, err := normalizeObjectPath(path)
	if err != nil {
		return err
	}
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return o.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithSubject(key),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(o.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return nil
}

// Open returns the object bytes after verifying token.
func (o *ObjectStore) Open(path, token string) ([]byte, error) {
	if err := o.Verify(path, token); err != nil {
		return nil, err
	}
	key, _ := normalizeObjectPath(path)
	b, err := o.d.Read(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

// normalizeObjectPath accepts bare paths and gs://bucket/path references.
func normalizeObjectPath(path string) (string, error) {
	p := strings.TrimSpace(path)
	if strings.HasPrefix(p, "gs://") {
		p = strings.TrimPrefix(p, "gs://")
		if i := strings.Index(p, "/"); i >= 0 {
			p = p[i+1:]
		} else {
			p = ""
		}
	}
	p = strings.Trim(p, "/")
	if p == "" {
		return "", fmt.Errorf("store: empty object path: %w", ErrNotFound)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("store: invalid object path %q", path)
		}
	}
	return p, nil
}

func objectPathTransform(s string) *diskv.PathKey {
	parts := strings.Split(s, "/")
	return &diskv.PathKey{
		Path:     parts[:len(parts)-1],
		FileName: parts[len(parts)-1],
	}
}
