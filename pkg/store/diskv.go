package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/peterbourgon/diskv/v3"
	"go.uber.org/zap"
)

// Persistence is the diskv backed Documents implementation.
type Persistence interface {
	Documents
	Watch(ctx context.Context) (<-chan Event, error)
	Close() error
}

// Option customises Load.
type Option func(*persistence)

// WithLogger sets the logger used for skipped documents and watcher errors.
func WithLogger(l *zap.Logger) Option {
	return func(p *persistence) {
		if l != nil {
			p.log = l
		}
	}
}

// WithClock overrides the write clock used for ServerTimestamp.
func WithClock(now func() time.Time) Option {
	return func(p *persistence) {
		if now != nil {
			p.now = now
		}
	}
}

// Load creates a Persistence backed by diskv using the provided config.
func Load(cfg Config, opts ...Option) (Persistence, error) {
	if cfg == nil {
		var err error
		cfg, err = LoadConfig()
		if err != nil {
			return nil, err
		}
	}

	basePath := cfg.BasePath()
	if basePath == "" {
		return nil, errors.New("store: base path required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("store: ensure base path: %w", err)
	}

	p := &persistence{
		d: diskv.New(diskv.Options{
			BasePath:          basePath,
			AdvancedTransform: keyToPathTransform,
			InverseTransform:  pathToKeyTransform,
			// Other processes write these files; a read cache would go stale.
			CacheSizeMax: 0,
		}),
		basePath: basePath,
		log:      zap.NewNop(),
		now:      time.Now,
		hub:      newHub(),
	}
	if wc, ok := cfg.(watchConfig); ok {
		p.watchExternal = wc.WatchExternal()
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type persistence struct {
	d        *diskv.Diskv
	basePath string
	log      *zap.Logger
	now      func() time.Time

	// mu serialises read-modify-write cycles.
	mu sync.Mutex

	hub *hub

	watchExternal bool
	watchOnce     sync.Once
	watchCancel   context.CancelFunc
}

func (p *persistence) read(key string) (Document, error) {
	val, err := p.d.Read(key)
	if err != nil {
		return Document{}, err
	}
	fields := make(map[string]interface{})
	if err := json.Unmarshal(val, &fields); err != nil {
		return Document{}, err
	}
	pk := keyToPathTransform(key)
	id, err := fromSegment(pk.FileName)
	if err != nil {
		return Document{}, err
	}
	return Document{ID: id, Fields: fields}, nil
}

func (p *persistence) write(collection, id string, fields map[string]interface{}) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return p.d.Write(toKey(collection, id), data)
}

func (p *persistence) GetDocument(_ context.Context, collection, id string) (Document, bool, error) {
	if strings.TrimSpace(id) == "" {
		return Document{}, false, nil
	}
	key := toKey(collection, id)
	if !p.d.Has(key) {
		return Document{}, false, nil
	}
	doc, err := p.read(key)
	if err != nil {
		return Document{}, false, fmt.Errorf("store: read %s/%s: %w", collection, id, err)
	}
	return doc, true, nil
}

func (p *persistence) List(ctx context.Context, q Query) ([]Document, error) {
	if q.Collection == "" {
		return nil, errors.New("store: collection required")
	}
	cancel := make(chan struct{})
	defer close(cancel)

	prefix := toSegment(q.Collection) + "/"
	docs := make([]Document, 0)
	for key := range p.d.KeysPrefix(prefix, cancel) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		doc, err := p.read(key)
		if err != nil {
			p.log.Warn("skipping unreadable document", zap.String("key", key), zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}
	return q.apply(docs), nil
}

func (p *persistence) UpdateFields(_ context.Context, collection, id string, fields map[string]interface{}) error {
	p.mu.Lock()
	key := toKey(collection, id)
	if !p.d.Has(key) {
		p.mu.Unlock()
		return fmt.Errorf("store: update %s/%s: %w", collection, id, ErrNotFound)
	}
	doc, err := p.read(key)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}
	for k, v := range resolveSentinels(fields, p.now()) {
		doc.Fields[k] = v
	}
	err = p.write(collection, id, doc.Fields)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store: update %s/%s: %w", collection, id, err)
	}
	p.hub.notify(collection)
	return nil
}

func (p *persistence) AddDocument(ctx context.Context, collection string, fields map[string]interface{}) (string, error) {
	id := ulid.Make().String()
	if err := p.SetDocument(ctx, collection, id, fields); err != nil {
		return "", err
	}
	return id, nil
}

func (p *persistence) SetDocument(_ context.Context, collection, id string, fields map[string]interface{}) error {
	if strings.TrimSpace(collection) == "" || strings.TrimSpace(id) == "" {
		return errors.New("store: collection and id required")
	}
	p.mu.Lock()
	err := p.write(collection, id, resolveSentinels(fields, p.now()))
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("store: set %s/%s: %w", collection, id, err)
	}
	p.hub.notify(collection)
	return nil
}

func (p *persistence) Subscribe(ctx context.Context, q Query) (*Subscription, error) {
	if q.Collection == "" {
		return nil, errors.New("store: collection required")
	}
	if p.watchExternal {
		p.watchOnce.Do(p.followExternalWriters)
	}
	sub := p.hub.subscribe(q, p.List, p.log)
	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// followExternalWriters forwards fsnotify events into the subscription hub
// so documents written by other processes reach live views.
func (p *persistence) followExternalWriters() {
	ctx, cancel := context.WithCancel(context.Background())
	p.watchCancel = cancel
	events, err := p.Watch(ctx)
	if err != nil {
		p.log.Warn("external change feed unavailable", zap.Error(err))
		cancel()
		return
	}
	go func() {
		for ev := range events {
			switch ev.Type {
			case EventCollectionChanged:
				p.hub.notify(ev.Collection)
			case EventCollectionsInvalidated:
				p.hub.notifyAll()
			}
		}
	}()
}

func (p *persistence) Close() error {
	if p.watchCancel != nil {
		p.watchCancel()
	}
	p.hub.closeAll()
	return nil
}

func keyToPathTransform(s string) *diskv.PathKey {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) < 2 {
		return &diskv.PathKey{FileName: s}
	}
	return &diskv.PathKey{
		Path:     []string{parts[0]},
		FileName: parts[1],
	}
}

func pathToKeyTransform(pathKey *diskv.PathKey) string {
	if len(pathKey.Path) == 0 {
		return pathKey.FileName
	}
	return fmt.Sprintf("%s/%s", strings.Join(pathKey.Path, "/"), pathKey.FileName)
}

// toKey makes `collection/id` with both segments path safe.
func toKey(collection, id string) string {
	return toSegment(collection) + "/" + toSegment(id)
}

func toSegment(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func fromSegment(s string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("store: decode segment %q: %w", s, err)
	}
	return string(b), nil
}
