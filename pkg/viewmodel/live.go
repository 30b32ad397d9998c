package viewmodel

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/metrics"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

// Gate authorizes subscriptions and tears them down when the session ends.
type Gate interface {
	Authorize(ctx context.Context) (context.Context, error)
	Track(cancel func()) (release func())
}

// Live keeps a Store fed from one subscription at a time.
type Live[T record.Record] struct {
	Store   *Store[T]
	Docs    store.Documents
	Gate    Gate
	Decode  record.Decoder[T]
	Log     *zap.Logger
	Metrics *metrics.Recorder

	// OnSnapshot, when set, runs after each applied snapshot. It runs on
	// the delivery goroutine and must not call Unmount.
	OnSnapshot func(seq uint64, items []T)
	// OnError, when set, runs for each snapshot that failed to load. The
	// Store keeps its previous contents.
	OnError func(err error)

	// mountMu serializes Mount so only one subscription is ever installed.
	mountMu sync.Mutex
	mu      sync.Mutex
	gen     uint64
	query   store.Query
	sub     *store.Subscription
	release func()
	done    chan struct{}
}

// NewLive wires a fresh Store to docs.
func NewLive[T record.Record](docs store.Documents, gate Gate, decode record.Decoder[T]) *Live[T] {
	return &Live[T]{
		Store:  NewStore[T](),
		Docs:   docs,
		Gate:   gate,
		Decode: decode,
	}
}

// Mount subscribes to q, replacing any earlier subscription first.
func (l *Live[T]) Mount(ctx context.Context, q store.Query) error {
	l.mountMu.Lock()
	defer l.mountMu.Unlock()
	l.Unmount()

	if l.Gate != nil {
		authed, err := l.Gate.Authorize(ctx)
		if err != nil {
			return err
		}
		ctx = authed
	}

	sub, err := l.Docs.Subscribe(ctx, q)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.gen++
	gen := l.gen
	l.query = q
	l.sub = sub
	l.done = make(chan struct{})
	done := l.done
	if l.Gate != nil {
		l.release = l.Gate.Track(func() { l.unmount(gen) })
	}
	l.mu.Unlock()

	l.Metrics.Mounted(1)
	l.logger().Debug("view mounted", zap.Stringer("query", q), zap.Uint64("generation", gen))
	go l.consume(gen, sub, done)
	return nil
}

// Unmount cancels the current subscription. Once it returns the Store no
// longer changes from snapshots.
func (l *Live[T]) Unmount() {
	l.mu.Lock()
	gen := l.gen
	l.mu.Unlock()
	l.unmount(gen)
}

func (l *Live[T]) unmount(gen uint64) {
	l.mu.Lock()
	if gen != l.gen || l.sub == nil {
		l.mu.Unlock()
		return
	}
	sub, release, done := l.sub, l.release, l.done
	l.sub, l.release, l.done = nil, nil, nil
	// Anything still in flight for this generation is dropped by apply.
	l.gen++
	l.mu.Unlock()

	sub.Cancel()
	if release != nil {
		release()
	}
	<-done
	l.Metrics.Mounted(-1)
	l.logger().Debug("view unmounted", zap.Stringer("query", sub.Query()))
}

// Mounted returns the active query.
func (l *Live[T]) Mounted() (store.Query, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.query, l.sub != nil
}

func (l *Live[T]) consume(gen uint64, sub *store.Subscription, done chan struct{}) {
	defer close(done)
	for snap := range sub.Snapshots() {
		l.apply(gen, sub.Query(), snap)
	}
}

func (l *Live[T]) apply(gen uint64, q store.Query, snap store.Snapshot) {
	if snap.Err != nil {
		l.logger().Warn("snapshot skipped", zap.Stringer("query", q), zap.Error(snap.Err))
		l.mu.Lock()
		current := gen == l.gen
		l.mu.Unlock()
		if current && l.OnError != nil {
			l.OnError(snap.Err)
		}
		return
	}
	items := make([]T, 0, len(snap.Docs))
	for _, doc := range snap.Docs {
		item, err := l.Decode(doc.ID, doc.Fields)
		if err != nil {
			l.logger().Warn("document skipped", zap.String("collection", q.Collection), zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		items = append(items, item)
	}

	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.Store.ReplaceSnapshot(snap.Seq, items)
	l.mu.Unlock()

	l.Metrics.Snapshot(q.Collection)
	l.logger().Debug("snapshot applied", zap.String("collection", q.Collection), zap.Uint64("seq", snap.Seq), zap.Int("docs", len(items)))
	if l.OnSnapshot != nil {
		l.OnSnapshot(snap.Seq, items)
	}
}

func (l *Live[T]) logger() *zap.Logger {
	return logging.OrNop(l.Log)
}
