package store

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Snapshot is the complete result set of a subscribed query. A later
// snapshot always supersedes an earlier one.
type Snapshot struct {
	Seq  uint64
	Docs []Document
	Err  error
}

type loader func(ctx context.Context, q Query) ([]Document, error)

// Subscription delivers full snapshots of a query until cancelled.
type Subscription struct {
	id    uint64
	query Query
	load  loader
	log   *zap.Logger

	out  chan Snapshot
	wake chan struct{}
	stop chan struct{}
	done chan struct{}
	once sync.Once

	release func()
}

// Query returns the query this subscription follows.
func (s *Subscription) Query() Query {
	return s.query
}

// Snapshots streams snapshots in emission order. The channel is closed once
// the subscription is cancelled.
func (s *Subscription) Snapshots() <-chan Snapshot {
	return s.out
}

// Done is closed once delivery has stopped.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Cancel stops delivery and releases the subscription. When Cancel returns
// no further snapshot will be sent.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		close(s.stop)
		if s.release != nil {
			s.release()
		}
	})
	<-s.done
}

func (s *Subscription) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
		// A reload is already queued and will observe this change too.
	}
}

func (s *Subscription) run() {
	defer close(s.done)
	defer close(s.out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-s.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		seq     uint64
		pending Snapshot
		ready   bool
	)
	for {
		var out chan<- Snapshot
		if ready {
			out = s.out
		}
		select {
		case <-s.stop:
			return
		case <-s.wake:
			docs, err := s.load(ctx, s.query)
			if ctx.Err() != nil {
				return
			}
			seq++
			if err != nil {
				s.log.Warn("snapshot load failed", zap.Stringer("query", s.query), zap.Error(err))
			}
			// Replaces any undelivered snapshot.
			pending, ready = Snapshot{Seq: seq, Docs: docs, Err: err}, true
		case out <- pending:
			pending, ready = Snapshot{}, false
		}
	}
}

// hub fans local writes out to the subscriptions of the touched collection.
type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*Subscription
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*Subscription)}
}

func newSubscription(id uint64, q Query, load loader, log *zap.Logger) *Subscription {
	return &Subscription{
		id:    id,
		query: q,
		load:  load,
		log:   log,
		out:   make(chan Snapshot),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// NewSubscription follows q through load alone, outside any store. Each
// Refresh reloads q once; the first load starts immediately.
func NewSubscription(q Query, load func(ctx context.Context, q Query) ([]Document, error), log *zap.Logger) *Subscription {
	if log == nil {
		log = zap.NewNop()
	}
	sub := newSubscription(0, q, load, log)
	sub.poke()
	go sub.run()
	return sub
}

// Refresh schedules a reload of the query.
func (s *Subscription) Refresh() {
	s.poke()
}

func (h *hub) subscribe(q Query, load loader, log *zap.Logger) *Subscription {
	h.mu.Lock()
	h.next++
	sub := newSubscription(h.next, q, load, log)
	sub.release = func() { h.remove(sub.id) }
	h.subs[sub.id] = sub
	h.mu.Unlock()

	log.Debug("subscription opened", zap.Uint64("id", sub.id), zap.Stringer("query", q))
	sub.poke()
	go sub.run()
	return sub
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

func (h *hub) notify(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.query.Collection == collection {
			sub.poke()
		}
	}
}

func (h *hub) notifyAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		sub.poke()
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.subs))
	for _, sub := range h.subs {
		subs = append(subs, sub)
	}
	h.mu.Unlock()
	for _, sub := range subs {
		sub.Cancel()
	}
}
