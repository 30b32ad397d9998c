package view

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

type testConfig string

func (t testConfig) BasePath() string { return string(t) }

func newDocs(t *testing.T) store.Persistence {
	t.Helper()
	p, err := store.Load(testConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("load store: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func put(t *testing.T, docs store.Documents, id, status string) {
	t.Helper()
	if err := docs.SetDocument(context.Background(), record.CollectionOrders, id, map[string]interface{}{
		"status": status,
	}); err != nil {
		t.Fatalf("set %s: %v", id, err)
	}
}

type renders struct {
	mu     sync.Mutex
	totals []int
}

func (r *renders) record(s *viewmodel.Store[record.Order]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.totals = append(r.totals, s.View().Total)
	return nil
}

func (r *renders) last() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.totals) == 0 {
		return 0, -1
	}
	return len(r.totals), r.totals[len(r.totals)-1]
}

func TestRunnerRendersOnce(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	docs := newDocs(t)
	put(t, docs, "o1", "processing")
	put(t, docs, "o2", "delivered")

	var got renders
	live := viewmodel.NewLive[record.Order](docs, nil, record.DecodeOrder)
	r := &Runner[record.Order]{
		Live:  live,
		Query: store.Query{Collection: record.CollectionOrders},
		Prepare: func(s *viewmodel.Store[record.Order]) error {
			s.SetCategory("delivered")
			return nil
		},
		Render: got.record,
	}
	if err := r.Do(context.Background()); err != nil {
		t.Fatalf("do: %v", err)
	}
	if n, total := got.last(); n != 1 || total != 1 {
		t.Fatalf("expected one render of one delivered order, got %d renders, total %d", n, total)
	}
	if _, mounted := live.Mounted(); mounted {
		t.Fatal("view should be unmounted after Do")
	}
}

func TestRunnerWatchFollowsWrites(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	docs := newDocs(t)
	put(t, docs, "o1", "processing")

	var got renders
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner[record.Order]{
		Live:   viewmodel.NewLive[record.Order](docs, nil, record.DecodeOrder),
		Query:  store.Query{Collection: record.CollectionOrders},
		Watch:  true,
		Render: got.record,
	}
	errc := make(chan error, 1)
	go func() { errc <- r.Do(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if n, _ := got.last(); n >= 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for first render")
		}
		time.Sleep(10 * time.Millisecond)
	}

	put(t, docs, "o2", "processing")
	for {
		if _, total := got.last(); total == 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for second render")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	if err := <-errc; err != nil {
		t.Fatalf("do: %v", err)
	}
}

// brokenDocs serves reads from Documents but every subscription fails to load.
type brokenDocs struct {
	store.Documents
	err error
}

func (b brokenDocs) Subscribe(_ context.Context, q store.Query) (*store.Subscription, error) {
	return store.NewSubscription(q, func(context.Context, store.Query) ([]store.Document, error) {
		return nil, b.err
	}, nil), nil
}

func TestRunnerReturnsFirstLoadError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	boom := errors.New("disk unreadable")
	var got renders
	live := viewmodel.NewLive[record.Order](brokenDocs{Documents: newDocs(t), err: boom}, nil, record.DecodeOrder)
	r := &Runner[record.Order]{
		Live:   live,
		Query:  store.Query{Collection: record.CollectionOrders},
		Render: got.record,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Do(ctx); !errors.Is(err, boom) {
		t.Fatalf("expected load error, got %v", err)
	}
	if n, _ := got.last(); n != 0 {
		t.Fatalf("expected no render, got %d", n)
	}
	if _, mounted := live.Mounted(); mounted {
		t.Fatal("view should be unmounted after Do")
	}
}

func TestRunnerReturnsRenderError(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	docs := newDocs(t)
	put(t, docs, "o1", "processing")

	closed := errors.New("write on closed pipe")
	r := &Runner[record.Order]{
		Live:   viewmodel.NewLive[record.Order](docs, nil, record.DecodeOrder),
		Query:  store.Query{Collection: record.CollectionOrders},
		Watch:  true,
		Render: func(*viewmodel.Store[record.Order]) error { return closed },
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Do(ctx); !errors.Is(err, closed) {
		t.Fatalf("expected render error, got %v", err)
	}
}
