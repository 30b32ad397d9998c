package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestPersistence(t *testing.T) Persistence {
	t.Helper()
	p, err := Load(testConfig{path: t.TempDir()})
	if err != nil {
		t.Fatalf("load persistence: %v", err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func nextSnapshot(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots():
		if !ok {
			t.Fatal("subscription closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}
	return Snapshot{}
}

func TestDocumentsRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	id, err := p.AddDocument(ctx, "products", map[string]interface{}{
		"title":     "Macrame Wall Hanging",
		"deleted":   0,
		"createdAt": ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated id")
	}

	doc, ok, err := p.GetDocument(ctx, "products", id)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if doc.Fields["title"] != "Macrame Wall Hanging" {
		t.Fatalf("unexpected title %v", doc.Fields["title"])
	}
	if ts, _ := doc.Fields["createdAt"].(string); ts == "" {
		t.Fatalf("expected server timestamp to be stamped, got %#v", doc.Fields["createdAt"])
	}

	if err := p.UpdateFields(ctx, "products", id, map[string]interface{}{"deleted": 1}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, _, _ = p.GetDocument(ctx, "products", id)
	if doc.Fields["deleted"] != float64(1) || doc.Fields["title"] != "Macrame Wall Hanging" {
		t.Fatalf("update did not merge: %#v", doc.Fields)
	}

	if _, ok, _ := p.GetDocument(ctx, "products", "missing"); ok {
		t.Fatal("expected missing document to be absent")
	}
	if err := p.UpdateFields(ctx, "products", "missing", map[string]interface{}{"x": 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListFilterOrderLimit(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	seed := map[string]map[string]interface{}{
		"o1": {"createdAt": "2025-01-01T00:00:00Z", "deleted": 0},
		"o2": {"createdAt": "2025-03-01T00:00:00Z", "deleted": 0},
		"o3": {"createdAt": "2025-02-01T00:00:00Z", "deleted": 1},
		"o4": {"createdAt": "2025-04-01T00:00:00Z"},
		"o-5": {"createdAt": "2025-05-01T00:00:00Z", "deleted": 0},
	}
	for id, fields := range seed {
		if err := p.SetDocument(ctx, "successOrders", id, fields); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}

	docs, err := p.List(ctx, Query{
		Collection: "successOrders",
		Where:      []Filter{{Field: "deleted", Value: 0}},
		OrderBy:    "createdAt",
		Descending: true,
		Limit:      2,
	})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 || docs[0].ID != "o-5" || docs[1].ID != "o2" {
		t.Fatalf("unexpected result %v", ids(docs))
	}

	all, err := p.List(ctx, Query{Collection: "successOrders"})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 documents, got %d", len(all))
	}
	other, _ := p.List(ctx, Query{Collection: "products"})
	if len(other) != 0 {
		t.Fatalf("expected no products, got %d", len(other))
	}
}

func ids(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

func TestSubscribeDeliversFullSnapshots(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	if err := p.SetDocument(ctx, "contactFormQueries", "q1", map[string]interface{}{"status": "pending"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	sub, err := p.Subscribe(ctx, Query{Collection: "contactFormQueries"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	first := nextSnapshot(t, sub)
	if len(first.Docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(first.Docs))
	}

	if err := p.SetDocument(ctx, "contactFormQueries", "q2", map[string]interface{}{"status": "pending"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	second := nextSnapshot(t, sub)
	if len(second.Docs) != 2 {
		t.Fatalf("expected full snapshot of 2, got %d", len(second.Docs))
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected increasing sequence, got %d then %d", first.Seq, second.Seq)
	}

	// Writes to other collections do not wake this subscription.
	if err := p.SetDocument(ctx, "products", "p1", map[string]interface{}{}); err != nil {
		t.Fatalf("add product: %v", err)
	}
	select {
	case snap := <-sub.Snapshots():
		t.Fatalf("unexpected snapshot %d", snap.Seq)
	case <-time.After(100 * time.Millisecond):
	}

	sub.Cancel()
	if _, ok := <-sub.Snapshots(); ok {
		t.Fatal("expected closed channel after cancel")
	}
	// Writes after cancellation must not panic or block.
	if err := p.SetDocument(ctx, "contactFormQueries", "q3", map[string]interface{}{}); err != nil {
		t.Fatalf("write after cancel: %v", err)
	}
}

func TestSubscribeCancelledByContext(t *testing.T) {
	p := newTestPersistence(t)
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := p.Subscribe(ctx, Query{Collection: "users"})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	nextSnapshot(t, sub)
	cancel()
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not stopped by context")
	}
}

func TestCompareValues(t *testing.T) {
	if compareValues(nil, "x") >= 0 {
		t.Fatal("missing values sort first")
	}
	if compareValues(float64(2), 10) >= 0 {
		t.Fatal("numbers compare numerically")
	}
	if compareValues("2025-01-02T00:00:00Z", "2025-01-01T00:00:00.5Z") <= 0 {
		t.Fatal("timestamps compare chronologically")
	}
}
