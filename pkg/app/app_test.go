package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type update struct {
	Collection string
	ID         string
	Fields     map[string]interface{}
}

// memoryDocuments counts every write so tests can assert the backend was
// or was not contacted.
type memoryDocuments struct {
	mu          sync.Mutex
	counter     int
	collections map[string]map[string]map[string]interface{}
	updates     []update

	// failOn makes UpdateFields fail for that id.
	failOn string
	// block, when set, holds UpdateFields until closed.
	block chan struct{}
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{collections: make(map[string]map[string]map[string]interface{})}
}

func (m *memoryDocuments) put(collection, id string, fields map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]interface{})
	}
	m.collections[collection][id] = resolve(fields)
}

func resolve(fields map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		if v == store.ServerTimestamp {
			v = fixedNow.Format(time.RFC3339Nano)
		}
		out[k] = v
	}
	return out
}

func (m *memoryDocuments) GetDocument(_ context.Context, collection, id string) (store.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, ok := m.collections[collection][id]
	if !ok {
		return store.Document{}, false, nil
	}
	return store.Document{ID: id, Fields: resolve(fields)}, true, nil
}

func (m *memoryDocuments) List(_ context.Context, q store.Query) ([]store.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]store.Document, 0, len(m.collections[q.Collection]))
	for id, fields := range m.collections[q.Collection] {
		out = append(out, store.Document{ID: id, Fields: resolve(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryDocuments) Subscribe(context.Context, store.Query) (*store.Subscription, error) {
	return nil, errors.New("memory documents do not stream")
}

func (m *memoryDocuments) UpdateFields(_ context.Context, collection, id string, fields map[string]interface{}) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, update{Collection: collection, ID: id, Fields: fields})
	if id == m.failOn {
		return errors.New("backend unavailable")
	}
	doc, ok := m.collections[collection][id]
	if !ok {
		return store.ErrNotFound
	}
	for k, v := range resolve(fields) {
		doc[k] = v
	}
	return nil
}

func (m *memoryDocuments) AddDocument(_ context.Context, collection string, fields map[string]interface{}) (string, error) {
	m.mu.Lock()
	m.counter++
	id := fmt.Sprintf("id-%d", m.counter)
	m.mu.Unlock()
	m.put(collection, id, fields)
	return id, nil
}

func (m *memoryDocuments) SetDocument(_ context.Context, collection, id string, fields map[string]interface{}) error {
	m.put(collection, id, fields)
	return nil
}

func (m *memoryDocuments) writes() []update {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]update(nil), m.updates...)
}

type memoryObjects struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (o *memoryObjects) Upload(_ context.Context, path string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.files == nil {
		o.files = make(map[string][]byte)
	}
	o.files[path] = data
	return nil
}

func (o *memoryObjects) SignedURL(ctx context.Context, path string) (string, error) {
	if _, ok := store.PrincipalFrom(ctx); !ok {
		return "", store.ErrPermissionDenied
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.files[path]; !ok {
		return "", store.ErrNotFound
	}
	return "http://assets.test/" + path + "?token=t", nil
}

type gate struct {
	allow bool
}

func (g gate) Authorize(ctx context.Context) (context.Context, error) {
	if !g.allow {
		return ctx, apperr.New("authorize", apperr.ErrAuthRequired, "Please sign in to continue.")
	}
	return store.WithPrincipal(ctx, "admin"), nil
}

type countingConfirmer struct {
	answer bool
	asked  []Confirmation
}

func (c *countingConfirmer) Confirm(_ context.Context, conf Confirmation) (bool, error) {
	c.asked = append(c.asked, conf)
	return c.answer, nil
}

func newGateway(docs *memoryDocuments, confirm Confirmer) (*Gateway, *notice.Recorder) {
	rec := &notice.Recorder{}
	return &Gateway{
		Documents: docs,
		Objects:   &memoryObjects{},
		Session:   gate{allow: true},
		Confirm:   confirm,
		Notify:    rec,
		Now:       func() time.Time { return fixedNow },
	}, rec
}

func seedOrders(docs *memoryDocuments, statuses ...record.Status) []record.Order {
	var out []record.Order
	for i, s := range statuses {
		id := fmt.Sprintf("o%d", i+1)
		fields := map[string]interface{}{
			"orderNumber": "SD-" + id,
			"status":      string(s),
			"total":       10.0 * float64(i+1),
			"deleted":     0,
			"createdAt":   fixedNow.Add(-time.Duration(i+1) * time.Hour).Format(time.RFC3339),
		}
		docs.put(record.CollectionOrders, id, fields)
		o, _ := record.DecodeOrder(id, fields)
		out = append(out, o)
	}
	return out
}

func TestChangeStatusSameStatusIsNoop(t *testing.T) {
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusProcessing)
	g, rec := newGateway(docs, &countingConfirmer{answer: true})

	if err := g.ChangeStatus(context.Background(), orders[0], record.StatusProcessing, nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if n := len(docs.writes()); n != 0 {
		t.Fatalf("expected no backend call, got %d", n)
	}
	if n := len(rec.Notices()); n != 0 {
		t.Fatalf("expected no notices, got %d", n)
	}
}

func TestChangeStatusDeliveredIsLocked(t *testing.T) {
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusDelivered)
	confirm := &countingConfirmer{answer: true}
	g, rec := newGateway(docs, confirm)

	for _, to := range []record.Status{record.StatusDelivered, record.StatusProcessing, record.StatusCancelled} {
		err := g.ChangeStatus(context.Background(), orders[0], to, nil)
		if to == record.StatusDelivered {
			if err != nil {
				t.Fatalf("same status should be a no-op, got %v", err)
			}
			continue
		}
		if !errors.Is(err, apperr.ErrLockedState) {
			t.Fatalf("%s: expected ErrLockedState, got %v", to, err)
		}
	}
	if n := len(docs.writes()); n != 0 {
		t.Fatalf("expected no backend call, got %d", n)
	}
	if len(confirm.asked) != 0 {
		t.Fatal("locked orders must not prompt")
	}
	last, ok := rec.Last()
	if !ok || last.Title != "Locked" || last.Text != "Delivered orders cannot be updated." {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestChangeStatusToDeliveredNeedsConfirmation(t *testing.T) {
	ctx := context.Background()
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusProcessing)
	view := viewmodel.NewStore[record.Order]()
	view.ReplaceSnapshot(1, orders)

	confirm := &countingConfirmer{answer: false}
	g, _ := newGateway(docs, confirm)

	err := g.ChangeStatus(ctx, orders[0], record.StatusDelivered, view)
	if !errors.Is(err, apperr.ErrDeclined) {
		t.Fatalf("expected ErrDeclined, got %v", err)
	}
	if n := len(docs.writes()); n != 0 {
		t.Fatalf("declined change reached the backend %d times", n)
	}
	if len(confirm.asked) != 1 || confirm.asked[0].Title != "Mark Order as Delivered?" {
		t.Fatalf("unexpected prompts %+v", confirm.asked)
	}

	confirm.answer = true
	if err := g.ChangeStatus(ctx, orders[0], record.StatusDelivered, view); err != nil {
		t.Fatalf("change status: %v", err)
	}
	writes := docs.writes()
	if len(writes) != 1 {
		t.Fatalf("expected one update, got %d", len(writes))
	}
	if writes[0].Fields["status"] != "delivered" || writes[0].Fields["updatedAt"] != store.ServerTimestamp {
		t.Fatalf("unexpected update %+v", writes[0].Fields)
	}
	got, _ := view.Get(orders[0].ID)
	if got.Status != record.StatusDelivered || got.UpdatedAt.IsZero() {
		t.Fatalf("view not updated: %+v", got)
	}
}

func TestChangeStatusCancelSkipsConfirmation(t *testing.T) {
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusProcessing, record.StatusCancelled)
	confirm := &countingConfirmer{answer: false}
	g, _ := newGateway(docs, confirm)
	ctx := context.Background()

	if err := g.ChangeStatus(ctx, orders[0], record.StatusCancelled, nil); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := g.ChangeStatus(ctx, orders[1], record.StatusProcessing, nil); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if len(confirm.asked) != 0 {
		t.Fatalf("expected no prompts, got %d", len(confirm.asked))
	}
	if n := len(docs.writes()); n != 2 {
		t.Fatalf("expected two updates, got %d", n)
	}
}

func TestChangeStatusSuppressesDuplicateWhileInFlight(t *testing.T) {
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusProcessing)
	docs.block = make(chan struct{})
	g, _ := newGateway(docs, AlwaysConfirm)
	ctx := context.Background()

	first := make(chan error, 1)
	go func() {
		first <- g.ChangeStatus(ctx, orders[0], record.StatusCancelled, nil)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !g.InFlight(orders[0].ID) {
		if time.Now().After(deadline) {
			t.Fatal("first update never went in flight")
		}
		time.Sleep(time.Millisecond)
	}

	err := g.ChangeStatus(ctx, orders[0], record.StatusCancelled, nil)
	if !errors.Is(err, apperr.ErrUpdatePending) {
		t.Fatalf("expected ErrUpdatePending, got %v", err)
	}

	close(docs.block)
	if err := <-first; err != nil {
		t.Fatalf("first update: %v", err)
	}
	if n := len(docs.writes()); n != 1 {
		t.Fatalf("expected exactly one backend update, got %d", n)
	}
	if g.InFlight(orders[0].ID) {
		t.Fatal("in-flight marker not released")
	}
}

func TestChangeStatusRequiresSession(t *testing.T) {
	docs := newMemoryDocuments()
	orders := seedOrders(docs, record.StatusProcessing)
	g, _ := newGateway(docs, AlwaysConfirm)
	g.Session = gate{allow: false}

	err := g.ChangeStatus(context.Background(), orders[0], record.StatusCancelled, nil)
	if !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("expected ErrAuthRequired, got %v", err)
	}
	if n := len(docs.writes()); n != 0 {
		t.Fatalf("expected no backend call, got %d", n)
	}
}

func seedQueries(docs *memoryDocuments, n int) []record.Query {
	var out []record.Query
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("q%d", i+1)
		fields := map[string]interface{}{
			"name":      "Visitor " + id,
			"email":     id + "@example.com",
			"message":   "Where is my order?",
			"status":    "pending",
			"deleted":   0,
			"createdAt": fixedNow.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
		docs.put(record.CollectionQueries, id, fields)
		q, _ := record.DecodeQuery(id, fields)
		out = append(out, q)
	}
	return out
}

func TestSoftDeleteEmptyIsNoop(t *testing.T) {
	docs := newMemoryDocuments()
	confirm := &countingConfirmer{answer: true}
	g, _ := newGateway(docs, confirm)
	if err := g.SoftDelete(context.Background(), record.CollectionQueries, nil, nil); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(confirm.asked) != 0 || len(docs.writes()) != 0 {
		t.Fatal("empty soft delete must not prompt or write")
	}
}

func TestSoftDeleteRemovesExactlyTargets(t *testing.T) {
	docs := newMemoryDocuments()
	queries := seedQueries(docs, 4)
	view := viewmodel.NewStore[record.Query]()
	view.ReplaceSnapshot(1, queries)
	view.ToggleSelect("q1")
	view.ToggleSelect("q3")

	confirm := &countingConfirmer{answer: true}
	g, rec := newGateway(docs, confirm)

	if err := g.SoftDelete(context.Background(), record.CollectionQueries, view.Selected(), view); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	if len(confirm.asked) != 1 {
		t.Fatalf("expected one prompt, got %d", len(confirm.asked))
	}

	remaining := view.Filtered()
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(remaining))
	}
	for _, q := range remaining {
		if q.ID == "q1" || q.ID == "q3" {
			t.Fatalf("%s still visible", q.ID)
		}
		var orig record.Query
		for _, o := range queries {
			if o.ID == q.ID {
				orig = o
			}
		}
		if q != orig {
			t.Fatalf("untouched query %s changed: %+v", q.ID, q)
		}
	}
	if len(view.Selected()) != 0 {
		t.Fatalf("selection should be cleared, got %v", view.Selected())
	}
	for _, w := range docs.writes() {
		if w.Fields["deleted"] != 1 || len(w.Fields) != 1 {
			t.Fatalf("soft delete must only set deleted, got %+v", w.Fields)
		}
	}
	if last, _ := rec.Last(); last.Level != notice.Success {
		t.Fatalf("expected success notice, got %+v", last)
	}
}

func TestSoftDeleteFailureKeepsSelection(t *testing.T) {
	docs := newMemoryDocuments()
	queries := seedQueries(docs, 3)
	docs.failOn = "q2"
	view := viewmodel.NewStore[record.Query]()
	view.ReplaceSnapshot(1, queries)
	view.ToggleSelect("q1")
	view.ToggleSelect("q2")

	g, rec := newGateway(docs, AlwaysConfirm)
	err := g.SoftDelete(context.Background(), record.CollectionQueries, view.Selected(), view)
	if !errors.Is(err, apperr.ErrNetworkFailure) {
		t.Fatalf("expected ErrNetworkFailure, got %v", err)
	}
	if got := view.Selected(); len(got) != 2 {
		t.Fatalf("selection must be unchanged, got %v", got)
	}
	if len(view.Filtered()) != 3 {
		t.Fatal("working copy must be unchanged on failure")
	}
	if last, _ := rec.Last(); last.Level != notice.Error {
		t.Fatalf("expected error notice, got %+v", last)
	}
}

func TestAttachReply(t *testing.T) {
	ctx := context.Background()
	docs := newMemoryDocuments()
	queries := seedQueries(docs, 1)
	view := viewmodel.NewStore[record.Query]()
	view.ReplaceSnapshot(1, queries)
	view.Open("q1")
	g, _ := newGateway(docs, AlwaysConfirm)

	for _, text := range []string{"", "   ", "\n\t"} {
		err := g.AttachReply(ctx, record.CollectionQueries, "q1", text, view)
		if !errors.Is(err, apperr.ErrEmptyInput) {
			t.Fatalf("%q: expected ErrEmptyInput, got %v", text, err)
		}
	}
	if n := len(docs.writes()); n != 0 {
		t.Fatalf("empty replies reached the backend %d times", n)
	}

	if err := g.AttachReply(ctx, record.CollectionQueries, "q1", "ok", view); err != nil {
		t.Fatalf("reply: %v", err)
	}

	doc, _, _ := docs.GetDocument(ctx, record.CollectionQueries, "q1")
	stored, err := record.DecodeQuery(doc.ID, doc.Fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Status != record.StatusReplied || stored.AdminReply != "ok" || stored.AdminReplyAt.IsZero() {
		t.Fatalf("unexpected stored query %+v", stored)
	}

	got, _ := view.Get("q1")
	if got.Status != record.StatusReplied || got.AdminReplyAt.IsZero() {
		t.Fatalf("view not updated: %+v", got)
	}
	if _, open := view.Opened(); open {
		t.Fatal("opened query should close after reply")
	}
}

func TestFetchSecureAssetURL(t *testing.T) {
	ctx := context.Background()
	g, rec := newGateway(newMemoryDocuments(), AlwaysConfirm)
	if err := g.Objects.Upload(ctx, "invoices/SD-1.pdf", []byte("%PDF")); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if _, err := g.FetchSecureAssetURL(ctx, "  "); !errors.Is(err, apperr.ErrAssetUnavailable) {
		t.Fatalf("empty path: expected ErrAssetUnavailable, got %v", err)
	}

	url, err := g.FetchSecureAssetURL(ctx, "invoices/SD-1.pdf")
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	if !strings.Contains(url, "invoices/SD-1.pdf") {
		t.Fatalf("unexpected url %s", url)
	}

	if _, err := g.FetchSecureAssetURL(ctx, "invoices/missing.pdf"); !errors.Is(err, apperr.ErrAssetUnavailable) || errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("missing: expected plain ErrAssetUnavailable, got %v", err)
	}

	g.Session = gate{allow: false}
	_, err = g.FetchSecureAssetURL(ctx, "invoices/SD-1.pdf")
	if !errors.Is(err, apperr.ErrAssetUnavailable) || !errors.Is(err, apperr.ErrAuthRequired) {
		t.Fatalf("denied: expected asset unavailable with auth required, got %v", err)
	}
	if got := apperr.Message(err); got != "This file requires authentication. Please try again." {
		t.Fatalf("unexpected message %q", got)
	}
	if last, _ := rec.Last(); last.Title != "Unable to Load Invoice" {
		t.Fatalf("unexpected notice %+v", last)
	}
}

func TestAddProduct(t *testing.T) {
	ctx := context.Background()
	docs := newMemoryDocuments()
	g, _ := newGateway(docs, AlwaysConfirm)

	if _, err := g.AddProduct(ctx, NewProduct{Title: " ", Price: 10}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("blank title: expected ErrInvalidInput, got %v", err)
	}
	if _, err := g.AddProduct(ctx, NewProduct{Title: "Mug", Price: 0}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("zero price: expected ErrInvalidInput, got %v", err)
	}

	id, err := g.AddProduct(ctx, NewProduct{
		Title:    "Stoneware Mug",
		Category: "Kitchen",
		Price:    18.5,
		Stock:    12,
		Images: []Image{
			{Name: "front.jpg", Data: []byte("front")},
			{Name: "../side.jpg", Data: []byte("side")},
		},
	})
	if err != nil {
		t.Fatalf("add product: %v", err)
	}

	doc, ok, _ := docs.GetDocument(ctx, record.CollectionProducts, id)
	if !ok {
		t.Fatal("product document missing")
	}
	p, err := record.DecodeProduct(doc.ID, doc.Fields)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Status != "Active" || p.Deleted != 0 || p.CreatedAt.IsZero() {
		t.Fatalf("unexpected product %+v", p)
	}
	stamp := fixedNow.UnixNano()
	want := []string{
		fmt.Sprintf("products/%d_0_front.jpg", stamp),
		fmt.Sprintf("products/%d_1_side.jpg", stamp),
	}
	if len(p.Images) != 2 || p.Images[0] != want[0] || p.Images[1] != want[1] {
		t.Fatalf("unexpected image paths %v", p.Images)
	}
}

func TestReportGroupsByStatus(t *testing.T) {
	docs := newMemoryDocuments()
	seedOrders(docs, record.StatusProcessing, record.StatusDelivered, record.StatusCancelled, record.StatusDelivered)
	docs.put(record.CollectionOrders, "gone", map[string]interface{}{
		"status":    "delivered",
		"total":     1000.0,
		"deleted":   1,
		"createdAt": fixedNow.Add(-time.Hour).Format(time.RFC3339),
	})
	docs.put(record.CollectionFailedOrders, "f1", map[string]interface{}{
		"total":     5.0,
		"createdAt": fixedNow.Add(-time.Hour).Format(time.RFC3339),
	})
	g, _ := newGateway(docs, AlwaysConfirm)

	res, err := g.Report(context.Background(), fixedNow, fixedNow.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if res.Total != 4 || res.Failed != 1 {
		t.Fatalf("unexpected totals %d/%d", res.Total, res.Failed)
	}
	// o1 10 processing, o2 20 delivered, o3 30 cancelled, o4 40 delivered.
	if res.Revenue != 70 {
		t.Fatalf("expected revenue 70, got %v", res.Revenue)
	}
	var statuses []record.Status
	for _, s := range res.Sections {
		statuses = append(statuses, s.Status)
	}
	want := []record.Status{record.StatusProcessing, record.StatusDelivered, record.StatusCancelled}
	if fmt.Sprint(statuses) != fmt.Sprint(want) {
		t.Fatalf("unexpected section order %v", statuses)
	}
}
