// Package dashboard keeps live record counts for the console landing page.
package dashboard

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/metrics"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// Counter names one dashboard tile.
type Counter string

const (
	TotalUsers    Counter = "totalUsers"
	AdminUsers    Counter = "adminUsers"
	TotalProducts Counter = "totalProducts"
	SuccessOrders Counter = "successOrders"
	FailedOrders  Counter = "failedOrders"
	DiscountCodes Counter = "discountCodes"
	MobileQueries Counter = "mobileQueries"
)

// Counters lists the tiles in display order.
func Counters() []Counter {
	return []Counter{TotalUsers, AdminUsers, TotalProducts, SuccessOrders, FailedOrders, DiscountCodes, MobileQueries}
}

// Query is the subscription backing c.
func (c Counter) Query() store.Query {
	switch c {
	case TotalUsers:
		return store.Query{Collection: record.CollectionUsers}
	case AdminUsers:
		return store.Query{Collection: record.CollectionUsers, Where: []store.Filter{{Field: "admin", Value: 1}}}
	case TotalProducts:
		return store.Query{Collection: record.CollectionProducts, Where: []store.Filter{{Field: "deleted", Value: 0}}}
	case SuccessOrders:
		return store.Query{Collection: record.CollectionOrders}
	case FailedOrders:
		return store.Query{Collection: record.CollectionFailedOrders}
	case DiscountCodes:
		return store.Query{Collection: record.CollectionDiscountCodes}
	case MobileQueries:
		return store.Query{Collection: record.CollectionMobileQueries}
	}
	return store.Query{}
}

// Counts is one reading of every tile. Loading stays true until the first
// snapshot of any counter lands.
type Counts struct {
	TotalUsers    int
	AdminUsers    int
	TotalProducts int
	SuccessOrders int
	FailedOrders  int
	DiscountCodes int
	MobileQueries int
	Loading       bool
}

// Get returns the value of one tile.
func (c Counts) Get(counter Counter) int {
	switch counter {
	case TotalUsers:
		return c.TotalUsers
	case AdminUsers:
		return c.AdminUsers
	case TotalProducts:
		return c.TotalProducts
	case SuccessOrders:
		return c.SuccessOrders
	case FailedOrders:
		return c.FailedOrders
	case DiscountCodes:
		return c.DiscountCodes
	case MobileQueries:
		return c.MobileQueries
	}
	return 0
}

func (c *Counts) set(counter Counter, n int) {
	switch counter {
	case TotalUsers:
		c.TotalUsers = n
	case AdminUsers:
		c.AdminUsers = n
	case TotalProducts:
		c.TotalProducts = n
	case SuccessOrders:
		c.SuccessOrders = n
	case FailedOrders:
		c.FailedOrders = n
	case DiscountCodes:
		c.DiscountCodes = n
	case MobileQueries:
		c.MobileQueries = n
	}
	c.Loading = false
}

// Read counts every tile once without subscribing.
func Read(ctx context.Context, docs store.Documents, gate viewmodel.Gate) (Counts, error) {
	if gate != nil {
		authed, err := gate.Authorize(ctx)
		if err != nil {
			return Counts{Loading: true}, err
		}
		ctx = authed
	}
	counters := Counters()
	values := make([]int, len(counters))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range counters {
		g.Go(func() error {
			found, err := docs.List(gctx, c.Query())
			if err != nil {
				return err
			}
			values[i] = len(found)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Counts{Loading: true}, err
	}
	var counts Counts
	for i, c := range counters {
		counts.set(c, values[i])
	}
	return counts, nil
}

// Dashboard follows every counter with its own subscription. Counters update
// independently and in no particular order relative to each other.
type Dashboard struct {
	Docs    store.Documents
	Gate    viewmodel.Gate
	Log     *zap.Logger
	Metrics *metrics.Recorder

	// OnChange, when set, receives every new reading. It must not call Stop.
	OnChange func(Counts)

	mu      sync.Mutex
	gen     uint64
	counts  Counts
	subs    []*store.Subscription
	release func()
	wg      sync.WaitGroup
}

// New returns a stopped dashboard.
func New(docs store.Documents, gate viewmodel.Gate) *Dashboard {
	return &Dashboard{Docs: docs, Gate: gate, counts: Counts{Loading: true}}
}

// Start opens every counter subscription concurrently. Either all of them
// open or none stays open.
func (d *Dashboard) Start(ctx context.Context) error {
	d.Stop()

	if d.Gate != nil {
		authed, err := d.Gate.Authorize(ctx)
		if err != nil {
			return err
		}
		ctx = authed
	}

	counters := Counters()
	subs := make([]*store.Subscription, len(counters))
	var g errgroup.Group
	for i, c := range counters {
		g.Go(func() error {
			sub, err := d.Docs.Subscribe(ctx, c.Query())
			if err != nil {
				return err
			}
			subs[i] = sub
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, sub := range subs {
			if sub != nil {
				sub.Cancel()
			}
		}
		d.logger().Warn("dashboard start failed", zap.Error(err))
		return err
	}

	d.mu.Lock()
	d.gen++
	gen := d.gen
	d.subs = subs
	if d.Gate != nil {
		d.release = d.Gate.Track(func() { d.stop(gen) })
	}
	for i, c := range counters {
		d.wg.Add(1)
		go d.follow(gen, c, subs[i])
	}
	d.mu.Unlock()

	d.Metrics.Mounted(len(subs))
	d.logger().Debug("dashboard started", zap.Int("counters", len(subs)))
	return nil
}

func (d *Dashboard) follow(gen uint64, c Counter, sub *store.Subscription) {
	defer d.wg.Done()
	for snap := range sub.Snapshots() {
		if snap.Err != nil {
			d.logger().Warn("counter snapshot failed", zap.String("counter", string(c)), zap.Error(snap.Err))
			continue
		}
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.counts.set(c, len(snap.Docs))
		counts := d.counts
		d.mu.Unlock()

		d.Metrics.Snapshot(sub.Query().Collection)
		if d.OnChange != nil {
			d.OnChange(counts)
		}
	}
}

// Stop cancels every subscription and resets the counts. When it returns
// no counter changes any more.
func (d *Dashboard) Stop() {
	d.mu.Lock()
	gen := d.gen
	d.mu.Unlock()
	d.stop(gen)
}

func (d *Dashboard) stop(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.subs == nil {
		d.mu.Unlock()
		return
	}
	subs, release := d.subs, d.release
	d.subs, d.release = nil, nil
	d.gen++
	d.counts = Counts{Loading: true}
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
	if release != nil {
		release()
	}
	d.wg.Wait()
	d.Metrics.Mounted(-len(subs))
	d.logger().Debug("dashboard stopped")
}

// Counts returns the latest reading.
func (d *Dashboard) Counts() Counts {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counts
}

// Running reports whether subscriptions are open.
func (d *Dashboard) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.subs != nil
}

func (d *Dashboard) logger() *zap.Logger {
	return logging.OrNop(d.Log)
}
