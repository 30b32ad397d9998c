package app

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

// ReportSection groups the orders of one status.
type ReportSection struct {
	Status  record.Status
	Orders  []record.Order
	Revenue float64
}

// ReportResult summarises orders placed within a time window.
type ReportResult struct {
	Since    time.Time
	Until    time.Time
	Sections []ReportSection
	Total    int
	Revenue  float64
	// Failed counts failed checkouts in the same window.
	Failed int
}

// Report returns the non-deleted orders created between the bounds,
// grouped by status in lifecycle order.
func (g *Gateway) Report(ctx context.Context, since, until time.Time) (ReportResult, error) {
	if since.After(until) {
		since, until = until, since
	}
	ctx, err := g.authorize(ctx, "report")
	if err != nil {
		return ReportResult{}, err
	}

	orders, err := g.window(ctx, record.CollectionOrders, since, until, record.DecodeOrder)
	if err != nil {
		return ReportResult{}, err
	}
	failed, err := g.window(ctx, record.CollectionFailedOrders, since, until, record.DecodeOrder)
	if err != nil {
		return ReportResult{}, err
	}

	grouped := make(map[record.Status]*ReportSection)
	result := ReportResult{Since: since, Until: until, Failed: len(failed)}
	for _, o := range orders {
		section, ok := grouped[o.Status]
		if !ok {
			section = &ReportSection{Status: o.Status}
			grouped[o.Status] = section
		}
		section.Orders = append(section.Orders, o)
		result.Total++
		if o.Status == record.StatusCancelled {
			continue
		}
		section.Revenue += o.Total
		result.Revenue += o.Total
	}

	rank := make(map[record.Status]int)
	for i, s := range record.OrderStatuses() {
		rank[s] = i + 1
	}
	for _, section := range grouped {
		sort.SliceStable(section.Orders, func(i, j int) bool {
			return section.Orders[i].CreatedAt.Before(section.Orders[j].CreatedAt.Time)
		})
		result.Sections = append(result.Sections, *section)
	}
	sort.Slice(result.Sections, func(i, j int) bool {
		ri, rj := rank[result.Sections[i].Status], rank[result.Sections[j].Status]
		if ri == 0 || rj == 0 {
			// Unknown statuses go last, alphabetically.
			if ri != rj {
				return ri != 0
			}
			return result.Sections[i].Status < result.Sections[j].Status
		}
		return ri < rj
	})
	return result, nil
}

func (g *Gateway) window(ctx context.Context, collection string, since, until time.Time, decode record.Decoder[record.Order]) ([]record.Order, error) {
	docs, err := g.Documents.List(ctx, store.Query{Collection: collection, OrderBy: "createdAt"})
	if err != nil {
		return nil, g.fail("report", "Report failed",
			apperr.Wrap("report", apperr.ErrNetworkFailure, err, "Unable to load orders."))
	}
	var out []record.Order
	for _, doc := range docs {
		o, err := decode(doc.ID, doc.Fields)
		if err != nil {
			g.logger().Warn("document skipped", zap.String("collection", collection), zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		at := o.CreatedAt.Time
		if o.IsDeleted() || at.Before(since) || at.After(until) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}
