// Package mcp provides the Model Context Protocol server integration for shopdesk.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/app"
	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/dashboard"
	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// Gate authorizes reads and tracks nothing; MCP calls are one-shot.
type Gate interface {
	Authorize(ctx context.Context) (context.Context, error)
}

// Service coordinates the store reads and gateway mutations shared by the MCP server.
type Service struct {
	Documents store.Documents
	Gateway   *app.Gateway
	Session   Gate
	Log       *zap.Logger
}

// ErrRecordNotFound is returned when a record cannot be located.
var ErrRecordNotFound = errors.New("record not found")

// ListOptions narrows a listing the same way the console views do.
type ListOptions struct {
	Collection string
	Status     string
	Search     string
	Sort       viewmodel.SortOrder
	Page       int
}

// OrderDTO is a transport-friendly projection of an order.
type OrderDTO struct {
	ID          string  `json:"id"`
	OrderNumber string  `json:"orderNumber"`
	Name        string  `json:"name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	Total       float64 `json:"total"`
	Payment     string  `json:"payment"`
	Status      string  `json:"status"`
	Locked      bool    `json:"locked"`
	HasInvoice  bool    `json:"hasInvoice"`
	CreatedISO  string  `json:"created,omitempty"`
}

// QueryDTO is a transport-friendly projection of a contact query.
type QueryDTO struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Message    string `json:"message"`
	Status     string `json:"status"`
	Reply      string `json:"reply,omitempty"`
	RepliedISO string `json:"replied,omitempty"`
	CreatedISO string `json:"created,omitempty"`
}

// PageDTO is one page of a listing.
type PageDTO[T any] struct {
	Items      []T `json:"items"`
	Page       int `json:"page"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// NewService builds a service over docs and the mutation gateway.
func NewService(docs store.Documents, gw *app.Gateway, session Gate) *Service {
	return &Service{Documents: docs, Gateway: gw, Session: session}
}

// ListOrders returns one page of successful orders.
func (s *Service) ListOrders(ctx context.Context, opts ListOptions) (PageDTO[OrderDTO], error) {
	orders, err := load(ctx, s, record.CollectionOrders, record.DecodeOrder)
	if err != nil {
		return PageDTO[OrderDTO]{}, err
	}
	page := viewmodel.Paginate(viewmodel.Derive(orders, opts.Status, opts.Search, opts.Sort), opts.Page, viewmodel.PageSize)
	return toPage(page, toOrderDTO), nil
}

// ChangeOrderStatus moves an order to status. Moving to delivered needs
// confirm.
func (s *Service) ChangeOrderStatus(ctx context.Context, id, status string, confirm bool) (*OrderDTO, error) {
	if s.Gateway == nil {
		return nil, errors.New("gateway is not configured")
	}
	order, err := s.order(ctx, id)
	if err != nil {
		return nil, err
	}
	to, err := record.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	if err := s.Gateway.ChangeStatus(WithConfirmed(ctx, confirm), order, to, nil); err != nil {
		return nil, err
	}
	updated, err := s.order(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toOrderDTO(updated)
	return &dto, nil
}

// InvoiceURL returns a signed download URL for the order's invoice.
func (s *Service) InvoiceURL(ctx context.Context, orderID string) (string, error) {
	if s.Gateway == nil {
		return "", errors.New("gateway is not configured")
	}
	order, err := s.order(ctx, orderID)
	if err != nil {
		return "", err
	}
	return s.Gateway.FetchSecureAssetURL(ctx, order.InvoicePath)
}

// ListQueries returns one page of contact queries from opts.Collection.
func (s *Service) ListQueries(ctx context.Context, opts ListOptions) (PageDTO[QueryDTO], error) {
	collection, err := queryCollection(opts.Collection)
	if err != nil {
		return PageDTO[QueryDTO]{}, err
	}
	queries, err := load(ctx, s, collection, record.DecodeQuery)
	if err != nil {
		return PageDTO[QueryDTO]{}, err
	}
	page := viewmodel.Paginate(viewmodel.Derive(queries, opts.Status, opts.Search, opts.Sort), opts.Page, viewmodel.PageSize)
	return toPage(page, func(q record.Query) QueryDTO { return toQueryDTO(collection, q) }), nil
}

// QueryByID fetches a single contact query.
func (s *Service) QueryByID(ctx context.Context, collection, id string) (*QueryDTO, error) {
	collection, err := queryCollection(collection)
	if err != nil {
		return nil, err
	}
	q, err := get(ctx, s, collection, id, record.DecodeQuery)
	if err != nil {
		return nil, err
	}
	dto := toQueryDTO(collection, q)
	return &dto, nil
}

// ReplyQuery attaches an admin reply and marks the query replied.
func (s *Service) ReplyQuery(ctx context.Context, collection, id, text string) (*QueryDTO, error) {
	if s.Gateway == nil {
		return nil, errors.New("gateway is not configured")
	}
	collection, err := queryCollection(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.QueryByID(ctx, collection, id); err != nil {
		return nil, err
	}
	if err := s.Gateway.AttachReply(ctx, collection, id, text, nil); err != nil {
		return nil, err
	}
	return s.QueryByID(ctx, collection, id)
}

// DeleteQueries soft deletes ids. Nothing happens without confirm.
func (s *Service) DeleteQueries(ctx context.Context, collection string, ids []string, confirm bool) (int, error) {
	if s.Gateway == nil {
		return 0, errors.New("gateway is not configured")
	}
	collection, err := queryCollection(collection)
	if err != nil {
		return 0, err
	}
	cleaned := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			cleaned = append(cleaned, id)
		}
	}
	if err := s.Gateway.SoftDelete(WithConfirmed(ctx, confirm), collection, cleaned, nil); err != nil {
		return 0, err
	}
	return len(cleaned), nil
}

// Dashboard counts every dashboard tile once.
func (s *Service) Dashboard(ctx context.Context) (dashboard.Counts, error) {
	if s.Documents == nil {
		return dashboard.Counts{}, errors.New("documents are not configured")
	}
	var gate viewmodel.Gate
	if s.Session != nil {
		gate = untracked{s.Session}
	}
	return dashboard.Read(ctx, s.Documents, gate)
}

func (s *Service) order(ctx context.Context, id string) (record.Order, error) {
	return get(ctx, s, record.CollectionOrders, id, record.DecodeOrder)
}

func (s *Service) authorize(ctx context.Context) (context.Context, error) {
	if s.Documents == nil {
		return ctx, errors.New("documents are not configured")
	}
	if s.Session == nil {
		return ctx, nil
	}
	return s.Session.Authorize(ctx)
}

func (s *Service) logger() *zap.Logger {
	return logging.OrNop(s.Log)
}

func load[T record.Record](ctx context.Context, s *Service, collection string, decode record.Decoder[T]) ([]T, error) {
	ctx, err := s.authorize(ctx)
	if err != nil {
		return nil, err
	}
	docs, err := s.Documents.List(ctx, store.Query{Collection: collection})
	if err != nil {
		return nil, apperr.Wrap("list", apperr.ErrNetworkFailure, err, "Unable to load records. Try again later.")
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := decode(doc.ID, doc.Fields)
		if err != nil {
			s.logger().Warn("skipping undecodable document",
				zap.String("collection", collection), zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func get[T record.Record](ctx context.Context, s *Service, collection, id string, decode record.Decoder[T]) (T, error) {
	var zero T
	id = strings.TrimSpace(id)
	if id == "" {
		return zero, errors.New("id is required")
	}
	ctx, err := s.authorize(ctx)
	if err != nil {
		return zero, err
	}
	doc, found, err := s.Documents.GetDocument(ctx, collection, id)
	if err != nil {
		return zero, apperr.Wrap("get", apperr.ErrNetworkFailure, err, "Unable to load the record. Try again later.")
	}
	if !found {
		return zero, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, collection, id)
	}
	item, err := decode(doc.ID, doc.Fields)
	if err != nil {
		return zero, err
	}
	if item.IsDeleted() {
		return zero, fmt.Errorf("%w: %s/%s", ErrRecordNotFound, collection, id)
	}
	return item, nil
}

func queryCollection(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "web", strings.ToLower(record.CollectionQueries):
		return record.CollectionQueries, nil
	case "mobile", "app", strings.ToLower(record.CollectionMobileQueries):
		return record.CollectionMobileQueries, nil
	}
	return "", fmt.Errorf("unknown query source %q (expected web or mobile)", name)
}

func toPage[T any, D any](page viewmodel.Page[T], conv func(T) D) PageDTO[D] {
	items := make([]D, 0, len(page.Items))
	for _, item := range page.Items {
		items = append(items, conv(item))
	}
	return PageDTO[D]{Items: items, Page: page.Page, TotalPages: page.TotalPages, Total: page.Total}
}

func toOrderDTO(o record.Order) OrderDTO {
	return OrderDTO{
		ID:          o.ID,
		OrderNumber: o.Number(),
		Name:        o.Customer.Name,
		Email:       o.Customer.Email,
		Phone:       o.Customer.Phone,
		Total:       o.Total,
		Payment:     o.PaymentStatus(),
		Status:      string(o.Status),
		Locked:      o.Status.Terminal(),
		HasInvoice:  o.InvoicePath != "",
		CreatedISO:  iso(o.CreatedAt),
	}
}

func toQueryDTO(collection string, q record.Query) QueryDTO {
	return QueryDTO{
		ID:         q.ID,
		Collection: collection,
		Name:       q.Name,
		Email:      q.Email,
		Phone:      q.Phone,
		Message:    q.Message,
		Status:     string(q.Status),
		Reply:      q.AdminReply,
		RepliedISO: iso(q.AdminReplyAt),
		CreatedISO: iso(q.CreatedAt),
	}
}

func iso(ts record.Timestamp) string {
	if ts.IsZero() {
		return ""
	}
	return ts.UTC().Format(time.RFC3339)
}

// untracked adapts a one-shot gate to viewmodel.Gate.
type untracked struct {
	Gate
}

func (untracked) Track(func()) func() { return func() {} }

type confirmedKey struct{}

// WithConfirmed records whether the caller accepted destructive actions.
func WithConfirmed(ctx context.Context, ok bool) context.Context {
	return context.WithValue(ctx, confirmedKey{}, ok)
}

// Confirmed answers gateway prompts from the flag set by WithConfirmed.
var Confirmed app.Confirmer = app.ConfirmFunc(func(ctx context.Context, _ app.Confirmation) (bool, error) {
	ok, _ := ctx.Value(confirmedKey{}).(bool)
	return ok, nil
})
