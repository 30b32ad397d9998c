package app

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/apperr"
	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/metrics"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// Operation names used for metrics and logs.
const (
	OpChangeStatus = "change_status"
	OpSoftDelete   = "soft_delete"
	OpAttachReply  = "attach_reply"
	OpAssetURL     = "asset_url"
	OpAddProduct   = "add_product"
)

// Confirmation is the text of a yes/no prompt.
type Confirmation struct {
	Title  string
	Text   string
	Accept string
}

// Confirmer asks the user to accept an irreversible action.
type Confirmer interface {
	Confirm(ctx context.Context, c Confirmation) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, c Confirmation) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, c Confirmation) (bool, error) {
	return f(ctx, c)
}

// AlwaysConfirm accepts every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, Confirmation) (bool, error) {
	return true, nil
})

// Authorizer is the session gate every mutation passes through.
type Authorizer interface {
	Authorize(ctx context.Context) (context.Context, error)
}

// Selection is the part of a projection store soft delete touches.
type Selection interface {
	Remove(ids ...string)
	ClearSelection()
}

// Gateway issues guarded point updates against individual records.
// It is shared by the CLI, the MCP tools and the HTTP surface.
type Gateway struct {
	Documents store.Documents
	Objects   store.Objects
	Session   Authorizer
	Confirm   Confirmer
	Notify    notice.Notifier
	Log       *zap.Logger
	Metrics   *metrics.Recorder
	Now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// InFlight reports whether a mutation for id is pending.
func (g *Gateway) InFlight(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.inFlight[id]
	return ok
}

// begin marks every id as in flight, or none of them when any already is.
func (g *Gateway) begin(ids ...string) (func(), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight == nil {
		g.inFlight = make(map[string]struct{})
	}
	for _, id := range ids {
		if _, ok := g.inFlight[id]; ok {
			return nil, false
		}
	}
	for _, id := range ids {
		g.inFlight[id] = struct{}{}
	}
	return func() {
		g.mu.Lock()
		for _, id := range ids {
			delete(g.inFlight, id)
		}
		g.mu.Unlock()
	}, true
}

// ChangeStatus moves an order to status to. Equal status is a no-op,
// delivered orders are locked, and moving to delivered must be confirmed.
// view, when not nil, receives the new status once the backend accepts it.
func (g *Gateway) ChangeStatus(ctx context.Context, order record.Order, to record.Status, view *viewmodel.Store[record.Order]) error {
	tr, err := record.OrderTransition(order.Status, to)
	if errors.Is(err, record.ErrSameStatus) {
		return nil
	}
	if err != nil {
		title := "Invalid status"
		if errors.Is(err, apperr.ErrLockedState) {
			title = "Locked"
		}
		return g.fail(OpChangeStatus, title, err)
	}

	done, ok := g.begin(order.ID)
	if !ok {
		return g.fail(OpChangeStatus, "Update pending",
			apperr.New(OpChangeStatus, apperr.ErrUpdatePending, fmt.Sprintf("Order %s is already being updated.", order.Number())))
	}
	defer done()

	if tr.NeedsConfirm {
		if err := g.confirm(ctx, OpChangeStatus, Confirmation{
			Title:  "Mark Order as Delivered?",
			Text:   "Once marked, you cannot change it again.",
			Accept: "Yes",
		}); err != nil {
			return err
		}
	}

	ctx, err = g.authorize(ctx, OpChangeStatus)
	if err != nil {
		return err
	}

	if err := g.Documents.UpdateFields(ctx, record.CollectionOrders, order.ID, map[string]interface{}{
		"status":    string(tr.To),
		"updatedAt": store.ServerTimestamp,
	}); err != nil {
		return g.fail(OpChangeStatus, "Failed",
			apperr.Wrap(OpChangeStatus, apperr.ErrNetworkFailure, err, "Unable to update status. Try again later."))
	}

	if view != nil {
		now := record.Timestamp{Time: g.now()}
		view.Update(order.ID, func(o record.Order) record.Order {
			o.Status = tr.To
			o.UpdatedAt = now
			return o
		})
	}
	g.succeed(OpChangeStatus, "Updated", fmt.Sprintf("Order marked as %s", tr.To))
	g.logger().Info("order status changed",
		zap.String("id", order.ID),
		zap.Stringer("from", tr.From),
		zap.Stringer("to", tr.To))
	return nil
}

// SoftDelete flags every id in collection as deleted. Nothing happens for
// an empty id list. On success the ids leave view and its selection is
// cleared; on failure the selection is left as it was.
func (g *Gateway) SoftDelete(ctx context.Context, collection string, ids []string, view Selection) error {
	if len(ids) == 0 {
		return nil
	}

	done, ok := g.begin(ids...)
	if !ok {
		return g.fail(OpSoftDelete, "Update pending",
			apperr.New(OpSoftDelete, apperr.ErrUpdatePending, "A selected record is already being updated."))
	}
	defer done()

	if err := g.confirm(ctx, OpSoftDelete, Confirmation{
		Title:  "Are you sure?",
		Text:   fmt.Sprintf("%d selected %s will be deleted.", len(ids), plural(len(ids), "item", "items")),
		Accept: "Yes, delete",
	}); err != nil {
		return err
	}

	ctx, err := g.authorize(ctx, OpSoftDelete)
	if err != nil {
		return err
	}

	for _, id := range ids {
		if err := g.Documents.UpdateFields(ctx, collection, id, map[string]interface{}{
			"deleted": 1,
		}); err != nil {
			return g.fail(OpSoftDelete, "Error",
				apperr.Wrap(OpSoftDelete, apperr.ErrNetworkFailure, err, "Failed to delete the selected records."))
		}
	}

	if view != nil {
		view.Remove(ids...)
		view.ClearSelection()
	}
	g.succeed(OpSoftDelete, "Deleted!", "Selected records were deleted.")
	g.logger().Info("records soft deleted", zap.String("collection", collection), zap.Strings("ids", ids))
	return nil
}

// AttachReply records an admin reply on a contact query and marks it
// replied. The opened record in view, if any, is closed on success.
func (g *Gateway) AttachReply(ctx context.Context, collection, id, text string, view *viewmodel.Store[record.Query]) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return g.fail(OpAttachReply, "Empty reply",
			apperr.New(OpAttachReply, apperr.ErrEmptyInput, "Reply cannot be empty."))
	}

	done, ok := g.begin(id)
	if !ok {
		return g.fail(OpAttachReply, "Update pending",
			apperr.New(OpAttachReply, apperr.ErrUpdatePending, "This query is already being updated."))
	}
	defer done()

	ctx, err := g.authorize(ctx, OpAttachReply)
	if err != nil {
		return err
	}

	if err := g.Documents.UpdateFields(ctx, collection, id, map[string]interface{}{
		"adminReply":   text,
		"adminReplyAt": store.ServerTimestamp,
		"status":       string(record.StatusReplied),
	}); err != nil {
		return g.fail(OpAttachReply, "Failed",
			apperr.Wrap(OpAttachReply, apperr.ErrNetworkFailure, err, "Unable to send the reply. Try again later."))
	}

	if view != nil {
		now := record.Timestamp{Time: g.now()}
		view.Update(id, func(q record.Query) record.Query {
			q.AdminReply = text
			q.AdminReplyAt = now
			q.Status = record.StatusReplied
			return q
		})
		view.CloseOpen()
	}
	g.succeed(OpAttachReply, "Reply Sent", "Your reply has been saved.")
	g.logger().Info("query replied", zap.String("collection", collection), zap.String("id", id))
	return nil
}

// FetchSecureAssetURL resolves a stored object path to a signed URL.
func (g *Gateway) FetchSecureAssetURL(ctx context.Context, objectPath string) (string, error) {
	const title = "Unable to Load Invoice"
	if strings.TrimSpace(objectPath) == "" {
		return "", g.fail(OpAssetURL, title,
			apperr.New(OpAssetURL, apperr.ErrAssetUnavailable, "Invoice not available for this order."))
	}

	if g.Session != nil {
		authed, err := g.Session.Authorize(ctx)
		if err != nil {
			return "", g.fail(OpAssetURL, title, authRequired(err))
		}
		ctx = authed
	}

	url, err := g.Objects.SignedURL(ctx, objectPath)
	switch {
	case err == nil:
		g.Metrics.Mutation(OpAssetURL, metrics.OutcomeOK)
		return url, nil
	case errors.Is(err, store.ErrPermissionDenied):
		return "", g.fail(OpAssetURL, title, authRequired(err))
	case errors.Is(err, store.ErrNotFound):
		return "", g.fail(OpAssetURL, title,
			apperr.Wrap(OpAssetURL, apperr.ErrAssetUnavailable, err, "The requested file does not exist."))
	default:
		return "", g.fail(OpAssetURL, title,
			apperr.Wrap(OpAssetURL, apperr.ErrAssetUnavailable, fmt.Errorf("%w: %w", apperr.ErrNetworkFailure, err), "Unable to load the file. Try again later."))
	}
}

func authRequired(cause error) error {
	return apperr.Wrap(OpAssetURL, apperr.ErrAssetUnavailable,
		fmt.Errorf("%w: %w", apperr.ErrAuthRequired, cause),
		"This file requires authentication. Please try again.")
}

// Image is one product picture to upload.
type Image struct {
	Name string
	Data []byte
}

// NewProduct is the input of AddProduct.
type NewProduct struct {
	Title       string
	Subtitle    string
	Category    string
	Status      string
	Price       float64
	SKU         string
	Stock       int
	Ribbon      string
	Description string
	Images      []Image
}

// AddProduct uploads the images and creates the product document.
func (g *Gateway) AddProduct(ctx context.Context, p NewProduct) (string, error) {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return "", g.fail(OpAddProduct, "Invalid product",
			apperr.New(OpAddProduct, apperr.ErrInvalidInput, "Product title is required."))
	}
	if p.Price <= 0 {
		return "", g.fail(OpAddProduct, "Invalid product",
			apperr.New(OpAddProduct, apperr.ErrInvalidInput, "Product price must be greater than zero."))
	}
	if p.Stock < 0 {
		return "", g.fail(OpAddProduct, "Invalid product",
			apperr.New(OpAddProduct, apperr.ErrInvalidInput, "Stock cannot be negative."))
	}
	if p.Status == "" {
		p.Status = "Active"
	}

	ctx, err := g.authorize(ctx, OpAddProduct)
	if err != nil {
		return "", err
	}

	stamp := g.now().UnixNano()
	images := make([]string, 0, len(p.Images))
	for i, img := range p.Images {
		objectPath := fmt.Sprintf("products/%d_%d_%s", stamp, i, imageName(img.Name))
		if err := g.Objects.Upload(ctx, objectPath, img.Data); err != nil {
			return "", g.fail(OpAddProduct, "Upload failed",
				apperr.Wrap(OpAddProduct, apperr.ErrNetworkFailure, err, "Unable to upload product images."))
		}
		images = append(images, objectPath)
	}

	id, err := g.Documents.AddDocument(ctx, record.CollectionProducts, map[string]interface{}{
		"title":       p.Title,
		"subtitle":    p.Subtitle,
		"category":    p.Category,
		"status":      p.Status,
		"price":       p.Price,
		"sku":         p.SKU,
		"stock":       p.Stock,
		"ribbon":      p.Ribbon,
		"description": p.Description,
		"images":      images,
		"deleted":     0,
		"createdAt":   store.ServerTimestamp,
		"updatedAt":   store.ServerTimestamp,
	})
	if err != nil {
		return "", g.fail(OpAddProduct, "Failed",
			apperr.Wrap(OpAddProduct, apperr.ErrNetworkFailure, err, "Unable to save the product."))
	}
	g.succeed(OpAddProduct, "Product added", fmt.Sprintf("%s is now listed.", p.Title))
	g.logger().Info("product added", zap.String("id", id), zap.Int("images", len(images)))
	return id, nil
}

func (g *Gateway) confirm(ctx context.Context, op string, c Confirmation) error {
	confirmer := g.Confirm
	if confirmer == nil {
		confirmer = AlwaysConfirm
	}
	ok, err := confirmer.Confirm(ctx, c)
	if err != nil {
		return g.fail(op, c.Title, apperr.Wrap(op, apperr.ErrDeclined, err, "Confirmation was not completed."))
	}
	if !ok {
		g.Metrics.Mutation(op, metrics.OutcomeDeclined)
		return apperr.New(op, apperr.ErrDeclined, "Cancelled.")
	}
	return nil
}

func (g *Gateway) authorize(ctx context.Context, op string) (context.Context, error) {
	if g.Session == nil {
		return ctx, nil
	}
	authed, err := g.Session.Authorize(ctx)
	if err != nil {
		return ctx, g.fail(op, "Authentication required", err)
	}
	return authed, nil
}

func (g *Gateway) fail(op, title string, err error) error {
	outcome, level := classify(err)
	g.Metrics.Mutation(op, outcome)
	if outcome != metrics.OutcomeDeclined {
		g.notify(notice.Notice{Level: level, Title: title, Text: apperr.Message(err)})
	}
	g.logger().Warn("mutation rejected", zap.String("op", op), zap.String("outcome", outcome), zap.Error(err))
	return err
}

func (g *Gateway) succeed(op, title, text string) {
	g.Metrics.Mutation(op, metrics.OutcomeOK)
	g.notify(notice.Notice{Level: notice.Success, Title: title, Text: text})
}

func classify(err error) (string, notice.Level) {
	switch apperr.KindOf(err) {
	case apperr.ErrDeclined:
		return metrics.OutcomeDeclined, notice.Info
	case apperr.ErrUpdatePending:
		return metrics.OutcomePending, notice.Info
	case apperr.ErrLockedState:
		return metrics.OutcomeRejected, notice.Info
	case apperr.ErrInvalidInput, apperr.ErrEmptyInput, apperr.ErrAuthRequired:
		return metrics.OutcomeRejected, notice.Warning
	}
	return metrics.OutcomeFailed, notice.Error
}

func (g *Gateway) notify(n notice.Notice) {
	if g.Notify != nil {
		g.Notify.Notify(n)
	}
}

func (g *Gateway) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *Gateway) logger() *zap.Logger {
	return logging.OrNop(g.Log)
}

func imageName(name string) string {
	name = path.Base("/" + strings.ReplaceAll(name, "\\", "/"))
	if name == "/" || name == "." {
		return "image"
	}
	return name
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
