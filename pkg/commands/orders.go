package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/commands/options"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

func statusNames(statuses []record.Status) []string {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	return names
}

func addOrders(topLevel *cobra.Command) {
	lo := &options.ListOptions{}
	io := &options.IDOptions{}

	cmd := &cobra.Command{
		Use:     "orders [status]",
		Aliases: []string{"order-list"},
		Short:   "List successful orders.",
		Example: `
shopdesk orders
shopdesk orders processing --sort oldest
shopdesk orders --search ada --page 2
shopdesk orders --watch
`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: statusNames(record.OrderStatuses()),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := lo.Status
			if len(args) == 1 {
				category = args[0]
			}
			if category != "" {
				s, err := record.ParseOrderStatus(category)
				if err != nil {
					return oo.HandleError(err)
				}
				category = string(s)
			}

			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()
			c.pp.ShowID = io.ShowID

			l := &listing[record.Order]{
				c:        c,
				query:    orderView(),
				decode:   record.DecodeOrder,
				opts:     lo,
				category: category,
				render:   c.pp.Orders,
			}
			return oo.HandleError(l.Do(cmd.Context()))
		},
	}

	options.AddListArgs(cmd, lo, record.OrderStatuses()...)
	options.AddShowIDArgs(cmd, io)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func addOrder(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Work with a single order.",
	}
	addOrderStatus(cmd)
	topLevel.AddCommand(cmd)
}

func addOrderStatus(topLevel *cobra.Command) {
	co := &options.ConfirmOptions{}

	cmd := &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Move an order to a new status.",
		Long: `Move an order to processing, delivered or cancelled.

Delivered orders are locked and can not change again, so marking an order
delivered asks for confirmation first.`,
		Example: `
shopdesk order status 8f1c cancelled
shopdesk order status 8f1c delivered --yes
`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 2 {
				return errors.New("requires an order id and a status")
			}
			return nil
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 1 {
				return statusNames(record.OrderStatuses()), cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := record.ParseOrderStatus(args[1])
			if err != nil {
				return oo.HandleError(err)
			}
			c, err := openConsole(cmd, consoleOptions{signIn: true, yes: co.Yes})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			err = changeOrderStatus(cmd.Context(), c, strings.TrimSpace(args[0]), to)
			return oo.HandleError(err)
		},
	}

	options.AddConfirmArgs(cmd, co)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func orderView() store.Query {
	return store.Query{Collection: record.CollectionOrders, OrderBy: "createdAt", Descending: true}
}

// changeOrderStatus applies the change against the mounted order view so the
// projection reflects it before the store echoes the write back.
func changeOrderStatus(ctx context.Context, c *console, id string, to record.Status) error {
	l := &listing[record.Order]{
		c:      c,
		query:  orderView(),
		decode: record.DecodeOrder,
		opts:   &options.ListOptions{Sort: "recent", Page: 1},
		quiet:  true,
		prepare: func(s *viewmodel.Store[record.Order]) error {
			order, ok := s.Get(id)
			if !ok || order.IsDeleted() {
				return fmt.Errorf("order %s: %w", id, store.ErrNotFound)
			}
			if err := c.gateway.ChangeStatus(ctx, order, to, s); err != nil {
				return err
			}
			if c.json {
				updated, _ := s.Get(id)
				return c.printJSON(updated)
			}
			return nil
		},
	}
	return l.Do(ctx)
}

func addInvoice(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "invoice <order-id>",
		Short: "Print a short-lived link to an order's invoice.",
		Example: `
shopdesk invoice 8f1c
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			ctx := cmd.Context()
			order, err := fetch(ctx, c, record.CollectionOrders, strings.TrimSpace(args[0]), record.DecodeOrder)
			if err != nil {
				return oo.HandleError(err)
			}
			url, err := c.gateway.FetchSecureAssetURL(ctx, order.InvoicePath)
			if err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(map[string]string{"order": order.ID, "url": url})
			}
			_, err = fmt.Fprintln(c.out, url)
			return err
		},
	}

	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}
