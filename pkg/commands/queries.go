package commands

import (
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

func addQueries(topLevel *cobra.Command) {
	lo := &options.ListOptions{}
	so := &options.SourceOptions{}
	io := &options.IDOptions{}

	cmd := &cobra.Command{
		Use:   "queries [status]",
		Short: "List contact form queries.",
		Example: `
shopdesk queries
shopdesk queries pending
shopdesk queries --source mobile --search refund
`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: statusNames(record.QueryStatuses()),
		RunE: func(cmd *cobra.Command, args []string) error {
			category := lo.Status
			if len(args) == 1 {
				category = args[0]
			}
			if category != "" {
				s, err := record.ParseQueryStatus(category)
				if err != nil {
					return oo.HandleError(err)
				}
				category = string(s)
			}
			collection, err := so.Collection()
			if err != nil {
				return oo.HandleError(err)
			}

			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()
			c.pp.ShowID = io.ShowID

			l := &listing[record.Query]{
				c:        c,
				query:    queryView(collection),
				decode:   record.DecodeQuery,
				opts:     lo,
				category: category,
				render:   c.pp.Queries,
			}
			return oo.HandleError(l.Do(cmd.Context()))
		},
	}

	options.AddListArgs(cmd, lo, record.QueryStatuses()...)
	options.AddSourceArgs(cmd, so)
	options.AddShowIDArgs(cmd, io)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func queryView(collection string) store.Query {
	return store.Query{Collection: collection, OrderBy: "createdAt", Descending: true}
}

func addQuery(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Read, answer or delete a contact query.",
	}
	addQueryShow(cmd)
	addQueryReply(cmd)
	addQueryDelete(cmd)
	topLevel.AddCommand(cmd)
}

func addQueryShow(topLevel *cobra.Command) {
	so := &options.SourceOptions{}

	cmd := &cobra.Command{
		Use:   "show <query-id>",
		Short: "Show one query in full.",
		Example: `
shopdesk query show 01HZX3
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := so.Collection()
			if err != nil {
				return oo.HandleError(err)
			}
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			l := queryDetail(c, collection, func(s *viewmodel.Store[record.Query]) error {
				q, err := openQuery(s, args[0])
				if err != nil {
					return err
				}
				if c.json {
					return c.printJSON(q)
				}
				c.pp.Query(q)
				return nil
			})
			return oo.HandleError(l.Do(cmd.Context()))
		},
	}

	options.AddSourceArgs(cmd, so)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

// queryDetail mounts the query view without rendering it, so prepare works
// against the live projection.
func queryDetail(c *console, collection string, prepare func(*viewmodel.Store[record.Query]) error) *listing[record.Query] {
	return &listing[record.Query]{
		c:       c,
		query:   queryView(collection),
		decode:  record.DecodeQuery,
		opts:    &options.ListOptions{Sort: "recent", Page: 1},
		quiet:   true,
		prepare: prepare,
	}
}

// openQuery opens id in the projection. Unknown and soft deleted queries are
// not found.
func openQuery(s *viewmodel.Store[record.Query], id string) (record.Query, error) {
	id = strings.TrimSpace(id)
	if !s.Open(id) {
		return record.Query{}, fmt.Errorf("query %s: %w", id, store.ErrNotFound)
	}
	q, ok := s.Opened()
	if !ok || q.IsDeleted() {
		s.CloseOpen()
		return record.Query{}, fmt.Errorf("query %s: %w", id, store.ErrNotFound)
	}
	return q, nil
}

func addQueryReply(topLevel *cobra.Command) {
	so := &options.SourceOptions{}

	cmd := &cobra.Command{
		Use:   "reply <query-id> [text]",
		Short: "Attach an admin reply and mark the query replied.",
		Long: `Attach an admin reply to a query. Without text on the command line the
reply is read from a prompt. Replying again replaces the earlier reply.`,
		Example: `
shopdesk query reply 01HZX3 Your parcel left the warehouse today.
shopdesk query reply 01HZX3 --source mobile
`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				return errors.New("requires a query id")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := so.Collection()
			if err != nil {
				return oo.HandleError(err)
			}
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			ctx := cmd.Context()
			l := queryDetail(c, collection, func(s *viewmodel.Store[record.Query]) error {
				q, err := openQuery(s, args[0])
				if err != nil {
					return err
				}
				text := strings.Join(args[1:], " ")
				if strings.TrimSpace(text) == "" {
					if text, err = c.term.Text("Reply", q.AdminReply); err != nil {
						return err
					}
				}
				if err := c.gateway.AttachReply(ctx, collection, q.ID, text, s); err != nil {
					return err
				}
				if c.json {
					q, _ = s.Get(q.ID)
					return c.printJSON(q)
				}
				return nil
			})
			return oo.HandleError(l.Do(ctx))
		},
	}

	options.AddSourceArgs(cmd, so)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func addQueryDelete(topLevel *cobra.Command) {
	so := &options.SourceOptions{}
	co := &options.ConfirmOptions{}
	lo := &options.ListOptions{}
	var all bool

	cmd := &cobra.Command{
		Use:     "delete [query-id...]",
		Aliases: []string{"rm"},
		Short:   "Soft delete queries.",
		Long: `Soft delete queries by id, or every query matching the list filters with
--all. Deleted queries disappear from every view and can not be restored
from the console.`,
		Example: `
shopdesk query delete 01HZX3 01HZX4
shopdesk query delete --all --status replied --yes
`,
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass query ids or --all, not both")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			collection, err := so.Collection()
			if err != nil {
				return oo.HandleError(err)
			}
			category := ""
			if lo.Status != "" {
				s, err := record.ParseQueryStatus(lo.Status)
				if err != nil {
					return oo.HandleError(err)
				}
				category = string(s)
			}

			c, err := openConsole(cmd, consoleOptions{signIn: true, yes: co.Yes})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			deleted := 0
			l := &listing[record.Query]{
				c:        c,
				query:    queryView(collection),
				decode:   record.DecodeQuery,
				opts:     lo,
				category: category,
				quiet:    true,
				prepare: func(s *viewmodel.Store[record.Query]) error {
					if all {
						s.ToggleSelectAll()
					} else if err := selectQueries(s, args); err != nil {
						return err
					}
					ids := s.Selected()
					if err := c.gateway.SoftDelete(cmd.Context(), collection, ids, s); err != nil {
						return err
					}
					deleted = len(ids)
					return nil
				},
			}
			if err := l.Do(cmd.Context()); err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(map[string]int{"deleted": deleted})
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Delete every query matching --status and --search.")
	cmd.Flags().StringVar(&lo.Status, "status", "", "With --all, only delete queries with this status.")
	cmd.Flags().StringVarP(&lo.Search, "search", "s", "", "With --all, only delete queries matching this text.")
	lo.Sort = "recent"
	lo.Page = 1
	options.AddSourceArgs(cmd, so)
	options.AddConfirmArgs(cmd, co)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

// selectQueries selects every id in args. Nothing is selected when one of
// them is unknown or already deleted.
func selectQueries(s *viewmodel.Store[record.Query], args []string) error {
	var ids, unknown []string
	seen := make(map[string]bool, len(args))
	for _, id := range args {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if q, ok := s.Get(id); !ok || q.IsDeleted() {
			unknown = append(unknown, id)
			continue
		}
		ids = append(ids, id)
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown queries %s: %w", strings.Join(unknown, ", "), store.ErrNotFound)
	}
	for _, id := range ids {
		if !s.IsSelected(id) {
			s.ToggleSelect(id)
		}
	}
	return nil
}
