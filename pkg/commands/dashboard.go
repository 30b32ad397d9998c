package commands

import (
	"context"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/dashboard"
)

func addDashboard(topLevel *cobra.Command) {
	var watch bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show the collection counters.",
		Example: `
shopdesk dashboard
shopdesk dashboard --watch
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			ctx := cmd.Context()
			if !watch || c.json {
				counts, err := dashboard.Read(ctx, c.docs, c.session)
				if err != nil {
					return oo.HandleError(err)
				}
				if c.json {
					return c.printJSON(counts)
				}
				c.pp.Dashboard(counts)
				return nil
			}
			return oo.HandleError(watchDashboard(ctx, c))
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Keep the counters open and redraw as they change.")
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func watchDashboard(ctx context.Context, c *console) error {
	changed := make(chan struct{}, 1)
	d := dashboard.New(c.docs, c.session)
	d.Log = c.log
	d.Metrics = c.metrics
	d.OnChange = func(dashboard.Counts) {
		select {
		case changed <- struct{}{}:
		default:
		}
	}
	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	c.pp.Dashboard(d.Counts())
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
			c.pp.NewLine()
			c.pp.Dashboard(d.Counts())
		}
	}
}
