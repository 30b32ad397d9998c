package commands

import (
	"time"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/timeutil"
)

func addReport(topLevel *cobra.Command) {
	var span string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarise orders placed in a time range, grouped by status.",
		Long: `Report groups the orders created within a range by status and totals their
revenue. Failed checkouts from the same range are counted alongside.

A range is a window counted back from now (3d, 1w2d), "today", a start date
(2025-05-01) or an inclusive span of dates (2025-05-01..2025-05-07).`,
		Example: `
shopdesk report
shopdesk report --range 3d
shopdesk report --range 2025-05-01..2025-05-07 --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, until, label, err := timeutil.Range(span, time.Now())
			if err != nil {
				return oo.HandleError(err)
			}

			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			result, err := c.gateway.Report(cmd.Context(), since, until)
			if err != nil {
				return oo.HandleError(err)
			}
			c.log.Debug("report built")
			if c.json {
				return c.printJSON(result)
			}
			c.pp.Title("Report · " + label)
			c.pp.Report(result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&span, "range", "r", timeutil.DefaultWindow, "Range to include, for example 3d, today or 2025-05-01..2025-05-07.")
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}
