package commands

import (
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"tableflip.dev/shopdesk/pkg/server"
)

func addServe(topLevel *cobra.Command) {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve signed asset downloads, metrics and a health check.",
		Long: `Serve the HTTP side of the console. Links printed by "shopdesk invoice"
resolve here until they expire. /metrics exposes Prometheus metrics and
/healthz answers ok.`,
		Example: `
shopdesk serve
shopdesk serve --addr 0.0.0.0:8090
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{})
			if err != nil {
				return err
			}
			defer c.Close()

			s := &server.Server{
				Assets:  c.objects,
				Metrics: c.metrics,
				Log:     c.log,
			}
			return s.Serve(cmd.Context(), addr, func(a net.Addr) {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Serving on http://%s\n", a)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8090", "Address to listen on.")
	topLevel.AddCommand(cmd)
}
