package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	base "github.com/n3wscott/cli-base/pkg/commands/options"
)

var (
	oo = &base.OutputOptions{}
)

func New() *cobra.Command {

	cmd := &cobra.Command{
		Use:   "shopdesk",
		Short: base.Wrap80("Administer the shop backend from the command line: orders, contact queries, products and the dashboard."),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().Bool("debug", false, "Log debug output to stderr.")
	cmd.PersistentFlags().String("email", "", "Admin email to sign in with (or SHOPDESK_EMAIL).")
	_ = viper.BindPFlag("debug", cmd.PersistentFlags().Lookup("debug"))
	_ = viper.BindPFlag("email", cmd.PersistentFlags().Lookup("email"))

	AddCommands(cmd)
	return cmd
}

func AddCommands(topLevel *cobra.Command) {
	addOrders(topLevel)
	addOrder(topLevel)
	addInvoice(topLevel)
	addQueries(topLevel)
	addQuery(topLevel)
	addProducts(topLevel)
	addProduct(topLevel)
	addDashboard(topLevel)
	addReport(topLevel)
	addUsers(topLevel)
	addSeed(topLevel)
	addServe(topLevel)
	addMCP(topLevel)
	addVersion(topLevel)
	addCompletions(topLevel)
}
