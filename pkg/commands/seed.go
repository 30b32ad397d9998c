package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/seed"
)

func addSeed(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "seed <file>",
		Short: "Load accounts and documents from a YAML file.",
		Long: `Seed writes the accounts and collections of a YAML file into the local
store. Documents with an existing id are replaced. A top level field set to
$now is stamped with the write time.`,
		Example: `
shopdesk seed ./testdata/shop.yaml
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := seed.ParseFile(args[0])
			if err != nil {
				return oo.HandleError(err)
			}
			c, err := openConsole(cmd, consoleOptions{})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			s := &seed.Seeder{
				Documents: c.docs,
				Identity:  c.identity,
				Log:       c.log,
			}
			res, err := s.Apply(cmd.Context(), f)
			if err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(res)
			}
			_, err = fmt.Fprintf(c.out, "Seeded %d accounts and %d documents.\n", res.Accounts, res.Documents)
			return err
		},
	}

	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}
