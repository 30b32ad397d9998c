package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/app"
	"tableflip.dev/shopdesk/pkg/commands/options"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/store"
)

func addProducts(topLevel *cobra.Command) {
	lo := &options.ListOptions{}
	io := &options.IDOptions{}
	var status string

	cmd := &cobra.Command{
		Use:   "products",
		Short: "List the product catalog.",
		Example: `
shopdesk products
shopdesk products --search mug --sort oldest
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()
			c.pp.ShowID = io.ShowID

			l := &listing[record.Product]{
				c:        c,
				query:    store.Query{Collection: record.CollectionProducts, OrderBy: "createdAt", Descending: true},
				decode:   record.DecodeProduct,
				opts:     lo,
				category: status,
				render:   c.pp.Products,
			}
			return oo.HandleError(l.Do(cmd.Context()))
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show products with this status, for example Active.")
	options.AddListArgs(cmd, lo)
	options.AddShowIDArgs(cmd, io)
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func addProduct(topLevel *cobra.Command) {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage catalog products.",
	}
	addProductAdd(cmd)
	topLevel.AddCommand(cmd)
}

func addProductAdd(topLevel *cobra.Command) {
	p := app.NewProduct{}
	var images []string

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a product, uploading its images first.",
		Example: `
shopdesk product add "Enamel mug" --price 12.5 --stock 40 --category kitchen --image mug.jpg
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p.Title = args[0]
			for _, path := range images {
				data, err := os.ReadFile(path)
				if err != nil {
					return oo.HandleError(fmt.Errorf("read image: %w", err))
				}
				p.Images = append(p.Images, app.Image{Name: filepath.Base(path), Data: data})
			}

			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			id, err := c.gateway.AddProduct(cmd.Context(), p)
			if err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(map[string]string{"id": id})
			}
			_, err = fmt.Fprintln(c.out, id)
			return err
		},
	}

	cmd.Flags().StringVar(&p.Subtitle, "subtitle", "", "Short line shown under the title.")
	cmd.Flags().StringVar(&p.Category, "category", "", "Catalog category.")
	cmd.Flags().StringVar(&p.Status, "status", "Active", "Listing status.")
	cmd.Flags().Float64Var(&p.Price, "price", 0, "Unit price, greater than zero.")
	cmd.Flags().StringVar(&p.SKU, "sku", "", "Stock keeping unit.")
	cmd.Flags().IntVar(&p.Stock, "stock", 0, "Units in stock.")
	cmd.Flags().StringVar(&p.Ribbon, "ribbon", "", "Badge text, for example New.")
	cmd.Flags().StringVar(&p.Description, "description", "", "Long description.")
	cmd.Flags().StringSliceVar(&images, "image", nil, "Image file to upload; repeat for more.")
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}
