package options

import (
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/viewmodel"
)

// ListOptions narrows a live view.
type ListOptions struct {
	Status string
	Search string
	Sort   string
	Page   int
	Watch  bool
}

func AddListArgs(cmd *cobra.Command, o *ListOptions, statuses ...record.Status) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}
	if len(names) > 0 {
		cmd.Flags().StringVar(&o.Status, "status", "",
			"Only show rows with this status: "+strings.Join(names, ", ")+".")
		_ = cmd.RegisterFlagCompletionFunc("status", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return names, cobra.ShellCompDirectiveNoFileComp
		})
	}
	cmd.Flags().StringVarP(&o.Search, "search", "s", "",
		"Case-insensitive text search over the visible columns.")
	cmd.Flags().StringVar(&o.Sort, "sort", "recent",
		"Sort by creation time: recent or oldest.")
	cmd.Flags().IntVarP(&o.Page, "page", "p", 1,
		"Page to show.")
	cmd.Flags().BoolVarP(&o.Watch, "watch", "w", false,
		"Keep the view open and redraw on every change.")
}

// SortOrder parses the --sort flag.
func (o *ListOptions) SortOrder() (viewmodel.SortOrder, error) {
	return viewmodel.ParseSort(o.Sort)
}
