package options

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"tableflip.dev/shopdesk/pkg/record"
)

// SourceOptions picks the contact form a query command works on.
type SourceOptions struct {
	Source string
}

func AddSourceArgs(cmd *cobra.Command, o *SourceOptions) {
	cmd.Flags().StringVar(&o.Source, "source", "web",
		"Contact form to read: web or mobile.")
	_ = cmd.RegisterFlagCompletionFunc("source", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"web", "mobile"}, cobra.ShellCompDirectiveNoFileComp
	})
}

// Collection maps the source to its collection name.
func (o *SourceOptions) Collection() (string, error) {
	switch strings.ToLower(strings.TrimSpace(o.Source)) {
	case "", "web":
		return record.CollectionQueries, nil
	case "mobile", "app":
		return record.CollectionMobileQueries, nil
	}
	return "", fmt.Errorf("unknown source %q (expected web or mobile)", o.Source)
}
