package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	base "github.com/n3wscott/cli-base/pkg/commands/options"

	"tableflip.dev/shopdesk/pkg/commands/options"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/session"
	"tableflip.dev/shopdesk/pkg/store"
)

func addUsers(topLevel *cobra.Command) {
	io := &options.IDOptions{}
	var admins bool

	cmd := &cobra.Command{
		Use:     "users",
		Aliases: []string{"user"},
		Short:   "List user profiles.",
		Example: `
shopdesk users
shopdesk users --admins
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{signIn: true})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()
			c.pp.ShowID = io.ShowID

			users, err := listUsers(cmd.Context(), c, admins)
			if err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(users)
			}
			c.pp.TitleWithCount("Users", len(users), "user", "users")
			c.pp.Users(users)
			return nil
		},
	}

	cmd.Flags().BoolVar(&admins, "admins", false, "Only list console admins.")
	options.AddShowIDArgs(cmd, io)
	base.AddOutputArg(cmd, oo)
	addUsersAdd(cmd)
	topLevel.AddCommand(cmd)
}

func listUsers(ctx context.Context, c *console, admins bool) ([]record.Profile, error) {
	ctx, err := c.session.Authorize(ctx)
	if err != nil {
		return nil, err
	}
	q := store.Query{Collection: record.CollectionUsers, OrderBy: "createdAt", Descending: true}
	if admins {
		q.Where = []store.Filter{{Field: "admin", Value: 1}}
	}
	docs, err := c.docs.List(ctx, q)
	if err != nil {
		return nil, err
	}
	users := make([]record.Profile, 0, len(docs))
	for _, doc := range docs {
		p, err := record.DecodeProfile(doc.ID, doc.Fields)
		if err != nil {
			c.log.Warn("skipping undecodable profile", zap.String("id", doc.ID), zap.Error(err))
			continue
		}
		users = append(users, p)
	}
	return users, nil
}

func addUsersAdd(topLevel *cobra.Command) {
	var (
		name  string
		admin bool
	)

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create a console account and its profile.",
		Long: `Create an account in the local identity store and write its users profile.
The password is read from SHOPDESK_PASSWORD or prompted for. This command
does not need a signed in admin so the first account can be created.`,
		Example: `
shopdesk users add ada@example.com --name "Ada Lovelace" --admin
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openConsole(cmd, consoleOptions{})
			if err != nil {
				return oo.HandleError(err)
			}
			defer c.Close()

			uid, err := addUser(cmd.Context(), c, args[0], name, admin)
			if err != nil {
				return oo.HandleError(err)
			}
			if c.json {
				return c.printJSON(map[string]string{"uid": uid})
			}
			_, err = fmt.Fprintln(c.out, uid)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Display name.")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant console access.")
	base.AddOutputArg(cmd, oo)
	topLevel.AddCommand(cmd)
}

func addUser(ctx context.Context, c *console, email, name string, admin bool) (string, error) {
	email = strings.TrimSpace(email)
	password := c.password()
	if password == "" {
		var err error
		if password, err = c.term.Secret("Password"); err != nil {
			return "", err
		}
	}
	if err := session.Validate(email, password); err != nil {
		return "", err
	}
	uid, err := c.identity.Register(ctx, email, password)
	if err != nil {
		return "", err
	}
	profile := map[string]interface{}{
		"email":     strings.ToLower(email),
		"name":      strings.TrimSpace(name),
		"admin":     0,
		"createdAt": store.ServerTimestamp,
	}
	if admin {
		profile["admin"] = 1
	}
	if err := c.docs.SetDocument(ctx, record.CollectionUsers, uid, profile); err != nil {
		return "", err
	}
	c.log.Info("user added", zap.String("uid", uid), zap.Bool("admin", admin))
	return uid, nil
}
