package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"tableflip.dev/shopdesk/pkg/app"
	"tableflip.dev/shopdesk/pkg/identity"
	"tableflip.dev/shopdesk/pkg/logging"
	"tableflip.dev/shopdesk/pkg/metrics"
	"tableflip.dev/shopdesk/pkg/notice"
	"tableflip.dev/shopdesk/pkg/printers"
	"tableflip.dev/shopdesk/pkg/prompt"
	"tableflip.dev/shopdesk/pkg/record"
	"tableflip.dev/shopdesk/pkg/session"
	"tableflip.dev/shopdesk/pkg/store"
)

// console holds everything a command needs to talk to the backend.
type console struct {
	cfg      *store.FileConfig
	log      *zap.Logger
	metrics  *metrics.Recorder
	docs     store.Persistence
	objects  *store.ObjectStore
	identity *identity.Local
	session  *session.Boundary
	gateway  *app.Gateway
	term     *prompt.Terminal
	pp       *printers.PrettyPrint
	out      io.Writer
	json     bool
}

type consoleOptions struct {
	// signIn requires an admin session before the command runs.
	signIn bool
	yes    bool

	// prompts, when set, receives prompt output instead of stdout.
	prompts io.Writer
}

func openConsole(cmd *cobra.Command, o consoleOptions) (*console, error) {
	cfg, err := store.LoadConfig()
	if err != nil {
		return nil, err
	}
	log, err := logging.New(viper.GetBool("debug"))
	if err != nil {
		return nil, err
	}
	docs, err := store.Load(cfg, store.WithLogger(log))
	if err != nil {
		return nil, err
	}
	objects, err := store.LoadObjects(cfg)
	if err != nil {
		_ = docs.Close()
		return nil, err
	}

	c := &console{
		cfg:      cfg,
		log:      log,
		metrics:  metrics.New(),
		docs:     docs,
		objects:  objects,
		identity: identity.NewLocal(docs),
		term:     &prompt.Terminal{Out: o.prompts, Yes: o.yes},
		pp:       &printers.PrettyPrint{Out: cmd.OutOrStdout()},
		out:      cmd.OutOrStdout(),
		json:     oo.JSON,
	}

	var notifier notice.Notifier = notice.Discard
	if !c.json {
		errPP := &printers.PrettyPrint{Out: cmd.ErrOrStderr()}
		notifier = notice.Func(errPP.Notice)
	}
	c.session = session.New(c.identity, docs, notifier, log)
	c.gateway = &app.Gateway{
		Documents: docs,
		Objects:   objects,
		Session:   c.session,
		Confirm:   c.term,
		Notify:    notifier,
		Log:       log,
		Metrics:   c.metrics,
	}
	c.pp.Pending = c.gateway.InFlight

	if o.signIn {
		if err := c.signIn(cmd.Context()); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// signIn uses the configured credentials and prompts for what is missing.
func (c *console) signIn(ctx context.Context) error {
	email := strings.TrimSpace(viper.GetString("email"))
	password := c.password()
	var err error
	if email == "" {
		if email, err = c.term.Text("Email", ""); err != nil {
			return err
		}
	}
	if password == "" {
		if password, err = c.term.Secret("Password"); err != nil {
			return err
		}
	}
	user, err := c.session.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	c.log.Debug("signed in", zap.String("uid", user.UID), zap.Bool("admin", user.Admin))
	if !user.Admin {
		_ = c.session.SignOut(ctx)
		return errors.New("this account is not a console admin")
	}
	return nil
}

// password comes from SHOPDESK_PASSWORD only; it is never a flag.
func (c *console) password() string {
	return viper.GetString("password")
}

// Close ends the session, which cancels every live view, and releases the
// store.
func (c *console) Close() {
	if c.session != nil && c.session.State().Authenticated {
		_ = c.session.SignOut(context.Background())
	}
	if c.docs != nil {
		_ = c.docs.Close()
	}
	_ = c.log.Sync()
}

// fetch reads one record through the session boundary.
func fetch[T any](ctx context.Context, c *console, collection, id string, decode record.Decoder[T]) (T, error) {
	var zero T
	ctx, err := c.session.Authorize(ctx)
	if err != nil {
		return zero, err
	}
	doc, found, err := c.docs.GetDocument(ctx, collection, id)
	if err != nil {
		return zero, err
	}
	if !found {
		return zero, fmt.Errorf("%s/%s: %w", collection, id, store.ErrNotFound)
	}
	return decode(doc.ID, doc.Fields)
}

func (c *console) printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.out, string(b))
	return err
}
