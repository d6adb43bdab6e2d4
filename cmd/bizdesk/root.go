package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/target/bizdesk/config"
	"github.com/target/bizdesk/internal/adapters/navigator"
	"github.com/target/bizdesk/internal/bootstrap"
)

const (
	// annotationView names the view a command acts from; 401s on auth views never redirect.
	annotationView = "view"
	// annotationNoStack marks commands that talk to the store database directly.
	annotationNoStack = "no-stack"
)

// app carries per-invocation state shared by every subcommand.
type app struct {
	logLevel string
	view     string

	cfg    config.AppConfig
	logger *slog.Logger
	stack  *bootstrap.Stack
}

func newRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "bizdesk",
		Short:         "Business admin session client",
		SilenceUsage:  true,
		SilenceErrors: true,
		Long: `bizdesk signs in to the business admin backend, keeps the credential
and forgery token in the configured store and revalidates the session.

Configuration comes from the environment (and a .env file when present):
API_BASE_URL, CREDENTIAL_STORE, SESSION_* and friends.`,
		PersistentPreRunE: a.setup,
	}

	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&a.view, "view", "/dashboard", "View the command acts from")

	cmd.AddCommand(
		a.loginCmd(),
		a.logoutCmd(),
		a.whoamiCmd(),
		a.registerCmd(),
		a.profileCmd(),
		a.changePasswordCmd(),
		a.forgotPasswordCmd(),
		a.resetPasswordCmd(),
		a.csrfCmd(),
		a.serveMetricsCmd(),
		a.dbCmd(),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg
	a.logger = bootstrap.InitLogger(cfg.LogLevel, cmd.ErrOrStderr())

	if cmd.Annotations[annotationNoStack] != "" {
		return nil
	}

	view := a.view
	if v := cmd.Annotations[annotationView]; v != "" && !cmd.Flags().Changed("view") {
		view = v
	}
	nav := navigator.NewTerminal(navigator.TerminalOptions{
		Path:      view,
		Out:       cmd.ErrOrStderr(),
		LoginPath: cfg.Session.LoginPath,
		Logger:    a.logger,
	})

	a.stack, err = bootstrap.BuildStack(cmd.Context(), bootstrap.StackOptions{
		Config:    cfg,
		Navigator: nav,
		Logger:    a.logger,
	})
	return err
}

// run wraps a command body so the stack is released even when the body fails.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() { err = errors.Join(err, a.teardown()) }()
		return fn(cmd, args)
	}
}

func (a *app) teardown() error {
	if a.stack == nil {
		return nil
	}
	a.stack.Session.Dispose()
	err := a.stack.Close()
	a.stack = nil
	return err
}

var errNotSignedIn = errors.New("not signed in")
