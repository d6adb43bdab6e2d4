package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/target/bizdesk/internal/adapters/postgres"
	"github.com/target/bizdesk/internal/bootstrap"
	httpx "github.com/target/bizdesk/internal/http"
	"github.com/target/bizdesk/internal/migrate"
)

const shutdownTimeout = 10 * time.Second

func (a *app) serveMetricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Keep the session revalidated and serve health, session and Prometheus endpoints",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Metrics.Addr
			}
			ctx := cmd.Context()
			sess := a.stack.Session
			if err := sess.Init(ctx); err != nil {
				return err
			}

			srv := &http.Server{
				Addr: addr,
				Handler: httpx.NewRouter(httpx.RouterOptions{
					Session: sess,
					Metrics: a.stack.Metrics.Handler(),
					Guard: httpx.RouteGuard(httpx.GuardOptions{
						Sessions:          httpx.SingleSession(sess),
						ProtectedPaths:    a.cfg.Session.ProtectedPaths,
						AuthPaths:         a.cfg.Session.AuthPaths,
						LoginPath:         a.cfg.Session.LoginPath,
						HomePath:          a.cfg.Session.HomePath,
						ExpiredMarker:     a.cfg.Session.ExpiredParam,
						InactivityTimeout: a.cfg.Session.InactivityTimeout,
						Logger:            a.logger,
					}),
					Logger: a.logger,
				}),
				ReadHeaderTimeout: 5 * time.Second,
				BaseContext:       func(net.Listener) context.Context { return ctx },
			}
			a.logger.InfoContext(ctx, "serving session endpoints", "addr", addr, "session", sess.State().Status().String())
			return serve(ctx, srv)
		}),
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address; defaults to METRICS_ADDR")
	return cmd
}

// serve runs srv until ctx is done, then shuts it down gracefully.
func serve(ctx context.Context, srv *http.Server) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *app) dbCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Maintain the Postgres credential store",
	}
	noStack := map[string]string{annotationNoStack: "true"}

	cmd.AddCommand(&cobra.Command{
		Use:         "migrate",
		Short:       "Apply pending credential store migrations",
		Args:        cobra.NoArgs,
		Annotations: noStack,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := bootstrap.ConnectDB(ctx, a.cfg.Postgres, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			pending, err := migrate.Pending(ctx, db)
			if err != nil {
				return err
			}
			if err := bootstrap.RunMigrations(ctx, db, a.logger); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", len(pending))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:         "purge",
		Short:       "Delete expired credentials from every namespace",
		Args:        cobra.NoArgs,
		Annotations: noStack,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := bootstrap.ConnectDB(cmd.Context(), a.cfg.Postgres, a.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			store, err := postgres.NewCredentialStore(postgres.CredentialStoreOptions{DB: db, Logger: a.logger})
			if err != nil {
				return err
			}
			n, err := store.PurgeExpired(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Purged %d expired credential(s).\n", n)
			return err
		},
	})
	return cmd
}
