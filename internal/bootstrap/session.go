package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/target/bizdesk/config"
	"github.com/target/bizdesk/internal/adapters/cookiejar"
	"github.com/target/bizdesk/internal/adapters/filestore"
	"github.com/target/bizdesk/internal/adapters/postgres"
	redisstore "github.com/target/bizdesk/internal/adapters/redis"
	"github.com/target/bizdesk/internal/apiclient"
	"github.com/target/bizdesk/internal/observability/metrics"
	"github.com/target/bizdesk/internal/ports"
	"github.com/target/bizdesk/internal/service"
)

// StackOptions configures BuildStack.
type StackOptions struct {
	Config     config.AppConfig
	Navigator  ports.Navigator
	HTTPClient *http.Client
	Logger     *slog.Logger

	// Store overrides the configured credential store.
	Store ports.CredentialStore
}

// Stack bundles the wired session components.
type Stack struct {
	Store    ports.CredentialStore
	Client   *apiclient.Client
	Session  *service.SessionManager
	Metrics  *metrics.Recorder
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases connections opened for the credential store.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildStack wires store, request client and session manager from configuration.
// The session manager is not started; callers run Init and Dispose.
func BuildStack(ctx context.Context, opts StackOptions) (*Stack, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	st := &Stack{}

	reg, recorder, err := BuildMetrics()
	if err != nil {
		return nil, err
	}
	st.Registry, st.Metrics = reg, recorder

	st.Store = opts.Store
	if st.Store == nil {
		store, closer, storeErr := BuildCredentialStore(ctx, cfg, logger)
		if storeErr != nil {
			return nil, storeErr
		}
		st.Store = store
		if closer != nil {
			st.closers = append(st.closers, closer)
		}
	}

	client, err := apiclient.New(apiclient.Options{
		BaseURL:          cfg.API.BaseURL,
		HTTPClient:       opts.HTTPClient,
		Timeout:          cfg.API.Timeout,
		Store:            st.Store,
		Navigator:        opts.Navigator,
		CredentialName:   cfg.Store.CredentialName,
		ForgeryName:      cfg.Store.ForgeryName,
		CredentialMaxAge: cfg.Store.CredentialMaxAge,
		ForgeryMaxAge:    cfg.Store.ForgeryMaxAge,
		CredentialHeader: cfg.API.CredentialHeader,
		ForgeryHeader:    cfg.API.ForgeryHeader,
		ForgeryPath:      cfg.API.ForgeryPath,
		NonceParam:       cfg.API.NonceParam,
		LoginPath:        cfg.Session.LoginPath,
		ExpiredMarker:    cfg.Session.ExpiredParam,
		AuthPaths:        cfg.Session.AuthPaths,
		Metrics:          recorder,
		Logger:           logger,
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("create api client: %w", err), st.Close())
	}
	st.Client = client

	st.Session = service.NewSessionManager(service.SessionManagerOptions{
		Client:             client,
		Store:              st.Store,
		Navigator:          opts.Navigator,
		RevalidateInterval: cfg.Session.RevalidateInterval,
		Metrics:            recorder,
		Logger:             logger,
	})
	return st, nil
}

// BuildMetrics creates a private registry with runtime collectors and the session recorder.
func BuildMetrics() (*prometheus.Registry, *metrics.Recorder, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return nil, nil, fmt.Errorf("register metrics: %w", err)
	}
	return reg, recorder, nil
}

// BuildCredentialStore opens the configured store. The returned closer, when non-nil,
// releases its connection.
//
//nolint:ireturn // the store kind is chosen at runtime.
func BuildCredentialStore(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (ports.CredentialStore, func() error, error) {
	switch cfg.Store.Kind {
	case config.StoreMemory:
		store, err := cookiejar.NewStore(cookiejar.Options{Origin: cfg.API.BaseURL})
		if err != nil {
			return nil, nil, fmt.Errorf("create cookie store: %w", err)
		}
		return store, nil, nil

	case config.StoreFile, "":
		store, err := filestore.NewStore(filestore.Options{Path: cfg.Store.File, Logger: logger})
		if err != nil {
			return nil, nil, fmt.Errorf("create file store: %w", err)
		}
		return store, nil, nil

	case config.StoreRedis:
		client, err := ConnectRedis(ctx, cfg.Redis, logger)
		if err != nil {
			return nil, nil, err
		}
		store, err := redisstore.NewCredentialStore(redisstore.CredentialStoreOptions{
			Client:    client,
			Namespace: cfg.Store.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, errors.Join(err, client.Close())
		}
		return store, client.Close, nil

	case config.StorePostgres:
		db, err := ConnectDB(ctx, cfg.Postgres, logger)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Postgres.RunMigrationsOnStart {
			if migErr := RunMigrations(ctx, db, logger); migErr != nil {
				return nil, nil, errors.Join(migErr, db.Close())
			}
		}
		store, err := postgres.NewCredentialStore(postgres.CredentialStoreOptions{
			DB:        db,
			Namespace: cfg.Store.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, nil, errors.Join(err, db.Close())
		}
		return store, db.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported credential store %q", cfg.Store.Kind)
	}
}
