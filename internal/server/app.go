// Package server initializes and runs the credport server: it validates the
// configuration, picks the state backend, wires the token authority, rate
// limiter and services, and runs the HTTP and gRPC edges until shutdown.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/credport/internal/common"
	"github.com/dmitrijs2005/credport/internal/logging"
	"github.com/dmitrijs2005/credport/internal/netx"
	"github.com/dmitrijs2005/credport/internal/observability"
	"github.com/dmitrijs2005/credport/internal/server/auth"
	"github.com/dmitrijs2005/credport/internal/server/config"
	"github.com/dmitrijs2005/credport/internal/server/httpapi"
	"github.com/dmitrijs2005/credport/internal/server/ratelimit"
	"github.com/dmitrijs2005/credport/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/credport/internal/server/reputation"
	"github.com/dmitrijs2005/credport/internal/server/services"
	"github.com/dmitrijs2005/credport/internal/server/statestore"

	gs "github.com/dmitrijs2005/credport/internal/server/grpc"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	authority   *auth.Authority
	limiter     *ratelimit.Limiter
	proxies     *netx.TrustedProxies
	userService *services.UserService
	reputation  *reputation.Service
}

// NewApp wires every component. Configuration errors are fatal and match
// common.ErrConfiguration.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel).With("app", c.AppName)

	if err := observability.InitSentry(c.SentryDSN, c.Mode); err != nil {
		logger.Error(ctx, "sentry init failed", "error", err)
	}

	if c.LegacyAuthBypass && !c.LegacyAuthBypassAllowed() {
		logger.Warn(ctx, "legacy auth bypass requested in production; ignored")
	}

	proxies, err := netx.ParseTrustedProxies(c.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}

	app := &App{config: c, logger: logger, proxies: proxies}

	rm, backend, err := app.initStorage(ctx)
	if err != nil {
		app.close()
		return nil, err
	}

	authority, err := auth.NewAuthority(auth.Options{
		AccessSecret:  c.AccessSecret,
		RefreshSecret: c.RefreshSecret,
		AccessTTL:     c.AccessTokenValidityDuration,
		RefreshTTL:    c.RefreshTokenValidityDuration,
		App:           c.AppName,
		Logger:        logger,
	})
	if err != nil {
		app.close()
		return nil, err
	}

	app.authority = authority
	app.limiter = ratelimit.New(c.RateLimitMaxKeys, nil)
	app.userService = services.NewUserService(app.db, rm, authority, logger)
	app.reputation = reputation.NewService(
		statestore.New(backend, reputation.ServiceKey, statestore.WithLogger(logger)),
		logger, nil)

	return app, nil
}

// initStorage opens the database when the postgres backend is selected and
// returns the users repository manager and the state backend.
func (app *App) initStorage(ctx context.Context) (repomanager.RepositoryManager, statestore.Backend, error) {
	c := app.config

	switch c.StateBackend {
	case config.StateBackendPostgres:
		db, err := sql.Open("pgx", c.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			return nil, nil, fmt.Errorf("db ping error: %w", err)
		}

		rm, err := repomanager.NewPostgresRepositoryManager(db)
		if err != nil {
			return nil, nil, fmt.Errorf("db init error: %w", err)
		}
		if err := rm.RunMigrations(ctx, db); err != nil {
			return nil, nil, fmt.Errorf("migrations error: %w", err)
		}

		backend, err := statestore.NewPostgresBackend(db, c.StateTable)
		if err != nil {
			return nil, nil, err
		}
		return rm, backend, nil

	case config.StateBackendS3:
		backend, err := statestore.NewS3Backend(ctx, statestore.S3Options{
			Region:       c.S3Region,
			AccessKey:    c.S3RootUser,
			SecretKey:    c.S3RootPassword,
			Bucket:       c.S3Bucket,
			BaseEndpoint: c.S3BaseEndpoint,
			Prefix:       c.StateTable,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("s3 init error: %w", err)
		}
		return repomanager.NewMemoryRepositoryManager(), backend, nil

	default:
		return repomanager.NewMemoryRepositoryManager(), statestore.NewMemoryBackend(), nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) handler() http.Handler {
	return httpapi.NewRouter(httpapi.Deps{
		Users:           app.userService,
		Authority:       app.authority,
		Reputation:      app.reputation,
		Limiter:         app.limiter,
		RateLimitMax:    app.config.RateLimitMaxRequests,
		RateLimitWindow: app.config.RateLimitWindow,
		AllowDemoUser:   app.config.LegacyAuthBypassAllowed(),
		TrustedProxies:  app.proxies,
		Logger:          app.logger,
	})
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:              app.config.EndpointAddrHTTP,
		Handler:           app.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	app.logger.Info(ctx, "Starting HTTP server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.authority, app.limiter,
		app.config.RateLimitMaxRequests, app.config.RateLimitWindow, gs.WithTrustedProxies(app.proxies))

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

// Run serves until ctx is cancelled, a signal arrives or a server fails,
// then flushes persistent state and releases resources.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()

	wg.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.reputation.Flush(flushCtx); err != nil {
		app.logger.Error(flushCtx, "final state flush failed", "error", err)
		observability.CaptureError(err, map[string]string{"phase": "shutdown"})
	}

	app.close()
	app.logger.Info(flushCtx, "App stopped")
}

func (app *App) close() {
	if app.db != nil {
		_ = app.db.Close()
	}
	observability.FlushSentry()
}
