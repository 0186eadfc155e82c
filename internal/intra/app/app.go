package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/aussiebroadwan/intra/internal/intra/http"
	"github.com/aussiebroadwan/intra/internal/intra/service"
	"github.com/aussiebroadwan/intra/internal/intra/state"
	"github.com/aussiebroadwan/intra/internal/intra/store"
	"github.com/aussiebroadwan/intra/internal/intra/store/drivers/sqlite"
	"github.com/aussiebroadwan/intra/pkg/intrasdk"
	"github.com/aussiebroadwan/intra/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application wires the session core, the lookup cache and the companion
// HTTP server.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db       store.Store // nil when the cache is disabled
	sessions *intrasdk.SessionStore
	client   *intrasdk.Client
	states   *state.Machine
	restored bool

	// Services
	sessionService      *service.SessionService
	housekeepingService *service.HousekeepingService // nil when the cache is disabled

	// HTTP server
	listener net.Listener
	server   *http.Server
	router   *httpapi.Router
}

// New creates an Application with all dependencies initialised.
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "intra",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if cfg.CacheEnabled() {
		if err := app.initDatabase(); err != nil {
			return nil, err
		}
	}

	app.initSession()
	app.initServices()
	app.resumeSession()
	app.initHTTP()

	return app, nil
}

// Logger returns the application logger.
func (app *Application) Logger() *slog.Logger { return app.logger }

// Sessions returns the session service.
func (app *Application) Sessions() *service.SessionService { return app.sessionService }

// Start binds the listening socket and serves in the background. The
// returned channel yields the server's terminal error.
func (app *Application) Start() (<-chan error, error) {
	ln, err := net.Listen("tcp", app.server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", app.server.Addr, err)
	}
	app.listener = ln

	if app.housekeepingService != nil {
		app.housekeepingService.Start()
	}

	app.logger.Info("intra companion server starting", "addr", ln.Addr().String(), "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.Serve(ln)
	}()
	return serverErrors, nil
}

// Addr is the address the server listens on once started.
func (app *Application) Addr() string {
	if app.listener == nil {
		return app.server.Addr
	}
	return app.listener.Addr().String()
}

// Run starts the application and blocks until shutdown is requested.
func (app *Application) Run() error {
	serverErrors, err := app.Start()
	if err != nil {
		return err
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// WaitForLogin blocks until the auth slot settles in Success or Error, or
// ctx ends. An Error state is returned as an *intrasdk.Error of the same
// kind.
func (app *Application) WaitForLogin(ctx context.Context) (state.Login, error) {
	events, cancel := app.states.Subscribe(0)
	defer cancel()

	for {
		if login, done, err := loginOutcome(app.states.Auth.Current()); done {
			return login, err
		}

		select {
		case <-ctx.Done():
			return state.Login{}, ctx.Err()
		case <-events:
		}
	}
}

func loginOutcome(st state.State[state.Login]) (state.Login, bool, error) {
	switch st.Phase {
	case state.PhaseSuccess:
		return *st.Value, true, nil
	case state.PhaseError:
		return state.Login{}, true, &intrasdk.Error{Kind: st.Error.Kind, Message: st.Error.Message}
	}
	return state.Login{}, false, nil
}

// Shutdown gracefully shuts down the application.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down intra companion server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	if app.housekeepingService != nil && app.listener != nil {
		app.housekeepingService.Stop()
	}

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			return err
		}
	}

	app.logger.Info("intra companion server stopped")
	return nil
}

// initDatabase opens the lookup cache and applies migrations.
func (app *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.CacheFile)
	db, err := sqlite.NewStore(dsn)
	if err != nil {
		return fmt.Errorf("failed to initialize cache database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply cache migrations: %w", err)
	}

	app.logger.Info("cache migrations applied successfully", "file", app.cfg.CacheFile)
	return nil
}

// initSession builds the session store, restoring persisted tokens when
// enabled, and the intranet client bound to it.
func (app *Application) initSession() {
	var persister intrasdk.Persister
	if app.cfg.PersistTokens {
		persister = intrasdk.NewKeyringPersister(app.cfg.KeyringService, "")
	}

	app.sessions = intrasdk.NewSessionStore(persister, app.logger)
	if persister != nil {
		restored, err := app.sessions.Restore()
		switch {
		case err != nil:
			app.logger.Warn("could not restore session from keychain", "error", err)
		case restored:
			app.restored = true
			app.logger.Info("session tokens restored from keychain")
		}
	}

	app.client = intrasdk.NewClient(intrasdk.Config{
		Credentials:       app.cfg.Credentials(),
		BaseURL:           app.cfg.APIURL,
		HTTPClient:        &http.Client{Timeout: app.cfg.HTTPTimeout},
		RequestsPerSecond: app.cfg.RateLimit,
		Burst:             app.cfg.RateBurst,
		MaxPages:          app.cfg.MaxPages,
		Logger:            app.logger,
	}, app.sessions)

	app.states = state.NewMachine()
}

// initServices initializes the business logic services.
func (app *Application) initServices() {
	app.sessionService = &service.SessionService{
		Client:       app.client,
		Sessions:     app.sessions,
		States:       app.states,
		Logger:       app.logger,
		LoginTimeout: app.cfg.LoginTimeout,
	}

	if app.db != nil {
		app.sessionService.Cache = app.db
		app.sessionService.CacheTTL = app.cfg.CacheTTL

		app.housekeepingService = service.NewHousekeepingService(
			app.db,
			app.logger,
			app.cfg.HousekeepingInterval,
			app.cfg.CacheTTL,
		)
	}
}

// resumeSession loads the profile behind restored tokens so the session is
// usable like a fresh login. Failures leave the session to be resumed on
// first use.
func (app *Application) resumeSession() {
	if !app.restored {
		return
	}

	timeout := app.cfg.LoginTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if _, err := app.sessionService.ResumeSession(ctx); err != nil {
		app.logger.Warn("restored session could not be resumed", "error", err)
	}
}

// initHTTP initializes the HTTP router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		BuildVersion,
		app.cfg.CallbackPath(),
		app.db,
		app.sessionService,
		app.logger,
	)
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
