// Package bootstrap wires the mirror's dependencies and runs it.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/artpar/kintone/adapters/clock"
	apihttp "github.com/artpar/kintone/adapters/http"
	"github.com/artpar/kintone/adapters/idgen"
	"github.com/artpar/kintone/adapters/metrics"
	"github.com/artpar/kintone/adapters/remote"
	"github.com/artpar/kintone/adapters/sqlite"
	"github.com/artpar/kintone/app"
	"github.com/artpar/kintone/config"
	"github.com/artpar/kintone/domain/ratelimit"
	"github.com/artpar/kintone/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// App is a configured mirror.
type App struct {
	Logger     zerolog.Logger
	DB         *sqlite.DB
	Store      *sqlite.MirrorStore
	Mirror     *app.MirrorService
	Metrics    *metrics.Collector
	HTTPServer *http.Server // nil unless metrics are enabled

	cfg    *config.Config
	holder *config.Holder
}

// Options provides optional configuration for application initialization.
type Options struct {
	Logger zerolog.Logger
	// Password completes an auth.user given without auth.password.
	Password string
	// Serve builds the health and metrics server when metrics are enabled.
	Serve   bool
	Version string
	// HTTPClient overrides the client used for kintone requests.
	HTTPClient *http.Client
}

// New creates the mirror for cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	a := &App{
		Logger: opts.Logger,
		cfg:    cfg,
	}
	if cfg.Auth.User != "" && cfg.Auth.Password == "" {
		cfg.Auth.Password = opts.Password
	}

	var metricsHandler http.Handler
	if opts.Serve && cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
		a.Logger.Info().Msg("prometheus metrics enabled")
	}

	if err := a.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	api := NewAPI(cfg, a.Logger, a.Metrics, opts.HTTPClient)
	logger := a.Logger.With().Str("component", "mirror").Logger()
	a.Mirror = app.NewMirrorService(api, a.Store, clock.Real{}, idgen.UUID{}, a.Metrics, logger)
	a.Mirror.SetOptions(MirrorOptions(cfg.Mirror))

	if metricsHandler != nil {
		router := apihttp.NewRouter(apihttp.NewHealthHandler(a.Store, cfg.App.ID), a.Logger, apihttp.RouterConfig{
			MetricsHandler: metricsHandler,
			MetricsPath:    cfg.Metrics.Path,
			Version:        opts.Version,
		})
		a.HTTPServer = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
	}
	return a, nil
}

// NewWithHotReload creates the mirror from the file at path and applies
// reloadable changes to it while it runs.
func NewWithHotReload(path string, opts Options) (*App, error) {
	holder, err := config.NewHolder(path, opts.Logger.With().Str("component", "config").Logger())
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get(), opts)
	if err != nil {
		return nil, err
	}
	a.holder = holder

	if a.Metrics != nil {
		holder.SetRecorder(a.Metrics)
	}
	holder.OnChange(func(c *config.Config) {
		SetLogLevel(c.Logging.Level)
		a.Mirror.SetOptions(MirrorOptions(c.Mirror))
	})
	return a, nil
}

func (a *App) initDatabase() error {
	db, err := sqlite.Open(a.cfg.Mirror.DSN)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}

	a.DB = db
	a.Store = sqlite.NewMirrorStore(db)
	a.Logger.Debug().Str("dsn", a.cfg.Mirror.DSN).Msg("database initialized")
	return nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	if a.holder != nil {
		return a.holder.Get()
	}
	return a.cfg
}

// Holder returns the config holder, nil without hot reload.
func (a *App) Holder() *config.Holder { return a.holder }

// RunOnce mirrors the app a single time.
func (a *App) RunOnce(ctx context.Context) (ports.MirrorRun, error) {
	return a.Mirror.Run(ctx)
}

// Run starts the ops server and config watchers, then mirrors every
// interval until ctx is canceled. It shuts the app down before returning.
func (a *App) Run(ctx context.Context) error {
	defer a.Shutdown()

	if a.holder != nil {
		if err := a.holder.WatchFile(); err != nil {
			a.Logger.Warn().Err(err).Msg("config file watch unavailable")
		}
		a.holder.WatchSignals()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	if a.HTTPServer != nil {
		go func() {
			a.Logger.Info().Str("addr", a.HTTPServer.Addr).Msg("serving health and metrics")
			if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				cancel()
			}
		}()
	}

	a.Logger.Info().Dur("interval", a.Mirror.Options().Interval).Int64("app", a.Config().App.ID).Msg("watching app")
	err := a.Mirror.Watch(ctx)
	select {
	case serr := <-errCh:
		return fmt.Errorf("server error: %w", serr)
	default:
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// Shutdown stops the watchers and the server and closes the database.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.holder != nil {
		a.holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
			return err
		}
		a.DB = nil
	}

	a.Logger.Info().Msg("shutdown complete")
	return nil
}

// NewAPI builds the records API client for cfg. m and httpClient may be
// nil.
func NewAPI(cfg *config.Config, logger zerolog.Logger, m *metrics.Collector, httpClient *http.Client) *remote.API {
	var limiter *ratelimit.Limiter
	if cfg.Site.RateLimit > 0 {
		limiter = ratelimit.NewLimiter(ratelimit.PerSecond(cfg.Site.RateLimit))
	}
	client := remote.NewClient(remote.ClientConfig{
		BaseURL: cfg.BaseURL(),
		Auth: remote.Auth{
			User:          cfg.Auth.User,
			Password:      cfg.Auth.Password,
			APIToken:      cfg.Auth.APIToken,
			BasicUser:     cfg.Auth.BasicUser,
			BasicPassword: cfg.Auth.BasicPassword,
		},
		Timeout:    cfg.Site.Timeout,
		UserAgent:  cfg.Site.UserAgent,
		Headers:    cfg.Site.Headers,
		Logger:     &logger,
		Metrics:    m,
		HTTPClient: httpClient,
		Limiter:    limiter,
	})
	return remote.NewAPI(client, cfg.App.ID, cfg.App.GuestSpaceID)
}

// MirrorOptions maps the mirror config section to service options.
func MirrorOptions(c config.MirrorConfig) app.MirrorOptions {
	return app.MirrorOptions{
		PageSize:    c.PageSize,
		Concurrency: c.Concurrency,
		Fields:      c.Fields,
		Filter:      c.Filter,
		Prune:       c.PruneEnabled(),
		Interval:    c.Interval,
	}
}

// NewLogger builds the process logger. Console output is meant for
// terminals; json for collectors.
func NewLogger(cfg config.LoggingConfig, w io.Writer) zerolog.Logger {
	SetLogLevel(cfg.Level)
	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLogLevel sets the global level; unknown names mean info.
func SetLogLevel(name string) {
	level, err := zerolog.ParseLevel(name)
	if err != nil || name == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
