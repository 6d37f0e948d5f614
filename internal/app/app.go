// Package app wires configuration, storage, the Google connector and the
// sync services into a runnable calsync process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/calsync/internal/adapters/driven/auth"
	"github.com/custodia-labs/calsync/internal/adapters/driven/storage"
	"github.com/custodia-labs/calsync/internal/adapters/driven/vault"
	"github.com/custodia-labs/calsync/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/calsync/internal/adapters/driving/oauth"
	"github.com/custodia-labs/calsync/internal/config"
	"github.com/custodia-labs/calsync/internal/connectors/google"
	"github.com/custodia-labs/calsync/internal/connectors/google/calendar"
	"github.com/custodia-labs/calsync/internal/core/domain"
	"github.com/custodia-labs/calsync/internal/core/ports/driven"
	"github.com/custodia-labs/calsync/internal/core/services"
	"github.com/custodia-labs/calsync/internal/logger"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server and
// in-flight sync work.
const shutdownTimeout = 30 * time.Second

// App is a fully wired calsync process.
type App struct {
	Config *config.Config
	Stores *storage.Stores
	OAuth  *oauth2.Config
	Tokens *auth.CredentialsTokenSources
	Sink   driven.MemorySink

	Dispatcher *services.Dispatcher
	Fetcher    *services.ChangeFetcher
	Sync       *services.SyncOrchestrator
	FullSync   *services.FullSyncRunner
	Channels   *services.ChannelService
	Status     *services.StatusService
	Scheduler  *services.Scheduler
}

// New builds an App from cfg. The caller owns the returned App and must
// Close it.
func New(cfg *config.Config) (*App, error) {
	stores, err := storage.Open(cfg.Storage.DSN)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	logger.Debug("storage backend: %s", stores.Backend)

	oauthCfg := google.NewOAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	tokens := auth.NewCredentialsTokenSources(oauthCfg, stores.Credentials)

	limiter := google.NewRateLimiter(google.RateLimitConfig{
		RequestsPerSecond: cfg.Google.RequestsPerSecond,
		BurstSize:         cfg.Google.Burst,
	})
	calCfg := calendar.DefaultConfig()
	calCfg.CalendarIDs = calendar.ParseCalendarIDs(cfg.Sync.Calendars)
	clients := calendar.NewProvider(tokens, limiter, calCfg)

	a := &App{
		Config:     cfg,
		Stores:     stores,
		OAuth:      oauthCfg,
		Tokens:     tokens,
		Sink:       newSink(cfg.Vault),
		Dispatcher: services.NewDispatcher(),
	}

	a.Fetcher = services.NewChangeFetcher(clients, stores.SyncTokens, services.FetcherOptions{
		InitialWindow: cfg.Sync.InitialWindow.Duration,
		PageSize:      cfg.Sync.PageSize,
		MaxAttempts:   cfg.Sync.MaxAttempts,
		BackoffBase:   cfg.Sync.BackoffBase.Duration,
	})
	a.FullSync = services.NewFullSyncRunner(clients, stores.SyncTokens, a.Sink, stores.Connections, a.Dispatcher,
		services.FullSyncOptions{
			Past:     cfg.Sync.FullSyncPast.Duration,
			Future:   cfg.Sync.FullSyncFuture.Duration,
			PageSize: cfg.Sync.PageSize,
		})
	a.Channels = services.NewChannelService(clients, stores.Channels, services.ChannelOptions{
		PublicBaseURL: cfg.Server.PublicBaseURL,
	})
	a.Sync = services.NewSyncOrchestrator(a.Fetcher, a.Sink, stores.Connections, stores.Channels, a.FullSync, a.Dispatcher)
	a.Status = services.NewStatusService(stores.Connections, stores.SyncTokens, stores.Channels, a.Dispatcher)
	a.Scheduler = services.NewScheduler(schedulerConfig(cfg.Scheduler), stores.Scheduler, a.Channels, a.FullSync)

	return a, nil
}

// newSink returns the vault HTTP client, or an in-memory sink when no
// vault URL is configured.
func newSink(cfg config.VaultConfig) driven.MemorySink {
	if cfg.BaseURL == "" {
		logger.Warn("vault.base_url not set: synced events are kept in memory only")
		return vault.NewMemorySink()
	}
	return vault.NewClient(vault.ClientOptions{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Timeout: cfg.Timeout.Duration,
	})
}

func schedulerConfig(cfg config.SchedulerConfig) domain.SchedulerConfig {
	sc := domain.DefaultSchedulerConfig()
	sc.Enabled = cfg.Enabled
	sc.TaskConfigs[domain.TaskIDChannelRenewal] = domain.TaskConfig{
		Enabled:  true,
		Interval: cfg.ChannelRenewalInterval.Duration,
	}
	sc.TaskConfigs[domain.TaskIDFullSyncSweep] = domain.TaskConfig{
		Enabled:  true,
		Interval: cfg.FullSyncSweepInterval.Duration,
	}
	return sc
}

// Handler returns the instrumented HTTP handler for the webhook and admin
// routes.
func (a *App) Handler() http.Handler {
	srv := httpapi.NewServer(httpapi.Services{
		Sync:     a.Sync,
		FullSync: a.FullSync,
		Channels: a.Channels,
		Status:   a.Status,
	}, httpapi.Config{
		AdminToken:   a.Config.Server.AdminToken,
		MaxBodyBytes: a.Config.Server.MaxBodyBytes,
	})
	return otelhttp.NewHandler(srv, "calsync")
}

// Serve runs the HTTP server and the scheduler until ctx is done, then
// shuts both down and drains in-flight sync work.
func (a *App) Serve(ctx context.Context) error {
	if a.Config.Server.PublicBaseURL == "" {
		logger.Warn("server.public_base_url not set: channels cannot be registered")
	}

	httpSrv := httpapi.NewHTTPServer(a.Config.Server.Addr, a.Handler())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening on %s", a.Config.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := a.Scheduler.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("scheduler: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.Scheduler.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
		if err := a.Dispatcher.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain sync work: %w", err))
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}

// Flow returns the interactive connect flow writing prompts to out.
func (a *App) Flow(out io.Writer) *oauth.Flow {
	return oauth.NewFlow(a.OAuth, a.Stores.Credentials, out)
}

// Close releases storage.
func (a *App) Close() error {
	return a.Stores.Close()
}
