package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/merchkit/postline/config"
	"github.com/merchkit/postline/internal/adapters/dispatcher"
	"github.com/merchkit/postline/internal/adapters/media"
	"github.com/merchkit/postline/internal/adapters/publisher"
	"github.com/merchkit/postline/internal/adapters/reaper"
	"github.com/merchkit/postline/internal/core"
	"github.com/merchkit/postline/internal/data"
	"github.com/merchkit/postline/internal/domain/model"
	"github.com/merchkit/postline/internal/observability/statsd"
	"github.com/merchkit/postline/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Submit *service.SubmitService
	Cancel *service.CancelService
	Query  *service.QueryService
	// Dispatcher is set only when the dispatcher service mode is enabled; the
	// HTTP sweep trigger shares it with the background runner.
	Dispatcher *service.DispatcherService
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB        *sql.DB
	PostRepo  *data.PostRepo
	CacheRepo core.CacheRepository
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(db *sql.DB, redisClient redis.UniversalClient, logger *slog.Logger) *serviceRepositories {
	repos := &serviceRepositories{
		DB:       db,
		PostRepo: data.NewPostRepo(db, data.PostRepoConfig{Logger: logger}),
	}
	if redisClient != nil {
		repos.CacheRepo = data.NewRedisCacheRepo(redisClient)
	}
	return repos
}

func defaultCredentials(cfg config.PublisherConfig) model.Credentials {
	return model.Credentials{
		APIKey:       cfg.APIKey,
		APISecret:    cfg.APISecret,
		AccessToken:  cfg.AccessToken,
		AccessSecret: cfg.AccessSecret,
	}
}

// NewServices wires business services over the shared infrastructure.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service deps are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := deps.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	repos := buildRepositories(deps.DB, deps.RedisClient, logger)

	submit, err := service.NewSubmitService(service.SubmitServiceOptions{
		Repo:               repos.PostRepo,
		Cache:              repos.CacheRepo,
		DefaultCredentials: defaultCredentials(appCfg.Publisher),
		Logger:             logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire submit service: %w", err)
	}

	cancel, err := service.NewCancelService(service.CancelServiceOptions{
		Repo:   repos.PostRepo,
		Cache:  repos.CacheRepo,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire cancel service: %w", err)
	}

	query, err := service.NewQueryService(service.QueryServiceOptions{
		Repo:     repos.PostRepo,
		Cache:    repos.CacheRepo,
		CacheTTL: appCfg.Cache.ListTTL,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire query service: %w", err)
	}

	container := ServiceContainer{
		Submit: submit,
		Cancel: cancel,
		Query:  query,
	}

	if appCfg.IsDispatcherEnabled() {
		dispatcherSvc, dispErr := service.NewDispatcherService(service.DispatcherServiceOptions{
			Repo:              repos.PostRepo,
			Fetcher:           buildMediaFetcher(appCfg.Dispatcher, logger),
			Publisher:         buildPublisher(appCfg.Publisher, logger),
			Cache:             repos.CacheRepo,
			MediaFetchTimeout: appCfg.Dispatcher.MediaFetchTimeout,
			PublishTimeout:    appCfg.Dispatcher.PublishTimeout,
			Logger:            logger,
			Metrics:           buildMetricsSink(appCfg.Metrics, logger),
		})
		if dispErr != nil {
			return ServiceContainer{}, fmt.Errorf("wire dispatcher service: %w", dispErr)
		}
		container.Dispatcher = dispatcherSvc
	}

	return container, nil
}

func buildMediaFetcher(cfg config.DispatcherConfig, logger *slog.Logger) *media.Fetcher {
	return media.NewFetcher(media.FetcherOptions{
		Client: &http.Client{Timeout: cfg.MediaFetchTimeout},
		Logger: logger,
	})
}

// buildMetricsSink dials the StatsD endpoint when metrics are enabled. A dial
// failure downgrades to no metrics rather than blocking startup.
func buildMetricsSink(cfg config.MetricsConfig, logger *slog.Logger) statsd.Sink {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Enabled,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Warn("statsd unavailable, continuing without metrics", "error", err)
		return nil
	}
	return client
}

func buildPublisher(cfg config.PublisherConfig, logger *slog.Logger) *publisher.TwitterPublisher {
	return publisher.NewTwitterPublisher(publisher.TwitterOptions{
		Config: cfg,
		Logger: logger,
	})
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

const (
	// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
	shutdownWaitTimeout = 15 * time.Second
)

// serviceStartupDeps groups dependencies for service startup.
type serviceStartupDeps struct {
	ctx             context.Context
	cfg             *ServiceOrchestrationConfig
	logger          *slog.Logger
	enabledServices map[config.ServiceMode]bool
	errCh           chan error
}

// backgroundService describes a startable background component.
type backgroundService struct {
	mode  config.ServiceMode
	name  string
	start func(context.Context) error
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// startHTTPServerIfEnabled starts the HTTP server if enabled.
func startHTTPServerIfEnabled(deps *serviceStartupDeps) *http.Server {
	if deps == nil || deps.cfg == nil || !deps.enabledServices[config.ServiceModeHTTP] {
		return nil
	}
	return StartHTTPServer(&HTTPServerConfig{
		Config:   deps.cfg.Config,
		Services: deps.cfg.Services,
		Logger:   deps.logger,
	})
}

func launchBackground(ctx context.Context, deps *serviceStartupDeps, descriptor backgroundService) <-chan struct{} {
	if deps == nil || !deps.enabledServices[descriptor.mode] {
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := descriptor.start(ctx); err != nil {
			errMsg := fmt.Errorf("%s failed: %w", descriptor.name, err)
			select {
			case deps.errCh <- errMsg:
			case <-ctx.Done():
			default:
				deps.logger.WarnContext(ctx, "dropping background service error",
					"service", descriptor.name, "error", errMsg)
			}
		}
	}()

	deps.logger.InfoContext(ctx, "background service started", "service", descriptor.name, "mode", descriptor.mode)

	return done
}

func startBackgroundServices(deps *serviceStartupDeps, services []backgroundService) []backgroundServiceHandle {
	if deps == nil {
		return nil
	}
	handles := make([]backgroundServiceHandle, 0, len(services))

	for _, svc := range services {
		done := launchBackground(deps.ctx, deps, svc)
		if done == nil {
			continue
		}

		handles = append(handles, backgroundServiceHandle{
			name: svc.name,
			done: done,
		})
	}

	return handles
}

func newDispatcherBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeDispatcher,
		name: "dispatcher",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var dispatcherCfg config.DispatcherConfig
			if deps.cfg.Config != nil {
				dispatcherCfg = deps.cfg.Config.Dispatcher
			}
			runner, err := dispatcher.NewRunner(dispatcher.RunnerOptions{
				DB:         deps.cfg.DB,
				Config:     dispatcherCfg,
				Logger:     deps.logger,
				Dispatcher: deps.cfg.Services.Dispatcher,
			})
			if err != nil {
				return fmt.Errorf("create dispatcher runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func newReaperBackgroundService(deps *serviceStartupDeps) backgroundService {
	return backgroundService{
		mode: config.ServiceModeReaper,
		name: "reaper",
		start: func(ctx context.Context) error {
			if deps == nil || deps.cfg == nil {
				return nil
			}
			var reaperCfg config.ReaperConfig
			if deps.cfg.Config != nil {
				reaperCfg = deps.cfg.Config.Reaper
			}
			runner, err := reaper.NewRunner(reaper.RunnerOptions{
				DB:     deps.cfg.DB,
				Config: reaperCfg,
				Logger: deps.logger,
			})
			if err != nil {
				return fmt.Errorf("create reaper runner: %w", err)
			}
			return runner.Run(ctx)
		},
	}
}

func buildBackgroundServices(deps *serviceStartupDeps) []backgroundService {
	if deps == nil {
		return nil
	}
	return []backgroundService{
		newDispatcherBackgroundService(deps),
		newReaperBackgroundService(deps),
	}
}

// ServiceStartupResult holds the results of starting all services.
type ServiceStartupResult struct {
	HTTPServer *http.Server
	Background []backgroundServiceHandle
}

// startServices starts all enabled services and returns their completion channels.
func startServices(deps *serviceStartupDeps) ServiceStartupResult {
	return ServiceStartupResult{
		HTTPServer: startHTTPServerIfEnabled(deps),
		Background: startBackgroundServices(deps, buildBackgroundServices(deps)),
	}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	ctx := context.Background()
	serviceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	// Determine which services are enabled
	enabledServices, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabledServices)+1)

	// Start all enabled services
	result := startServices(&serviceStartupDeps{
		ctx:             serviceCtx,
		cfg:             cfg,
		logger:          logger,
		enabledServices: enabledServices,
		errCh:           errCh,
	})

	// Wait for shutdown signal or error
	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  result.HTTPServer,
		logger:      logger,
		backgrounds: result.Background,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel() // Cancel service context before waiting
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel() // Cancel service context before waiting
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services.
func gracefulStop(cfg shutdownConfig) error {
	// Gracefully stop HTTP server if running
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(cfg.ctx, shutdownWaitTimeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	// Wait for background services to finish
	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}
