package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/resorption-bidonvilles/internal"
	"github.com/frahmantamala/resorption-bidonvilles/internal/auth"
	authPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/auth/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/export"
	"github.com/frahmantamala/resorption-bidonvilles/internal/geo"
	geoPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/geo/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/internal/metrics"
	"github.com/frahmantamala/resorption-bidonvilles/internal/notification"
	"github.com/frahmantamala/resorption-bidonvilles/internal/plan"
	planPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/plan/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/internal/scheduler"
	"github.com/frahmantamala/resorption-bidonvilles/internal/shantytown"
	shantytownPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/shantytown/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/internal/stats"
	statsPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/stats/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport/middleware"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport/rest"
	"github.com/frahmantamala/resorption-bidonvilles/internal/transport/swagger"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	userPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/user/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

var httpServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start HTTP server",
	Long:  `Start the HTTP server to handle API requests`,
	Run: func(cmd *cobra.Command, args []string) {
		startHTTPServer()
	},
}

type Dependencies struct {
	Config    *internal.Config
	DB        *sqlx.DB
	Gorm      *gorm.DB
	Redis     *redis.Client
	Bus       *events.EventBus
	Scheduler *scheduler.Scheduler
	Router    *chi.Mux
	Logger    *slog.Logger
}

func startHTTPServer() {
	deps, err := initializeDependencies()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize dependencies: %v\n", err)
		os.Exit(1)
	}
	defer deps.close()

	setupRoutes(deps)

	addr := fmt.Sprintf(":%d", deps.Config.Server.Port)
	deps.Logger.Info("starting HTTP server", "address", addr, "env", deps.Config.Env)

	server := &http.Server{
		Addr:              addr,
		Handler:           deps.Router,
		ReadHeaderTimeout: deps.Config.Server.ReadHeaderTimeout,
		ReadTimeout:       deps.Config.Server.ReadTimeout,
		WriteTimeout:      deps.Config.Server.WriteTimeout,
		IdleTimeout:       deps.Config.Server.IdleTimeout,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		serverErrChan <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigChan:
		deps.Logger.Info("received signal, shutting down", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			deps.Logger.Error("server shutdown error", "error", err)
		}
	case err := <-serverErrChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			deps.Logger.Error("server failed to start", "error", err)
		}
	}

	deps.Logger.Info("server stopped")
}

func setupRoutes(deps *Dependencies) {
	cfg := deps.Config
	lg := deps.Logger
	queryTimeout := cfg.Database.QueryTimeout

	locations := geo.NewResolver(geoPostgres.NewGeoRepository(deps.Gorm), lg)

	userService := user.NewService(userPostgres.NewUserRepository(deps.Gorm), deps.Scheduler, deps.Bus, user.Options{
		AccessTTL:    cfg.Scheduler.AccessTTL,
		BCryptCost:   cfg.Security.BCryptCost,
		QueryTimeout: queryTimeout,
	}, lg)

	tokens := auth.NewJWTTokenGenerator(
		cfg.Security.AccessTokenSecret,
		cfg.Security.RefreshTokenSecret,
		cfg.Security.AccessTokenDuration,
		cfg.Security.RefreshTokenDuration,
	)
	authService := auth.NewService(authPostgres.NewRepository(deps.Gorm), userService, tokens, lg)

	aggregateOpts := shantytown.Options{QueryTimeout: queryTimeout, Observer: metrics.ObserveQuery}
	shantytownService := shantytown.NewService(shantytownPostgres.NewShantytownRepository(deps.Gorm), locations, deps.Bus, aggregateOpts, lg)
	planService := plan.NewService(planPostgres.NewPlanRepository(deps.Gorm), locations, deps.Bus, plan.Options{
		QueryTimeout: queryTimeout,
		Observer:     metrics.ObserveQuery,
	}, lg)
	statsService := stats.NewService(statsPostgres.NewStatsRepository(deps.DB), queryTimeout, metrics.ObserveQuery, lg)
	exportService := export.NewService(shantytownService, lg)

	handlers := rest.Handlers{
		Health: rest.NewHealthHandler(transport.NewBaseHandler(lg), map[string]rest.Probe{
			"postgres": deps.DB,
			"redis":    rest.PingFunc(func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() }),
		}),
		Auth:       auth.NewHandler(authService),
		User:       user.NewHandler(userService, cfg.Server.BaseURL),
		Shantytown: shantytown.NewHandler(shantytownService),
		Export:     export.NewHandler(exportService),
		Plan:       plan.NewHandler(planService),
		Stats:      stats.NewHandler(statsService),
	}

	if sw, err := swagger.Load(context.Background(), cfg.Server.OpenAPIPath); err != nil {
		lg.Warn("openapi document unavailable, swagger ui disabled", "error", err)
	} else {
		lg.Info("openapi document loaded", "version", sw.Version(), "operations", sw.Operations())
		handlers.Swagger = sw
	}

	opts := rest.Options{
		AllowedOrigins: cfg.Server.Origins(),
		MetricsEnabled: cfg.Observability.Metrics.Enabled,
		MetricsPath:    cfg.Observability.Metrics.Path,
	}
	if cfg.RateLimit.Enabled {
		store := middleware.NewRateLimitStore(deps.Redis, "rb:login", lg)
		opts.LoginLimit = middleware.RateLimit(middleware.RateLimitConfig{
			Requests: cfg.RateLimit.LoginRequests,
			Period:   cfg.RateLimit.LoginPeriod,
		}, store, lg)
	}

	rest.RegisterAllRoutes(deps.Router, handlers, opts, lg)
}

func initializeDependencies() (*Dependencies, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.LoggerWrapper()

	db, gdb, err := initDB(config.Database, lg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	bus := events.NewEventBus(lg)
	notification.NewNotifier(lg).Register(bus)

	return &Dependencies{
		Config:    config,
		DB:        db,
		Gorm:      gdb,
		Redis:     initRedis(config.Redis, lg),
		Bus:       bus,
		Scheduler: scheduler.NewScheduler(redisClientOpt(config.Redis), config.Scheduler.Queue, lg),
		Router:    chi.NewRouter(),
		Logger:    lg,
	}, nil
}

func (d *Dependencies) close() {
	if err := d.Scheduler.Close(); err != nil {
		d.Logger.Error("scheduler close error", "error", err)
	}
	if err := d.Redis.Close(); err != nil {
		d.Logger.Error("redis close error", "error", err)
	}
	if err := d.DB.Close(); err != nil {
		d.Logger.Error("database close error", "error", err)
	}
}
