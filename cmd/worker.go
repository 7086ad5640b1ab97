package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/resorption-bidonvilles/internal/core/events"
	"github.com/frahmantamala/resorption-bidonvilles/internal/notification"
	"github.com/frahmantamala/resorption-bidonvilles/internal/scheduler"
	"github.com/frahmantamala/resorption-bidonvilles/internal/user"
	userPostgres "github.com/frahmantamala/resorption-bidonvilles/internal/user/postgres"
	"github.com/frahmantamala/resorption-bidonvilles/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start background workers",
	Long:  `Start the workers processing delayed jobs armed by the API.`,
}

var accessWorkerCmd = &cobra.Command{
	Use:   "access",
	Short: "Start the access expiry worker",
	Long:  `Process the user_access:expire tasks scheduled when activation links are created`,
	Run: func(cmd *cobra.Command, args []string) {
		startAccessWorker()
	},
}

var workerConcurrency int

func startAccessWorker() {
	config, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	lg := logger.LoggerWrapper()

	db, gdb, err := initDB(config.Database, lg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	bus := events.NewEventBus(lg)
	notification.NewNotifier(lg).Register(bus)

	redisOpt := redisClientOpt(config.Redis)
	sched := scheduler.NewScheduler(redisOpt, config.Scheduler.Queue, lg)
	defer sched.Close()

	users := user.NewService(userPostgres.NewUserRepository(gdb), sched, bus, user.Options{
		AccessTTL:    config.Scheduler.AccessTTL,
		BCryptCost:   config.Security.BCryptCost,
		QueryTimeout: config.Database.QueryTimeout,
	}, lg)

	concurrency := workerConcurrency
	if concurrency <= 0 {
		concurrency = config.Scheduler.Concurrency
	}
	server := scheduler.NewServer(redisOpt, config.Scheduler.Queue, concurrency, scheduler.NewHandlers(users, lg), lg)

	lg.Info("starting access worker", "queue", config.Scheduler.Queue, "concurrency", concurrency)
	if err := server.Start(); err != nil {
		lg.Error("access worker failed to start", "error", err)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	lg.Info("received signal, shutting down access worker", "signal", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownDone := make(chan struct{})
	go func() {
		server.Shutdown()
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
		lg.Info("access worker shutdown complete")
	case <-ctx.Done():
		lg.Warn("shutdown timeout reached, forcing exit")
	}
}

func init() {
	accessWorkerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Number of concurrent task handlers (overrides config)")

	workerCmd.AddCommand(accessWorkerCmd)
	rootCmd.AddCommand(workerCmd)
}
