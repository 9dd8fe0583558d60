/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the leave ledger server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags and load configuration (viper + .env)
  2. Build the zap logger
  3. Open the store (sqlite, mongo or memory)
  4. Wire attachments, notifiers, calendar and the leave service
  5. Configure the HTTP router and start the scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  Path to a config file (default: ./config.toml if present)
  -port    HTTP server port, overrides app.port

ENVIRONMENT:
  Every key can be set as LEAVE_<SECTION>_<KEY>, e.g.
  LEAVE_STORAGE_DRIVER=memory or LEAVE_REDIS_ENABLED=true.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close store and notifier connections

EXAMPLES:
  # Run against a throwaway in-memory store
  LEAVE_STORAGE_DRIVER=memory ./server

  # Run with a config file on a different port
  ./server -config=./deploy/config.toml -port=3000

SEE ALSO:
  - config/config.go: Configuration keys and defaults
  - api/server.go: Router configuration
*/
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/api"
	"github.com/warp/leave-engine/attachment"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/logging"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/store/mongodb"
	"github.com/warp/leave-engine/store/sqlite"
)

// backend is what every store implementation provides.
type backend interface {
	leave.Store
	leave.CalendarStore
	generic.Store
	generic.RunStore
}

func main() {
	configPath := flag.String("config", "", "Path to config file")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	if err := run(*configPath, *port); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, port int) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.App.Port = port
	}

	logger, err := logging.New(logging.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: cfg.Log.TimeFormat,
	})
	if err != nil {
		return err
	}
	defer logger.Sync()
	logger = logger.With(zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer closeStore()
	logger.Info("store opened", zap.String("driver", cfg.Storage.Driver))

	attachments, err := openAttachments(ctx, cfg.Attachments, logger)
	if err != nil {
		return err
	}

	notifier, closeNotifier, err := openNotifier(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeNotifier()

	cal := calendar.NewProvider(store)
	svc := leave.NewService(store,
		leave.WithLedger(generic.NewLedger(store)),
		leave.WithCalendar(cal),
		leave.WithAttachments(attachments),
		leave.WithNotifier(notifier),
		leave.WithLogger(logger.Named("leave")),
		leave.WithAttachmentDefaults(cfg.Attachments.MaxBytes, cfg.Attachments.AllowedTypes),
	)

	jobs := api.NewJobs(svc, store, logger.Named("jobs"))
	handler := api.NewHandler(svc, cal, jobs, logger)
	handler.RemindAfter = cfg.Scheduler.RemindAfter
	router := api.NewRouter(handler, nil)

	criterion, err := leave.ParseResetCriterion(cfg.Scheduler.ResetCriteria)
	if err != nil {
		return err
	}
	scheduler := api.NewScheduler(jobs, logger)
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Interval = cfg.Scheduler.Interval
	scheduler.Criterion = criterion
	scheduler.RemindAfter = cfg.Scheduler.RemindAfter
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		logger.Info("shutting down server", zap.String("signal", sig.String()))
	}

	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func openStore(ctx context.Context, cfg config.StorageConfig) (backend, func(), error) {
	switch cfg.Driver {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() { s.Close() }, nil
	case "mongo":
		s, err := mongodb.New(ctx, mongodb.Config{
			URI:      cfg.MongoURI,
			Database: cfg.MongoDatabase,
			Timeout:  cfg.MongoTimeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close(context.Background()) }, nil
	default:
		return memory.New(), func() {}, nil
	}
}

func openAttachments(ctx context.Context, cfg config.AttachmentConfig, logger *zap.Logger) (leave.AttachmentStore, error) {
	if cfg.Driver != "s3" {
		return attachment.NewLocalStore(cfg.LocalDir), nil
	}
	return attachment.NewS3Store(ctx, attachment.S3Config{
		Bucket:       cfg.Bucket,
		Region:       cfg.Region,
		Endpoint:     cfg.Endpoint,
		AccessKey:    cfg.AccessKey,
		SecretKey:    cfg.SecretKey,
		UsePathStyle: cfg.UsePathStyle,
	}, logger.Named("attachments"))
}

// openNotifier always logs events; with redis enabled it also publishes them.
func openNotifier(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (leave.Notifier, func(), error) {
	logNotifier := notify.NewLogNotifier(logger.Named("events"))
	if !cfg.Enabled {
		return logNotifier, func() {}, nil
	}

	redisNotifier, err := notify.NewRedisNotifier(ctx, notify.RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
		Channel:  cfg.Channel,
	}, logger.Named("redis"))
	if err != nil {
		return nil, nil, err
	}
	return notify.Multi{logNotifier, redisNotifier}, func() { redisNotifier.Close() }, nil
}
