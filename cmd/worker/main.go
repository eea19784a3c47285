package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	metricsink "powerwatch-backend"
	"powerwatch-backend/internal/api"
	"powerwatch-backend/internal/bus"
	"powerwatch-backend/internal/checks"
	"powerwatch-backend/internal/config"
	"powerwatch-backend/internal/crypto"
	"powerwatch-backend/internal/monitor"
	"powerwatch-backend/internal/observability"
	"powerwatch-backend/internal/pipeline"
	"powerwatch-backend/internal/scheduler"
	"powerwatch-backend/internal/security"
	"powerwatch-backend/internal/source"
	"powerwatch-backend/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	ctx := context.Background()
	configPath := getenv("CONFIG_PATH", "powerwatch.yaml")
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	dsn := getenv("DATABASE_URL", cfg.Database.URL)
	natsURL := getenv("NATS_URL", cfg.NATS.URL)
	workers := getenvInt("WORKER_COUNT", cfg.Workers)
	jobTimeout := time.Duration(getenvInt("JOB_TIMEOUT_SECONDS", 30)) * time.Second
	adminPort := getenv("ADMIN_PORT", cfg.Admin.Port)
	limits := security.DefaultLimits()

	hours, err := cfg.BusinessHours.Hours()
	if err != nil {
		logger.Error("invalid business hours", slog.String("error", err.Error()))
		os.Exit(1)
	}
	catalog := checks.NewCatalog(checks.Options{Hours: hours, Location: hours.Location})

	var decryptor crypto.Encryptor
	if raw := getenv("ENCRYPTION_KEY", ""); raw != "" {
		key, err := crypto.ParseKey(raw)
		if err != nil {
			logger.Error("invalid ENCRYPTION_KEY", slog.String("error", err.Error()))
			os.Exit(1)
		}
		enc, err := crypto.NewAesGcmEncryptor(key)
		if err != nil {
			logger.Error("failed to init encryptor", slog.String("error", err.Error()))
			os.Exit(1)
		}
		decryptor = enc
	}

	src, err := source.New(cfg.Source)
	if err != nil {
		logger.Error("failed to configure telemetry source", slog.String("error", err.Error()))
		os.Exit(1)
	}
	runner := pipeline.NewRunner(source.Bounded{Source: src, Limits: limits}, catalog)

	obs := observability.NewPromObs(nil)
	opts := scheduler.Options{
		Workers:    workers,
		JobTimeout: jobTimeout,
		Limits:     limits,
		Recorder:   obs,
		Notifier:   monitor.NewNotifier(cfg.NotifyCooldown()),
		Logger:     logger,
	}

	var repo *storage.Repository
	if dsn != "" {
		store, err := storage.NewStore(ctx, dsn, workers+2)
		if err != nil {
			logger.Error("failed to connect to db", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer store.Close()
		repo = storage.NewRepository(store)
		opts.Store = repo
		opts.History = repo
	}

	var sink metricsink.Sink
	if cfg.Sink.Type != "" {
		sink, err = metricsink.NewSink(metricsink.ConnectionConfig{
			Type:     cfg.Sink.Type,
			Host:     cfg.Sink.Host,
			Port:     cfg.Sink.Port,
			User:     cfg.Sink.User,
			Password: cfg.Sink.Password,
			Database: cfg.Sink.Database,
			SSLMode:  cfg.Sink.SSLMode,
			Table:    cfg.Sink.Table,
		})
		if err != nil {
			logger.Error("failed to configure metric sink", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer sink.Close()
		sinkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = sink.EnsureTable(sinkCtx)
		cancel()
		if err != nil {
			logger.Error("failed to prepare metric sink", slog.String("error", err.Error()))
			os.Exit(1)
		}
		opts.Sink = sink
	}

	var subscriber *bus.Subscriber
	if natsURL != "" {
		publisher, err := bus.NewPublisher(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer publisher.Close()
		opts.Publisher = publisher
		subscriber, err = bus.NewSubscriber(natsURL)
		if err != nil {
			logger.Error("failed to connect to nats", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer subscriber.Close()
	}

	reg := scheduler.NewRegistry(runner, opts)
	defer reg.Stop()

	devices := &fleet{
		path:      configPath,
		catalog:   catalog,
		limits:    limits,
		decryptor: decryptor,
		jobs:      reg,
		forget:    obs.ForgetDevice,
	}
	if err := devices.apply(cfg.Devices); err != nil {
		logger.Error("invalid device configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("devices scheduled", slog.Int("count", len(cfg.Devices)), slog.Int("workers", workers))

	handler := &api.Handler{
		Catalog: catalog,
		Devices: devices.devices,
		Jobs:    reg,
		Reload:  devices.reload,
		Metrics: obs.Handler(),
		Timeout: jobTimeout,
	}
	if repo != nil {
		handler.Repo = repo
	}
	if sink != nil {
		handler.Samples = sink
	}
	go startAdminServer(adminPort, handler, logger)
	go startMetricsServer(cfg.Metrics.Addr, obs.Handler(), logger)

	if subscriber != nil {
		subscribeEvents(subscriber, reg, logger)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	logger.Info("shutting down")
}

func subscribeEvents(sub *bus.Subscriber, reg *scheduler.Registry, logger *slog.Logger) {
	_, err := sub.SubscribePolls(func(req bus.PollRequest) {
		if err := reg.Enqueue(req.Device, req.Check); err != nil {
			logger.Error("poll request rejected", slog.String("device", req.Device), slog.String("error", err.Error()))
		}
	})
	if err != nil {
		logger.Error("subscribe failed", slog.String("subject", bus.SubjectPollRequest), slog.String("error", err.Error()))
	}
}

func startAdminServer(port string, handler *api.Handler, logger *slog.Logger) {
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       30 * time.Second,
	}
	logger.Info("worker admin server listening", slog.String("port", port))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("admin server error", slog.String("error", err.Error()))
	}
}

func startMetricsServer(addr string, handler http.Handler, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	logger.Info("metrics server listening", slog.String("addr", addr))
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", slog.String("error", err.Error()))
	}
}

func getenv(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(val); err == nil {
		return parsed
	}
	return fallback
}
