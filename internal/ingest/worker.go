package ingest

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

	"gorm.io/gorm"

	"smtrack.dev/telemetry-hub/internal/retention"
	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/pkg/metrics"
	"smtrack.dev/telemetry-hub/pkg/mq"
)

// Worker is the pipeline's consuming side: it drains the log, device and
// notification queues into the relational store and runs the nightly
// retention job.
type Worker struct {
	logger     *slog.Logger
	config     *WorkerConfig
	db         *gorm.DB
	consumers  []*Consumer
	retention  *retention.Job
	metricsWeb *http.Server
}

// WorkerConfig holds the configuration for the Worker.
type WorkerConfig struct {
	Logger *slog.Logger

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL string

	// MetricsPort serves /metrics and /health when positive.
	MetricsPort int

	// IngestMetrics is the optional Prometheus metrics collector.
	IngestMetrics *metrics.IngestMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations.
	MQMetrics *metrics.MQMetrics
}

// NewWorker creates a new Worker instance.
func NewWorker(cfg *WorkerConfig) (*Worker, error) {
	if cfg == nil {
		return nil, errors.New("worker config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.DBHost == "" {
		return nil, errors.New("database host cannot be empty")
	}

	if cfg.DBPort <= 0 {
		return nil, errors.New("database port must be positive")
	}

	if cfg.DBUser == "" {
		return nil, errors.New("database user cannot be empty")
	}

	if cfg.DBName == "" {
		return nil, errors.New("database name cannot be empty")
	}

	return &Worker{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// Run starts the worker and blocks until shutdown.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("starting worker")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	db, err := store.NewDB(&store.DBConfig{
		Host:     w.config.DBHost,
		Port:     w.config.DBPort,
		User:     w.config.DBUser,
		Password: w.config.DBPassword,
		DBName:   w.config.DBName,
		SSLMode:  w.config.DBSSLMode,
		Logger:   w.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	w.db = db

	devices := store.NewDeviceRepository(db)
	logs := store.NewLogRepository(db)
	notifications := store.NewNotificationRepository(db)

	handlers := []struct {
		queue   string
		handler Handler
	}{
		{LogQueue, NewLogHandler(w.logger, logs).Handle},
		{DeviceQueue, NewDeviceHandler(w.logger, devices).Handle},
		{NotificationQueue, NewNotificationHandler(w.logger, notifications).Handle},
	}

	for _, h := range handlers {
		client := mq.New(h.queue, w.config.RabbitMQURL, w.logger.With(
			slog.String("component", "mq-client"),
			slog.String("queue", h.queue),
		))
		if w.config.MQMetrics != nil {
			client.SetMetrics(w.config.MQMetrics)
		}

		consumer, err := NewConsumer(&ConsumerConfig{
			Logger:  w.logger,
			Client:  client,
			Handler: h.handler,
			Metrics: w.config.IngestMetrics,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize %s consumer: %w", h.queue, err)
		}
		w.consumers = append(w.consumers, consumer)
	}

	for _, consumer := range w.consumers {
		if err := consumer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start consumer: %w", err)
		}
	}

	job, err := retention.NewJob(&retention.JobConfig{
		Logger:        w.logger,
		Logs:          logs,
		Notifications: notifications,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize retention job: %w", err)
	}
	if err := job.Start(); err != nil {
		return fmt.Errorf("failed to start retention job: %w", err)
	}
	w.retention = job

	webErr := make(chan error, 1)
	if w.config.MetricsPort > 0 {
		w.metricsWeb = w.newMetricsServer()
		go func() {
			if err := w.metricsWeb.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				webErr <- fmt.Errorf("metrics server error: %w", err)
			}
			close(webErr)
		}()
	}

	w.logger.Info("worker started successfully")

	select {
	case sig := <-sigChan:
		w.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		w.logger.Info("context canceled")
	case err := <-webErr:
		if err != nil {
			w.logger.Error("metrics server error", "error", err)
			cancel()
			return err
		}
	}

	return w.Shutdown()
}

// newMetricsServer builds the HTTP server exposing /metrics and /health.
func (w *Worker) newMetricsServer() *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})

	addr := fmt.Sprintf(":%d", w.config.MetricsPort)
	w.logger.Info("starting metrics server", "address", addr)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Shutdown gracefully shuts down the worker.
func (w *Worker) Shutdown() error {
	w.logger.Info("shutting down worker")

	var shutdownErr error

	if w.metricsWeb != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := w.metricsWeb.Shutdown(shutdownCtx); err != nil {
			w.logger.Error("failed to stop metrics server", "error", err)
			shutdownErr = fmt.Errorf("metrics server shutdown error: %w", err)
		}
		cancel()
	}

	if w.retention != nil {
		w.retention.Stop()
	}

	for _, consumer := range w.consumers {
		if err := consumer.Stop(); err != nil {
			w.logger.Error("failed to stop consumer", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; consumer shutdown error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("consumer shutdown error: %w", err)
			}
		}
	}

	if w.db != nil {
		if err := store.CloseDB(w.db, w.logger); err != nil {
			w.logger.Error("failed to close database", "error", err)
			if shutdownErr != nil {
				shutdownErr = fmt.Errorf("%w; database close error: %w", shutdownErr, err)
			} else {
				shutdownErr = fmt.Errorf("database close error: %w", err)
			}
		}
	}

	if shutdownErr != nil {
		w.logger.Error("worker shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	w.logger.Info("worker shutdown completed successfully")
	return nil
}
