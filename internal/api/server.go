// Package api exposes the HTTP surface of the telemetry pipeline: report
// ingest and event classification on the write side, scoped cached queries on
// the read side.
package api

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

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/internal/query"
	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/internal/tsdb"
	"smtrack.dev/telemetry-hub/pkg/cache"
	"smtrack.dev/telemetry-hub/pkg/metrics"
	"smtrack.dev/telemetry-hub/pkg/mq"
)

// Server runs the HTTP API and owns its collaborators: the database, the
// cache, the history backend and the broker publishers.
type Server struct {
	logger *slog.Logger
	config *ServerConfig
	db     *gorm.DB
	redis  *cache.Redis
	influx *tsdb.Influx
	mqs    []*mq.Client
	web    *http.Server
}

// ServerConfig holds the configuration for the API Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTPPort is the port the API listens on.
	HTTPPort int

	// Database configuration
	DBHost     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	DBPort     int

	// RabbitMQ configuration
	RabbitMQURL string

	// Redis configuration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// InfluxDB configuration
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Optional Prometheus metrics collectors.
	APIMetrics    *metrics.APIMetrics
	CacheMetrics  *metrics.CacheMetrics
	IngestMetrics *metrics.IngestMetrics
	MQMetrics     *metrics.MQMetrics
}

// NewServer creates a new API Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("http port must be positive")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("redis address cannot be empty")
	}

	if cfg.InfluxURL == "" {
		return nil, errors.New("influx URL cannot be empty")
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

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// newMQClient creates one broker client bound to a queue, with metrics when
// configured.
func (s *Server) newMQClient(queue string) *mq.Client {
	client := mq.New(queue, s.config.RabbitMQURL, s.logger.With(
		slog.String("component", "mq-client"),
		slog.String("queue", queue),
	))
	if s.config.MQMetrics != nil {
		client.SetMetrics(s.config.MQMetrics)
	}
	s.mqs = append(s.mqs, client)
	return client
}

// Run starts the API server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting api server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	db, err := store.NewDB(&store.DBConfig{
		Host:     s.config.DBHost,
		Port:     s.config.DBPort,
		User:     s.config.DBUser,
		Password: s.config.DBPassword,
		DBName:   s.config.DBName,
		SSLMode:  s.config.DBSSLMode,
		Logger:   s.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	redis, err := cache.NewRedis(&cache.RedisConfig{
		Logger:   s.logger,
		Addr:     s.config.RedisAddr,
		Password: s.config.RedisPassword,
		DB:       s.config.RedisDB,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if s.config.CacheMetrics != nil {
		redis.SetMetrics(s.config.CacheMetrics)
	}
	s.redis = redis

	// A dead cache only costs latency, so a failed ping is not fatal.
	if err := redis.Ping(ctx); err != nil {
		s.logger.Warn("cache unreachable at startup, reads degrade to store", "error", err)
	}

	influx, err := tsdb.NewInflux(&tsdb.InfluxConfig{
		Logger: s.logger,
		URL:    s.config.InfluxURL,
		Token:  s.config.InfluxToken,
		Org:    s.config.InfluxOrg,
		Bucket: s.config.InfluxBucket,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize history backend: %w", err)
	}
	s.influx = influx

	queryService, err := query.NewService(&query.ServiceConfig{
		Logger:        s.logger,
		Devices:       store.NewDeviceRepository(db),
		Logs:          store.NewLogRepository(db),
		Notifications: store.NewNotificationRepository(db),
		Cache:         redis,
		History:       influx,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize query service: %w", err)
	}

	deviceClient := s.newMQClient(ingest.DeviceQueue)

	reports, err := ingest.NewReportProducer(&ingest.ReportProducerConfig{
		Logger:       s.logger,
		LogClient:    s.newMQClient(ingest.LogQueue),
		DeviceClient: deviceClient,
		BackupClient: s.newMQClient(ingest.BackupQueue),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize report producer: %w", err)
	}
	if s.config.IngestMetrics != nil {
		reports.SetMetrics(s.config.IngestMetrics)
	}

	notifier, err := ingest.NewNotificationProducer(&ingest.NotificationProducerConfig{
		Logger: s.logger,
		Client: s.newMQClient(ingest.NotificationQueue),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize notification producer: %w", err)
	}
	if s.config.IngestMetrics != nil {
		notifier.SetMetrics(s.config.IngestMetrics)
	}

	connectivity, err := ingest.NewConnectivityPublisher(s.logger, deviceClient)
	if err != nil {
		return fmt.Errorf("failed to initialize connectivity publisher: %w", err)
	}

	handlers := NewHandlers(s.logger, queryService, reports, notifier, connectivity)
	if s.config.APIMetrics != nil {
		handlers.SetMetrics(s.config.APIMetrics)
	}

	addr := fmt.Sprintf(":%d", s.config.HTTPPort)
	s.web = &http.Server{
		Addr:              addr,
		Handler:           handlers.Routes(metrics.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	webErr := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "address", addr)
		if err := s.web.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			webErr <- fmt.Errorf("http server error: %w", err)
		}
		close(webErr)
	}()

	s.logger.Info("api server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-webErr:
		if err != nil {
			s.logger.Error("http server error", "error", err)
			cancel()
			return err
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down api server")

	var shutdownErr error
	record := func(stage string, err error) {
		if err == nil {
			return
		}
		s.logger.Error("shutdown step failed", "stage", stage, "error", err)
		if shutdownErr != nil {
			shutdownErr = fmt.Errorf("%w; %s error: %w", shutdownErr, stage, err)
		} else {
			shutdownErr = fmt.Errorf("%s error: %w", stage, err)
		}
	}

	if s.web != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		record("http shutdown", s.web.Shutdown(shutdownCtx))
		cancel()
	}

	for _, client := range s.mqs {
		if err := client.Close(); err != nil {
			s.logger.Warn("failed to close mq client", "queue", client.QueueName(), "error", err)
		}
	}

	if s.redis != nil {
		record("cache close", s.redis.Close())
	}

	if s.influx != nil {
		s.influx.Close()
	}

	if s.db != nil {
		record("database close", store.CloseDB(s.db, s.logger))
	}

	if shutdownErr != nil {
		s.logger.Error("api server shutdown completed with errors", "error", shutdownErr)
		return shutdownErr
	}

	s.logger.Info("api server shutdown completed successfully")
	return nil
}
