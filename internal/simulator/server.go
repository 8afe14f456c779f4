// Package simulator drives the pipeline end to end with generated telemetry:
// it registers a fleet of fake devices and streams their readings and fault
// events through the same producers the API uses.
package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/pkg/metrics"
	"smtrack.dev/telemetry-hub/pkg/mq"
	"smtrack.dev/telemetry-hub/pkg/simulate"
)

// Server manages the simulated fleet.
type Server struct {
	logger   *slog.Logger
	config   *ServerConfig
	devices  []*simulate.Device
	clients  []*mq.Client
	reports  *ingest.ReportProducer
	notifier *ingest.NotificationProducer
	wg       sync.WaitGroup
}

// ServerConfig holds the configuration for the simulator server.
type ServerConfig struct {
	Logger *slog.Logger

	// RabbitMQURL is the broker to publish to.
	RabbitMQURL string
	// Interval is the time between readings per device.
	Interval time.Duration
	// DeviceCount is the number of simulated devices.
	DeviceCount int

	// IngestMetrics is the optional Prometheus metrics collector.
	IngestMetrics *metrics.IngestMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations.
	MQMetrics *metrics.MQMetrics
}

// NewServer creates a new simulator server.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("simulator config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.RabbitMQURL == "" {
		return nil, errors.New("rabbitmq URL cannot be empty")
	}

	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be greater than 0")
	}

	if cfg.DeviceCount <= 0 {
		return nil, errors.New("device count must be greater than 0")
	}

	s := &Server{
		logger: cfg.Logger,
		config: cfg,
	}

	newClient := func(queue string) *mq.Client {
		client := mq.New(queue, cfg.RabbitMQURL, cfg.Logger.With(
			slog.String("component", "mq-client"),
			slog.String("queue", queue),
		))
		if cfg.MQMetrics != nil {
			client.SetMetrics(cfg.MQMetrics)
		}
		s.clients = append(s.clients, client)
		return client
	}

	deviceClient := newClient(ingest.DeviceQueue)

	reports, err := ingest.NewReportProducer(&ingest.ReportProducerConfig{
		Logger:       cfg.Logger,
		LogClient:    newClient(ingest.LogQueue),
		DeviceClient: deviceClient,
		BackupClient: newClient(ingest.BackupQueue),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report producer: %w", err)
	}
	if cfg.IngestMetrics != nil {
		reports.SetMetrics(cfg.IngestMetrics)
	}
	s.reports = reports

	notifier, err := ingest.NewNotificationProducer(&ingest.NotificationProducerConfig{
		Logger: cfg.Logger,
		Client: newClient(ingest.NotificationQueue),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize notification producer: %w", err)
	}
	if cfg.IngestMetrics != nil {
		notifier.SetMetrics(cfg.IngestMetrics)
	}
	s.notifier = notifier

	for range cfg.DeviceCount {
		if device := simulate.NewDevice(); device != nil {
			s.devices = append(s.devices, device)
		}
	}
	if len(s.devices) == 0 {
		return nil, errors.New("failed to generate any devices")
	}

	return s, nil
}

// Run registers the fleet and streams readings until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting simulator",
		"devices", len(s.devices),
		"interval", s.config.Interval,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	// Give the broker clients a moment to finish their initial connect.
	time.Sleep(2 * time.Second)

	if err := s.registerDevices(ctx); err != nil {
		s.logger.Warn("device registration incomplete", "error", err)
	}

	for i, device := range s.devices {
		s.wg.Add(1)
		go s.runDevice(ctx, i, device)
	}

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled")
	}

	s.wg.Wait()

	for _, client := range s.clients {
		if err := client.Close(); err != nil {
			s.logger.Warn("failed to close mq client", "queue", client.QueueName(), "error", err)
		}
	}

	s.logger.Info("simulator stopped")
	return nil
}

// registerDevices publishes an add-device envelope for every simulated
// device. Registration failures do not stop the stream; the consumer's upsert
// will settle identity from later envelopes.
func (s *Server) registerDevices(ctx context.Context) error {
	deviceClient := s.clients[0]

	var errs []error
	for _, device := range s.devices {
		envelope := ingest.DeviceEvent{
			Event:  ingest.EventAddDevice,
			Device: device.Record(),
		}

		data, err := json.Marshal(envelope)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = deviceClient.Push(pushCtx, data)
		cancel()
		if err != nil {
			errs = append(errs, fmt.Errorf("register %s: %w", device.Serial, err))
			continue
		}

		s.logger.Info("registered device",
			"serial", device.Serial,
			"ward", device.Ward,
			"hospital", device.Hospital,
		)
	}
	return errors.Join(errs...)
}

// runDevice streams readings for one device at the configured interval, and
// raises the matching fault event when a reading is out of range.
func (s *Server) runDevice(ctx context.Context, id int, device *simulate.Device) {
	defer s.wg.Done()

	logger := s.logger.With(slog.Int("device_id", id), slog.String("serial", device.Serial))
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			reading := device.Reading(t)
			if err := s.reports.Publish(ctx, device.Serial, reading); err != nil {
				logger.Error("failed to publish reading", "error", err)
				continue
			}

			if code := simulate.EventCode(reading); code != "" {
				if _, err := s.notifier.Publish(ctx, device.Serial, code); err != nil {
					logger.Error("failed to publish event", "code", code, "error", err)
				} else {
					logger.Info("published event", "code", code)
				}
			}
		}
	}
}
