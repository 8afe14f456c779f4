package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/pkg/classify"
	"smtrack.dev/telemetry-hub/pkg/metrics"
	"smtrack.dev/telemetry-hub/pkg/mq"
)

// Serial prefixes recognized by the connectivity signal. Connect and
// disconnect events for any other client identifier are ignored.
var recognizedSerialPrefixes = []string{"eTPV", "iTSV"}

var (
	// ErrWrongYear rejects a report whose timestamp year does not match the
	// current processing year. Clock-skewed devices must not corrupt
	// historical aggregates.
	ErrWrongYear = errors.New("report year does not match current year")

	// ErrInvalidReport rejects a structurally invalid report or event before
	// any broker interaction.
	ErrInvalidReport = errors.New("invalid report")

	errNilReport       = fmt.Errorf("%w: report cannot be nil", ErrInvalidReport)
	errMissingSendTime = fmt.Errorf("%w: send time cannot be empty", ErrInvalidReport)
	errMissingSerial   = fmt.Errorf("%w: device serial cannot be empty", ErrInvalidReport)
	errMissingCode     = fmt.Errorf("%w: event code cannot be empty", ErrInvalidReport)
)

// ReportProducer validates telemetry reports and fans them out to the
// pipeline queues. Publication is fire-and-forget: the producer returns as
// soon as the publishes are issued, without waiting for broker confirmation.
type ReportProducer struct {
	logger       *slog.Logger
	logClient    mq.ClientInterface
	deviceClient mq.ClientInterface
	backupClient mq.ClientInterface
	now          func() time.Time
	metrics      *metrics.IngestMetrics // Optional metrics
}

// ReportProducerConfig holds the configuration for the ReportProducer.
type ReportProducerConfig struct {
	Logger *slog.Logger
	// LogClient publishes to the device-log queue.
	LogClient mq.ClientInterface
	// DeviceClient publishes to the per-device history queue.
	DeviceClient mq.ClientInterface
	// BackupClient publishes to the archival queue.
	BackupClient mq.ClientInterface
	// Now overrides the clock used by the year check. Defaults to time.Now.
	Now func() time.Time
}

// NewReportProducer creates a new ReportProducer instance.
func NewReportProducer(cfg *ReportProducerConfig) (*ReportProducer, error) {
	if cfg == nil {
		return nil, errors.New("report producer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.LogClient == nil {
		return nil, errors.New("log client cannot be nil")
	}

	if cfg.DeviceClient == nil {
		return nil, errors.New("device client cannot be nil")
	}

	if cfg.BackupClient == nil {
		return nil, errors.New("backup client cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &ReportProducer{
		logger:       cfg.Logger,
		logClient:    cfg.LogClient,
		deviceClient: cfg.DeviceClient,
		backupClient: cfg.BackupClient,
		now:          now,
	}, nil
}

// SetMetrics sets the metrics collector for this producer.
func (p *ReportProducer) SetMetrics(m *metrics.IngestMetrics) {
	p.metrics = m
}

// Publish validates a single report and fans it out to the log, device
// history and backup queues. Validation failure returns synchronously with
// zero broker interactions. A publish failure on one queue never prevents
// the remaining queues from being attempted; all failures are joined into
// the returned error so callers can observe partial loss.
func (p *ReportProducer) Publish(ctx context.Context, serial string, report *store.DeviceLog) error {
	if err := p.validate(serial, report); err != nil {
		if p.metrics != nil {
			p.metrics.ReportsRejected.Inc()
		}
		return err
	}

	p.stamp(serial, report)

	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	return errors.Join(
		p.push(ctx, p.logClient, data),
		p.push(ctx, p.deviceClient, data),
		p.push(ctx, p.backupClient, data),
	)
}

// PublishBatch fans out a batch of reports, silently skipping entries that
// fail the year check, and returns the number of reports accepted.
func (p *ReportProducer) PublishBatch(ctx context.Context, serial string, reports []*store.DeviceLog) (int, error) {
	accepted := 0
	var errs []error

	for _, report := range reports {
		err := p.Publish(ctx, serial, report)
		if err == nil {
			accepted++
			continue
		}
		if errors.Is(err, ErrWrongYear) {
			p.logger.Warn("skipping report with mismatched year",
				"serial", serial,
				"send_time", report.SendTime,
			)
			continue
		}
		errs = append(errs, err)
	}

	return accepted, errors.Join(errs...)
}

func (p *ReportProducer) validate(serial string, report *store.DeviceLog) error {
	if serial == "" {
		return errMissingSerial
	}
	if report == nil {
		return errNilReport
	}
	if report.SendTime.IsZero() {
		return errMissingSendTime
	}
	if year := p.now().Year(); report.SendTime.Year() != year {
		return fmt.Errorf("%w: expected %d but got %d for %s",
			ErrWrongYear, year, report.SendTime.Year(), serial)
	}
	return nil
}

// stamp fills in server-assigned fields. The ID doubles as the consumer's
// idempotence key, so it is only generated when the device did not supply
// its own.
func (p *ReportProducer) stamp(serial string, report *store.DeviceLog) {
	report.Serial = serial
	if report.ID == "" {
		report.ID = uuid.NewString()
	}
	now := p.now().UTC()
	report.CreatedAt = now
	report.UpdatedAt = now
}

// push issues a fire-and-forget publish on one queue. Failures are logged
// and counted; silent message loss would defeat the pipeline's purpose.
func (p *ReportProducer) push(ctx context.Context, client mq.ClientInterface, data []byte) error {
	if err := client.UnsafePush(ctx, data); err != nil {
		p.logger.Error("failed to publish report",
			"queue", client.QueueName(),
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.PublishFailures.WithLabelValues(client.QueueName(), "push_error").Inc()
		}
		return fmt.Errorf("publish to %s: %w", client.QueueName(), err)
	}

	if p.metrics != nil {
		p.metrics.ReportsPublished.WithLabelValues(client.QueueName()).Inc()
	}
	return nil
}

// NotificationProducer classifies raw event codes and publishes the
// resulting notifications.
type NotificationProducer struct {
	logger  *slog.Logger
	client  mq.ClientInterface
	now     func() time.Time
	metrics *metrics.IngestMetrics // Optional metrics
}

// NotificationProducerConfig holds the configuration for the NotificationProducer.
type NotificationProducerConfig struct {
	Logger *slog.Logger
	// Client publishes to the notification queue.
	Client mq.ClientInterface
	// Now overrides the clock used for stamping. Defaults to time.Now.
	Now func() time.Time
}

// NewNotificationProducer creates a new NotificationProducer instance.
func NewNotificationProducer(cfg *NotificationProducerConfig) (*NotificationProducer, error) {
	if cfg == nil {
		return nil, errors.New("notification producer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("notification client cannot be nil")
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &NotificationProducer{
		logger: cfg.Logger,
		client: cfg.Client,
		now:    now,
	}, nil
}

// SetMetrics sets the metrics collector for this producer.
func (p *NotificationProducer) SetMetrics(m *metrics.IngestMetrics) {
	p.metrics = m
}

// Publish derives the detail message from the raw event code and publishes
// the notification. The stamped notification is returned to the caller
// immediately; persistence happens asynchronously in the consumer.
func (p *NotificationProducer) Publish(ctx context.Context, serial, code string) (*store.Notification, error) {
	if serial == "" {
		if p.metrics != nil {
			p.metrics.ReportsRejected.Inc()
		}
		return nil, errMissingSerial
	}
	if code == "" {
		if p.metrics != nil {
			p.metrics.ReportsRejected.Inc()
		}
		return nil, errMissingCode
	}

	now := p.now().UTC()
	notification := &store.Notification{
		ID:        uuid.NewString(),
		Serial:    serial,
		Message:   code,
		Detail:    classify.Detail(code),
		Status:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	data, err := json.Marshal(notification)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	if err := p.client.UnsafePush(ctx, data); err != nil {
		p.logger.Error("failed to publish notification",
			"serial", serial,
			"code", code,
			"error", err,
		)
		if p.metrics != nil {
			p.metrics.PublishFailures.WithLabelValues(p.client.QueueName(), "push_error").Inc()
		}
		return nil, fmt.Errorf("publish to %s: %w", p.client.QueueName(), err)
	}

	if p.metrics != nil {
		p.metrics.ReportsPublished.WithLabelValues(p.client.QueueName()).Inc()
	}
	return notification, nil
}

// ConnectivityPublisher turns broker-originated connect/disconnect signals
// into online events on the device queue.
type ConnectivityPublisher struct {
	logger *slog.Logger
	client mq.ClientInterface
}

// NewConnectivityPublisher creates a new ConnectivityPublisher instance.
func NewConnectivityPublisher(logger *slog.Logger, client mq.ClientInterface) (*ConnectivityPublisher, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if client == nil {
		return nil, errors.New("device client cannot be nil")
	}

	return &ConnectivityPublisher{logger: logger, client: client}, nil
}

// Publish forwards a connectivity signal for recognized device identifiers.
// Unrecognized client IDs (gateway processes, dashboards) are dropped
// without error.
func (c *ConnectivityPublisher) Publish(ctx context.Context, clientID, event string) error {
	if !RecognizedSerial(clientID) {
		c.logger.Debug("ignoring connectivity signal for unrecognized client",
			"client_id", clientID,
		)
		return nil
	}

	envelope := DeviceEvent{
		Event: EventOnline,
		Online: &OnlineStatus{
			Serial: clientID,
			Online: event == "client.connected",
		},
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal online event: %w", err)
	}

	if err := c.client.UnsafePush(ctx, data); err != nil {
		c.logger.Error("failed to publish online event",
			"client_id", clientID,
			"error", err,
		)
		return fmt.Errorf("publish to %s: %w", c.client.QueueName(), err)
	}
	return nil
}

// RecognizedSerial reports whether a client identifier belongs to a managed
// sensor unit.
func RecognizedSerial(clientID string) bool {
	for _, prefix := range recognizedSerialPrefixes {
		if strings.HasPrefix(clientID, prefix) {
			return true
		}
	}
	return false
}
