package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"smtrack.dev/telemetry-hub/internal/store"
)

// DeviceHandler applies device lifecycle events (create, update, online) to
// the primary store.
type DeviceHandler struct {
	logger  *slog.Logger
	devices store.DeviceRepository
}

// NewDeviceHandler creates a handler for the device queue.
func NewDeviceHandler(logger *slog.Logger, devices store.DeviceRepository) *DeviceHandler {
	return &DeviceHandler{logger: logger, devices: devices}
}

// Handle decodes a DeviceEvent envelope and applies it. Both add-device and
// update-device resolve to the same upsert, which keeps the apply idempotent
// under duplicate delivery and tolerant of create/update reordering across
// queues.
func (h *DeviceHandler) Handle(ctx context.Context, body []byte) error {
	var event DeviceEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal device event: %w", err)
	}

	switch event.Event {
	case EventAddDevice, EventUpdateDevice:
		if event.Device == nil {
			return fmt.Errorf("device event %q carries no device", event.Event)
		}

		h.logger.Info("applying device event",
			"event", event.Event,
			"serial", event.Device.Serial,
		)
		return h.devices.Upsert(ctx, event.Device)

	case EventOnline:
		if event.Online == nil {
			return fmt.Errorf("online event carries no status")
		}

		h.logger.Info("applying connectivity change",
			"serial", event.Online.Serial,
			"online", event.Online.Online,
		)
		return h.devices.SetOnline(ctx, event.Online.Serial, event.Online.Online)

	default:
		return fmt.Errorf("unknown device event %q", event.Event)
	}
}

// LogHandler persists telemetry reports from the log queue.
type LogHandler struct {
	logger *slog.Logger
	logs   store.LogRepository
}

// NewLogHandler creates a handler for the log queue.
func NewLogHandler(logger *slog.Logger, logs store.LogRepository) *LogHandler {
	return &LogHandler{logger: logger, logs: logs}
}

// Handle decodes a report and upserts it by its client-supplied ID, so a
// redelivered report settles into the same row.
func (h *LogHandler) Handle(ctx context.Context, body []byte) error {
	var report store.DeviceLog
	if err := json.Unmarshal(body, &report); err != nil {
		return fmt.Errorf("failed to unmarshal device log: %w", err)
	}

	if report.ID == "" || report.Serial == "" {
		return fmt.Errorf("device log missing id or serial")
	}

	h.logger.Debug("persisting device log",
		"id", report.ID,
		"serial", report.Serial,
		"send_time", report.SendTime,
	)
	return h.logs.Upsert(ctx, &report)
}

// NotificationHandler persists classified notifications from the
// notification queue.
type NotificationHandler struct {
	logger        *slog.Logger
	notifications store.NotificationRepository
}

// NewNotificationHandler creates a handler for the notification queue.
func NewNotificationHandler(logger *slog.Logger, notifications store.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{logger: logger, notifications: notifications}
}

// Handle decodes a notification and upserts it by ID.
func (h *NotificationHandler) Handle(ctx context.Context, body []byte) error {
	var notification store.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		return fmt.Errorf("failed to unmarshal notification: %w", err)
	}

	if notification.ID == "" || notification.Serial == "" {
		return fmt.Errorf("notification missing id or serial")
	}

	h.logger.Debug("persisting notification",
		"id", notification.ID,
		"serial", notification.Serial,
		"message", notification.Message,
	)
	return h.notifications.Upsert(ctx, &notification)
}
