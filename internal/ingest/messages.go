// Package ingest implements the asynchronous ingestion pipeline: producers
// that validate and publish device traffic to RabbitMQ, and consumers that
// apply it to PostgreSQL idempotently.
package ingest

import (
	"smtrack.dev/telemetry-hub/internal/store"
)

// Queue names for the durable pipeline topics.
const (
	// LogQueue carries telemetry reports destined for the device_logs table.
	LogQueue = "logday"
	// DeviceQueue carries device lifecycle events (create/update/online).
	DeviceQueue = "log-device"
	// NotificationQueue carries classified event notifications.
	NotificationQueue = "notification"
	// BackupQueue feeds the archival stream consumed outside this service.
	BackupQueue = "backup"
)

// Device event names carried on DeviceQueue.
const (
	EventAddDevice    = "add-device"
	EventUpdateDevice = "update-device"
	EventOnline       = "online"
)

// DeviceEvent is the envelope published on the device queue.
type DeviceEvent struct {
	Event  string        `json:"event"`
	Device *store.Device `json:"device,omitempty"`
	Online *OnlineStatus `json:"online,omitempty"`
}

// OnlineStatus signals a connectivity change for one device.
type OnlineStatus struct {
	Serial string `json:"sn"`
	Online bool   `json:"status"`
}
