package store

import (
	"context"
	"time"

	"smtrack.dev/telemetry-hub/pkg/scope"
)

// DeviceRepository persists and queries devices.
type DeviceRepository interface {
	// Upsert creates the device or updates its mutable attributes, keyed by
	// serial. Repeated application of the same record is idempotent.
	Upsert(ctx context.Context, d *Device) error

	// SetOnline flips the online flag for a device by serial.
	SetOnline(ctx context.Context, serial string, online bool) error

	// Get returns a device by serial.
	Get(ctx context.Context, serial string) (*Device, error)

	// Update applies a partial update to a device by serial.
	Update(ctx context.Context, serial string, updates map[string]any) error

	// Delete removes a device by serial.
	Delete(ctx context.Context, serial string) error

	// WardDevices returns devices in a ward ordered by display sequence,
	// each with its latest log and its notifications.
	WardDevices(ctx context.Context, ward string) ([]Device, error)
}

// LogRepository persists and queries device logs.
type LogRepository interface {
	// Upsert stores a log keyed by its client-supplied ID; duplicate broker
	// delivery of the same report leaves the row unchanged.
	Upsert(ctx context.Context, l *DeviceLog) error

	// BySerial returns all logs for a device, newest first.
	BySerial(ctx context.Context, serial string) ([]DeviceLog, error)

	// Update applies a partial update to a log by ID.
	Update(ctx context.Context, id string, updates map[string]any) error

	// Delete removes a log by ID.
	Delete(ctx context.Context, id string) error

	// DeleteBefore removes logs sent before the cutoff and reports how many
	// rows were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NotificationRepository persists and queries notifications.
type NotificationRepository interface {
	// Upsert stores a notification keyed by ID.
	Upsert(ctx context.Context, n *Notification) error

	// List returns notifications visible to the scope, joined with their
	// device, newest first. A non-empty contains value restricts to messages
	// containing that substring. page is 1-based.
	List(ctx context.Context, sc scope.Scope, contains string, page, perPage int) ([]NotificationWithDevice, error)

	// AllScoped returns every notification visible to the scope, newest
	// first, capped at limit (0 means no cap).
	AllScoped(ctx context.Context, sc scope.Scope, limit int) ([]NotificationWithDevice, error)

	// BySerial returns notifications for one device, newest first.
	BySerial(ctx context.Context, serial string) ([]Notification, error)

	// Update applies a partial update to a notification by ID.
	Update(ctx context.Context, id string, updates map[string]any) error

	// Delete removes a notification by ID.
	Delete(ctx context.Context, id string) error

	// DeleteBefore removes notifications created before the cutoff and
	// reports how many rows were deleted.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
