// Package query serves the read side of the pipeline: scoped notification
// lists, dashboard counters and per-device lookups, accelerated by a
// read-through cache and backed by the relational store and the time-series
// history backend.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/internal/tsdb"
	"smtrack.dev/telemetry-hub/pkg/cache"
	"smtrack.dev/telemetry-hub/pkg/classify"
	"smtrack.dev/telemetry-hub/pkg/scope"
)

var (
	// ErrInvalidFilter rejects a notification filter outside the known set.
	ErrInvalidFilter = errors.New("unknown notification filter")

	// ErrForbidden rejects a ward read outside the caller's visibility.
	ErrForbidden = errors.New("ward not visible to caller")

	// ErrInvalidSpan rejects a graph span outside the known presets.
	ErrInvalidSpan = errors.New("unknown graph span")
)

// filterConditions maps the public filter names to the substring each one
// matches inside raw event codes.
var filterConditions = map[string]string{
	"door":     "DOOR",
	"temp":     "TEMP",
	"internet": "INTERNET",
	"plug":     "AC",
	"sdcard":   "SD",
	"report":   "REPORT",
}

// Service composes the repositories, the cache and the history backend behind
// the read API. Every scoped method resolves the caller's claims through the
// same scope resolver, so cached and live reads can never apply different
// visibility rules.
type Service struct {
	logger        *slog.Logger
	devices       store.DeviceRepository
	logs          store.LogRepository
	notifications store.NotificationRepository
	cache         cache.Store
	history       tsdb.Querier
}

// ServiceConfig holds the configuration for the query Service.
type ServiceConfig struct {
	Logger        *slog.Logger
	Devices       store.DeviceRepository
	Logs          store.LogRepository
	Notifications store.NotificationRepository
	Cache         cache.Store
	// History is the time-series backend for chart and history queries.
	History tsdb.Querier
}

// NewService creates a new query Service instance.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("query service config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Devices == nil {
		return nil, errors.New("device repository cannot be nil")
	}

	if cfg.Logs == nil {
		return nil, errors.New("log repository cannot be nil")
	}

	if cfg.Notifications == nil {
		return nil, errors.New("notification repository cannot be nil")
	}

	if cfg.Cache == nil {
		return nil, errors.New("cache cannot be nil")
	}

	if cfg.History == nil {
		return nil, errors.New("history querier cannot be nil")
	}

	return &Service{
		logger:        cfg.Logger,
		devices:       cfg.Devices,
		logs:          cfg.Logs,
		notifications: cfg.Notifications,
		cache:         cfg.Cache,
		history:       cfg.History,
	}, nil
}

// fetch is the read-through pattern shared by every cached method: try the
// cache, fall back to the loader on miss, and write the result back only when
// keep reports it worth caching. A cache entry that fails to decode is treated
// as a miss rather than served corrupt.
func fetch[T any](ctx context.Context, s *Service, key string, ttl time.Duration,
	load func(context.Context) (T, error), keep func(T) bool) (T, error) {

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err == nil {
			return out, nil
		}
		s.logger.Warn("discarding undecodable cache entry", "key", key)
	}

	out, err := load(ctx)
	if err != nil {
		return out, err
	}

	if keep(out) {
		if data, err := json.Marshal(out); err == nil {
			_ = s.cache.Set(ctx, key, string(data), ttl)
		}
	}
	return out, nil
}

// ListNotifications returns the notifications visible to the caller, newest
// first, joined with their owning device. An empty filter reads through the
// cache; a filter from the known set restricts by code substring and always
// hits the store, since filtered pages are too sparse to be worth caching.
func (s *Service) ListNotifications(ctx context.Context, claims scope.Claims, filter string, page, perPage int) ([]store.NotificationWithDevice, error) {
	sc, err := scope.Resolve(claims)
	if err != nil {
		return nil, err
	}

	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}

	if filter != "" {
		contains, ok := filterConditions[filter]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFilter, filter)
		}
		return s.notifications.List(ctx, sc, contains, page, perPage)
	}

	key := fmt.Sprintf("notification:%s:%d:%d", sc.CacheKeyPrefix(), page, perPage)
	return fetch(ctx, s, key, cache.ListTTL,
		func(ctx context.Context) ([]store.NotificationWithDevice, error) {
			return s.notifications.List(ctx, sc, "", page, perPage)
		},
		func(out []store.NotificationWithDevice) bool { return len(out) > 0 },
	)
}

// DashboardCounts classifies every notification visible to the caller into
// its dashboard bucket and returns the aggregated counters.
func (s *Service) DashboardCounts(ctx context.Context, claims scope.Claims) (classify.Counts, error) {
	sc, err := scope.Resolve(claims)
	if err != nil {
		return classify.Counts{}, err
	}

	key := "count:" + sc.CacheKeyPrefix()
	type counted struct {
		Counts classify.Counts `json:"counts"`
		Total  int             `json:"total"`
	}

	out, err := fetch(ctx, s, key, cache.CountTTL,
		func(ctx context.Context) (counted, error) {
			rows, err := s.notifications.AllScoped(ctx, sc, 0)
			if err != nil {
				return counted{}, err
			}
			var c classify.Counts
			for _, row := range rows {
				c.Add(row.Message)
			}
			return counted{Counts: c, Total: len(rows)}, nil
		},
		func(out counted) bool { return out.Total > 0 },
	)
	return out.Counts, err
}

// DeviceLogs returns every telemetry report for one device, newest first.
func (s *Service) DeviceLogs(ctx context.Context, serial string) ([]store.DeviceLog, error) {
	key := "log:" + serial
	return fetch(ctx, s, key, cache.LogTTL,
		func(ctx context.Context) ([]store.DeviceLog, error) {
			return s.logs.BySerial(ctx, serial)
		},
		func(out []store.DeviceLog) bool { return len(out) > 0 },
	)
}

// DeviceNotifications returns the notifications raised by one device, newest
// first.
func (s *Service) DeviceNotifications(ctx context.Context, serial string) ([]store.Notification, error) {
	key := "notification:device:" + serial
	return fetch(ctx, s, key, cache.DeviceTTL,
		func(ctx context.Context) ([]store.Notification, error) {
			return s.notifications.BySerial(ctx, serial)
		},
		func(out []store.Notification) bool { return len(out) > 0 },
	)
}

// WardDevices returns the devices in a ward in display order, each with its
// latest log and notifications. A ward-scoped caller may only read their own
// ward.
func (s *Service) WardDevices(ctx context.Context, claims scope.Claims, ward string) ([]store.Device, error) {
	sc, err := scope.Resolve(claims)
	if err != nil {
		return nil, err
	}

	if sc.Kind == scope.KindWard && sc.Ward != ward {
		return nil, ErrForbidden
	}

	key := fmt.Sprintf("device:%s:%s", sc.CacheKeyPrefix(), ward)
	return fetch(ctx, s, key, cache.ListTTL,
		func(ctx context.Context) ([]store.Device, error) {
			return s.devices.WardDevices(ctx, ward)
		},
		func(out []store.Device) bool { return len(out) > 0 },
	)
}

// MobileNotifications returns the caller's full scoped notification feed for
// the mobile client, capped to the most recent entries.
func (s *Service) MobileNotifications(ctx context.Context, claims scope.Claims) ([]store.NotificationWithDevice, error) {
	sc, err := scope.Resolve(claims)
	if err != nil {
		return nil, err
	}

	key := "notification:mobile:" + sc.CacheKeyPrefix()
	return fetch(ctx, s, key, cache.DeviceTTL,
		func(ctx context.Context) ([]store.NotificationWithDevice, error) {
			return s.notifications.AllScoped(ctx, sc, 100)
		},
		func(out []store.NotificationWithDevice) bool { return len(out) > 0 },
	)
}

// UpdateNotification applies a partial update and drops every cached
// notification list and counter. A change is visible to every scope that can
// see the row, so invalidation is deliberately broad.
func (s *Service) UpdateNotification(ctx context.Context, id string, updates map[string]any) error {
	if err := s.notifications.Update(ctx, id, updates); err != nil {
		return err
	}
	s.invalidate(ctx, "notification:", "count:")
	return nil
}

// DeleteNotification removes a notification and drops the cached lists and
// counters.
func (s *Service) DeleteNotification(ctx context.Context, id string) error {
	if err := s.notifications.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "notification:", "count:")
	return nil
}

// UpdateDeviceLog applies a partial update to a telemetry report and drops
// the cached per-device logs.
func (s *Service) UpdateDeviceLog(ctx context.Context, id string, updates map[string]any) error {
	if err := s.logs.Update(ctx, id, updates); err != nil {
		return err
	}
	s.invalidate(ctx, "log:")
	return nil
}

// DeleteDeviceLog removes a telemetry report and drops the cached per-device
// logs.
func (s *Service) DeleteDeviceLog(ctx context.Context, id string) error {
	if err := s.logs.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, "log:")
	return nil
}

// UpdateDevice applies a partial update to a device and drops the cached ward
// views.
func (s *Service) UpdateDevice(ctx context.Context, serial string, updates map[string]any) error {
	if err := s.devices.Update(ctx, serial, updates); err != nil {
		return err
	}
	s.invalidate(ctx, "device:")
	return nil
}

// DeleteDevice removes a device and drops the cached ward views.
func (s *Service) DeleteDevice(ctx context.Context, serial string) error {
	if err := s.devices.Delete(ctx, serial); err != nil {
		return err
	}
	s.invalidate(ctx, "device:")
	return nil
}

// invalidate drops the given cache prefixes. Invalidation failure only delays
// freshness until the TTL expires, so it is logged and not propagated.
func (s *Service) invalidate(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		if err := s.cache.Invalidate(ctx, prefix); err != nil {
			s.logger.Warn("cache invalidation failed", "prefix", prefix, "error", err)
		}
	}
}
