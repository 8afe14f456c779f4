package query_test

import (
	"context"
	"time"

	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/internal/tsdb"
	"smtrack.dev/telemetry-hub/pkg/scope"
)

// countingDeviceRepo serves canned devices and counts store round trips.
type countingDeviceRepo struct {
	devices   []store.Device
	wardCalls int
	updates   map[string]map[string]any
	deletes   []string
	err       error
}

func newCountingDeviceRepo() *countingDeviceRepo {
	return &countingDeviceRepo{updates: make(map[string]map[string]any)}
}

func (f *countingDeviceRepo) Upsert(context.Context, *store.Device) error { return f.err }
func (f *countingDeviceRepo) SetOnline(context.Context, string, bool) error {
	return f.err
}
func (f *countingDeviceRepo) Get(context.Context, string) (*store.Device, error) {
	return nil, f.err
}

func (f *countingDeviceRepo) Update(_ context.Context, serial string, updates map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.updates[serial] = updates
	return nil
}

func (f *countingDeviceRepo) Delete(_ context.Context, serial string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, serial)
	return nil
}

func (f *countingDeviceRepo) WardDevices(context.Context, string) ([]store.Device, error) {
	f.wardCalls++
	return f.devices, f.err
}

// countingLogRepo serves canned logs and counts store round trips.
type countingLogRepo struct {
	logs          []store.DeviceLog
	bySerialCalls int
	updates       map[string]map[string]any
	deletes       []string
	err           error
}

func newCountingLogRepo() *countingLogRepo {
	return &countingLogRepo{updates: make(map[string]map[string]any)}
}

func (f *countingLogRepo) Upsert(context.Context, *store.DeviceLog) error { return f.err }

func (f *countingLogRepo) BySerial(context.Context, string) ([]store.DeviceLog, error) {
	f.bySerialCalls++
	return f.logs, f.err
}

func (f *countingLogRepo) Update(_ context.Context, id string, updates map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.updates[id] = updates
	return nil
}

func (f *countingLogRepo) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *countingLogRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

// listCall records the arguments of a List invocation.
type listCall struct {
	Scope    scope.Scope
	Contains string
	Page     int
	PerPage  int
}

// countingNotificationRepo serves canned notifications and counts store round
// trips.
type countingNotificationRepo struct {
	rows          []store.NotificationWithDevice
	notifications []store.Notification
	listCalls     []listCall
	allCalls      int
	bySerialCalls int
	updates       map[string]map[string]any
	deletes       []string
	err           error
}

func newCountingNotificationRepo() *countingNotificationRepo {
	return &countingNotificationRepo{updates: make(map[string]map[string]any)}
}

func (f *countingNotificationRepo) Upsert(context.Context, *store.Notification) error {
	return f.err
}

func (f *countingNotificationRepo) List(_ context.Context, sc scope.Scope, contains string, page, perPage int) ([]store.NotificationWithDevice, error) {
	f.listCalls = append(f.listCalls, listCall{Scope: sc, Contains: contains, Page: page, PerPage: perPage})
	return f.rows, f.err
}

func (f *countingNotificationRepo) AllScoped(context.Context, scope.Scope, int) ([]store.NotificationWithDevice, error) {
	f.allCalls++
	return f.rows, f.err
}

func (f *countingNotificationRepo) BySerial(context.Context, string) ([]store.Notification, error) {
	f.bySerialCalls++
	return f.notifications, f.err
}

func (f *countingNotificationRepo) Update(_ context.Context, id string, updates map[string]any) error {
	if f.err != nil {
		return f.err
	}
	f.updates[id] = updates
	return nil
}

func (f *countingNotificationRepo) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, id)
	return nil
}

func (f *countingNotificationRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

// fakeHistory records issued Flux queries and serves canned rows.
type fakeHistory struct {
	queries []string
	rows    []tsdb.Row
	err     error
}

func (f *fakeHistory) Query(_ context.Context, flux string) ([]tsdb.Row, error) {
	f.queries = append(f.queries, flux)
	return f.rows, f.err
}

func (f *fakeHistory) Bucket() string { return "smtrack-logday" }

var _ store.DeviceRepository = (*countingDeviceRepo)(nil)
var _ store.LogRepository = (*countingLogRepo)(nil)
var _ store.NotificationRepository = (*countingNotificationRepo)(nil)
var _ tsdb.Querier = (*fakeHistory)(nil)
