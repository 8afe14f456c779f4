package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/internal/store"
	"smtrack.dev/telemetry-hub/pkg/logger"
	"smtrack.dev/telemetry-hub/pkg/scope"
)

// fakeDeviceRepo records applied device writes.
type fakeDeviceRepo struct {
	upserts []*store.Device
	online  map[string]bool
	err     error
}

func newFakeDeviceRepo() *fakeDeviceRepo {
	return &fakeDeviceRepo{online: make(map[string]bool)}
}

func (f *fakeDeviceRepo) Upsert(_ context.Context, d *store.Device) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, d)
	return nil
}

func (f *fakeDeviceRepo) SetOnline(_ context.Context, serial string, online bool) error {
	if f.err != nil {
		return f.err
	}
	f.online[serial] = online
	return nil
}

func (f *fakeDeviceRepo) Get(context.Context, string) (*store.Device, error) { return nil, f.err }
func (f *fakeDeviceRepo) Update(context.Context, string, map[string]any) error {
	return f.err
}
func (f *fakeDeviceRepo) Delete(context.Context, string) error { return f.err }
func (f *fakeDeviceRepo) WardDevices(context.Context, string) ([]store.Device, error) {
	return nil, f.err
}

// fakeLogRepo records applied log writes.
type fakeLogRepo struct {
	upserts []*store.DeviceLog
	err     error
}

func (f *fakeLogRepo) Upsert(_ context.Context, l *store.DeviceLog) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, l)
	return nil
}

func (f *fakeLogRepo) BySerial(context.Context, string) ([]store.DeviceLog, error) {
	return nil, f.err
}
func (f *fakeLogRepo) Update(context.Context, string, map[string]any) error { return f.err }
func (f *fakeLogRepo) Delete(context.Context, string) error                 { return f.err }
func (f *fakeLogRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

// fakeNotificationRepo records applied notification writes.
type fakeNotificationRepo struct {
	upserts []*store.Notification
	err     error
}

func (f *fakeNotificationRepo) Upsert(_ context.Context, n *store.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, n)
	return nil
}

func (f *fakeNotificationRepo) List(context.Context, scope.Scope, string, int, int) ([]store.NotificationWithDevice, error) {
	return nil, f.err
}
func (f *fakeNotificationRepo) AllScoped(context.Context, scope.Scope, int) ([]store.NotificationWithDevice, error) {
	return nil, f.err
}
func (f *fakeNotificationRepo) BySerial(context.Context, string) ([]store.Notification, error) {
	return nil, f.err
}
func (f *fakeNotificationRepo) Update(context.Context, string, map[string]any) error { return f.err }
func (f *fakeNotificationRepo) Delete(context.Context, string) error                 { return f.err }
func (f *fakeNotificationRepo) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, f.err
}

var _ = Describe("DeviceHandler", func() {
	var (
		repo    *fakeDeviceRepo
		handler *ingest.DeviceHandler
	)

	BeforeEach(func() {
		repo = newFakeDeviceRepo()
		handler = ingest.NewDeviceHandler(logger.NewDefault(), repo)
	})

	marshal := func(event ingest.DeviceEvent) []byte {
		data, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())
		return data
	}

	It("should upsert on add-device", func() {
		body := marshal(ingest.DeviceEvent{
			Event:  ingest.EventAddDevice,
			Device: &store.Device{Serial: "eTPV0001-0001", Ward: "WID-1"},
		})

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(1))
		Expect(repo.upserts[0].Serial).To(Equal("eTPV0001-0001"))
	})

	It("should upsert on update-device", func() {
		body := marshal(ingest.DeviceEvent{
			Event:  ingest.EventUpdateDevice,
			Device: &store.Device{Serial: "eTPV0001-0001", Name: "renamed"},
		})

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(1))
	})

	It("should apply a duplicated envelope twice without error", func() {
		body := marshal(ingest.DeviceEvent{
			Event:  ingest.EventAddDevice,
			Device: &store.Device{Serial: "eTPV0001-0001"},
		})

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(2))
		Expect(repo.upserts[1].Serial).To(Equal(repo.upserts[0].Serial))
	})

	It("should flip the online flag on an online event", func() {
		body := marshal(ingest.DeviceEvent{
			Event:  ingest.EventOnline,
			Online: &ingest.OnlineStatus{Serial: "eTPV0001-0001", Online: true},
		})

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.online).To(HaveKeyWithValue("eTPV0001-0001", true))
	})

	It("should error on an unknown event", func() {
		body := marshal(ingest.DeviceEvent{Event: "drop-device"})
		Expect(handler.Handle(context.Background(), body)).NotTo(Succeed())
	})

	It("should error on a malformed payload", func() {
		Expect(handler.Handle(context.Background(), []byte("{not json"))).NotTo(Succeed())
		Expect(repo.upserts).To(BeEmpty())
	})

	It("should propagate store failures", func() {
		repo.err = errors.New("db down")
		body := marshal(ingest.DeviceEvent{
			Event:  ingest.EventAddDevice,
			Device: &store.Device{Serial: "eTPV0001-0001"},
		})
		Expect(handler.Handle(context.Background(), body)).NotTo(Succeed())
	})
})

var _ = Describe("LogHandler", func() {
	var (
		repo    *fakeLogRepo
		handler *ingest.LogHandler
	)

	BeforeEach(func() {
		repo = &fakeLogRepo{}
		handler = ingest.NewLogHandler(logger.NewDefault(), repo)
	})

	It("should upsert a valid report", func() {
		body, err := json.Marshal(store.DeviceLog{ID: "r1", Serial: "eTPV0001-0001", Temp: 4.5})
		Expect(err).NotTo(HaveOccurred())

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(1))
		Expect(repo.upserts[0].ID).To(Equal("r1"))
	})

	It("should upsert a redelivered report under the same ID", func() {
		body, err := json.Marshal(store.DeviceLog{ID: "r1", Serial: "eTPV0001-0001"})
		Expect(err).NotTo(HaveOccurred())

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(2))
		Expect(repo.upserts[1].ID).To(Equal(repo.upserts[0].ID))
	})

	It("should reject a report without an ID", func() {
		body, err := json.Marshal(store.DeviceLog{Serial: "eTPV0001-0001"})
		Expect(err).NotTo(HaveOccurred())
		Expect(handler.Handle(context.Background(), body)).NotTo(Succeed())
	})

	It("should reject a malformed payload", func() {
		Expect(handler.Handle(context.Background(), []byte("1,2,3"))).NotTo(Succeed())
	})
})

var _ = Describe("NotificationHandler", func() {
	var (
		repo    *fakeNotificationRepo
		handler *ingest.NotificationHandler
	)

	BeforeEach(func() {
		repo = &fakeNotificationRepo{}
		handler = ingest.NewNotificationHandler(logger.NewDefault(), repo)
	})

	It("should upsert a valid notification", func() {
		body, err := json.Marshal(store.Notification{ID: "n1", Serial: "eTPV0001-0001", Message: "TEMP/OVER"})
		Expect(err).NotTo(HaveOccurred())

		Expect(handler.Handle(context.Background(), body)).To(Succeed())
		Expect(repo.upserts).To(HaveLen(1))
	})

	It("should reject a notification without a serial", func() {
		body, err := json.Marshal(store.Notification{ID: "n1"})
		Expect(err).NotTo(HaveOccurred())
		Expect(handler.Handle(context.Background(), body)).NotTo(Succeed())
	})
})
