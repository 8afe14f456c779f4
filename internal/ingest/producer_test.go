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
	"smtrack.dev/telemetry-hub/pkg/mq/mock"
)

var _ = Describe("ReportProducer", func() {
	var (
		logClient    *mock.MockClient
		deviceClient *mock.MockClient
		backupClient *mock.MockClient
		producer     *ingest.ReportProducer
		now          time.Time
	)

	newReport := func(sendTime time.Time) *store.DeviceLog {
		return &store.DeviceLog{
			Temp:     4.2,
			Humidity: 55.0,
			SendTime: sendTime,
		}
	}

	BeforeEach(func() {
		now = time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC)
		logClient = mock.NewMockClient()
		logClient.Queue = ingest.LogQueue
		deviceClient = mock.NewMockClient()
		deviceClient.Queue = ingest.DeviceQueue
		backupClient = mock.NewMockClient()
		backupClient.Queue = ingest.BackupQueue

		var err error
		producer, err = ingest.NewReportProducer(&ingest.ReportProducerConfig{
			Logger:       logger.NewDefault(),
			LogClient:    logClient,
			DeviceClient: deviceClient,
			BackupClient: backupClient,
			Now:          func() time.Time { return now },
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewReportProducer", func() {
		It("should reject a nil config", func() {
			_, err := ingest.NewReportProducer(nil)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a missing client", func() {
			_, err := ingest.NewReportProducer(&ingest.ReportProducerConfig{
				Logger:       logger.NewDefault(),
				LogClient:    logClient,
				DeviceClient: deviceClient,
			})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Publish", func() {
		It("should fan a valid report out to all three queues", func() {
			report := newReport(now.Add(-time.Hour))
			Expect(producer.Publish(context.Background(), "eTPV0001-0001", report)).To(Succeed())

			Expect(logClient.UnsafePushCalls).To(HaveLen(1))
			Expect(deviceClient.UnsafePushCalls).To(HaveLen(1))
			Expect(backupClient.UnsafePushCalls).To(HaveLen(1))

			// Same payload on every queue
			Expect(deviceClient.UnsafePushCalls[0].Data).To(Equal(logClient.UnsafePushCalls[0].Data))
			Expect(backupClient.UnsafePushCalls[0].Data).To(Equal(logClient.UnsafePushCalls[0].Data))
		})

		It("should stamp the serial and generate an ID", func() {
			report := newReport(now)
			Expect(producer.Publish(context.Background(), "eTPV0001-0001", report)).To(Succeed())

			Expect(report.Serial).To(Equal("eTPV0001-0001"))
			Expect(report.ID).NotTo(BeEmpty())

			var published store.DeviceLog
			Expect(json.Unmarshal(logClient.UnsafePushCalls[0].Data, &published)).To(Succeed())
			Expect(published.ID).To(Equal(report.ID))
			Expect(published.Serial).To(Equal("eTPV0001-0001"))
		})

		It("should keep a client-supplied ID", func() {
			report := newReport(now)
			report.ID = "device-supplied-id"
			Expect(producer.Publish(context.Background(), "eTPV0001-0001", report)).To(Succeed())
			Expect(report.ID).To(Equal("device-supplied-id"))
		})

		It("should reject a report from the wrong year without touching the broker", func() {
			report := newReport(now.AddDate(-1, 0, 0))
			err := producer.Publish(context.Background(), "eTPV0001-0001", report)

			Expect(err).To(MatchError(ingest.ErrWrongYear))
			Expect(logClient.UnsafePushCalls).To(BeEmpty())
			Expect(deviceClient.UnsafePushCalls).To(BeEmpty())
			Expect(backupClient.UnsafePushCalls).To(BeEmpty())
		})

		It("should reject a missing serial without touching the broker", func() {
			err := producer.Publish(context.Background(), "", newReport(now))
			Expect(err).To(MatchError(ingest.ErrInvalidReport))
			Expect(logClient.UnsafePushCalls).To(BeEmpty())
		})

		It("should reject a nil report", func() {
			err := producer.Publish(context.Background(), "eTPV0001-0001", nil)
			Expect(err).To(MatchError(ingest.ErrInvalidReport))
		})

		It("should reject a zero send time", func() {
			err := producer.Publish(context.Background(), "eTPV0001-0001", newReport(time.Time{}))
			Expect(err).To(MatchError(ingest.ErrInvalidReport))
		})

		It("should still publish to the remaining queues when one push fails", func() {
			logClient.UnsafePushError = errors.New("broker gone")

			err := producer.Publish(context.Background(), "eTPV0001-0001", newReport(now))
			Expect(err).To(HaveOccurred())

			Expect(deviceClient.UnsafePushCalls).To(HaveLen(1))
			Expect(backupClient.UnsafePushCalls).To(HaveLen(1))
		})
	})

	Describe("PublishBatch", func() {
		It("should skip wrong-year entries and accept the rest", func() {
			reports := []*store.DeviceLog{
				newReport(now),
				newReport(now.AddDate(-1, 0, 0)),
				newReport(now.Add(-time.Minute)),
			}

			accepted, err := producer.PublishBatch(context.Background(), "eTPV0001-0001", reports)
			Expect(err).NotTo(HaveOccurred())
			Expect(accepted).To(Equal(2))
			Expect(logClient.UnsafePushCalls).To(HaveLen(2))
		})

		It("should surface non-year errors", func() {
			backupClient.UnsafePushError = errors.New("broker gone")

			accepted, err := producer.PublishBatch(context.Background(), "eTPV0001-0001", []*store.DeviceLog{newReport(now)})
			Expect(err).To(HaveOccurred())
			Expect(accepted).To(Equal(0))
		})
	})
})

var _ = Describe("NotificationProducer", func() {
	var (
		client   *mock.MockClient
		producer *ingest.NotificationProducer
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		client.Queue = ingest.NotificationQueue

		var err error
		producer, err = ingest.NewNotificationProducer(&ingest.NotificationProducerConfig{
			Logger: logger.NewDefault(),
			Client: client,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	It("should classify the code and publish the notification", func() {
		notification, err := producer.Publish(context.Background(), "eTPV0001-0001", "TEMP/OVER")
		Expect(err).NotTo(HaveOccurred())

		Expect(notification.ID).NotTo(BeEmpty())
		Expect(notification.Message).To(Equal("TEMP/OVER"))
		Expect(notification.Detail).To(Equal("Temperature is too high"))

		Expect(client.UnsafePushCalls).To(HaveLen(1))
		var published store.Notification
		Expect(json.Unmarshal(client.UnsafePushCalls[0].Data, &published)).To(Succeed())
		Expect(published.Detail).To(Equal("Temperature is too high"))
	})

	It("should reject an empty serial", func() {
		_, err := producer.Publish(context.Background(), "", "TEMP/OVER")
		Expect(err).To(MatchError(ingest.ErrInvalidReport))
		Expect(client.UnsafePushCalls).To(BeEmpty())
	})

	It("should reject an empty code", func() {
		_, err := producer.Publish(context.Background(), "eTPV0001-0001", "")
		Expect(err).To(MatchError(ingest.ErrInvalidReport))
		Expect(client.UnsafePushCalls).To(BeEmpty())
	})
})

var _ = Describe("ConnectivityPublisher", func() {
	var (
		client    *mock.MockClient
		publisher *ingest.ConnectivityPublisher
	)

	BeforeEach(func() {
		client = mock.NewMockClient()
		client.Queue = ingest.DeviceQueue

		var err error
		publisher, err = ingest.NewConnectivityPublisher(logger.NewDefault(), client)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should publish an online event for a connected device", func() {
		Expect(publisher.Publish(context.Background(), "eTPV0001-0001", "client.connected")).To(Succeed())

		Expect(client.UnsafePushCalls).To(HaveLen(1))
		var envelope ingest.DeviceEvent
		Expect(json.Unmarshal(client.UnsafePushCalls[0].Data, &envelope)).To(Succeed())
		Expect(envelope.Event).To(Equal(ingest.EventOnline))
		Expect(envelope.Online.Serial).To(Equal("eTPV0001-0001"))
		Expect(envelope.Online.Online).To(BeTrue())
	})

	It("should publish an offline event for a disconnected device", func() {
		Expect(publisher.Publish(context.Background(), "iTSV0002-0002", "client.disconnected")).To(Succeed())

		var envelope ingest.DeviceEvent
		Expect(json.Unmarshal(client.UnsafePushCalls[0].Data, &envelope)).To(Succeed())
		Expect(envelope.Online.Online).To(BeFalse())
	})

	It("should drop unrecognized client identifiers without error", func() {
		Expect(publisher.Publish(context.Background(), "dashboard-7", "client.connected")).To(Succeed())
		Expect(client.UnsafePushCalls).To(BeEmpty())
	})
})

var _ = Describe("RecognizedSerial", func() {
	It("should recognize managed sensor prefixes", func() {
		Expect(ingest.RecognizedSerial("eTPV1234-0001")).To(BeTrue())
		Expect(ingest.RecognizedSerial("iTSV9999-0042")).To(BeTrue())
	})

	It("should reject other identifiers", func() {
		Expect(ingest.RecognizedSerial("gateway-1")).To(BeFalse())
		Expect(ingest.RecognizedSerial("")).To(BeFalse())
	})
})
