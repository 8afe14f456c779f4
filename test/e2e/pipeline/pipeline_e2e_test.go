// Package pipeline provides end-to-end tests for the full ingestion path:
// broker queues drained by the worker into the relational store.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smtrack.dev/telemetry-hub/internal/ingest"
	"smtrack.dev/telemetry-hub/internal/store"
)

var _ = Describe("Ingestion Pipeline E2E", func() {
	ctx := context.Background()

	marshal := func(v any) []byte {
		data, err := json.Marshal(v)
		Expect(err).NotTo(HaveOccurred())
		return data
	}

	Context("Device lifecycle", func() {
		It("should register a device published on the device queue", func() {
			serial := "eTPV1001-0001"

			body := marshal(ingest.DeviceEvent{
				Event: ingest.EventAddDevice,
				Device: &store.Device{
					Serial:   serial,
					Name:     "pharmacy fridge 1",
					Ward:     "WID-10000001",
					Hospital: "HID-10000001",
					Status:   true,
					Firmware: "v1.2.0",
				},
			})
			Expect(publish(ingest.DeviceQueue, body)).To(Succeed())

			Eventually(func() string {
				device, err := devices.Get(ctx, serial)
				if err != nil {
					return ""
				}
				return device.Ward
			}, 10*time.Second, 500*time.Millisecond).Should(Equal("WID-10000001"))
		})

		It("should apply an update envelope to an existing device", func() {
			serial := "eTPV1001-0002"

			add := marshal(ingest.DeviceEvent{
				Event:  ingest.EventAddDevice,
				Device: &store.Device{Serial: serial, Name: "old name", Ward: "WID-10000002"},
			})
			Expect(publish(ingest.DeviceQueue, add)).To(Succeed())

			Eventually(func() error {
				_, err := devices.Get(ctx, serial)
				return err
			}, 10*time.Second, 500*time.Millisecond).Should(Succeed())

			update := marshal(ingest.DeviceEvent{
				Event:  ingest.EventUpdateDevice,
				Device: &store.Device{Serial: serial, Name: "new name", Ward: "WID-10000002"},
			})
			Expect(publish(ingest.DeviceQueue, update)).To(Succeed())

			Eventually(func() string {
				device, err := devices.Get(ctx, serial)
				if err != nil {
					return ""
				}
				return device.Name
			}, 10*time.Second, 500*time.Millisecond).Should(Equal("new name"))
		})

		It("should flip the online flag on a connectivity event", func() {
			serial := "eTPV1001-0003"

			add := marshal(ingest.DeviceEvent{
				Event:  ingest.EventAddDevice,
				Device: &store.Device{Serial: serial, Ward: "WID-10000003"},
			})
			Expect(publish(ingest.DeviceQueue, add)).To(Succeed())

			Eventually(func() error {
				_, err := devices.Get(ctx, serial)
				return err
			}, 10*time.Second, 500*time.Millisecond).Should(Succeed())

			online := marshal(ingest.DeviceEvent{
				Event:  ingest.EventOnline,
				Online: &ingest.OnlineStatus{Serial: serial, Online: true},
			})
			Expect(publish(ingest.DeviceQueue, online)).To(Succeed())

			Eventually(func() bool {
				device, err := devices.Get(ctx, serial)
				if err != nil {
					return false
				}
				return device.Online
			}, 10*time.Second, 500*time.Millisecond).Should(BeTrue())
		})
	})

	Context("Telemetry reports", func() {
		It("should persist every report published on the log queue", func() {
			serial := "eTPV2001-0001"
			count := 10

			for i := 0; i < count; i++ {
				report := marshal(store.DeviceLog{
					ID:       fmt.Sprintf("e2e-report-%d", i),
					Serial:   serial,
					Temp:     4.0 + float64(i)*0.1,
					Humidity: 55.0,
					SendTime: time.Now().Add(time.Duration(i) * time.Minute).UTC(),
					Plug:     true,
					Internet: true,
				})
				Expect(publish(ingest.LogQueue, report)).To(Succeed())
			}

			Eventually(func() int {
				rows, err := logs.BySerial(ctx, serial)
				if err != nil {
					return -1
				}
				return len(rows)
			}, 15*time.Second, 500*time.Millisecond).Should(Equal(count))
		})

		It("should collapse a redelivered report into one row", func() {
			serial := "eTPV2001-0002"

			report := marshal(store.DeviceLog{
				ID:       "e2e-duplicate-report",
				Serial:   serial,
				Temp:     5.5,
				SendTime: time.Now().UTC(),
			})
			Expect(publish(ingest.LogQueue, report)).To(Succeed())
			Expect(publish(ingest.LogQueue, report)).To(Succeed())

			Eventually(func() int {
				rows, err := logs.BySerial(ctx, serial)
				if err != nil {
					return -1
				}
				return len(rows)
			}, 10*time.Second, 500*time.Millisecond).Should(Equal(1))

			Consistently(func() int {
				rows, err := logs.BySerial(ctx, serial)
				if err != nil {
					return -1
				}
				return len(rows)
			}, 3*time.Second, 500*time.Millisecond).Should(Equal(1))
		})

		It("should keep consuming after a poison message", func() {
			serial := "eTPV2001-0003"

			Expect(publish(ingest.LogQueue, []byte("{not json"))).To(Succeed())

			report := marshal(store.DeviceLog{
				ID:       "e2e-after-poison",
				Serial:   serial,
				Temp:     6.1,
				SendTime: time.Now().UTC(),
			})
			Expect(publish(ingest.LogQueue, report)).To(Succeed())

			Eventually(func() int {
				rows, err := logs.BySerial(ctx, serial)
				if err != nil {
					return -1
				}
				return len(rows)
			}, 10*time.Second, 500*time.Millisecond).Should(Equal(1))

			// The poison message must land on the dead queue, not back on
			// the work queue.
			Eventually(func() []byte {
				msg, ok, err := mqChannel.Get(ingest.LogQueue+".dead", true)
				if err != nil || !ok {
					return nil
				}
				return msg.Body
			}, 10*time.Second, 500*time.Millisecond).Should(Equal([]byte("{not json")))
		})
	})

	Context("Notifications", func() {
		It("should persist a classified notification", func() {
			serial := "eTPV3001-0001"

			body := marshal(store.Notification{
				ID:      "e2e-notification-1",
				Serial:  serial,
				Message: "TEMP/OVER",
				Detail:  "Temperature is too high",
			})
			Expect(publish(ingest.NotificationQueue, body)).To(Succeed())

			Eventually(func() string {
				rows, err := notifications.BySerial(ctx, serial)
				if err != nil || len(rows) == 0 {
					return ""
				}
				return rows[0].Message
			}, 10*time.Second, 500*time.Millisecond).Should(Equal("TEMP/OVER"))
		})

		It("should keep notifications of different devices independent", func() {
			serials := []string{"eTPV3001-0002", "eTPV3001-0003"}

			for i, serial := range serials {
				body := marshal(store.Notification{
					ID:      fmt.Sprintf("e2e-notification-%d", 10+i),
					Serial:  serial,
					Message: "AC/OFF",
					Detail:  "Power failure",
				})
				Expect(publish(ingest.NotificationQueue, body)).To(Succeed())
			}

			for _, serial := range serials {
				Eventually(func() int {
					rows, err := notifications.BySerial(ctx, serial)
					if err != nil {
						return -1
					}
					return len(rows)
				}, 10*time.Second, 500*time.Millisecond).Should(Equal(1))
			}
		})
	})
})
