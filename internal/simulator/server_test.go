package simulator_test

import (
	"log/slog"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"smtrack.dev/telemetry-hub/internal/simulator"
)

var _ = Describe("Simulator Server", func() {
	var logger *slog.Logger

	BeforeEach(func() {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelError,
		}))
	})

	Describe("NewServer", func() {
		Context("with valid configuration", func() {
			It("should create a server with a small fleet", func() {
				server, err := simulator.NewServer(&simulator.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					Interval:    5 * time.Second,
					DeviceCount: 3,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})

			It("should create a server with a single device", func() {
				server, err := simulator.NewServer(&simulator.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					Interval:    time.Second,
					DeviceCount: 1,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(server).NotTo(BeNil())
			})
		})

		Context("with invalid configuration", func() {
			It("should reject a nil config", func() {
				server, err := simulator.NewServer(nil)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("config cannot be nil"))
				Expect(server).To(BeNil())
			})

			It("should reject a missing logger", func() {
				_, err := simulator.NewServer(&simulator.ServerConfig{
					RabbitMQURL: "amqp://localhost:5672",
					Interval:    time.Second,
					DeviceCount: 1,
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("logger"))
			})

			It("should reject an empty RabbitMQ URL", func() {
				_, err := simulator.NewServer(&simulator.ServerConfig{
					Logger:      logger,
					Interval:    time.Second,
					DeviceCount: 1,
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("rabbitmq"))
			})

			It("should reject a non-positive interval", func() {
				_, err := simulator.NewServer(&simulator.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					DeviceCount: 1,
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("interval"))
			})

			It("should reject a non-positive device count", func() {
				_, err := simulator.NewServer(&simulator.ServerConfig{
					Logger:      logger,
					RabbitMQURL: "amqp://localhost:5672",
					Interval:    time.Second,
				})
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("device count"))
			})
		})
	})
})
